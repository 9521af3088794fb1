package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// shutdownContext returns a context canceled by the first SIGINT or SIGTERM.
// A second one exits the process, so a guard stuck draining connections or
// a stream stuck closing can still be killed. If reload is non-nil, SIGHUP
// is caught too and forwarded to it; a SIGHUP arriving while one is still
// pending is dropped.
//
// stop releases the signals and cancels the context. Call it when the
// command returns.
func shutdownContext(
	parent context.Context, logger *slog.Logger, reload chan<- os.Signal,
) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)

	sigs := []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	if reload != nil {
		sigs = append(sigs, syscall.SIGHUP)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)

	done := make(chan struct{})

	go func() {
		defer signal.Stop(sigCh)

		routeSignals(parent, done, sigCh, cancel, reload, os.Exit, logger)
	}()

	var once sync.Once

	return ctx, func() {
		once.Do(func() { close(done) })
		cancel()
	}
}

// routeSignals dispatches signals from sigCh until parent or done ends.
func routeSignals(
	parent context.Context, done <-chan struct{}, sigCh <-chan os.Signal,
	cancel context.CancelFunc, reload chan<- os.Signal, exit func(int), logger *slog.Logger,
) {
	stopping := false

	for {
		select {
		case <-parent.Done():
			return
		case <-done:
			return
		case sig := <-sigCh:
			switch {
			case sig == syscall.SIGHUP:
				if stopping || reload == nil {
					continue
				}

				select {
				case reload <- sig:
				default:
					logger.Debug("reload already pending, dropping SIGHUP")
				}

			case stopping:
				logger.Warn("received second signal, forcing exit",
					slog.String("signal", sig.String()),
				)
				exit(1)

				return

			default:
				logger.Info("received signal, shutting down",
					slog.String("signal", sig.String()),
				)

				stopping = true
				cancel()
			}
		}
	}
}
