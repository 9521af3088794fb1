package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/filemgr/internal/api"
)

// resubscribeDelay is the pause before reopening a stream the server closed.
const resubscribeDelay = 2 * time.Second

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print change events as they happen",
		Long: `Stream change events from the server until interrupted. A stream the
server closes normally is reopened; an ended session stops the command.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

// eventJSON is the JSON output schema for one change event.
type eventJSON struct {
	Type string `json:"type"`
	Path string `json:"path"`
	At   string `json:"at"`
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx, stop := shutdownContext(cmd.Context(), cc.Logger, nil)
	defer stop()

	app, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.requireLogin(); err != nil {
		return err
	}

	cc.Statusf("Watching %s for changes. Press Ctrl-C to stop.\n", cc.Cfg.ServerURL)

	err = watchEvents(ctx, app.Client, func(ev api.Event) error {
		return printEvent(cc, ev)
	}, resubscribeDelay)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}

	return err
}

// subscriber opens change-event streams. Implemented by api.Client.
type subscriber interface {
	Subscribe(ctx context.Context) (*api.Subscription, error)
}

// watchEvents delivers events to emit until ctx is done or a stream fails
// with anything other than a normal close.
func watchEvents(ctx context.Context, src subscriber, emit func(api.Event) error, delay time.Duration) error {
	for {
		sub, err := src.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}

		err = drain(ctx, sub, emit)
		_ = sub.Close()

		if !errors.Is(err, api.ErrSubscriptionClosed) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func drain(ctx context.Context, sub *api.Subscription, emit func(api.Event) error) error {
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return err
		}

		if err := emit(ev); err != nil {
			return err
		}
	}
}

func printEvent(cc *CLIContext, ev api.Event) error {
	if cc.Flags.JSON {
		// One object per line so the output can be piped.
		return printJSONLine(cc, eventJSON{
			Type: ev.Type,
			Path: ev.Path,
			At:   ev.At.UTC().Format(time.RFC3339),
		})
	}

	_, err := fmt.Fprintf(cc.Stdout, "%s  %-8s %s\n", ev.At.Local().Format(time.TimeOnly), ev.Type, ev.Path)

	return err
}
