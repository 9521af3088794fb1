package config

import (
	"slices"
	"sync/atomic"
)

// Holder is the live configuration of a long-running command such as the
// route guard. A reload swaps the whole Config at once, so a reader never
// sees half of an old guard section and half of a new one.
type Holder struct {
	cfg  atomic.Pointer[Config]
	path string
}

// NewHolder creates a Holder with the initial config and the config file
// path that reloads read from.
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cfg.Store(cfg)

	return h
}

// Config returns the current snapshot. Callers must not modify it.
func (h *Holder) Config() *Config {
	return h.cfg.Load()
}

// Path returns the config file path.
func (h *Holder) Path() string {
	return h.path
}

// Guard returns the route guard settings of the current snapshot. The
// result is a copy and safe to keep across a reload.
func (h *Holder) Guard() GuardConfig {
	g := h.cfg.Load().Guard
	g.PublicPaths = slices.Clone(g.PublicPaths)

	return g
}

// Update installs cfg and reports whether the route guard settings differ
// from the ones it replaces.
func (h *Holder) Update(cfg *Config) (guardChanged bool) {
	old := h.cfg.Swap(cfg)

	return old == nil || !sameGuard(old.Guard, cfg.Guard)
}

func sameGuard(a, b GuardConfig) bool {
	return a.Listen == b.Listen &&
		a.Upstream == b.Upstream &&
		a.LoginPath == b.LoginPath &&
		slices.Equal(a.PublicPaths, b.PublicPaths)
}
