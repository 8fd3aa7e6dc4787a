// Package state wires the application's store.Store together with its
// modifiers, middleware and effect runner. It is the root container for the
// stocks slice of application state; additional slices get their own store
// without altering this one.
package state

import (
	"stockfolio/state/data"
	"stockfolio/state/effects"
	"stockfolio/state/middleware"
	"stockfolio/state/modifiers"
	"stockfolio/store"
)

// Config carries the external collaborators the state engine depends on.
type Config struct {
	// Backend is the brokerage service.
	Backend effects.Backend
	// Recents is the durable recent-search store.
	Recents effects.RecentStore
	// Effects adjusts effect timing; the zero value selects the defaults.
	Effects effects.Options
}

// App owns the store and everything attached to it.
type App struct {
	// Store is the application's state store.
	Store *store.Store

	// Runner reacts to actions with backend calls.
	Runner *effects.Runner

	// Logging holds the middleware used to debug-log changes.
	Logging *middleware.Logging
}

// New is the constructor for App.
func New(cfg Config) (*App, error) {
	l := &middleware.Logging{}
	r := effects.New(cfg.Backend, cfg.Recents, cfg.Effects)

	mw := []store.Middleware{l.DebugLog, r.Middleware}

	s, err := store.New(data.Initial(), modifiers.All, mw)
	if err != nil {
		return nil, err
	}
	r.Start(s)

	return &App{Store: s, Runner: r, Logging: l}, nil
}

// Close tears down the effect runner: pending timers are cancelled and no
// further effect dispatch reaches the store.
func (a *App) Close() {
	a.Runner.Stop()
}
