// Package middleware provides Middleware for the application's store.Store.
package middleware

import (
	"github.com/golang/glog"
	"github.com/kylelemons/godebug/pretty"

	"stockfolio/store"
)

var pConfig = &pretty.Config{
	Diffable: true,

	IncludeUnexported:   false,
	PrintStringers:      true,
	PrintTextMarshalers: true,
}

// Logging provides middleware for debug-logging state transitions.
type Logging struct {
	lastData store.State
}

// DebugLog implements store.Middleware. At -v=2 it logs a diff of every
// committed state change.
func (l *Logging) DebugLog(args *store.MWArgs) (changedData interface{}, stop bool, err error) {
	if !bool(glog.V(2)) {
		args.WG.Done()
		return nil, false, nil
	}

	action := args.Action
	go func() {
		defer args.WG.Done() // Not doing this will cause the store to stall.
		state, ok := <-args.Committed
		if !ok || state.IsZero() { // Another middleware killed the commit.
			return
		}
		glog.Infof("action %d committed, version %d:\n%s", action.Type, state.Version, pConfig.Compare(l.lastData.Data, state.Data))
		l.lastData = state
	}()
	return nil, false, nil
}
