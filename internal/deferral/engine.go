// Package deferral implements the deferred-operation subsystem of
// spec section 4.6: holding an inbound operation under an integer key
// until a matching Execute trigger releases it, preserving the arrival
// order of same-key deferrals.
package deferral

import (
	"github.com/JoeHolownia/depotnet/internal/concurrency"
	"github.com/JoeHolownia/depotnet/internal/depotstate"
	"github.com/JoeHolownia/depotnet/internal/logging"
)

// Dispatch runs a previously deferred operation back through the
// protocol decoder once it fires. It is a plain function rather than
// an interface so this package never needs to import protocol, which
// in turn depends on this package through the Deferrer interface.
type Dispatch func(operation string)

// Engine holds deferred operations against the shared depot state and
// releases them on Execute.
type Engine struct {
	state    *depotstate.State
	invoker  concurrency.Invoker
	log      logging.Logger
	dispatch Dispatch
}

// NewEngine builds a deferral engine. dispatch is called, outside any
// lock, with the operation text once a deferral with a matching key
// fires.
func NewEngine(state *depotstate.State, invoker concurrency.Invoker, log logging.Logger, dispatch Dispatch) *Engine {
	return &Engine{state: state, invoker: invoker, log: log, dispatch: dispatch}
}

// Defer records operation as held under key, spawns its waiter and
// returns without waiting for it. The waiter does not return until
// the deferral it owns has fired — preserving the arrival
// order of multiple deferrals sharing the same key, since each
// waiter only claims the oldest still-new deferral record when it
// starts running.
func (e *Engine) Defer(key int, operation string) {
	e.state.AddDeferral(key, operation)
	e.invoker.Spawn(func() { e.waitAndFire() })
}

// waitAndFire claims the oldest not-yet-claimed deferral, then blocks
// on the shared condition variable until it has been fired by a
// matching Execute, then dispatches its operation. The deferral may
// already be fired by the time it is claimed — Execute runs
// independently of any waiter and never marks a deferral claimed — in
// which case WaitExecutedLocked returns immediately instead of
// blocking.
func (e *Engine) waitAndFire() {
	e.state.Lock()
	d := e.state.FindNewDeferralLocked()
	if d == nil {
		e.state.Unlock()
		e.log.Errorf("deferral waiter started with no new deferral to claim")
		return
	}
	e.state.MarkDeferralClaimedLocked(d)
	e.state.WaitExecutedLocked(d)
	operation := d.Operation
	e.state.Unlock()

	e.dispatch(operation)
}

// Execute fires every unfired deferral held under key, in the order
// they were added, waking each one's waiter goroutine.
func (e *Engine) Execute(key int) {
	e.state.Lock()
	defer e.state.Unlock()
	for {
		d := e.state.FindUnfiredDeferralByKeyLocked(key)
		if d == nil {
			return
		}
		e.state.MarkDeferralFiredLocked(d)
	}
}
