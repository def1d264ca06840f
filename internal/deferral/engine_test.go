package deferral

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/JoeHolownia/depotnet/internal/concurrency"
	"github.com/JoeHolownia/depotnet/internal/depotstate"
	"github.com/JoeHolownia/depotnet/internal/logging"
)

func TestDeferThenExecuteDispatchesOperation(t *testing.T) {
	st := depotstate.New("A", nil)
	invoker := concurrency.NewWaitGroupInvoker()
	log := logging.NewDefaultLogger()

	var mu sync.Mutex
	var dispatched []string
	engine := NewEngine(st, invoker, log, func(op string) {
		mu.Lock()
		dispatched = append(dispatched, op)
		mu.Unlock()
	})

	engine.Defer(7, "Deliver:5:apple")
	engine.Execute(7)
	invoker.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(dispatched) != 1 || dispatched[0] != "Deliver:5:apple" {
		t.Fatalf("expected the deferred operation to fire once, got %#v", dispatched)
	}
}

func TestExecuteWithNoMatchingDeferralIsNoOp(t *testing.T) {
	st := depotstate.New("A", nil)
	invoker := concurrency.NewWaitGroupInvoker()
	log := logging.NewDefaultLogger()

	engine := NewEngine(st, invoker, log, func(string) {
		t.Fatal("dispatch must not be called when nothing was deferred")
	})

	engine.Execute(99)
	invoker.Stop()
}

func TestSameKeyDeferralsFireInArrivalOrder(t *testing.T) {
	st := depotstate.New("A", nil)
	invoker := concurrency.NewWaitGroupInvoker()
	log := logging.NewDefaultLogger()

	var mu sync.Mutex
	var order []string
	engine := NewEngine(st, invoker, log, func(op string) {
		mu.Lock()
		order = append(order, op)
		mu.Unlock()
	})

	engine.Defer(3, "Deliver:1:apple")
	engine.Defer(3, "Deliver:2:apple")
	engine.Defer(3, "Deliver:3:apple")
	engine.Execute(3)
	invoker.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"Deliver:1:apple", "Deliver:2:apple", "Deliver:3:apple"}
	if len(order) != len(want) {
		t.Fatalf("order = %#v, want %#v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %#v, want %#v", order, want)
		}
	}
}

func TestDeferralWithDifferentKeyDoesNotFire(t *testing.T) {
	st := depotstate.New("A", nil)
	invoker := concurrency.NewWaitGroupInvoker()
	log := logging.NewDefaultLogger()

	fired := make(chan struct{}, 1)
	engine := NewEngine(st, invoker, log, func(string) {
		fired <- struct{}{}
	})

	engine.Defer(1, "Deliver:1:apple")
	engine.Execute(2)

	select {
	case <-fired:
		t.Fatal("deferral under a different key must not fire")
	case <-time.After(100 * time.Millisecond):
	}

	engine.Execute(1)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("deferral never fired after matching execute")
	}
	invoker.Stop()
}

// gatedInvoker holds every spawned function back until release is
// closed, letting a test force Execute to run before the waiter
// goroutine ever starts.
type gatedInvoker struct {
	release chan struct{}
	inner   *concurrency.WaitGroupInvoker
}

func newGatedInvoker() *gatedInvoker {
	return &gatedInvoker{release: make(chan struct{}), inner: concurrency.NewWaitGroupInvoker()}
}

func (g *gatedInvoker) Spawn(f func()) {
	g.inner.Spawn(func() {
		<-g.release
		f()
	})
}

func (g *gatedInvoker) openGate() { close(g.release) }

func (g *gatedInvoker) Stop() { g.inner.Stop() }

// TestDeferralFiredBeforeWaiterClaimsItStillDispatches reproduces the
// ordering where the action worker processes "Defer:k:..." followed
// immediately by "Execute:k" before the deferral's own waiter
// goroutine has even been scheduled. Execute must be able to fire a
// still-unclaimed deferral, and the waiter must still find and
// dispatch it once it finally runs.
func TestDeferralFiredBeforeWaiterClaimsItStillDispatches(t *testing.T) {
	st := depotstate.New("A", nil)
	invoker := newGatedInvoker()
	log := logging.NewDefaultLogger()

	dispatched := make(chan string, 1)
	engine := NewEngine(st, invoker, log, func(op string) {
		dispatched <- op
	})

	engine.Defer(7, "Deliver:1:x")
	engine.Execute(7)

	invoker.openGate()
	invoker.Stop()

	select {
	case op := <-dispatched:
		if op != "Deliver:1:x" {
			t.Fatalf("dispatched %q, want %q", op, "Deliver:1:x")
		}
	default:
		t.Fatal("deferral fired before being claimed was never dispatched")
	}
}

func TestNoGoroutineLeakAfterAllDeferralsFire(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := depotstate.New("A", nil)
	invoker := concurrency.NewWaitGroupInvoker()
	log := logging.NewDefaultLogger()
	engine := NewEngine(st, invoker, log, func(string) {})

	engine.Defer(1, "Deliver:1:apple")
	engine.Defer(1, "Deliver:2:apple")
	engine.Defer(2, "Deliver:3:apple")
	engine.Execute(1)
	engine.Execute(2)
	invoker.Stop()
}
