// Package supervisor implements the process-wide concerns of spec
// section 4.7: reacting to SIGHUP by dumping current state to standard
// output, and recording (without ever dying from) a broken peer pipe.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/JoeHolownia/depotnet/internal/depotstate"
	"github.com/JoeHolownia/depotnet/internal/logging"
)

// Supervisor owns the signal-driven behaviors that sit above a single
// depot's connection and protocol machinery.
type Supervisor struct {
	state *depotstate.State
	out   io.Writer
	log   logging.Logger

	mu             sync.Mutex
	brokenPipeSeen bool
}

// New builds a Supervisor that dumps to out (ordinarily os.Stdout, per
// the wire contract's exact-text requirement).
func New(state *depotstate.State, out io.Writer, log logging.Logger) *Supervisor {
	return &Supervisor{state: state, out: out, log: log}
}

// NoteWriteFailure implements protocol.WriteFailureObserver. A failed
// write to a peer socket is recorded and otherwise ignored — the
// depot keeps running exactly as if the write had succeeded, per spec
// section 4.5.e's "never kill the process" requirement.
func (s *Supervisor) NoteWriteFailure(err error) {
	s.mu.Lock()
	s.brokenPipeSeen = true
	s.mu.Unlock()
	s.log.Debugf("write to a peer failed and was ignored: %v", err)
}

// BrokenPipeSeen reports whether any peer write has ever failed.
func (s *Supervisor) BrokenPipeSeen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brokenPipeSeen
}

// Run installs the SIGHUP handler and blocks, dumping state on every
// signal, until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			s.Dump()
		}
	}
}

// Dump writes the current Goods and Neighbours sections to the
// configured output, in the exact format spec section 4.7 requires.
func (s *Supervisor) Dump() {
	goods, neighbours := s.state.SnapshotForDisplay()

	var b strings.Builder
	b.WriteString("Goods:\n")
	for _, g := range goods {
		fmt.Fprintf(&b, "%s %d\n", g.Name, g.Quantity)
	}
	b.WriteString("Neighbours:\n")
	for _, n := range neighbours {
		fmt.Fprintf(&b, "%s\n", n)
	}

	if _, err := io.WriteString(s.out, b.String()); err != nil {
		s.log.Debugf("state dump write failed: %v", err)
	}
}
