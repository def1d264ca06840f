package supervisor

import (
	"bytes"
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/JoeHolownia/depotnet/internal/depotstate"
	"github.com/JoeHolownia/depotnet/internal/logging"
)

func TestDumpFormatsGoodsAndNeighbours(t *testing.T) {
	st := depotstate.New("A", []depotstate.Resource{
		{Name: "banana", Quantity: 2},
		{Name: "apple", Quantity: 5},
		{Name: "pear", Quantity: 0},
	})
	p1 := st.InsertPeer(nil, nil)
	st.SetPeerIdentity(p1, "zeta", "1")
	p2 := st.InsertPeer(nil, nil)
	st.SetPeerIdentity(p2, "beta", "2")

	var buf bytes.Buffer
	sup := New(st, &buf, logging.NewDefaultLogger())
	sup.Dump()

	want := "Goods:\napple 5\nbanana 2\nNeighbours:\nbeta\nzeta\n"
	if buf.String() != want {
		t.Fatalf("dump = %q, want %q", buf.String(), want)
	}
}

func TestDumpWithNoGoodsOrNeighbours(t *testing.T) {
	st := depotstate.New("A", nil)
	var buf bytes.Buffer
	sup := New(st, &buf, logging.NewDefaultLogger())
	sup.Dump()

	want := "Goods:\nNeighbours:\n"
	if buf.String() != want {
		t.Fatalf("dump = %q, want %q", buf.String(), want)
	}
}

func TestNoteWriteFailureRecordsWithoutPanicking(t *testing.T) {
	st := depotstate.New("A", nil)
	sup := New(st, &bytes.Buffer{}, logging.NewDefaultLogger())

	if sup.BrokenPipeSeen() {
		t.Fatal("expected no broken pipe recorded yet")
	}
	sup.NoteWriteFailure(os.ErrClosed)
	if !sup.BrokenPipeSeen() {
		t.Fatal("expected broken pipe flag to be set")
	}
}

func TestRunDumpsOnSIGHUP(t *testing.T) {
	st := depotstate.New("A", []depotstate.Resource{{Name: "apple", Quantity: 1}})
	var buf bytes.Buffer
	sup := New(st, &buf, logging.NewDefaultLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(os.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("failed to raise SIGHUP: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if buf.String() != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if buf.String() != "Goods:\napple 1\nNeighbours:\n" {
		t.Fatalf("expected SIGHUP to trigger a dump, got %q", buf.String())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
