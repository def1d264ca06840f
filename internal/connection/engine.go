// Package connection implements the per-peer lifecycle described in
// spec section 4.5: binding the listener, dialing out, the reader and
// action worker pair for every peer, and the handshake/teardown
// semantics around them.
package connection

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	"github.com/JoeHolownia/depotnet/internal/concurrency"
	"github.com/JoeHolownia/depotnet/internal/depotstate"
	"github.com/JoeHolownia/depotnet/internal/logging"
	"github.com/JoeHolownia/depotnet/internal/mbuffer"
	"github.com/JoeHolownia/depotnet/internal/protocol"
	"github.com/JoeHolownia/depotnet/internal/textcodec"
)

// maxLineBytes is the wire protocol's maximum line length (spec
// section 6): 49 bytes of payload, matching the original's 50-byte
// fgets buffer with its terminating NUL.
const maxLineBytes = 49

// Engine owns every peer connection's lifecycle: the listener, dialing
// out on Connect, and the reader/action worker pair started for every
// connection regardless of which side initiated it.
type Engine struct {
	state   *depotstate.State
	decoder *protocol.Decoder
	invoker concurrency.Invoker
	log     logging.Logger

	mu       sync.Mutex
	ownPort  string
	listener net.Listener
	closed   bool
}

// NewEngine builds a connection engine for the given state and
// decoder. Call SetDialer on the decoder (protocol.Decoder.SetDialer)
// with this engine once both exist, since the decoder needs the
// engine's dial-out capability and the engine needs the decoder's
// dispatch capability.
func NewEngine(state *depotstate.State, decoder *protocol.Decoder, invoker concurrency.Invoker, log logging.Logger) *Engine {
	return &Engine{state: state, decoder: decoder, invoker: invoker, log: log}
}

// Listen binds an ephemeral TCP port on loopback, prints its numeric
// value to standard output on its own line (flushed immediately, per
// spec section 4.5.f) and starts the accept loop. It returns the
// bound port as a decimal string.
func (e *Engine) Listen() (string, error) {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return "", err
	}

	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		ln.Close()
		return "", err
	}

	e.mu.Lock()
	e.listener = ln
	e.ownPort = port
	e.mu.Unlock()

	fmt.Println(port)

	e.invoker.Spawn(e.acceptLoop)
	return port, nil
}

func (e *Engine) acceptLoop() {
	for {
		e.mu.Lock()
		ln := e.listener
		closed := e.closed
		e.mu.Unlock()
		if closed || ln == nil {
			return
		}

		conn, err := ln.Accept()
		if err != nil {
			if e.isClosed() {
				return
			}
			e.log.Debugf("accept failed: %v", err)
			continue
		}
		e.startPeerWorkers(conn)
	}
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// DialPeer implements protocol.Dialer: it connects out to
// localhost:<port>, and on success starts the same reader/action
// worker pair and handshake an accepted connection would get. A
// failed dial leaves no peer entry, per spec section 7.
func (e *Engine) DialPeer(port string) {
	conn, err := net.Dial("tcp", net.JoinHostPort("localhost", port))
	if err != nil {
		e.log.Debugf("dial to port %s failed: %v", port, err)
		return
	}
	e.startPeerWorkers(conn)
}

// startPeerWorkers inserts the placeholder peer entry, starts its
// reader and action workers, and transmits this depot's own IM
// handshake — the common tail shared by both the accept path and the
// dial-out path (spec sections 4.5.b and 4.5.f both end here).
func (e *Engine) startPeerWorkers(conn net.Conn) *depotstate.Peer {
	cancel := func() { conn.Close() }
	peer := e.state.InsertPeer(conn, cancel)

	e.mu.Lock()
	ownPort := e.ownPort
	e.mu.Unlock()

	buf := mbuffer.New()
	e.invoker.Spawn(func() { e.readerLoop(conn, buf) })
	e.invoker.Spawn(func() { e.actionLoop(peer, buf) })

	im := fmt.Sprintf("IM:%s:%s\n", ownPort, e.state.SelfName())
	if _, err := conn.Write([]byte(im)); err != nil {
		e.log.Debugf("handshake write to new peer failed: %v", err)
	}

	return peer
}

// readerLoop frames newline-terminated lines off conn and pushes each
// one onto buf, stripping the trailing newline. It exits on end of
// stream or on an over-length line, which (per spec section 9) would
// otherwise desynchronize the stream the way the original's fgets
// would.
func (e *Engine) readerLoop(conn net.Conn, buf *mbuffer.Buffer) {
	defer buf.Close()

	reader := bufio.NewReader(conn)
	for {
		raw, err := reader.ReadString('\n')
		if err != nil {
			if len(raw) == 0 {
				return
			}
			// Trailing data with no terminating newline before EOF:
			// treat like any other end of stream.
			return
		}
		if len(raw) > maxLineBytes+1 {
			e.log.Debugf("peer line exceeded %d bytes, closing connection", maxLineBytes)
			conn.Close()
			return
		}
		line := textcodec.StripTrailingNewline(raw)
		buf.Push(line)
	}
}

// actionLoop pops the mandatory first line and runs it through the IM
// handshake exclusively; on success it loops popping and dispatching
// every subsequent line through the protocol decoder, per spec section
// 4.5.e.
func (e *Engine) actionLoop(peer *depotstate.Peer, buf *mbuffer.Buffer) {
	first, ok := buf.Pop()
	if !ok {
		return
	}
	if !e.decoder.HandleIM(first) {
		e.log.Debugf("peer on port %s sent no valid IM handshake, silencing", peer.Port)
		return
	}

	for {
		line, ok := buf.Pop()
		if !ok {
			return
		}
		if e.decoder.Dispatch(line) {
			return
		}
	}
}

// Close stops the accept loop and, for every known peer, invokes
// Cancel to tear down its reader and action workers. It exists for
// graceful shutdown and test teardown; spec section 9 notes the
// original program has no such path and leaves in-flight deferral
// behavior after shutdown undefined.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	ln := e.listener
	e.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, peer := range e.state.Peers() {
		if peer.Cancel != nil {
			peer.Cancel()
		}
	}
}
