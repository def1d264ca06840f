// Package protocol implements the wire-protocol classifier, validator
// and dispatcher described in spec section 4.4: it turns a single
// inbound line into a call against depot state, a dial-out request or
// a deferred-operation registration.
package protocol

import (
	"strconv"

	"github.com/JoeHolownia/depotnet/internal/depotstate"
	"github.com/JoeHolownia/depotnet/internal/logging"
	"github.com/JoeHolownia/depotnet/internal/textcodec"
)

// Dialer is the dial-out capability the Connect handler needs; it is
// implemented by the connection engine and supplied to the decoder
// after both are constructed, avoiding an import cycle between the
// two packages.
type Dialer interface {
	DialPeer(port string)
}

// Deferrer is the deferred-operation capability the Defer and Execute
// handlers need; it is implemented by the deferral engine.
type Deferrer interface {
	Defer(key int, operation string)
	Execute(key int)
}

// WriteFailureObserver is notified whenever a write to a peer socket
// fails. Spec section 4.5.e requires such failures to never propagate
// or kill the process; an observer lets the supervisor record the
// process-wide "broken pipe seen" flag without the protocol package
// depending on it directly.
type WriteFailureObserver interface {
	NoteWriteFailure(err error)
}

// Decoder classifies, validates and dispatches inbound protocol lines
// against a single depot's state.
type Decoder struct {
	state    *depotstate.State
	log      logging.Logger
	dialer   Dialer
	deferrer Deferrer
	writeObs WriteFailureObserver
}

// NewDecoder builds a Decoder bound to state. The dialer and deferrer
// are wired in afterwards via SetDialer/SetDeferrer once the
// connection and deferral engines exist.
func NewDecoder(state *depotstate.State, log logging.Logger) *Decoder {
	return &Decoder{state: state, log: log}
}

// SetDialer wires in the dial-out capability for Connect messages.
func (d *Decoder) SetDialer(dialer Dialer) { d.dialer = dialer }

// SetDeferrer wires in the deferral capability for Defer/Execute
// messages.
func (d *Decoder) SetDeferrer(deferrer Deferrer) { d.deferrer = deferrer }

// SetWriteFailureObserver wires in the process-wide broken-pipe flag.
func (d *Decoder) SetWriteFailureObserver(obs WriteFailureObserver) { d.writeObs = obs }

// HandleIM validates line as an IM handshake unconditionally,
// regardless of its actual first byte, and applies it if valid. It
// reports whether the connection should continue — callers use this
// for the mandatory first line of every peer connection (spec section
// 4.5.e: any non-IM or malformed first line permanently silences the
// peer).
func (d *Decoder) HandleIM(line string) bool {
	port, name, ok := validateIM(line)
	if !ok {
		return false
	}

	d.state.Lock()
	defer d.state.Unlock()
	if placeholder := d.state.FindLatestPlaceholderPeerLocked(); placeholder != nil {
		d.state.SetPeerIdentityLocked(placeholder, name, port)
	}
	return true
}

// Dispatch classifies an ordinary (non-handshake) inbound line by its
// first byte and runs the matching handler. It reports whether the
// connection that produced this line should be closed — true only
// when the line classifies as IM but fails validation, per the
// validation rule that IM errors sever the connection while every
// other malformed line is silently dropped.
func (d *Decoder) Dispatch(line string) (shouldClose bool) {
	if line == "" {
		return false
	}

	switch line[0] {
	case 'C':
		d.onConnect(line)
	case 'D':
		if textcodec.HasPrefix(line, "Deliver:") {
			d.onAdjust(line, "Deliver:", +1)
		} else {
			d.onDefer(line)
		}
	case 'W':
		d.onAdjust(line, "Withdraw:", -1)
	case 'T':
		d.onTransfer(line)
	case 'E':
		d.onExecute(line)
	case 'I':
		return !d.HandleIM(line)
	}
	return false
}

func (d *Decoder) onConnect(line string) {
	port, ok := validateConnect(line)
	if !ok {
		return
	}
	if d.dialer == nil {
		return
	}
	if d.state.FindPeerByPort(port) != nil {
		return
	}
	d.dialer.DialPeer(port)
}

func (d *Decoder) onAdjust(line, prefix string, sign int) {
	qty, resourceType, ok := validateDeliverWithdraw(line, prefix)
	if !ok {
		return
	}
	d.state.UpsertResource(resourceType, sign*qty)
}

func (d *Decoder) onTransfer(line string) {
	qty, resourceType, dest, ok := validateTransfer(line)
	if !ok {
		return
	}

	d.state.Lock()
	defer d.state.Unlock()

	if dest == d.state.SelfNameLocked() {
		return
	}

	destPeer := d.state.FindPeerByNameLocked(dest)
	if destPeer == nil {
		return
	}

	d.state.UpsertResourceLocked(resourceType, -qty)

	outbound := "Deliver:" + strconv.Itoa(qty) + ":" + resourceType + "\n"
	if destPeer.Conn != nil {
		if _, err := destPeer.Conn.Write([]byte(outbound)); err != nil {
			d.log.Debugf("write to peer %s failed: %v", destPeer.Name, err)
			if d.writeObs != nil {
				d.writeObs.NoteWriteFailure(err)
			}
		}
	}
}

func (d *Decoder) onDefer(line string) {
	key, operation, ok := validateDefer(line)
	if !ok {
		return
	}
	if d.deferrer == nil {
		return
	}
	d.deferrer.Defer(key, operation)
}

func (d *Decoder) onExecute(line string) {
	key, ok := validateExecute(line)
	if !ok {
		return
	}
	if d.deferrer == nil {
		return
	}
	d.deferrer.Execute(key)
}
