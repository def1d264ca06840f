// Package depotstate holds the single mutable store a depot owns: its
// resource multiset, its peer table and its deferred-operation table,
// all protected by one mutex as required by spec section 4.2.
package depotstate

import (
	"net"
	"sort"
	"sync"
)

// NewPlaceholderName is the sentinel identity given to a peer entry
// the instant its connection is established, before its IM handshake
// arrives.
const NewPlaceholderName = "new"

// ConsumedDeferralKey is the sentinel a deferral's key is set to once
// it has fired, so it can never match a second Execute.
const ConsumedDeferralKey = -1

// Resource is a named integer quantity. Quantity may be negative:
// Withdraw and Transfer never check stock.
type Resource struct {
	Name     string
	Quantity int
}

// Peer is a remote depot this one has a TCP connection to, or (for the
// head of the table) this depot itself. A peer entry is created the
// moment a connection is established, named NewPlaceholderName until
// its IM handshake fills in Name and Port, and is never removed for
// the life of the process.
type Peer struct {
	Name string
	Port string

	// Conn is nil for the self entry at the head of the table.
	Conn net.Conn

	// Cancel stops this peer's reader and action workers by closing
	// its connection, which unblocks the reader's pending read and
	// cascades into the action worker exiting once the message buffer
	// it feeds is closed behind it. Nil for the self entry, which has
	// no connection or workers.
	Cancel func()
}

// Deferral is an inbound message held until a matching Execute trigger
// releases it. Claimed and Executed are deliberately independent
// fields: Claimed is set only by the waiter that picks this deferral
// up, Executed only by Execute firing it. Execute must never touch
// Claimed — a deferral can fire before its waiter has claimed it (the
// waiter goroutine may not yet be scheduled when the matching Execute
// is processed), and the waiter must still be able to find and claim
// it afterwards, exactly as the original's search-by-tag lookup does
// regardless of firing order.
type Deferral struct {
	Key       int
	Operation string
	Claimed   bool
	Executed  bool
}

// State is the depot's single mutable store. Every mutation — to
// resources, peers or deferrals — happens under mu.
type State struct {
	mu   sync.Mutex
	cond *sync.Cond

	resources []*Resource
	peers     []*Peer
	deferrals []*Deferral
}

// New creates the store for a depot named selfName, seeded with the
// given initial resources. The self entry is installed as the head of
// the peer table per spec section 4.2.
func New(selfName string, seed []Resource) *State {
	s := &State{
		peers: []*Peer{{Name: selfName}},
	}
	s.cond = sync.NewCond(&s.mu)
	for _, r := range seed {
		s.resources = append(s.resources, &Resource{Name: r.Name, Quantity: r.Quantity})
	}
	return s
}

// SelfName returns this depot's own name.
func (s *State) SelfName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[0].Name
}

// SelfNameLocked is SelfName for a caller already holding the lock.
func (s *State) SelfNameLocked() string {
	return s.peers[0].Name
}

// Lock acquires the state's exclusive mutex, for callers (such as the
// transfer handler) that need to compose several Locked operations
// atomically with an outbound write.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the state's exclusive mutex.
func (s *State) Unlock() { s.mu.Unlock() }

// UpsertResource finds or creates the named resource and adds delta to
// its quantity (delta may be negative).
func (s *State) UpsertResource(name string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertResourceLocked(name, delta)
}

// UpsertResourceLocked is UpsertResource for a caller already holding
// the lock.
func (s *State) UpsertResourceLocked(name string, delta int) {
	for _, r := range s.resources {
		if r.Name == name {
			r.Quantity += delta
			return
		}
	}
	s.resources = append(s.resources, &Resource{Name: name, Quantity: delta})
}

// FindPeerByName returns the first peer entry (including the self
// entry) whose name matches, or nil.
func (s *State) FindPeerByName(name string) *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FindPeerByNameLocked(name)
}

// FindPeerByNameLocked is FindPeerByName for a caller already holding
// the lock.
func (s *State) FindPeerByNameLocked(name string) *Peer {
	for _, p := range s.peers {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// FindPeerByPort returns the first peer entry whose port matches, or
// nil.
func (s *State) FindPeerByPort(port string) *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FindPeerByPortLocked(port)
}

// FindPeerByPortLocked is FindPeerByPort for a caller already holding
// the lock.
func (s *State) FindPeerByPortLocked(port string) *Peer {
	for _, p := range s.peers {
		if p.Port == port {
			return p
		}
	}
	return nil
}

// Peers returns a snapshot of every remote peer entry, excluding the
// self entry at the head of the table — used by the connection engine
// to tear down every connection's workers on shutdown.
func (s *State) Peers() []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make([]*Peer, len(s.peers)-1)
	copy(peers, s.peers[1:])
	return peers
}

// InsertPeer appends a new placeholder peer entry for a freshly
// established connection and returns its handle.
func (s *State) InsertPeer(conn net.Conn, cancel func()) *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.InsertPeerLocked(conn, cancel)
}

// InsertPeerLocked is InsertPeer for a caller already holding the
// lock.
func (s *State) InsertPeerLocked(conn net.Conn, cancel func()) *Peer {
	p := &Peer{Name: NewPlaceholderName, Conn: conn, Cancel: cancel}
	s.peers = append(s.peers, p)
	return p
}

// FindLatestPlaceholderPeerLocked returns the most recently inserted
// peer entry still named NewPlaceholderName, or nil if none exists.
// The handshake handler fills in whichever placeholder was added last,
// per spec section 4.5.a.
func (s *State) FindLatestPlaceholderPeerLocked() *Peer {
	for i := len(s.peers) - 1; i >= 0; i-- {
		if s.peers[i].Name == NewPlaceholderName {
			return s.peers[i]
		}
	}
	return nil
}

// SetPeerIdentity fills in a placeholder peer's post-handshake name
// and port.
func (s *State) SetPeerIdentity(p *Peer, name, port string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetPeerIdentityLocked(p, name, port)
}

// SetPeerIdentityLocked is SetPeerIdentity for a caller already
// holding the lock.
func (s *State) SetPeerIdentityLocked(p *Peer, name, port string) {
	p.Name = name
	p.Port = port
}

// AddDeferral appends a new, unclaimed, unfired deferral record.
func (s *State) AddDeferral(key int, operation string) *Deferral {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AddDeferralLocked(key, operation)
}

// AddDeferralLocked is AddDeferral for a caller already holding the
// lock.
func (s *State) AddDeferralLocked(key int, operation string) *Deferral {
	d := &Deferral{Key: key, Operation: operation}
	s.deferrals = append(s.deferrals, d)
	return d
}

// FindNewDeferralLocked returns the first not-yet-claimed deferral —
// used by a deferral's own waiter to claim it. A deferral remains
// findable here even after it has already fired (Execute never
// touches Claimed), so a waiter scheduled after its matching Execute
// still claims and dispatches it.
func (s *State) FindNewDeferralLocked() *Deferral {
	for _, d := range s.deferrals {
		if !d.Claimed {
			return d
		}
	}
	return nil
}

// MarkDeferralClaimedLocked records that a deferral's waiter has
// started watching it.
func (s *State) MarkDeferralClaimedLocked(d *Deferral) {
	d.Claimed = true
}

// FindUnfiredDeferralByKeyLocked returns the first deferral with the
// given key that has not yet fired, or nil.
func (s *State) FindUnfiredDeferralByKeyLocked(key int) *Deferral {
	for _, d := range s.deferrals {
		if !d.Executed && d.Key == key {
			return d
		}
	}
	return nil
}

// MarkDeferralFiredLocked sets executed and the consumed-key sentinel,
// then wakes every waiter blocked in WaitExecutedLocked. It deliberately
// touches only Executed and Key — never Claimed — matching spec
// section 4.2's mark_deferral_fired and the original's
// handle_execute_message, neither of which mutate the claim tag.
func (s *State) MarkDeferralFiredLocked(d *Deferral) {
	d.Executed = true
	d.Key = ConsumedDeferralKey
	s.cond.Broadcast()
}

// WaitExecutedLocked blocks, releasing the lock while waiting, until d
// has been marked fired. The caller must hold the lock on entry and
// will hold it again on return.
func (s *State) WaitExecutedLocked(d *Deferral) {
	for !d.Executed {
		s.cond.Wait()
	}
}

// ResourceView is a single line of the Goods section of a state dump.
type ResourceView struct {
	Name     string
	Quantity int
}

// SnapshotForDisplay returns the non-zero resources and the neighbour
// names (excluding self), both sorted lexicographically by byte, for
// the dump-state signal handler.
func (s *State) SnapshotForDisplay() ([]ResourceView, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SnapshotForDisplayLocked()
}

// SnapshotForDisplayLocked is SnapshotForDisplay for a caller already
// holding the lock.
func (s *State) SnapshotForDisplayLocked() ([]ResourceView, []string) {
	var goods []ResourceView
	for _, r := range s.resources {
		if r.Quantity != 0 {
			goods = append(goods, ResourceView{Name: r.Name, Quantity: r.Quantity})
		}
	}
	sort.Slice(goods, func(i, j int) bool { return goods[i].Name < goods[j].Name })

	var neighbours []string
	for _, p := range s.peers[1:] {
		neighbours = append(neighbours, p.Name)
	}
	sort.Strings(neighbours)

	return goods, neighbours
}
