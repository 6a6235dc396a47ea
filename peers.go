package modeler

import "sync"

// Peers keeps a single Peer per scope, creating each on first need.
//
// The zero value is ready to use. Peers is safe for concurrent use.
type Peers struct {
	mu    sync.Mutex
	peers map[string]*Peer
	opts  []Option
}

// NewPeers returns an empty Peers configuring every Peer it creates with opts.
func NewPeers(opts ...Option) *Peers {
	return &Peers{opts: opts}
}

// For returns the Peer of scope, creating it if this is the first call for the
// scope's ID.
func (ps *Peers) For(scope Scope) *Peer {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if p, ok := ps.peers[scope.ScopeID()]; ok {
		return p
	}
	if ps.peers == nil {
		ps.peers = make(map[string]*Peer)
	}
	p := NewPeer(scope, ps.opts...)
	ps.peers[scope.ScopeID()] = p
	return p
}

// Lookup returns the Peer of the scope identified by id, if one was created.
func (ps *Peers) Lookup(id string) (*Peer, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.peers[id]
	return p, ok
}

// Forget drops the Peer of the scope identified by id, typically once the
// scope is closed. The Peer stays subscribed to its digital twin.
func (ps *Peers) Forget(id string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.peers, id)
}
