package p2p

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/p2p/enode"
)

// ErrAlreadyRegistered is returned by PeerSet.Register when a peer with
// the same ID is already tracked.
var ErrAlreadyRegistered = errors.New("p2p: peer already registered")

// ErrNotRegistered is returned by PeerSet.Unregister for an unknown ID.
var ErrNotRegistered = errors.New("p2p: peer not registered")

// PeerSet is the registry of currently connected peers: add/remove/get,
// a snapshot of all peers, and Close to disconnect them all. It is the
// "component F" counterpart to Peer — Peer drives one connection,
// PeerSet tracks the whole pool of them so the eth sub-protocol and the
// transaction pool can reach every connected node.
type PeerSet struct {
	mu    sync.RWMutex
	peers map[enode.ID]*Peer
}

// NewPeerSet creates an empty PeerSet.
func NewPeerSet() *PeerSet {
	return &PeerSet{peers: make(map[enode.ID]*Peer)}
}

// Register adds a peer to the set.
func (ps *PeerSet) Register(p *Peer) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	id := p.ID()
	if _, ok := ps.peers[id]; ok {
		return ErrAlreadyRegistered
	}
	ps.peers[id] = p
	return nil
}

// Unregister removes a peer from the set by ID.
func (ps *PeerSet) Unregister(id enode.ID) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.peers[id]; !ok {
		return ErrNotRegistered
	}
	delete(ps.peers, id)
	return nil
}

// Peer returns the registered peer with the given ID, or nil.
func (ps *PeerSet) Peer(id enode.ID) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.peers[id]
}

// Len returns the number of registered peers.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.peers)
}

// AllPeers returns a snapshot slice of every registered peer.
func (ps *PeerSet) AllPeers() []*Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	list := make([]*Peer, 0, len(ps.peers))
	for _, p := range ps.peers {
		list = append(list, p)
	}
	return list
}

// Close disconnects every registered peer with DiscQuitting and empties
// the set.
func (ps *PeerSet) Close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, p := range ps.peers {
		p.Disconnect(DiscQuitting)
	}
	ps.peers = make(map[enode.ID]*Peer)
}
