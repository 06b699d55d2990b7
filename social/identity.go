package social

import (
	"sync"

	"github.com/luxfi/compactrouter/executor"
	"github.com/luxfi/compactrouter/id"
)

// Identity is the local node's social identity: its own key and the
// set of peers it has approved, keyed by node identifier. Grounded on
// original_source/src/social/social_identity.{h,cpp}.
//
// Identity sits above Peer in the router's locking discipline (spec
// §5: ... > social_identity > peer): Identity methods may call into a
// Peer's methods, but nothing above Identity may be entered while an
// Identity-held lock is still held.
type Identity struct {
	localKey *id.PrivatePeerKey
	localID  id.NodeIdentifier

	mu    sync.Mutex
	peers map[id.NodeIdentifier]*Peer

	// PeerAdded and PeerRemoved mirror the C++ original's
	// signalPeerAdded/signalPeerRemoved boost::signals2 signals, built
	// on the deferred-dispatch executor.Signal so subscribers never run
	// on the caller's goroutine (spec §5's deferred-signal pattern).
	PeerAdded   *executor.Signal[*Peer]
	PeerRemoved *executor.Signal[id.NodeIdentifier]
}

// NewIdentity constructs a social identity for localKey, dispatching
// its signals through exec.
func NewIdentity(localKey *id.PrivatePeerKey, exec *executor.Executor) *Identity {
	return &Identity{
		localKey:    localKey,
		localID:     localKey.NodeID(),
		peers:       make(map[id.NodeIdentifier]*Peer),
		PeerAdded:   executor.NewSignal[*Peer](exec),
		PeerRemoved: executor.NewSignal[id.NodeIdentifier](exec),
	}
}

// LocalID returns the local node's identifier.
func (s *Identity) LocalID() id.NodeIdentifier {
	return s.localID
}

// LocalKey returns the local node's private peer key.
func (s *Identity) LocalKey() *id.PrivatePeerKey {
	return s.localKey
}

// GetPeer returns the Peer for nodeID, or nil if nodeID is not a known
// peer.
func (s *Identity) GetPeer(nodeID id.NodeIdentifier) *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[nodeID]
}

// Peers returns a snapshot of all currently-approved peers.
func (s *Identity) Peers() map[id.NodeIdentifier]*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[id.NodeIdentifier]*Peer, len(s.peers))
	for k, v := range s.peers {
		out[k] = v
	}
	return out
}

// IsPeer reports whether nodeID names a currently-approved peer.
func (s *Identity) IsPeer(nodeID id.NodeIdentifier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.peers[nodeID]
	return ok
}

// IsPeerContact reports whether contact names a currently-approved
// peer.
func (s *Identity) IsPeerContact(contact Contact) bool {
	return s.IsPeer(contact.NodeID())
}

// AddPeer approves contact as a peer, creating its Peer record if this
// is the first time it is seen, and emits PeerAdded.
func (s *Identity) AddPeer(contact Contact) *Peer {
	nodeID := contact.NodeID()

	s.mu.Lock()
	p, exists := s.peers[nodeID]
	if !exists {
		p = NewPeer(contact)
		s.peers[nodeID] = p
	} else {
		p.SetContact(contact)
	}
	s.mu.Unlock()

	if !exists {
		s.PeerAdded.Emit(p)
	}
	return p
}

// RemovePeer revokes approval for nodeID and emits PeerRemoved. It is a
// no-op if nodeID is not currently a peer.
func (s *Identity) RemovePeer(nodeID id.NodeIdentifier) {
	s.mu.Lock()
	_, existed := s.peers[nodeID]
	delete(s.peers, nodeID)
	s.mu.Unlock()

	if existed {
		s.PeerRemoved.Emit(nodeID)
	}
}

// GetPeerContact returns the contact information for an approved peer,
// or the zero Contact if nodeID is not a peer.
func (s *Identity) GetPeerContact(nodeID id.NodeIdentifier) Contact {
	p := s.GetPeer(nodeID)
	if p == nil {
		return Contact{}
	}
	return p.Contact()
}

// HasPeerSA reports whether any approved peer currently holds key as a
// valid security association, and which peer. This backs announce
// verification's loop check: a delegation chain that reveals one of our
// own peer SAs has looped back through us and is dropped (spec §4.H's
// verify step).
func (s *Identity) HasPeerSA(key id.PublicSignKey) (id.NodeIdentifier, bool) {
	s.mu.Lock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		if p.HasPeerSA(key) {
			return p.NodeID(), true
		}
	}
	return id.NodeIdentifier{}, false
}
