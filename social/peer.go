package social

import (
	"errors"
	"sync"

	"github.com/luxfi/compactrouter/id"
)

// ErrInvalidSA is returned when removing or fetching a security
// association by a public key the peer does not hold, mirroring the
// C++ original's InvalidSecurityAssociation exception from
// Peer::removePeerSecurityAssociation.
var ErrInvalidSA = errors.New("social: invalid security association")

// Peer holds one approved neighbor's contact information and the
// security associations negotiated with it. A Peer's mutex is the
// innermost lock in the router's locking discipline (spec §5:
// router > sloppy_group > name_database > routing_table >
// social_identity > peer), so callers holding any outer lock may safely
// lock a Peer, but a Peer method must never call back out into those
// layers while holding its own lock.
type Peer struct {
	mu      sync.Mutex
	contact Contact
	sa      *securityAssociations
}

// NewPeer constructs a Peer for the given contact with no security
// associations yet established.
func NewPeer(contact Contact) *Peer {
	return &Peer{
		contact: contact,
		sa:      newSecurityAssociations(),
	}
}

// IsNull reports whether this peer has no contact set.
func (p *Peer) IsNull() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contact.IsNull()
}

// NodeID returns the peer's node identifier.
func (p *Peer) NodeID() id.NodeIdentifier {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contact.NodeID()
}

// Key returns the peer's public peer key.
func (p *Peer) Key() id.PeerKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contact.Key
}

// Contact returns a copy of the peer's current contact.
func (p *Peer) Contact() Contact {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contact
}

// SetContact replaces the peer's contact, e.g. after learning a new
// address for an already-approved peer.
func (p *Peer) SetContact(c Contact) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contact = c
}

// AddPeerSA records key as a security association announced by this
// peer, evicting the oldest one first if already at the cap of 10
// (spec §3, original_source/src/social/peer.h
// max_peer_security_associations).
func (p *Peer) AddPeerSA(key id.PublicSignKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sa.peer.add(key)
}

// RemovePeerSA drops key from the peer's security associations. It
// returns ErrInvalidSA if key is not currently held, matching
// Peer::removePeerSecurityAssociation's InvalidSecurityAssociation
// throw.
func (p *Peer) RemovePeerSA(key id.PublicSignKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.sa.peer.remove(key) {
		return ErrInvalidSA
	}
	return nil
}

// HasPeerSA reports whether key is currently a valid security
// association for this peer.
func (p *Peer) HasPeerSA(key id.PublicSignKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sa.peer.has(key)
}

// SelectPeerSA returns a uniformly-random currently-valid peer security
// association, for use as the verification key of an outbound
// delegation (spec §4.D's "select a security association uniformly at
// random", resolving §9 ambiguity 3's choice of math/rand/v2 over the
// original's Context-seeded RNG).
func (p *Peer) SelectPeerSA() (id.PublicSignKey, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sa.peer.random()
}

// PeerSAs returns a snapshot of the peer's currently-valid security
// associations.
func (p *Peer) PeerSAs() []id.PublicSignKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sa.peer.keys()
}

// CreatePrivateSA mints a fresh sign keypair to present to this peer as
// a new security association, evicting the oldest private SA first if
// already at the cap of 13 (spec §3,
// max_private_security_associations).
func (p *Peer) CreatePrivateSA() (*id.SignKeyPair, error) {
	kp, err := id.NewSignKeyPair()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	evicted, didEvict := p.sa.privFIFO.add(kp.Public)
	if didEvict {
		delete(p.sa.private, evicted)
	}
	p.sa.private[kp.Public] = kp
	return kp, nil
}

// GetPrivateSA returns the private security association previously
// minted for this peer under public key, or false if none exists.
func (p *Peer) GetPrivateSA(public id.PublicSignKey) (*id.SignKeyPair, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kp, ok := p.sa.private[public]
	return kp, ok
}

// PrivateSAs returns a snapshot of the public keys of currently-valid
// private security associations for this peer.
func (p *Peer) PrivateSAs() []id.PublicSignKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sa.privFIFO.keys()
}
