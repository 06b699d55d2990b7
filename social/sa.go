package social

import (
	"math/rand/v2"
	"sync"

	"github.com/luxfi/compactrouter/id"
)

// maxPeerSecurityAssociations and maxPrivateSecurityAssociations mirror
// the C++ original's Peer::max_peer_security_associations (10) and
// Peer::max_private_security_associations (13), spec §3.
const (
	maxPeerSecurityAssociations    = 10
	maxPrivateSecurityAssociations = 13
)

// saFIFO is a FIFO-capped, uniquely-keyed collection of security
// associations. The C++ original uses a boost::multi_index_container
// combining a sequenced index (FIFO eviction order) with a
// hashed_unique index keyed by the raw public key; Go has no
// multi_index_container, so this keeps the same pair of views by hand:
// an ordered slice for FIFO order and a map for O(1) lookup.
type saFIFO[K comparable] struct {
	order []K
	byKey map[K]int // value is unused payload marker; presence is what matters
	cap   int
}

func newSAFIFO[K comparable](cap int) saFIFO[K] {
	return saFIFO[K]{byKey: make(map[K]int), cap: cap}
}

// add inserts key, evicting the oldest entry if the collection is at
// capacity. Re-adding an existing key is a no-op (it does not move the
// key to the back of the FIFO).
func (s *saFIFO[K]) add(key K) (evicted K, didEvict bool) {
	if _, ok := s.byKey[key]; ok {
		return evicted, false
	}
	if len(s.order) >= s.cap && s.cap > 0 {
		evicted = s.order[0]
		s.order = s.order[1:]
		delete(s.byKey, evicted)
		didEvict = true
	}
	s.order = append(s.order, key)
	s.byKey[key] = len(s.order) - 1
	return evicted, didEvict
}

func (s *saFIFO[K]) remove(key K) bool {
	if _, ok := s.byKey[key]; !ok {
		return false
	}
	delete(s.byKey, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *saFIFO[K]) has(key K) bool {
	_, ok := s.byKey[key]
	return ok
}

func (s *saFIFO[K]) random() (K, bool) {
	var zero K
	if len(s.order) == 0 {
		return zero, false
	}
	return s.order[rand.IntN(len(s.order))], true
}

func (s *saFIFO[K]) keys() []K {
	out := make([]K, len(s.order))
	copy(out, s.order)
	return out
}

func (s *saFIFO[K]) len() int {
	return len(s.order)
}

// securityAssociations is the mutex-guarded pairing of peer SAs (public
// sign keys announced to us, capped at maxPeerSecurityAssociations) and
// private SAs (sign keypairs we mint for this peer, capped at
// maxPrivateSecurityAssociations), per original_source/src/social/peer.h.
type securityAssociations struct {
	mu      sync.Mutex
	peer    saFIFO[id.PublicSignKey]
	private map[id.PublicSignKey]*id.SignKeyPair
	privFIFO saFIFO[id.PublicSignKey]
}

func newSecurityAssociations() *securityAssociations {
	return &securityAssociations{
		peer:     newSAFIFO[id.PublicSignKey](maxPeerSecurityAssociations),
		private:  make(map[id.PublicSignKey]*id.SignKeyPair),
		privFIFO: newSAFIFO[id.PublicSignKey](maxPrivateSecurityAssociations),
	}
}
