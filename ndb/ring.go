package ndb

import (
	"sort"
	"sync"

	"github.com/luxfi/compactrouter/id"
)

// Ring is a consistent-hashing ring over the currently-registered
// landmark IDs, used to decide which landmarks are responsible for
// caching a given node's address (spec §4.F). It is a plain sorted
// slice rather than a literal Chord/Koorde ring: membership is small
// and fully known (registered landmarks only), so a binary search over
// a sorted slice gives the same successor/predecessor answers as a
// full stabilizing ring without the protocol overhead — grounded in
// shape on other_examples' go-chord/chord.go and KoordeDHT's
// routingtable.go successor walks.
type Ring struct {
	mu      sync.Mutex
	members []id.NodeIdentifier
}

// NewRing returns an empty ring.
func NewRing() *Ring {
	return &Ring{}
}

func (r *Ring) search(key id.NodeIdentifier) int {
	return sort.Search(len(r.members), func(i int) bool { return !r.members[i].Less(key) })
}

// Register adds landmarkID to the ring. It returns false if the
// landmark was already registered.
func (r *Ring) Register(landmarkID id.NodeIdentifier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.search(landmarkID)
	if i < len(r.members) && r.members[i] == landmarkID {
		return false
	}
	r.members = append(r.members, id.NodeIdentifier{})
	copy(r.members[i+1:], r.members[i:])
	r.members[i] = landmarkID
	return true
}

// Unregister removes landmarkID from the ring. It returns false if the
// landmark was not registered.
func (r *Ring) Unregister(landmarkID id.NodeIdentifier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.search(landmarkID)
	if i >= len(r.members) || r.members[i] != landmarkID {
		return false
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	return true
}

// Members returns a snapshot of the currently-registered landmark IDs
// in ring order.
func (r *Ring) Members() []id.NodeIdentifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]id.NodeIdentifier(nil), r.members...)
}

// Len returns the number of registered landmarks.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Successor returns the first registered landmark at or after key,
// wrapping to the first member if key falls after the last one.
func (r *Ring) Successor(key id.NodeIdentifier) (id.NodeIdentifier, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) == 0 {
		return id.NodeIdentifier{}, false
	}
	i := r.search(key)
	if i == len(r.members) {
		i = 0
	}
	return r.members[i], true
}

// Predecessor returns the last registered landmark strictly before key,
// wrapping to the last member if key falls before the first one.
func (r *Ring) Predecessor(key id.NodeIdentifier) (id.NodeIdentifier, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) == 0 {
		return id.NodeIdentifier{}, false
	}
	i := r.search(key) - 1
	if i < 0 {
		i = len(r.members) - 1
	}
	return r.members[i], true
}

// Closest returns the registered landmark numerically closest to key,
// per spec §4.F's "use numeric" distance choice (§9 point 3).
func (r *Ring) Closest(key id.NodeIdentifier) (id.NodeIdentifier, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) == 0 {
		return id.NodeIdentifier{}, false
	}
	best := r.members[0]
	bestDist := key.DistanceAsFloat(best)
	for _, m := range r.members[1:] {
		if d := key.DistanceAsFloat(m); d < bestDist {
			best, bestDist = m, d
		}
	}
	return best, true
}
