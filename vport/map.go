// Package vport implements the bidirectional mapping between neighbor
// node identifiers and the small integer "vports" used inside
// announcements to keep paths compact (spec §4.C).
//
// Grounded in domain purpose on original_source/src/social/
// routing_table.h's vport fields, and in shape on the mutex-guarded
// bidirectional bookkeeping in the teacher's
// networking/tracker/trackermock/tracker.go.
package vport

import (
	"sync"

	"github.com/luxfi/compactrouter/id"
)

// Map is a bidirectional, monotonically-growing neighbor ID <-> vport
// table. Vport 0 is never assigned (it is reserved as the "no vport"
// sentinel), matching the C++ original's use of 0 as a null index.
type Map struct {
	mu      sync.Mutex
	toVport map[id.NodeIdentifier]uint32
	toPeer  map[uint32]id.NodeIdentifier
	next    uint32
}

// New returns an empty Map.
func New() *Map {
	return &Map{
		toVport: make(map[id.NodeIdentifier]uint32),
		toPeer:  make(map[uint32]id.NodeIdentifier),
		next:    1,
	}
}

// VportFor returns the vport assigned to neighbor, allocating the next
// integer if neighbor has never been referenced before ("unknown
// neighbor on outbound -> allocate next integer", spec §4.C).
func (m *Map) VportFor(neighbor id.NodeIdentifier) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.toVport[neighbor]; ok {
		return v
	}
	v := m.next
	m.next++
	m.toVport[neighbor] = v
	m.toPeer[v] = neighbor
	return v
}

// NeighborFor returns the neighbor mapped to vport v. Unknown vports
// return the zero identifier and false ("unknown vport -> null
// neighbor", spec §4.C).
func (m *Map) NeighborFor(v uint32) (id.NodeIdentifier, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.toPeer[v]
	return n, ok
}

// VportIfKnown returns the vport for neighbor without allocating one,
// and false if neighbor has never been referenced.
func (m *Map) VportIfKnown(neighbor id.NodeIdentifier) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.toVport[neighbor]
	return v, ok
}

// Remove drops the mapping for neighbor, if any. It does not reuse the
// freed integer.
func (m *Map) Remove(neighbor id.NodeIdentifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.toVport[neighbor]
	if !ok {
		return
	}
	delete(m.toVport, neighbor)
	delete(m.toPeer, v)
}

// Len returns the number of currently-mapped neighbors.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.toVport)
}
