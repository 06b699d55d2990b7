package rib

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/compactrouter/clock"
	"github.com/luxfi/compactrouter/executor"
	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/landmark"
	"github.com/luxfi/compactrouter/netsize"
	"github.com/luxfi/compactrouter/vport"
)

// GroupPrefixer supplies the sloppy-group prefix length used to key
// extended-vicinity buckets. Implemented by sloppygroup.Manager; kept as
// a narrow local interface so rib never imports sloppygroup (the
// teacher constructor's CompactRoutingTable(..., SloppyGroupManager&)
// dependency, inverted to avoid an import cycle since the group manager
// itself reads the table's vicinity for its local peer view).
type GroupPrefixer interface {
	GroupPrefixBits() int
}

// NextHop is the result of an active-route lookup: the neighbor to
// forward through and the remaining source-route path (spec §4.H's
// route() pseudocode reads direct.next_hop and direct.path).
type NextHop struct {
	NextHop id.NodeIdentifier
	Path    []uint32
}

// SloppyGroupRelay names the node in vicinity to relay through when a
// destination can't be resolved to a direct or landmark route.
type SloppyGroupRelay struct {
	NodeID  id.NodeIdentifier
	NextHop id.NodeIdentifier
}

// VicinityDescriptor describes one vicinity member for GetVicinity.
type VicinityDescriptor struct {
	NodeID id.NodeIdentifier
	Hops   int
}

// ExportEvent is emitted on Table.ExportEntry whenever the active route
// for a destination switches to a different entry, and for every active
// entry on FullUpdate; an in-place update of the entry that is already
// active emits nothing. The router subscribes and fans this out to
// other neighbors (spec §4.H), keeping peer enumeration out of rib.
type ExportEvent struct {
	Entry *RoutingEntry
}

// Statistics reports routing-table operation counters (spec §4.E).
type Statistics struct {
	mu              sync.Mutex
	RouteUpdates    uint64
	RouteExpirations uint64
}

func (s *Statistics) snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Statistics{RouteUpdates: s.RouteUpdates, RouteExpirations: s.RouteExpirations}
}

// Config bundles the tunables the table needs from §6.4.
type Config struct {
	VicinitySizeScale float64
	BucketSizeFloor   int
	// NeighborExpiry is the expiry timer for entries whose forward path
	// is a single hop (spec §6.4 neighbor_expiry_secs).
	NeighborExpiry time.Duration
	// OriginExpiry is the expiry timer for entries learned transitively
	// through a re-exporting neighbor — anything with a forward path
	// longer than one hop (spec §6.4 origin_expiry_secs).
	OriginExpiry time.Duration
	// LocalAddressRedundancy caps how many active landmark routes feed
	// the local node's own published L-R address list (spec §6.4
	// ndb_stored_addresses_max, "per-node"; grounded on the original's
	// local_address_redundancy = 3).
	LocalAddressRedundancy int
}

// DefaultConfig returns the spec's default tunables.
func DefaultConfig() Config {
	return Config{
		VicinitySizeScale:      1.0,
		BucketSizeFloor:        4,
		NeighborExpiry:         60 * time.Second,
		OriginExpiry:           300 * time.Second,
		LocalAddressRedundancy: 3,
	}
}

// expiryFor picks neighbor_expiry for a direct, single-hop entry and
// origin_expiry for anything relayed through at least one other node.
func (t *Table) expiryFor(e *RoutingEntry) time.Duration {
	if e.Cost <= 1 {
		return t.cfg.NeighborExpiry
	}
	return t.cfg.OriginExpiry
}

// Table is the compact routing table (spec §4.E
// CompactRoutingTable).
type Table struct {
	localID       id.NodeIdentifier
	sizeEstimator netsize.Estimator
	group         GroupPrefixer
	vports        *vport.Map
	clk           *clock.Clock
	exec          *executor.Executor
	cfg           Config

	mu             sync.Mutex
	entries        map[id.NodeIdentifier]map[uint32]*RoutingEntry
	originators    map[id.NodeIdentifier]*RouteOriginator
	importFilters  []func(*RoutingEntry) bool
	landmark       bool
	localAddresses []landmark.Address
	// vicinitySizeBasis is the network-size value vmax is computed
	// from; it only tracks the live estimate up (immediately) or down
	// (once the estimate has at least halved), implementing B5's
	// resize hysteresis. Zero means "not yet initialized".
	vicinitySizeBasis uint64

	stats Statistics

	ExportEntry     *executor.Signal[ExportEvent]
	RetractEntry    *executor.Signal[*RoutingEntry]
	AddressChanged  *executor.Signal[[]landmark.Address]
	LandmarkLearned *executor.Signal[id.NodeIdentifier]
	LandmarkRemoved *executor.Signal[id.NodeIdentifier]
	VicinityLearned *executor.Signal[VicinityDescriptor]
	VicinityRemoved *executor.Signal[id.NodeIdentifier]
}

// New constructs an empty Table.
func New(localID id.NodeIdentifier, sizeEstimator netsize.Estimator, group GroupPrefixer, clk *clock.Clock, exec *executor.Executor, cfg Config) *Table {
	t := &Table{
		localID:       localID,
		sizeEstimator: sizeEstimator,
		group:         group,
		vports:        vport.New(),
		clk:           clk,
		exec:          exec,
		cfg:           cfg,
		entries:       make(map[id.NodeIdentifier]map[uint32]*RoutingEntry),
		originators:   make(map[id.NodeIdentifier]*RouteOriginator),

		ExportEntry:     executor.NewSignal[ExportEvent](exec),
		RetractEntry:    executor.NewSignal[*RoutingEntry](exec),
		AddressChanged:  executor.NewSignal[[]landmark.Address](exec),
		LandmarkLearned: executor.NewSignal[id.NodeIdentifier](exec),
		LandmarkRemoved: executor.NewSignal[id.NodeIdentifier](exec),
		VicinityLearned: executor.NewSignal[VicinityDescriptor](exec),
		VicinityRemoved: executor.NewSignal[id.NodeIdentifier](exec),

		vicinitySizeBasis: sizeEstimator.NetworkSize(),
	}
	sizeEstimator.OnSizeChanged(func(n uint64) { exec.Post(func() { t.onSizeChanged(n) }) })
	return t
}

// AddImportFilter registers a predicate run during Import (spec §4.E
// step 3, "the import-filter hook"). If any registered filter rejects
// an entry, the import is dropped.
func (t *Table) AddImportFilter(fn func(*RoutingEntry) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.importFilters = append(t.importFilters, fn)
}

// GetVportForNeighbor delegates to the underlying vport map.
func (t *Table) GetVportForNeighbor(neighbor id.NodeIdentifier) uint32 {
	return t.vports.VportFor(neighbor)
}

// GetNeighborForVport delegates to the underlying vport map.
func (t *Table) GetNeighborForVport(v uint32) (id.NodeIdentifier, bool) {
	return t.vports.NeighborFor(v)
}

// Statistics returns a snapshot of the operation counters.
func (t *Table) Statistics() Statistics {
	return t.stats.snapshot()
}

// IsLandmark reports whether the local node currently considers itself
// a landmark.
func (t *Table) IsLandmark() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.landmark
}

// SetLandmark flips the local node's landmark status, recomputing the
// local address list if it changed.
func (t *Table) SetLandmark(isLandmark bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.landmark == isLandmark {
		return
	}
	t.landmark = isLandmark
	t.recomputeLocalAddressesLocked()
}

// GetLocalAddresses returns the current local L-R addresses, up to
// cfg.LocalAddressRedundancy of them.
func (t *Table) GetLocalAddresses() []landmark.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]landmark.Address(nil), t.localAddresses...)
}

// GetLocalAddress returns the first local address, if any.
func (t *Table) GetLocalAddress() (landmark.Address, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.localAddresses) == 0 {
		return landmark.Address{}, false
	}
	return t.localAddresses[0], true
}

// Size returns the total number of stored entries.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, byVport := range t.entries {
		n += len(byVport)
	}
	return n
}

// SizeActive returns the number of active entries.
func (t *Table) SizeActive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, byVport := range t.entries {
		for _, e := range byVport {
			if e.IsActive() {
				n++
			}
		}
	}
	return n
}

// SizeVicinity returns the number of unique destinations currently in
// the plain (non-extended) vicinity.
func (t *Table) SizeVicinity() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.vicinityDestinationsLocked())
}

// GetVicinity lists the node's current vicinity members with their hop
// counts.
func (t *Table) GetVicinity() []VicinityDescriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []VicinityDescriptor
	for dest, byVport := range t.entries {
		for _, e := range byVport {
			if e.Vicinity && !e.ExtendedVicinity {
				out = append(out, VicinityDescriptor{NodeID: dest, Hops: e.Hops()})
				break
			}
		}
	}
	return out
}

// Clear drops every routing entry, route originator and local address.
// The vport map is not reset: neighbor-to-vport assignments survive.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, byVport := range t.entries {
		for _, e := range byVport {
			e.expiry.Stop()
		}
	}
	t.entries = make(map[id.NodeIdentifier]map[uint32]*RoutingEntry)
	t.originators = make(map[id.NodeIdentifier]*RouteOriginator)
	t.localAddresses = nil
}

// GetActiveRoute returns the next hop of the active entry for
// destination, if any.
func (t *Table) GetActiveRoute(destination id.NodeIdentifier) (NextHop, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries[destination] {
		if e.IsActive() {
			neighbor, _ := t.vports.NeighborFor(e.OriginVport())
			return NextHop{NextHop: neighbor, Path: append([]uint32(nil), e.ForwardPath...)}, true
		}
	}
	return NextHop{}, false
}

// GetSloppyGroupRelay returns the active entry (vicinity or not) that
// shares destination's sloppy group with the fewest hops (spec §4.E).
func (t *Table) GetSloppyGroupRelay(destination id.NodeIdentifier) (SloppyGroupRelay, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	L := t.group.GroupPrefixBits()
	destPrefix := destination.Prefix(L, 0)

	var best *RoutingEntry
	for dest, byVport := range t.entries {
		if dest.Prefix(L, 0) != destPrefix {
			continue
		}
		for _, e := range byVport {
			if !e.IsActive() {
				continue
			}
			if best == nil || e.Hops() < best.Hops() {
				best = e
			}
		}
	}
	if best == nil {
		return SloppyGroupRelay{}, false
	}
	nextHop, _ := t.vports.NeighborFor(best.OriginVport())
	return SloppyGroupRelay{NodeID: best.Destination, NextHop: nextHop}, true
}

// FullUpdate emits an export event for every currently-active entry
// (spec §4.E full_update). peer is not used: the events carry no target
// neighbor, so subscribers handle them like any other export and the
// router re-exports them to all of its peers, not only to peer.
func (t *Table) FullUpdate(peer id.NodeIdentifier) {
	t.mu.Lock()
	var active []*RoutingEntry
	for _, byVport := range t.entries {
		for _, e := range byVport {
			if e.IsActive() {
				active = append(active, e)
			}
		}
	}
	t.mu.Unlock()

	for _, e := range active {
		t.ExportEntry.Emit(ExportEvent{Entry: e})
	}
}

func (t *Table) now() time.Time {
	return t.clk.Now()
}

// Import attempts to insert or refresh entry, per the algorithm in spec
// §4.E. It returns whether the table changed.
func (t *Table) Import(e *RoutingEntry) bool {
	if e.Destination == t.localID {
		return false
	}
	if len(e.ForwardPath) == 0 {
		return false
	}
	v := e.ForwardPath[0]
	e.Cost = uint16(len(e.ForwardPath))

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e.touch(now)

	orig := t.originators[e.Destination]
	if orig == nil {
		orig = newRouteOriginator(e.Destination)
		t.originators[e.Destination] = orig
	}
	e.Originator = orig

	for _, f := range t.importFilters {
		if !f(e) {
			return false
		}
	}

	byVport := t.entries[e.Destination]
	if byVport == nil {
		byVport = make(map[uint32]*RoutingEntry)
		t.entries[e.Destination] = byVport
	}

	landmarkChanged := false
	final := e

	if existing, exists := byVport[v]; exists {
		if equalPath(existing, e) {
			existing.touch(now)
			existing.expiry.Reset(t.expiryFor(existing))
			return false
		}
		landmarkChanged = existing.Landmark != e.Landmark
		existing.ForwardPath = e.ForwardPath
		existing.ReversePath = e.ReversePath
		existing.Delegations = e.Delegations
		existing.SAKey = e.SAKey
		existing.Landmark = e.Landmark
		existing.Seqno = e.Seqno
		existing.Cost = e.Cost
		existing.Feasible = orig.evaluate(e.Seqno, e.Cost, now)
		existing.touch(now)
		existing.expiry.Reset(t.expiryFor(existing))
		t.stats.mu.Lock()
		t.stats.RouteUpdates++
		t.stats.mu.Unlock()
		final = existing
	} else {
		e.Feasible = orig.evaluate(e.Seqno, e.Cost, now)
		if !e.Landmark {
			if !t.decideAdmissionLocked(e) {
				return false
			}
		}
		byVport[v] = e
		e.expiry = clock.AfterFunc(t.expiryFor(e), func() {
			t.exec.Post(func() { t.expire(e.Destination, v) })
		})
		t.stats.mu.Lock()
		t.stats.RouteUpdates++
		t.stats.mu.Unlock()

		if e.Landmark {
			t.LandmarkLearned.Emit(e.Destination)
		}
		if e.Vicinity {
			t.VicinityLearned.Emit(VicinityDescriptor{NodeID: e.Destination, Hops: e.Hops()})
		}
	}

	t.reselectActiveLocked(final.Destination)
	if final.Landmark || landmarkChanged {
		t.recomputeLocalAddressesLocked()
	}
	return true
}

// vicinityBasisLocked returns the network-size value vicinity sizing is
// currently pinned to, falling back to the live estimate before the
// first OnSizeChanged callback has run. Caller holds t.mu.
func (t *Table) vicinityBasisLocked() uint64 {
	if t.vicinitySizeBasis == 0 {
		return t.sizeEstimator.NetworkSize()
	}
	return t.vicinitySizeBasis
}

// vicinityBoundLocked returns vmax = floor(vicinity_size_scale *
// sqrt(n ln n)) for the current (hysteresis-adjusted) size basis.
func (t *Table) vicinityBoundLocked() int {
	n := t.vicinityBasisLocked()
	lnN := math.Log(math.Max(float64(n), math.E))
	return int(math.Floor(t.cfg.VicinitySizeScale * math.Sqrt(float64(n)*lnN)))
}

// onSizeChanged updates the vicinity size basis and re-enforces I3
// whenever the network-size estimate changes (spec §8 B5: an estimate
// decreasing by less than a factor of 2 does not resize the vicinity).
func (t *Table) onSizeChanged(n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.vicinitySizeBasis == 0 || n > t.vicinitySizeBasis || n*2 < t.vicinitySizeBasis {
		t.vicinitySizeBasis = n
	}
	t.enforceVicinityBoundLocked()
}

// enforceVicinityBoundLocked demotes the largest-hop plain-vicinity
// members to extended vicinity until the plain vicinity count is back
// within vmax, restoring I3 after a basis shrink. Caller holds t.mu.
func (t *Table) enforceVicinityBoundLocked() {
	vmax := t.vicinityBoundLocked()
	for len(t.vicinityDestinationsLocked()) > vmax {
		worst := t.largestHopVicinityEntryLocked()
		if worst == nil {
			return
		}
		worst.Vicinity = false
		worst.ExtendedVicinity = true
		t.VicinityRemoved.Emit(worst.Destination)
	}
}

// decideAdmissionLocked runs step 5 of the import algorithm for a
// brand-new non-landmark entry. Caller holds t.mu.
func (t *Table) decideAdmissionLocked(e *RoutingEntry) bool {
	n := t.vicinityBasisLocked()
	lnN := math.Log(math.Max(float64(n), math.E))
	vmax := t.vicinityBoundLocked()

	v := len(t.vicinityDestinationsLocked())
	if v < vmax {
		e.Vicinity = true
		e.ExtendedVicinity = false
		return true
	}

	if emax := t.largestHopVicinityEntryLocked(); emax != nil && e.Hops() < emax.Hops() {
		e.Vicinity = true
		e.ExtendedVicinity = false
		t.admitExtendedVicinityLocked(emax, lnN)
		return true
	}

	return t.admitExtendedVicinityLocked(e, lnN)
}

// vicinityDestinationsLocked returns the set of destinations currently
// counted in the plain vicinity.
func (t *Table) vicinityDestinationsLocked() map[id.NodeIdentifier]struct{} {
	out := make(map[id.NodeIdentifier]struct{})
	for dest, byVport := range t.entries {
		for _, e := range byVport {
			if e.Vicinity && !e.ExtendedVicinity {
				out[dest] = struct{}{}
				break
			}
		}
	}
	return out
}

func (t *Table) largestHopVicinityEntryLocked() *RoutingEntry {
	var worst *RoutingEntry
	for _, byVport := range t.entries {
		for _, e := range byVport {
			if e.Vicinity && !e.ExtendedVicinity {
				if worst == nil || e.Hops() > worst.Hops() {
					worst = e
				}
			}
		}
	}
	return worst
}

// bucketCapLocked returns the current extended-vicinity bucket size
// cap: max(bucket_size_floor, round(ln n)).
func (t *Table) bucketCapLocked(lnN float64) int {
	n := int(math.Round(lnN))
	if n < t.cfg.BucketSizeFloor {
		n = t.cfg.BucketSizeFloor
	}
	return n
}

// bucketEntriesLocked returns the currently-stored extended-vicinity
// entries sharing cand's sloppy-group prefix.
func (t *Table) bucketEntriesLocked(cand *RoutingEntry) []*RoutingEntry {
	L := t.group.GroupPrefixBits()
	prefix := cand.Destination.Prefix(L, 0)
	var out []*RoutingEntry
	for dest, byVport := range t.entries {
		if dest.Prefix(L, 0) != prefix {
			continue
		}
		for _, e := range byVport {
			if e.ExtendedVicinity {
				out = append(out, e)
			}
		}
	}
	return out
}

// admitExtendedVicinityLocked admits cand as an extended-vicinity entry,
// evicting (or, for a landmark, demoting) the bucket's largest-hop
// member on overflow (spec §4.E step 5, second and third bullets).
// cand may already be stored (the demoted E_max case) or not yet
// (the direct-admission case); bucketEntriesLocked naturally includes
// an already-stored cand once its ExtendedVicinity flag is set below.
func (t *Table) admitExtendedVicinityLocked(cand *RoutingEntry, lnN float64) bool {
	cand.Vicinity = false
	cand.ExtendedVicinity = true

	capacity := t.bucketCapLocked(lnN)
	bucket := t.bucketEntriesLocked(cand)
	if len(bucket) <= capacity {
		return true
	}

	worst := bucket[0]
	for _, be := range bucket[1:] {
		if be.Hops() > worst.Hops() {
			worst = be
		}
	}

	if worst.Landmark {
		worst.Vicinity = false
		worst.ExtendedVicinity = false
		return true
	}
	if worst == cand {
		cand.ExtendedVicinity = false
		return false
	}
	t.retractEntryLocked(worst)
	return true
}

// retractEntryLocked removes e from the table entirely (used for
// bucket-overflow eviction, not neighbor-facing retraction).
func (t *Table) retractEntryLocked(e *RoutingEntry) {
	byVport := t.entries[e.Destination]
	if byVport == nil {
		return
	}
	e.expiry.Stop()
	delete(byVport, e.OriginVport())
	if len(byVport) == 0 {
		delete(t.entries, e.Destination)
	}
	wasActive := e.IsActive()
	if wasActive {
		e.setActive(false)
	}
	t.reselectActiveLocked(e.Destination)
	if wasActive {
		t.RetractEntry.Emit(e)
	}
}

// reselectActiveLocked runs step 6 of the import algorithm for dest.
func (t *Table) reselectActiveLocked(dest id.NodeIdentifier) {
	byVport := t.entries[dest]
	if len(byVport) == 0 {
		return
	}
	all := make([]*RoutingEntry, 0, len(byVport))
	for _, e := range byVport {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Cost < all[j].Cost })

	var newActive, oldActive *RoutingEntry
	for _, e := range all {
		if e.IsActive() && oldActive == nil {
			oldActive = e
		}
		if e.Feasible && newActive == nil {
			newActive = e
		}
	}
	if oldActive == newActive {
		return
	}
	if oldActive != nil {
		oldActive.setActive(false)
	}
	if newActive != nil {
		newActive.setActive(true)
		t.ExportEntry.Emit(ExportEvent{Entry: newActive})
	}
}

// recomputeLocalAddressesLocked runs local-address selection (spec
// §4.E): up to cfg.LocalAddressRedundancy active landmark entries in
// ascending cost, or the single self-address if the local node is a
// landmark.
func (t *Table) recomputeLocalAddressesLocked() {
	var addrs []landmark.Address
	if t.landmark {
		addrs = []landmark.Address{landmark.New(t.localID, nil)}
	} else {
		var candidates []*RoutingEntry
		for _, byVport := range t.entries {
			for _, e := range byVport {
				if e.IsActive() && e.Landmark {
					candidates = append(candidates, e)
				}
			}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Cost < candidates[j].Cost })
		max := t.cfg.LocalAddressRedundancy
		for i, e := range candidates {
			if max > 0 && i >= max {
				break
			}
			addrs = append(addrs, landmark.New(e.Destination, e.ReversePath))
		}
	}

	if addressListEqual(t.localAddresses, addrs) {
		return
	}
	t.localAddresses = addrs
	t.AddressChanged.Emit(append([]landmark.Address(nil), addrs...))
}

func addressListEqual(a, b []landmark.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// expire fires when a routing entry's expiry timer elapses.
func (t *Table) expire(dest id.NodeIdentifier, v uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byVport := t.entries[dest]
	if byVport == nil {
		return
	}
	e, ok := byVport[v]
	if !ok {
		return
	}
	delete(byVport, v)
	if len(byVport) == 0 {
		delete(t.entries, dest)
	}

	wasActive := e.IsActive()
	if wasActive {
		e.setActive(false)
	}
	t.stats.mu.Lock()
	t.stats.RouteExpirations++
	t.stats.mu.Unlock()

	t.reselectActiveLocked(dest)
	if wasActive {
		t.RetractEntry.Emit(e)
	}
	if e.Vicinity && !e.ExtendedVicinity {
		t.VicinityRemoved.Emit(dest)
	}
	if e.Landmark {
		stillLandmark := false
		if rest := t.entries[dest]; rest != nil {
			for _, other := range rest {
				if other.Landmark {
					stillLandmark = true
					break
				}
			}
		}
		if !stillLandmark {
			t.LandmarkRemoved.Emit(dest)
		}
		t.recomputeLocalAddressesLocked()
	}
}

// Retract removes all entries arriving on vport v, optionally restricted
// to one destination, per spec §4.E "Retraction". A retraction event is
// emitted for a removed active entry only when re-selection leaves no
// active route for its destination.
func (t *Table) Retract(v uint32, destination *id.NodeIdentifier) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	for dest, byVport := range t.entries {
		if destination != nil && dest != *destination {
			continue
		}
		e, ok := byVport[v]
		if !ok {
			continue
		}
		e.expiry.Stop()
		delete(byVport, v)
		if len(byVport) == 0 {
			delete(t.entries, dest)
		}
		changed = true

		wasActive := e.IsActive()
		if wasActive {
			e.setActive(false)
		}
		t.reselectActiveLocked(dest)
		if wasActive {
			stillRouted := false
			for _, other := range t.entries[dest] {
				if other.IsActive() {
					stillRouted = true
					break
				}
			}
			if !stillRouted {
				t.RetractEntry.Emit(e)
			}
		}
		if e.Landmark {
			t.recomputeLocalAddressesLocked()
		}
	}
	return changed
}

// RetractDestination removes every entry for destination and emits a
// retraction event for every entry that was active, per spec §4.E
// "retract(dest)".
func (t *Table) RetractDestination(destination id.NodeIdentifier) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	byVport := t.entries[destination]
	if len(byVport) == 0 {
		return false
	}
	var retracted []*RoutingEntry
	anyLandmark := false
	for _, e := range byVport {
		e.expiry.Stop()
		if e.IsActive() {
			e.setActive(false)
			retracted = append(retracted, e)
		}
		if e.Landmark {
			anyLandmark = true
		}
	}
	delete(t.entries, destination)
	delete(t.originators, destination)

	for _, e := range retracted {
		t.RetractEntry.Emit(e)
	}
	if anyLandmark {
		t.LandmarkRemoved.Emit(destination)
		t.recomputeLocalAddressesLocked()
	}
	return true
}
