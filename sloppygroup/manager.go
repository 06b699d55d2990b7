package sloppygroup

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/compactrouter/clock"
	"github.com/luxfi/compactrouter/executor"
	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/landmark"
	"github.com/luxfi/compactrouter/ndb"
	"github.com/luxfi/compactrouter/netsize"
	"github.com/luxfi/compactrouter/rib"
)

// PayloadType values distinguish the two sloppy-group gossip messages
// carried as RoutedMessage payloads addressed to the reserved
// SloppyGroup component (spec §6.1/§6.3 reserve the component ID but
// leave the inner payload typing to the component; §4.G names the two
// shapes). The router's wire codec tags encoded payloads with these so
// the receiving Manager's ImportAggregate can dispatch without peeking
// at message internals.
const (
	PayloadTypeNameAnnounce          uint32 = 1
	PayloadTypeAggregateNameAnnounce uint32 = 2
)

// Config holds the sloppy-group manager's tunables (spec §4.G, §6.4).
type Config struct {
	// AnnounceInterval is the full-update period (default 600s).
	AnnounceInterval time.Duration
	// AnnounceJitterMin/Max bound the first announcement's startup delay.
	AnnounceJitterMin time.Duration
	AnnounceJitterMax time.Duration
	// AggregationWindow is the per-peer export aggregation buffer window
	// (default 15s, shared pattern per §4.E/§4.F/§4.G).
	AggregationWindow time.Duration
	// ReverseDiffJitter bounds the delay before replying with a diff
	// update to a newly admitted reverse-view peer (~15s per §4.G.2).
	ReverseDiffJitter time.Duration
}

// DefaultConfig returns the spec-default sloppy-group tunables.
func DefaultConfig() Config {
	return Config{
		AnnounceInterval:  600 * time.Second,
		AnnounceJitterMin: 5 * time.Second,
		AnnounceJitterMax: 15 * time.Second,
		AggregationWindow: 15 * time.Second,
		ReverseDiffJitter: 15 * time.Second,
	}
}

// Statistics tracks gossip traffic volume (spec §4.G "topology dump"
// counterparts; the original's TopologyDump* fields are diagnostic-only
// and are not reproduced here — see DESIGN.md).
type Statistics struct {
	mu          sync.Mutex
	RecordXmits uint64
	RecordRcvd  uint64
}

func (s *Statistics) snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Statistics{RecordXmits: s.RecordXmits, RecordRcvd: s.RecordRcvd}
}

func (s *Statistics) addXmits(n uint64) {
	s.mu.Lock()
	s.RecordXmits += n
	s.mu.Unlock()
}

func (s *Statistics) addRcvd(n uint64) {
	s.mu.Lock()
	s.RecordRcvd += n
	s.mu.Unlock()
}

// SendAggregateFunc delivers a batch of name records to peer, carried as
// an AggregateNameAnnounce payload on a RoutedMessage addressed to the
// SloppyGroup component (comp = 0x02). The Manager stays transport
// agnostic; the router supplies this when wiring the Manager in.
type SendAggregateFunc func(peer id.NodeIdentifier, records []ndb.Record)

// Manager implements the sloppy-group prefix computation, the three
// capped peer views, and the DV-style name-record gossip restricted to
// the local group (spec §4.G).
//
// Grounded on original_source/src/social/sloppy_group.h for the owning
// shape (size-estimator-driven, single mutex, stats counters); the
// header's SloppyGroupManager itself is mostly topology-dump scaffolding,
// so the view/gossip mechanics come from spec.md §4.G directly.
type Manager struct {
	localID       id.NodeIdentifier
	sizeEstimator netsize.Estimator
	rib           *rib.Table
	ndb           *ndb.Database
	clk           *clock.Clock
	exec          *executor.Executor
	cfg           Config
	send          SendAggregateFunc

	mu      sync.Mutex
	local   map[id.NodeIdentifier]Peer
	foreign map[id.NodeIdentifier]Peer
	reverse map[id.NodeIdentifier]Peer

	exportAgg     *executor.Aggregator[id.NodeIdentifier, id.NodeIdentifier, ndb.Record]
	announceTimer *clock.Timer

	stats Statistics
}

// New constructs a Manager. send may be nil until the router wires the
// transport in (ExportFullUpdate/gossip exports become no-ops until
// then).
func New(localID id.NodeIdentifier, sizeEstimator netsize.Estimator, table *rib.Table, db *ndb.Database, clk *clock.Clock, exec *executor.Executor, cfg Config) *Manager {
	m := &Manager{
		localID:       localID,
		sizeEstimator: sizeEstimator,
		rib:           table,
		ndb:           db,
		clk:           clk,
		exec:          exec,
		cfg:           cfg,
		local:         make(map[id.NodeIdentifier]Peer),
		foreign:       make(map[id.NodeIdentifier]Peer),
		reverse:       make(map[id.NodeIdentifier]Peer),
	}
	m.exportAgg = executor.NewAggregator(clk, cfg.AggregationWindow, m.flushExport)
	return m
}

// SetSendFunc wires the transport-level delivery callback in. Called by
// the router once the wire codec and neighbor set are available.
func (m *Manager) SetSendFunc(fn SendAggregateFunc) {
	m.mu.Lock()
	m.send = fn
	m.mu.Unlock()
}

// GroupPrefixBits implements rib.GroupPrefixer: L = floor(log2(sqrt(n /
// ln n))), the sloppy-group prefix length (spec §4.G, §9 "use the
// numeric" decision family).
func (m *Manager) GroupPrefixBits() int {
	n := m.sizeEstimator.NetworkSize()
	if n < 3 {
		return 0
	}
	lnN := math.Log(float64(n))
	if lnN <= 0 {
		return 0
	}
	l := math.Floor(math.Log2(math.Sqrt(float64(n) / lnN)))
	if l < 0 {
		return 0
	}
	if int(l) > id.Bits {
		return id.Bits
	}
	return int(l)
}

// GroupPrefix returns the local node's sloppy-group prefix.
func (m *Manager) GroupPrefix() id.NodeIdentifier {
	return m.localID.Prefix(m.GroupPrefixBits(), 0)
}

// InGroup reports whether nodeID shares the local sloppy-group prefix.
func (m *Manager) InGroup(nodeID id.NodeIdentifier) bool {
	L := m.GroupPrefixBits()
	return nodeID.Prefix(L, 0) == m.localID.Prefix(L, 0)
}

// peerViewCap computes V_peer = max(4, round(ln n)).
func (m *Manager) peerViewCap() int {
	n := m.sizeEstimator.NetworkSize()
	if n < 1 {
		n = 1
	}
	v := int(math.Round(math.Log(float64(n))))
	if v < 4 {
		v = 4
	}
	return v
}

// RefreshLocalView rebuilds the local peer view from the routing
// table's vicinity, restricted to the local sloppy group and capped at
// V_peer, closest (fewest hops) first (spec §4.G).
func (m *Manager) RefreshLocalView() {
	viewCap := m.peerViewCap()
	candidates := m.rib.GetVicinity()

	var inGroup []rib.VicinityDescriptor
	for _, c := range candidates {
		if m.InGroup(c.NodeID) {
			inGroup = append(inGroup, c)
		}
	}
	sort.Slice(inGroup, func(i, j int) bool { return inGroup[i].Hops < inGroup[j].Hops })
	if len(inGroup) > viewCap {
		inGroup = inGroup[:viewCap]
	}

	next := make(map[id.NodeIdentifier]Peer, len(inGroup))
	for _, c := range inGroup {
		p := Peer{NodeID: c.NodeID, Hops: c.Hops}
		if rec, ok := m.ndb.Lookup(c.NodeID); ok {
			if addr, ok := rec.LandmarkAddress(); ok {
				p.Addresses = []landmark.Address{addr}
			}
		}
		next[c.NodeID] = p
	}

	m.mu.Lock()
	m.local = next
	m.mu.Unlock()
}

// RefreshForeignView is a documented no-op: the original
// refresh_foreign_peer_view routine never populated the foreign view
// (spec §9 ambiguity 1). Kept as an explicit placeholder rather than
// silently missing so the three-view model in spec §4.G stays visible
// in the API.
func (m *Manager) RefreshForeignView() {}

// considerReverseAdmission applies the hop-count admission rule: a
// candidate not already tracked is admitted if the reverse view has
// room, or if it beats the current worst (largest-hop) reverse entry
// when full (spec §4.G.2).
func (m *Manager) considerReverseAdmission(candidate Peer) bool {
	if !m.InGroup(candidate.NodeID) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reverse[candidate.NodeID]; exists {
		m.reverse[candidate.NodeID] = candidate
		return true
	}
	if _, local := m.local[candidate.NodeID]; local {
		return false
	}
	viewCap := m.peerViewCap()
	if len(m.reverse) < viewCap {
		m.reverse[candidate.NodeID] = candidate
		return true
	}

	var worstID id.NodeIdentifier
	worstHops := -1
	for nid, p := range m.reverse {
		if p.Hops > worstHops {
			worstHops = p.Hops
			worstID = nid
		}
	}
	if candidate.Hops >= worstHops {
		return false
	}
	delete(m.reverse, worstID)
	m.reverse[candidate.NodeID] = candidate
	return true
}

// AllViewPeers returns the union of the local, foreign, and reverse
// peer views — the full gossip fanout set.
func (m *Manager) AllViewPeers() []id.NodeIdentifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[id.NodeIdentifier]struct{}, len(m.local)+len(m.foreign)+len(m.reverse))
	var out []id.NodeIdentifier
	for _, views := range []map[id.NodeIdentifier]Peer{m.local, m.foreign, m.reverse} {
		for nid := range views {
			if _, ok := seen[nid]; !ok {
				seen[nid] = struct{}{}
				out = append(out, nid)
			}
		}
	}
	return out
}

// hopsTo returns the routing table's hop count to nodeID if it appears
// in the vicinity, else 1 (treated as a direct neighbor: the gossip
// sender is always at least a one-hop link away).
func (m *Manager) hopsTo(nodeID id.NodeIdentifier) int {
	for _, v := range m.rib.GetVicinity() {
		if v.NodeID == nodeID {
			return v.Hops
		}
	}
	return 1
}

func (m *Manager) inLocalOrReverse(nodeID id.NodeIdentifier) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.local[nodeID]; ok {
		return true
	}
	_, ok := m.reverse[nodeID]
	return ok
}

// StartAnnouncing begins the periodic full-update loop (spec §4.G.1):
// first announcement after a 5-15s jitter delay, then every
// AnnounceInterval thereafter.
func (m *Manager) StartAnnouncing() {
	delay := jitter(m.cfg.AnnounceJitterMin, m.cfg.AnnounceJitterMax)
	m.mu.Lock()
	m.announceTimer = clock.AfterFunc(delay, m.announceTick)
	m.mu.Unlock()
}

// StopAnnouncing cancels the periodic full-update loop.
func (m *Manager) StopAnnouncing() {
	m.mu.Lock()
	if m.announceTimer != nil {
		m.announceTimer.Stop()
	}
	m.mu.Unlock()
}

func (m *Manager) announceTick() {
	m.exec.Post(func() {
		m.ExportFullUpdate()
		m.mu.Lock()
		m.announceTimer = clock.AfterFunc(m.cfg.AnnounceInterval, m.announceTick)
		m.mu.Unlock()
	})
}

// ExportFullUpdate queues one announce per active Authority/SloppyGroup
// record known to the NDB, to every peer in all views (spec §4.G.1).
func (m *Manager) ExportFullUpdate() {
	records := m.ndb.ActiveGossipRecords()
	peers := m.AllViewPeers()
	if len(peers) == 0 || len(records) == 0 {
		return
	}
	for _, peer := range peers {
		for _, rec := range records {
			m.exportAgg.Add(peer, rec.NodeID, rec)
		}
	}
}

// QueueExport queues a single record for export to peer through the
// per-peer aggregation buffer (used for change-driven exports, e.g. on
// ndb.ExportRecord firing, in addition to the periodic full update).
func (m *Manager) QueueExport(peer id.NodeIdentifier, rec ndb.Record) {
	m.exportAgg.Add(peer, rec.NodeID, rec)
}

func (m *Manager) flushExport(peer id.NodeIdentifier, batch map[id.NodeIdentifier]ndb.Record) {
	m.mu.Lock()
	send := m.send
	m.mu.Unlock()
	if send == nil {
		return
	}
	out := make([]ndb.Record, 0, len(batch))
	for _, rec := range batch {
		out = append(out, rec)
	}
	m.stats.addXmits(uint64(len(out)))
	send(peer, out)
}

// ImportAggregate handles a received AggregateNameAnnounce from peer
// (spec §4.G.2). trackedHopDistance reports whether the transport-level
// envelope tracked hop distance for these records (RoutedMessage hop
// counting); if false the whole aggregate is dropped per spec.
func (m *Manager) ImportAggregate(peer id.NodeIdentifier, sourceNodeID id.NodeIdentifier, trackedHopDistance bool, records []ndb.Record) {
	if !m.InGroup(sourceNodeID) {
		return
	}
	if !trackedHopDistance {
		return
	}
	m.stats.addRcvd(uint64(len(records)))

	var stored []ndb.Record
	for _, rec := range records {
		if !m.InGroup(rec.NodeID) {
			continue
		}
		m.ndb.StoreReceivedFrom(rec.NodeID, rec.Addresses, ndb.SloppyGroup, rec.OriginID, rec.Seqno, peer)
		stored = append(stored, rec)
	}

	if m.inLocalOrReverse(peer) {
		return
	}
	if !m.considerReverseAdmission(Peer{NodeID: peer, Hops: m.hopsTo(peer)}) {
		return
	}

	diff := m.diffAgainstNDB(stored)
	if len(diff) == 0 {
		return
	}
	clock.AfterFunc(jitter(0, m.cfg.ReverseDiffJitter), func() {
		m.exec.Post(func() {
			for _, rec := range diff {
				m.QueueExport(peer, rec)
			}
		})
	})
}

// diffAgainstNDB returns the active gossip records not present (by node
// ID) in justReceived, to reply to a newly admitted reverse-view peer
// with whatever it doesn't already have (spec §4.G.2 "compute the
// diff... and schedule a diff-update back").
func (m *Manager) diffAgainstNDB(justReceived []ndb.Record) []ndb.Record {
	have := make(map[id.NodeIdentifier]struct{}, len(justReceived))
	for _, rec := range justReceived {
		have[rec.NodeID] = struct{}{}
	}
	var diff []ndb.Record
	for _, rec := range m.ndb.ActiveGossipRecords() {
		if _, ok := have[rec.NodeID]; !ok {
			diff = append(diff, rec)
		}
	}
	return diff
}

// Statistics returns a snapshot of the gossip traffic counters.
func (m *Manager) Statistics() Statistics {
	return m.stats.snapshot()
}

// jitter picks a uniform random duration in [min, max) (spec §4.G "with
// jitter"); math/rand/v2 matches social.Peer.SelectPeerSA's precedent
// for non-cryptographic randomized selection elsewhere in the core.
func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}
