package ndb

import (
	"sort"
	"sync"
	"time"

	"github.com/luxfi/compactrouter/clock"
	"github.com/luxfi/compactrouter/executor"
	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/landmark"
)

// LookupMode selects between the two sloppy-group lookup strategies
// (spec §4.F).
type LookupMode int

const (
	// Closest returns the single Authority record numerically closest
	// to the query ID.
	Closest LookupMode = iota
	// ClosestNeighbors returns the records immediately preceding and
	// succeeding the query ID in the ordered ring of matching records.
	ClosestNeighbors
)

// Config bundles the §6.4 tunables the database needs.
type Config struct {
	CacheEntriesMax int
	CacheRedundancy int
}

// DefaultConfig returns the spec's defaults (ndb_cache_entries_max =
// 1024, cache_redundancy = 3, matching the original's
// NameDatabase::cache_redundancy).
func DefaultConfig() Config {
	return Config{CacheEntriesMax: 1024, CacheRedundancy: 3}
}

// Database is the name database (spec §4.F NameDatabase), storing
// Record entries with per-type TTL and a capped, oldest-evicted Cache
// tier, plus the consistent-hashing Ring used to place Authority
// records among landmarks.
type Database struct {
	localID id.NodeIdentifier
	clk     *clock.Clock
	exec    *executor.Executor
	cfg     Config
	ring    *Ring

	mu      sync.Mutex
	records map[id.NodeIdentifier]map[Type]*storedRecord
	cacheLRU []*storedRecord // oldest-first by LastUpdate among Cache-type records

	// ExportRecord fires when a stored record's primary address changes
	// for a SloppyGroup-type record (spec §4.F store()'s "emit an
	// export-record event").
	ExportRecord *executor.Signal[*Record]
	// ResponsibleLandmarksChanged fires when the set of landmarks
	// responsible for localID changes, prompting republication (spec
	// §4.F register_landmark/unregister_landmark).
	ResponsibleLandmarksChanged *executor.Signal[struct{}]
}

type storedRecord struct {
	rec    Record
	expiry *clock.Timer
}

// New constructs an empty Database for localID.
func New(localID id.NodeIdentifier, clk *clock.Clock, exec *executor.Executor, cfg Config) *Database {
	return &Database{
		localID: localID,
		clk:     clk,
		exec:    exec,
		cfg:     cfg,
		ring:    NewRing(),
		records: make(map[id.NodeIdentifier]map[Type]*storedRecord),

		ExportRecord:                executor.NewSignal[*Record](exec),
		ResponsibleLandmarksChanged: executor.NewSignal[struct{}](exec),
	}
}

func (db *Database) now() time.Time {
	return db.clk.Now()
}

// Store upserts a record for nodeID of the given type (spec §4.F
// store()). If the primary address changed and type is SloppyGroup, an
// export-record event is emitted.
func (db *Database) Store(nodeID id.NodeIdentifier, addresses []landmark.Address, typ Type, originID id.NodeIdentifier, seqno uint16) {
	db.storeLocked(nodeID, addresses, typ, originID, seqno, id.NodeIdentifier{})
}

// StoreReceivedFrom is Store, additionally recording which peer the
// record arrived from (spec §4.G.2's NameRecord.receivedPeerId, set by
// sloppy-group gossip import; direct RPC-published records have no
// received-from peer and use Store instead).
func (db *Database) StoreReceivedFrom(nodeID id.NodeIdentifier, addresses []landmark.Address, typ Type, originID id.NodeIdentifier, seqno uint16, receivedPeerID id.NodeIdentifier) {
	db.storeLocked(nodeID, addresses, typ, originID, seqno, receivedPeerID)
}

func (db *Database) storeLocked(nodeID id.NodeIdentifier, addresses []landmark.Address, typ Type, originID id.NodeIdentifier, seqno uint16, receivedPeerID id.NodeIdentifier) {
	db.mu.Lock()
	defer db.mu.Unlock()

	byType := db.records[nodeID]
	if byType == nil {
		byType = make(map[Type]*storedRecord)
		db.records[nodeID] = byType
	}

	now := db.now()
	existing, exists := byType[typ]

	var primaryChanged bool
	if exists {
		oldPrimary, hadOld := existing.rec.LandmarkAddress()
		existing.rec.Addresses = addresses
		existing.rec.Seqno = seqno
		existing.rec.OriginID = originID
		existing.rec.ReceivedPeerID = receivedPeerID
		existing.rec.LastUpdate = now
		existing.expiry.Reset(typ.TTL())
		if typ == Cache {
			for i, sr := range db.cacheLRU {
				if sr == existing {
					db.cacheLRU = append(append(db.cacheLRU[:i:i], db.cacheLRU[i+1:]...), existing)
					break
				}
			}
		}
		newPrimary, hasNew := existing.rec.LandmarkAddress()
		primaryChanged = hadOld != hasNew || (hadOld && hasNew && !oldPrimary.Equal(newPrimary))
	} else {
		sr := &storedRecord{rec: Record{
			NodeID:         nodeID,
			Type:           typ,
			Addresses:      addresses,
			Seqno:          seqno,
			Timestamp:      now,
			OriginID:       originID,
			LastUpdate:     now,
			ReceivedPeerID: receivedPeerID,
		}}
		sr.expiry = clock.AfterFunc(typ.TTL(), func() {
			db.exec.Post(func() { db.expire(nodeID, typ) })
		})
		byType[typ] = sr
		existing = sr
		primaryChanged = len(addresses) > 0

		if typ == Cache {
			db.cacheLRU = append(db.cacheLRU, sr)
			db.evictCacheOverflowLocked()
		}
	}

	if primaryChanged && typ == SloppyGroup {
		recCopy := existing.rec
		db.ExportRecord.Emit(&recCopy)
	}
}

// evictCacheOverflowLocked drops the oldest Cache-type record once the
// cache exceeds CacheEntriesMax (spec §3 "Cache capped to N entries,
// eviction policy: oldest by last_update").
func (db *Database) evictCacheOverflowLocked() {
	for len(db.cacheLRU) > db.cfg.CacheEntriesMax && db.cfg.CacheEntriesMax > 0 {
		oldest := db.cacheLRU[0]
		db.cacheLRU = db.cacheLRU[1:]
		oldest.expiry.Stop()
		if byType := db.records[oldest.rec.NodeID]; byType != nil {
			delete(byType, Cache)
			if len(byType) == 0 {
				delete(db.records, oldest.rec.NodeID)
			}
		}
	}
}

// Remove drops the record of the given type for nodeID.
func (db *Database) Remove(nodeID id.NodeIdentifier, typ Type) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.removeLocked(nodeID, typ)
}

func (db *Database) removeLocked(nodeID id.NodeIdentifier, typ Type) {
	byType := db.records[nodeID]
	if byType == nil {
		return
	}
	sr, ok := byType[typ]
	if !ok {
		return
	}
	sr.expiry.Stop()
	delete(byType, typ)
	if len(byType) == 0 {
		delete(db.records, nodeID)
	}
	if typ == Cache {
		for i, c := range db.cacheLRU {
			if c == sr {
				db.cacheLRU = append(db.cacheLRU[:i], db.cacheLRU[i+1:]...)
				break
			}
		}
	}
}

func (db *Database) expire(nodeID id.NodeIdentifier, typ Type) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.removeLocked(nodeID, typ)
}

// Clear empties the whole database.
func (db *Database) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, byType := range db.records {
		for _, sr := range byType {
			sr.expiry.Stop()
		}
	}
	db.records = make(map[id.NodeIdentifier]map[Type]*storedRecord)
	db.cacheLRU = nil
}

// Lookup returns any stored record for nodeID, preferring Authority,
// then SloppyGroup, then Cache, matching the priority implied by their
// relative trustworthiness in spec §3.
func (db *Database) Lookup(nodeID id.NodeIdentifier) (Record, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	byType := db.records[nodeID]
	if byType == nil {
		return Record{}, false
	}
	for _, typ := range []Type{Authority, SloppyGroup, Cache} {
		if sr, ok := byType[typ]; ok {
			return sr.rec, true
		}
	}
	return Record{}, false
}

// LookupSloppyGroup implements spec §4.F's lookup_sloppy_group: among
// Authority records sharing prefixLen bits with origin, returns either
// the single numerically-closest record to nodeID (Closest, skipping a
// match equal to origin itself) or the ring neighbors immediately
// preceding and succeeding nodeID (ClosestNeighbors).
func (db *Database) LookupSloppyGroup(nodeID id.NodeIdentifier, prefixLen int, origin id.NodeIdentifier, mode LookupMode) []Record {
	db.mu.Lock()
	defer db.mu.Unlock()

	var candidates []Record
	for id2, byType := range db.records {
		sr, ok := byType[Authority]
		if !ok {
			continue
		}
		if id2.CommonPrefixBits(origin) < prefixLen {
			continue
		}
		candidates = append(candidates, sr.rec)
	}
	if len(candidates) == 0 {
		return nil
	}

	switch mode {
	case Closest:
		sort.Slice(candidates, func(i, j int) bool {
			return nodeID.DistanceAsFloat(candidates[i].NodeID) < nodeID.DistanceAsFloat(candidates[j].NodeID)
		})
		for _, c := range candidates {
			if c.NodeID == origin {
				continue
			}
			return []Record{c}
		}
		return nil
	case ClosestNeighbors:
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].NodeID.Less(candidates[j].NodeID) })
		idx := sort.Search(len(candidates), func(i int) bool { return !candidates[i].NodeID.Less(nodeID) })
		pred := candidates[(idx-1+len(candidates))%len(candidates)]
		succ := candidates[idx%len(candidates)]
		if pred.NodeID == succ.NodeID {
			return []Record{pred}
		}
		return []Record{pred, succ}
	default:
		return nil
	}
}

// ActiveGossipRecords returns every stored Authority and SloppyGroup
// record, the set the sloppy-group manager's periodic full update
// exports to every peer in its views (spec §4.G.1). Cache-type records
// are excluded: they are locally-learned hints, not group knowledge to
// propagate.
func (db *Database) ActiveGossipRecords() []Record {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []Record
	for _, byType := range db.records {
		for _, typ := range []Type{Authority, SloppyGroup} {
			if sr, ok := byType[typ]; ok {
				out = append(out, sr.rec)
			}
		}
	}
	return out
}

// RegisterLandmark adds landmarkID to the consistent-hashing ring,
// republishing the local address if the landmarks responsible for
// localID changed as a result.
func (db *Database) RegisterLandmark(landmarkID id.NodeIdentifier) {
	before := db.GetLandmarkCaches(db.localID, 0)
	if !db.ring.Register(landmarkID) {
		return
	}
	db.notifyIfResponsibilityChanged(before)
}

// UnregisterLandmark removes landmarkID from the ring, republishing the
// local address if necessary.
func (db *Database) UnregisterLandmark(landmarkID id.NodeIdentifier) {
	before := db.GetLandmarkCaches(db.localID, 0)
	if !db.ring.Unregister(landmarkID) {
		return
	}
	db.notifyIfResponsibilityChanged(before)
}

func (db *Database) notifyIfResponsibilityChanged(before []id.NodeIdentifier) {
	after := db.GetLandmarkCaches(db.localID, 0)
	if landmarkSetEqual(before, after) {
		return
	}
	db.ResponsibleLandmarksChanged.Emit(struct{}{})
}

func landmarkSetEqual(a, b []id.NodeIdentifier) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[id.NodeIdentifier]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			return false
		}
	}
	return true
}

// GetLandmarkCaches returns the landmarks responsible for caching
// nodeID's address: the ring successor of nodeID and, when
// sgPrefixLen > 0, also the successor's ring predecessor and successor
// (covering the sloppy-group neighborhood of the key), per spec §4.F.
func (db *Database) GetLandmarkCaches(nodeID id.NodeIdentifier, sgPrefixLen int) []id.NodeIdentifier {
	succ, ok := db.ring.Successor(nodeID)
	if !ok {
		return nil
	}
	out := []id.NodeIdentifier{succ}
	if sgPrefixLen <= 0 {
		return out
	}

	if pred, ok := db.ring.Predecessor(succ); ok && pred != succ && !contains(out, pred) {
		out = append(out, pred)
	}
	if next, ok := db.ring.Successor(succ.Increment()); ok && next != succ && !contains(out, next) {
		out = append(out, next)
	}
	return out
}

func contains(list []id.NodeIdentifier, v id.NodeIdentifier) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
