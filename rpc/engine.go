package rpc

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/log"

	"github.com/luxfi/compactrouter/clock"
	"github.com/luxfi/compactrouter/executor"
	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/ndb"
	"github.com/luxfi/compactrouter/rib"
	"github.com/luxfi/compactrouter/router"
)

// Config bundles the engine's own tunables (spec §5's call timeouts and
// §4.F's publish interval).
type Config struct {
	CallTimeout     time.Duration
	PublishTimeout  time.Duration
	PublishInterval time.Duration
}

// DefaultConfig returns the spec's default RPC tunables.
func DefaultConfig() Config {
	return Config{
		CallTimeout:     DefaultTimeout,
		PublishTimeout:  PublishTimeout,
		PublishInterval: PublishInterval,
	}
}

type pendingCall struct {
	timer *clock.Timer
	done  func([]byte, error)
}

// Engine dispatches and answers the three RPC methods spec §6.2
// defines, running requests and responses through the compact router
// on ComponentRPCEngine (spec §6.2 header, grounded on
// rpc_channel.cpp's respond()/request() routing the same way).
type Engine struct {
	localID id.NodeIdentifier
	rtr     *router.Router
	rib     *rib.Table
	db      *ndb.Database
	group   rib.GroupPrefixer
	clk     *clock.Clock
	exec    *executor.Executor
	log     log.Logger
	cfg     Config

	mu         sync.Mutex
	nextCallID uint64
	pending    map[uint64]*pendingCall

	publishTimer *clock.Timer
}

// New constructs an Engine. group may be nil, in which case
// publishLocalAddress only ever targets the single ring successor for
// the local ID (sgPrefixLen treated as 0).
func New(localID id.NodeIdentifier, rtr *router.Router, table *rib.Table, db *ndb.Database, group rib.GroupPrefixer, clk *clock.Clock, exec *executor.Executor, logger log.Logger, cfg Config) *Engine {
	return &Engine{
		localID: localID,
		rtr:     rtr,
		rib:     table,
		db:      db,
		group:   group,
		clk:     clk,
		exec:    exec,
		log:     logger,
		cfg:     cfg,
		pending: make(map[uint64]*pendingCall),
	}
}

// Start subscribes to the router's delivery signal and to the name
// database's responsibility-change signal, and schedules the periodic
// self-publish (spec §4.F "every 600s, and immediately whenever the
// responsible-landmark set changes").
func (e *Engine) Start() {
	e.rtr.Deliver.Subscribe(func(msg router.RoutedMessage) { e.handleDeliver(msg) })
	e.db.ResponsibleLandmarksChanged.Subscribe(func(struct{}) {
		e.exec.Post(e.publishLocalAddress)
	})
	e.schedulePublish()
	e.exec.Post(e.publishLocalAddress)
}

// Stop cancels the publish timer and every pending call's timeout
// timer without invoking their callbacks (a shutdown, not a graceful
// drain — matching executor.Executor.Close's own contract).
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.publishTimer != nil {
		e.publishTimer.Stop()
	}
	for _, pc := range e.pending {
		pc.timer.Stop()
	}
	e.pending = make(map[uint64]*pendingCall)
}

func (e *Engine) schedulePublish() {
	e.publishTimer = clock.AfterFunc(e.cfg.PublishInterval, func() {
		e.exec.Post(func() {
			e.publishLocalAddress()
			e.schedulePublish()
		})
	})
}

func (e *Engine) sgPrefixBits() int {
	if e.group == nil {
		return 0
	}
	return e.group.GroupPrefixBits()
}

// publishLocalAddress issues Core.NameDb.PublishAddress to every
// landmark responsible for the local node's ID (spec §4.F).
func (e *Engine) publishLocalAddress() {
	addrs := e.rib.GetLocalAddresses()
	if len(addrs) == 0 {
		return
	}
	req := PublishAddressRequest{Addresses: addrs}
	for _, lm := range e.db.GetLandmarkCaches(e.localID, e.sgPrefixBits()) {
		if lm == e.localID {
			continue
		}
		e.PublishAddress(lm, req, func(err error) {
			if err != nil {
				e.log.Debug("rpc: address publish failed", zap.Stringer("landmark", lm), zap.Error(err))
			}
		})
	}
}

func (e *Engine) handleDeliver(msg router.RoutedMessage) {
	if msg.DestinationComp != router.ComponentRPCEngine {
		return
	}
	switch envelopeKind(msg.PayloadType) {
	case kindRequest:
		e.handleRequest(msg)
	case kindResponse:
		e.handleResponse(msg)
	default:
		e.log.Debug("rpc: unknown envelope kind", zap.Uint32("kind", msg.PayloadType))
	}
}

func (e *Engine) handleRequest(msg router.RoutedMessage) {
	req, err := decodeRequest(msg.Payload)
	if err != nil {
		e.log.Debug("rpc: malformed request", zap.Error(err))
		return
	}
	status, payload := e.dispatch(msg.SourceNode, req.Method, req.Payload, msg.HopDistance)
	e.sendResponse(msg.SourceNode, req.CallID, status, payload)
}

// dispatch runs one request against the local handlers (spec §6.2's
// method table). Non-landmarks answer either name-database RPC with
// BadRequest (spec §6.2 "Non-landmarks answer either RPC with
// BadRequest"). hopDistance is the requesting RoutedMessage's own
// HopDistance, forwarded into the Ping response when the request asked
// to track it (spec §9 ambiguity 4).
func (e *Engine) dispatch(from id.NodeIdentifier, method Method, payload []byte, hopDistance uint8) (Status, []byte) {
	switch method {
	case MethodPing:
		ping, err := decodePingRequest(payload)
		if err != nil {
			return StatusBadRequest, nil
		}
		resp := PingResponse{Timestamp: ping.Timestamp}
		if ping.TrackHopDistance {
			resp.HopDistance = hopDistance
		}
		return StatusOK, resp.encode()

	case MethodNameDbPublishAddress:
		if !e.rib.IsLandmark() {
			return StatusBadRequest, nil
		}
		pub, err := decodePublishAddressRequest(payload)
		if err != nil {
			return StatusBadRequest, nil
		}
		e.db.Store(from, pub.Addresses, ndb.Authority, from, 0)
		return StatusOK, PublishAddressResponse{}.encode()

	case MethodNameDbLookupAddress:
		if !e.rib.IsLandmark() {
			return StatusBadRequest, nil
		}
		lookup, err := decodeLookupAddressRequest(payload)
		if err != nil {
			return StatusBadRequest, nil
		}
		return StatusOK, e.lookupAddress(lookup).encode()

	default:
		return StatusMethodNotFound, nil
	}
}

func (e *Engine) lookupAddress(req LookupAddressRequest) LookupAddressResponse {
	switch req.Type {
	case LookupExact:
		if rec, ok := e.db.Lookup(req.NodeID); ok {
			return LookupAddressResponse{Records: []AddressRecord{{NodeID: rec.NodeID, Addresses: rec.Addresses}}}
		}
		return LookupAddressResponse{}
	case LookupSGClosest:
		return recordsToResponse(e.db.LookupSloppyGroup(req.NodeID, req.PrefixLen, req.NodeID, ndb.Closest))
	case LookupSGClosestNeighbors:
		return recordsToResponse(e.db.LookupSloppyGroup(req.NodeID, req.PrefixLen, req.NodeID, ndb.ClosestNeighbors))
	default:
		return LookupAddressResponse{}
	}
}

func recordsToResponse(recs []ndb.Record) LookupAddressResponse {
	out := LookupAddressResponse{Records: make([]AddressRecord, 0, len(recs))}
	for _, r := range recs {
		out.Records = append(out.Records, AddressRecord{NodeID: r.NodeID, Addresses: r.Addresses})
	}
	return out
}

func (e *Engine) sendResponse(to id.NodeIdentifier, callID uint64, status Status, payload []byte) {
	resp := response{CallID: callID, Status: status, Payload: payload}
	e.rtr.SendMessage(to, router.ComponentRPCEngine, uint32(kindResponse), resp.encode())
}

func (e *Engine) handleResponse(msg router.RoutedMessage) {
	resp, err := decodeResponse(msg.Payload)
	if err != nil {
		e.log.Debug("rpc: malformed response", zap.Error(err))
		return
	}
	e.mu.Lock()
	pc, ok := e.pending[resp.CallID]
	if ok {
		delete(e.pending, resp.CallID)
	}
	e.mu.Unlock()
	if !ok {
		// Either a duplicate/late reply to an already-expired call, or a
		// cancel/dispatch race (spec §5): a no-op either way.
		return
	}
	pc.timer.Stop()
	pc.done(resp.Payload, errForStatus(resp.Status))
}

// call registers a pending call and sends the request, grounded on
// rpc/engine.hpp's createCall (a single generic call path every typed
// method wrapper funnels through).
func (e *Engine) call(destination id.NodeIdentifier, method Method, payload []byte, timeout time.Duration, done func([]byte, error)) {
	e.callTracked(destination, method, payload, timeout, false, done)
}

// callTracked is call with the RoutedMessage's track_hop_distance flag
// set when trackHopDistance is true (spec §9 ambiguity 4).
func (e *Engine) callTracked(destination id.NodeIdentifier, method Method, payload []byte, timeout time.Duration, trackHopDistance bool, done func([]byte, error)) {
	e.mu.Lock()
	e.nextCallID++
	callID := e.nextCallID
	pc := &pendingCall{done: done}
	e.pending[callID] = pc
	e.mu.Unlock()

	pc.timer = clock.AfterFunc(timeout, func() {
		e.exec.Post(func() { e.expireCall(callID) })
	})

	req := request{CallID: callID, Method: method, Payload: payload}
	if trackHopDistance {
		e.rtr.SendMessageTracked(destination, router.ComponentRPCEngine, uint32(kindRequest), req.encode())
	} else {
		e.rtr.SendMessage(destination, router.ComponentRPCEngine, uint32(kindRequest), req.encode())
	}
}

func (e *Engine) expireCall(callID uint64) {
	e.mu.Lock()
	pc, ok := e.pending[callID]
	if ok {
		delete(e.pending, callID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	pc.done(nil, ErrRequestTimedOut)
}

// Ping issues Core.Ping to destination. When trackHopDistance is true,
// the returned PingResponse.HopDistance reports how many hops the
// request actually traveled (spec §9 ambiguity 4).
func (e *Engine) Ping(destination id.NodeIdentifier, timestamp int64, trackHopDistance bool, done func(PingResponse, error)) {
	req := PingRequest{Timestamp: timestamp, TrackHopDistance: trackHopDistance}
	e.callTracked(destination, MethodPing, req.encode(), e.cfg.CallTimeout, trackHopDistance, func(payload []byte, err error) {
		if err != nil {
			done(PingResponse{}, err)
			return
		}
		resp, decErr := decodePingResponse(payload)
		if decErr != nil {
			done(PingResponse{}, ErrBadResponse)
			return
		}
		done(resp, nil)
	})
}

// PublishAddress issues Core.NameDb.PublishAddress to destination.
func (e *Engine) PublishAddress(destination id.NodeIdentifier, req PublishAddressRequest, done func(error)) {
	e.call(destination, MethodNameDbPublishAddress, req.encode(), e.cfg.PublishTimeout, func(_ []byte, err error) {
		done(err)
	})
}

// LookupAddress issues Core.NameDb.LookupAddress to destination.
func (e *Engine) LookupAddress(destination id.NodeIdentifier, req LookupAddressRequest, done func(LookupAddressResponse, error)) {
	e.call(destination, MethodNameDbLookupAddress, req.encode(), e.cfg.CallTimeout, func(payload []byte, err error) {
		if err != nil {
			done(LookupAddressResponse{}, err)
			return
		}
		resp, decErr := decodeLookupAddressResponse(payload)
		if decErr != nil {
			done(LookupAddressResponse{}, ErrBadResponse)
			return
		}
		done(resp, nil)
	})
}

// RemoteLookupSloppyGroup issues Core.NameDb.LookupAddress in parallel
// against every landmark that could be responsible for nodeID (spec
// §4.F remote_lookup_sloppy_group: "issue the lookup RPC in parallel
// against every landmark in the consistent-hashing ring that could be
// responsible for node_id ..., aggregate results, invoke a completion
// callback"). done is invoked exactly once, after every landmark has
// either replied or timed out, with the deduplicated union of every
// successful response's records.
func (e *Engine) RemoteLookupSloppyGroup(nodeID id.NodeIdentifier, prefixLen int, mode LookupType, done func([]AddressRecord)) {
	landmarks := e.db.GetLandmarkCaches(nodeID, prefixLen)
	if len(landmarks) == 0 {
		done(nil)
		return
	}

	var mu sync.Mutex
	remaining := len(landmarks)
	seen := make(map[id.NodeIdentifier]struct{})
	var merged []AddressRecord

	for _, lm := range landmarks {
		e.LookupAddress(lm, LookupAddressRequest{NodeID: nodeID, Type: mode, PrefixLen: prefixLen}, func(resp LookupAddressResponse, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				for _, rec := range resp.Records {
					if _, dup := seen[rec.NodeID]; dup {
						continue
					}
					seen[rec.NodeID] = struct{}{}
					merged = append(merged, rec)
				}
			}
			remaining--
			if remaining == 0 {
				done(merged)
			}
		})
	}
}
