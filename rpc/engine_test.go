package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/log"

	"github.com/luxfi/compactrouter/clock"
	"github.com/luxfi/compactrouter/executor"
	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/landmark"
	"github.com/luxfi/compactrouter/ndb"
	"github.com/luxfi/compactrouter/netsize"
	"github.com/luxfi/compactrouter/rib"
	"github.com/luxfi/compactrouter/router"
	"github.com/luxfi/compactrouter/sloppygroup"
	"github.com/luxfi/compactrouter/social"
	"github.com/luxfi/compactrouter/transport/transportmock"
)

type fixedGroup struct{ bits int }

func (g fixedGroup) GroupPrefixBits() int { return g.bits }

func testNode(b byte) id.NodeIdentifier {
	var n id.NodeIdentifier
	n[id.Length-1] = b
	return n
}

type harness struct {
	engine    *Engine
	router    *router.Router
	rib       *rib.Table
	ndb       *ndb.Database
	localID   id.NodeIdentifier
	transport *transportmock.Transport
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	exec := executor.New(2)
	t.Cleanup(exec.Close)
	clk := clock.New()
	estimator := netsize.NewOracleEstimator(100)

	localKey, err := id.NewRandomPrivatePeerKey()
	require.NoError(t, err)
	localID := localKey.NodeID()

	identity := social.NewIdentity(localKey, exec)
	table := rib.New(localID, estimator, fixedGroup{bits: 4}, clk, exec, rib.DefaultConfig())
	db := ndb.New(localID, clk, exec, ndb.DefaultConfig())
	sloppy := sloppygroup.New(localID, estimator, table, db, clk, exec, sloppygroup.DefaultConfig())
	tp := transportmock.New()

	rtr := router.New(identity, table, db, sloppy, estimator, clk, exec, tp, log.NewNoOpLogger(), router.DefaultConfig())
	rtr.Start()
	t.Cleanup(rtr.Stop)

	eng := New(localID, rtr, table, db, fixedGroup{bits: 4}, clk, exec, log.NewNoOpLogger(), cfg)
	eng.Start()
	t.Cleanup(eng.Stop)

	return &harness{engine: eng, router: rtr, rib: table, ndb: db, localID: localID, transport: tp}
}

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	r.Equal(15*time.Second, cfg.CallTimeout)
	r.Equal(30*time.Second, cfg.PublishTimeout)
	r.Equal(600*time.Second, cfg.PublishInterval)
}

func TestDispatchPingEchoesTimestamp(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, DefaultConfig())

	status, payload := h.engine.dispatch(testNode(9), MethodPing, PingRequest{Timestamp: 42}.encode(), 0)
	r.Equal(StatusOK, status)

	resp, err := decodePingResponse(payload)
	r.NoError(err)
	r.Equal(int64(42), resp.Timestamp)
}

func TestDispatchUnknownMethodReturnsMethodNotFound(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, DefaultConfig())

	status, payload := h.engine.dispatch(testNode(9), Method("Core.Bogus"), nil, 0)
	r.Equal(StatusMethodNotFound, status)
	r.Nil(payload)
}

func TestDispatchPublishAddressRejectsNonLandmark(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, DefaultConfig())

	req := PublishAddressRequest{Addresses: []landmark.Address{landmark.New(testNode(1), []uint32{1})}}
	status, _ := h.engine.dispatch(testNode(9), MethodNameDbPublishAddress, req.encode(), 0)
	r.Equal(StatusBadRequest, status)
}

func TestDispatchPublishAddressStoresAuthorityRecordWhenLandmark(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, DefaultConfig())
	h.rib.SetLandmark(true)

	from := testNode(9)
	addrs := []landmark.Address{landmark.New(testNode(1), []uint32{3, 4})}
	status, payload := h.engine.dispatch(from, MethodNameDbPublishAddress, PublishAddressRequest{Addresses: addrs}.encode(), 0)
	r.Equal(StatusOK, status)
	_, err := decodePublishAddressResponse(payload)
	r.NoError(err)

	rec, ok := h.ndb.Lookup(from)
	r.True(ok)
	r.Equal(ndb.Authority, rec.Type)
	r.Len(rec.Addresses, 1)
	r.True(addrs[0].Equal(rec.Addresses[0]))
}

func TestDispatchLookupAddressRejectsNonLandmark(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, DefaultConfig())

	status, _ := h.engine.dispatch(testNode(9), MethodNameDbLookupAddress, LookupAddressRequest{NodeID: testNode(1)}.encode(), 0)
	r.Equal(StatusBadRequest, status)
}

func TestDispatchLookupAddressExactFound(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, DefaultConfig())
	h.rib.SetLandmark(true)

	target := testNode(2)
	addrs := []landmark.Address{landmark.New(testNode(1), []uint32{5})}
	h.ndb.Store(target, addrs, ndb.Authority, target, 0)

	status, payload := h.engine.dispatch(testNode(9), MethodNameDbLookupAddress, LookupAddressRequest{NodeID: target, Type: LookupExact}.encode(), 0)
	r.Equal(StatusOK, status)

	resp, err := decodeLookupAddressResponse(payload)
	r.NoError(err)
	r.Len(resp.Records, 1)
	r.Equal(target, resp.Records[0].NodeID)
}

func TestDispatchLookupAddressExactNotFound(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, DefaultConfig())
	h.rib.SetLandmark(true)

	status, payload := h.engine.dispatch(testNode(9), MethodNameDbLookupAddress, LookupAddressRequest{NodeID: testNode(200), Type: LookupExact}.encode(), 0)
	r.Equal(StatusOK, status)
	resp, err := decodeLookupAddressResponse(payload)
	r.NoError(err)
	r.Empty(resp.Records)
}

func TestPingRoundTripToSelf(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, Config{CallTimeout: time.Second, PublishTimeout: time.Second, PublishInterval: time.Hour})

	type result struct {
		resp PingResponse
		err  error
	}
	results := make(chan result, 1)
	h.engine.Ping(h.localID, 7, false, func(resp PingResponse, err error) {
		results <- result{resp, err}
	})

	select {
	case got := <-results:
		r.NoError(got.err)
		r.Equal(int64(7), got.resp.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("ping round trip to self did not complete")
	}
}

func TestPingTrackHopDistanceReportsOneHopToSelf(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, Config{CallTimeout: time.Second, PublishTimeout: time.Second, PublishInterval: time.Hour})

	type result struct {
		resp PingResponse
		err  error
	}
	results := make(chan result, 1)
	h.engine.Ping(h.localID, 7, true, func(resp PingResponse, err error) {
		results <- result{resp, err}
	})

	select {
	case got := <-results:
		r.NoError(got.err)
		// A self-addressed ping passes through Route() exactly once (local
		// delivery fires before any forwarding), so HopDistance is 1.
		r.EqualValues(1, got.resp.HopDistance)
	case <-time.After(time.Second):
		t.Fatal("ping round trip to self did not complete")
	}
}

func TestCallTimesOutWhenDropped(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, Config{CallTimeout: 20 * time.Millisecond, PublishTimeout: time.Second, PublishInterval: time.Hour})

	errs := make(chan error, 1)
	// testNode(250) has no active route and is not local: Route() drops
	// the request silently, so the call can only resolve via timeout.
	h.engine.Ping(testNode(250), 1, false, func(_ PingResponse, err error) {
		errs <- err
	})

	select {
	case err := <-errs:
		r.ErrorIs(err, ErrRequestTimedOut)
	case <-time.After(time.Second):
		t.Fatal("call did not time out")
	}
}

func TestHandleResponseForUnknownCallIDIsNoop(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	resp := response{CallID: 999999, Status: StatusOK, Payload: nil}
	msg := router.RoutedMessage{
		SourceNode:      testNode(9),
		DestinationComp: router.ComponentRPCEngine,
		PayloadType:     uint32(kindResponse),
		Payload:         resp.encode(),
	}
	require.NotPanics(t, func() { h.engine.handleResponse(msg) })
}

func TestRemoteLookupSloppyGroupEmptyRingCompletesImmediately(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, DefaultConfig())

	done := make(chan []AddressRecord, 1)
	h.engine.RemoteLookupSloppyGroup(testNode(3), 0, LookupExact, func(recs []AddressRecord) {
		done <- recs
	})
	select {
	case recs := <-done:
		r.Empty(recs)
	case <-time.After(time.Second):
		t.Fatal("RemoteLookupSloppyGroup did not complete")
	}
}

func TestRemoteLookupSloppyGroupAggregatesFromSelfLandmark(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, Config{CallTimeout: time.Second, PublishTimeout: time.Second, PublishInterval: time.Hour})
	h.rib.SetLandmark(true)
	h.ndb.RegisterLandmark(h.localID)

	target := testNode(4)
	addrs := []landmark.Address{landmark.New(testNode(1), []uint32{1, 2})}
	h.ndb.Store(target, addrs, ndb.Authority, target, 0)

	done := make(chan []AddressRecord, 1)
	h.engine.RemoteLookupSloppyGroup(target, 0, LookupExact, func(recs []AddressRecord) {
		done <- recs
	})

	select {
	case recs := <-done:
		r.Len(recs, 1)
		r.Equal(target, recs[0].NodeID)
	case <-time.After(time.Second):
		t.Fatal("RemoteLookupSloppyGroup did not complete")
	}
}
