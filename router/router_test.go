package router

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
	router    *Router
	identity  *social.Identity
	rib       *rib.Table
	ndb       *ndb.Database
	sloppy    *sloppygroup.Manager
	estimator *netsize.OracleEstimator
	clk       *clock.Clock
	exec      *executor.Executor
	transport *transportmock.Transport
	localKey  *id.PrivatePeerKey
}

func newHarness(t *testing.T, n uint64, cfg Config) *harness {
	t.Helper()
	exec := executor.New(2)
	t.Cleanup(exec.Close)
	clk := clock.New()
	estimator := netsize.NewOracleEstimator(n)

	localKey, err := id.NewRandomPrivatePeerKey()
	require.NoError(t, err)

	identity := social.NewIdentity(localKey, exec)
	table := rib.New(localKey.NodeID(), estimator, fixedGroup{bits: 4}, clk, exec, rib.DefaultConfig())
	db := ndb.New(localKey.NodeID(), clk, exec, ndb.DefaultConfig())
	sloppy := sloppygroup.New(localKey.NodeID(), estimator, table, db, clk, exec, sloppygroup.DefaultConfig())
	tp := transportmock.New()

	r := New(identity, table, db, sloppy, estimator, clk, exec, tp, log.NewNoOpLogger(), cfg)

	return &harness{
		router:    r,
		identity:  identity,
		rib:       table,
		ndb:       db,
		sloppy:    sloppy,
		estimator: estimator,
		clk:       clk,
		exec:      exec,
		transport: tp,
		localKey:  localKey,
	}
}

func addPeer(t *testing.T, identity *social.Identity) (*social.Peer, *id.PrivatePeerKey) {
	t.Helper()
	key, err := id.NewRandomPrivatePeerKey()
	require.NoError(t, err)
	peer := identity.AddPeer(social.Contact{Key: key.Public()})
	return peer, key
}

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	r.Equal(10*time.Second, cfg.AnnounceInterval)
	r.Equal(5*time.Second, cfg.AggregationWindow)
	r.Equal(uint8(30), cfg.DefaultHopLimit)
	r.Equal(30*time.Second, cfg.SARefreshMinPeriod)
	r.Equal(300*time.Second, cfg.SARefreshPeriodic)
}

func TestRouteLocalDestinationEmitsDeliver(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	delivered := make(chan RoutedMessage, 1)
	h.router.Deliver.Subscribe(func(m RoutedMessage) { delivered <- m })

	msg := RoutedMessage{
		SourceNode:      testNode(9),
		DestinationNode: h.localKey.NodeID(),
		DestinationComp: Component(0x80),
		HopCount:        5,
		PayloadType:     1,
		Payload:         []byte("hi"),
	}
	h.router.Route(msg)

	select {
	case got := <-delivered:
		r.Equal(msg.SourceNode, got.SourceNode)
		r.Equal([]byte("hi"), got.Payload)
	case <-time.After(time.Second):
		t.Fatal("Deliver did not fire")
	}
}

func TestRouteZeroHopCountIsDropped(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	msg := RoutedMessage{
		SourceNode:      testNode(9),
		DestinationNode: testNode(1),
		HopCount:        0,
	}
	h.router.Route(msg)

	r.Empty(h.transport.SentMessages())
	r.Equal(uint64(1), h.router.Statistics().MessagesDropped)
}

func TestRouteDirectActiveRouteForwards(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	dest := testNode(5)
	neighbor := testNode(6)
	v := h.rib.GetVportForNeighbor(neighbor)
	r.True(h.rib.Import(&rib.RoutingEntry{
		Destination: dest,
		ForwardPath: []uint32{v},
		Seqno:       1,
	}))

	msg := RoutedMessage{
		SourceNode:      testNode(1),
		DestinationNode: dest,
		HopCount:        5,
	}
	h.router.Route(msg)

	sent := h.transport.SentMessages()
	r.Len(sent, 1)
	r.Equal(neighbor, sent[0].Peer)

	tag, payload, err := ParseFrame(sent[0].Msg)
	r.NoError(err)
	r.Equal(TagSocialRouted, tag)
	decoded, err := decodeRoutedMessage(payload)
	r.NoError(err)
	r.Equal(uint8(4), decoded.HopCount)
}

// TestRouteThreeNodeRelayForwardsOnceEachHop reproduces spec §8 scenario
// 2: a linear A-B-C topology where A has an active route to C with a
// single-hop forward path through B. The message crosses two real
// Router.Route() calls (A, then B) so a misrouted hop would show up as
// an unexpected peer or a wrong final hop count.
func TestRouteThreeNodeRelayForwardsOnceEachHop(t *testing.T) {
	r := require.New(t)
	a := newHarness(t, 100, DefaultConfig())
	b := newHarness(t, 100, DefaultConfig())

	c := testNode(99)
	vAB := a.rib.GetVportForNeighbor(b.localKey.NodeID())
	r.True(a.rib.Import(&rib.RoutingEntry{Destination: c, ForwardPath: []uint32{vAB}, Seqno: 1}))

	vBC := b.rib.GetVportForNeighbor(c)
	r.True(b.rib.Import(&rib.RoutingEntry{Destination: c, ForwardPath: []uint32{vBC}, Seqno: 1}))

	a.router.Route(RoutedMessage{SourceNode: testNode(1), DestinationNode: c, HopCount: 30})

	sentFromA := a.transport.SentMessages()
	r.Len(sentFromA, 1)
	r.Equal(b.localKey.NodeID(), sentFromA[0].Peer)
	_, payload, err := ParseFrame(sentFromA[0].Msg)
	r.NoError(err)
	atB, err := decodeRoutedMessage(payload)
	r.NoError(err)
	r.Equal(uint8(29), atB.HopCount)
	r.False(atB.DeliveryMode, "single-hop direct routes never trigger the step-1 shortcut")

	b.router.Route(atB)

	sentFromB := b.transport.SentMessages()
	r.Len(sentFromB, 1)
	_, payload, err = ParseFrame(sentFromB[0].Msg)
	r.NoError(err)
	atC, err := decodeRoutedMessage(payload)
	r.NoError(err)
	r.Equal(uint8(28), atC.HopCount)
}

// TestRouteShortcutAdoptsShorterMultiHopPath reproduces the exact
// condition from spec §4.H route() step 1: a direct multi-hop RIB path
// replaces an existing dest_address only when it is strictly shorter,
// and the adopted path is shifted once before being handed onward.
func TestRouteShortcutAdoptsShorterMultiHopPath(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	dest := testNode(5)
	n1 := testNode(6)
	v1 := h.rib.GetVportForNeighbor(n1)
	v2 := uint32(77)
	r.True(h.rib.Import(&rib.RoutingEntry{Destination: dest, ForwardPath: []uint32{v1, v2}, Seqno: 1}))

	msg := RoutedMessage{
		SourceNode:            testNode(1),
		DestinationNode:       dest,
		DestinationLandmarkID: testNode(200),
		DestinationAddress:    []uint32{1, 2, 3}, // longer than the new direct path
		HopCount:              10,
	}
	h.router.Route(msg)

	sent := h.transport.SentMessages()
	r.Len(sent, 1)
	r.Equal(n1, sent[0].Peer)
	_, payload, err := ParseFrame(sent[0].Msg)
	r.NoError(err)
	decoded, err := decodeRoutedMessage(payload)
	r.NoError(err)
	r.True(decoded.DeliveryMode)
	r.Equal(h.localKey.NodeID(), decoded.DestinationLandmarkID)
	r.Equal([]uint32{v2}, decoded.DestinationAddress, "front vport consumed by the required shift()")
}

// TestRouteShortcutKeepsExistingShorterPath is the mirror of the
// previous test: when the already-attached dest_address is the same
// length or shorter than the new direct path, step 1 must NOT replace
// it (the inverted condition was the original bug).
func TestRouteShortcutKeepsExistingShorterPath(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	dest := testNode(5)
	n1 := testNode(6)
	v1 := h.rib.GetVportForNeighbor(n1)
	r.True(h.rib.Import(&rib.RoutingEntry{Destination: dest, ForwardPath: []uint32{v1, 77}, Seqno: 1}))

	existingLandmark := testNode(200)
	msg := RoutedMessage{
		SourceNode:            testNode(1),
		DestinationNode:       dest,
		DestinationLandmarkID: existingLandmark,
		DestinationAddress:    []uint32{1}, // already shorter than the new 2-hop direct path
		HopCount:              10,
	}
	h.router.Route(msg)

	sent := h.transport.SentMessages()
	r.Len(sent, 1)
	r.Equal(n1, sent[0].Peer)
	_, payload, err := ParseFrame(sent[0].Msg)
	r.NoError(err)
	decoded, err := decodeRoutedMessage(payload)
	r.NoError(err)
	r.False(decoded.DeliveryMode)
	r.Equal(existingLandmark, decoded.DestinationLandmarkID)
	r.Equal([]uint32{1}, decoded.DestinationAddress)
}

// TestRouteLandmarkResolvesAddressAndForwardsAlongPath reproduces spec
// §8 scenario 3's landmark step: the local node is the landmark named
// in dest_address with an empty path, so it must resolve the
// destination via NDB, mark delivery_mode sticky, and forward by
// consuming (shifting) the first vport of the resolved reverse path.
func TestRouteLandmarkResolvesAddressAndForwardsAlongPath(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())
	h.rib.SetLandmark(true)

	dest := testNode(5)
	n1 := testNode(6)
	v1 := h.rib.GetVportForNeighbor(n1)
	v2 := uint32(88)
	h.ndb.Store(dest, []landmark.Address{landmark.New(h.localKey.NodeID(), []uint32{v1, v2})}, ndb.Authority, dest, 0)

	msg := RoutedMessage{
		SourceNode:            testNode(1),
		DestinationNode:       dest,
		DestinationLandmarkID: h.localKey.NodeID(),
		HopCount:              10,
	}
	h.router.Route(msg)

	sent := h.transport.SentMessages()
	r.Len(sent, 1)
	r.Equal(n1, sent[0].Peer)
	_, payload, err := ParseFrame(sent[0].Msg)
	r.NoError(err)
	decoded, err := decodeRoutedMessage(payload)
	r.NoError(err)
	r.True(decoded.DeliveryMode)
	r.Equal([]uint32{v2}, decoded.DestinationAddress)
}

// TestRouteWithoutDeliveryModeIgnoresCoincidentalVport guards against
// the misrouting bug: a non-empty dest_address whose landmark is not
// local and whose delivery_mode is false must resolve via
// RIB.get_active_route(landmark_id), never by matching its front vport
// against an unrelated local neighbor, even when such a neighbor
// happens to exist.
func TestRouteWithoutDeliveryModeIgnoresCoincidentalVport(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	coincidental := testNode(50)
	vport := h.rib.GetVportForNeighbor(coincidental)

	msg := RoutedMessage{
		SourceNode:            testNode(1),
		DestinationNode:       testNode(5),
		DestinationLandmarkID: testNode(200), // not local, no active route registered
		DestinationAddress:    []uint32{vport},
		DeliveryMode:          false,
		HopCount:              10,
	}
	h.router.Route(msg)

	r.Empty(h.transport.SentMessages(), "must not forward to the coincidentally-matching vport neighbor")
	r.Equal(uint64(1), h.router.Statistics().MessagesDropped)
}

func TestRouteWithNoPathIsDropped(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	msg := RoutedMessage{
		SourceNode:      testNode(1),
		DestinationNode: testNode(99),
		HopCount:        5,
	}
	h.router.Route(msg)

	r.Empty(h.transport.SentMessages())
	r.Equal(uint64(1), h.router.Statistics().MessagesDropped)
}

func TestImportAnnounceBuildsForwardPathWithPrependedVport(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	neighbor, neighborKey := addPeer(t, h.identity)
	vport := h.rib.GetVportForNeighbor(neighbor.NodeID())

	originKey, err := id.NewRandomPrivatePeerKey()
	r.NoError(err)
	sa, err := id.NewSignKeyPair()
	r.NoError(err)

	delegation := originKey.Sign.Sign(sa.Public[:])
	ann := PathAnnounce{
		PublicKey:       originKey.Public(),
		Landmark:        false,
		Seqno:           1,
		ForwardPath:     []uint32{42},
		DelegationChain: [][]byte{delegation},
	}

	h.router.importAnnounce(neighbor.NodeID(), vport, ann)

	next, ok := h.rib.GetActiveRoute(originKey.NodeID())
	r.True(ok)
	r.Equal(neighbor.NodeID(), next.NextHop)
	r.Equal([]uint32{vport, 42}, next.Path)
	r.Equal(uint64(1), h.router.Statistics().AnnouncesImported)
	_ = neighborKey
}

func TestImportAnnounceRejectsSelfDestination(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	ann := PathAnnounce{
		PublicKey:       h.localKey.Public(),
		DelegationChain: [][]byte{{1}},
	}
	h.router.importAnnounce(testNode(2), 1, ann)
	r.Equal(uint64(0), h.router.Statistics().AnnouncesImported)
}

func TestImportAnnounceDropsUnverifiableChain(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	originKey, err := id.NewRandomPrivatePeerKey()
	r.NoError(err)

	ann := PathAnnounce{
		PublicKey:       originKey.Public(),
		ForwardPath:     []uint32{1},
		DelegationChain: [][]byte{{0, 1, 2, 3}},
	}
	h.router.importAnnounce(testNode(2), 1, ann)
	r.Equal(uint64(0), h.router.Statistics().AnnouncesImported)
	r.Equal(uint64(1), h.router.Statistics().MessagesDropped)
}

func TestEvaluateLandmarkStatusForceLandmark(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.ForceLandmark = true
	h := newHarness(t, 1000, cfg)

	h.router.evaluateLandmarkStatus(1000)
	r.True(h.rib.IsLandmark())
}

func TestSelfAnnounceFlushesAnnounceToPeer(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.AggregationWindow = 10 * time.Millisecond
	h := newHarness(t, 100, cfg)

	peer, _ := addPeer(t, h.identity)
	peer.AddPeerSA(mustSignKey(t).Public)

	h.router.selfAnnounce()

	require.Eventually(t, func() bool {
		return len(h.transport.SentMessages()) > 0
	}, time.Second, 5*time.Millisecond)

	sent := h.transport.SentMessages()
	r.Equal(peer.NodeID(), sent[0].Peer)
	tag, payload, err := ParseFrame(sent[0].Msg)
	r.NoError(err)
	r.Equal(TagSocialAnnounce, tag)
	agg, err := decodeAggregatePathAnnounce(payload)
	r.NoError(err)
	r.Len(agg.Announces, 1)
	r.Equal(h.localKey.Public(), agg.Announces[0].PublicKey)
}

func TestSelfAnnounceSendsSAFlushWhenNoPeerSA(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())
	peer, _ := addPeer(t, h.identity)

	h.router.selfAnnounce()

	require.Eventually(t, func() bool {
		return len(h.transport.SentMessages()) > 0
	}, time.Second, 5*time.Millisecond)

	sent := h.transport.SentMessages()
	r.Equal(peer.NodeID(), sent[0].Peer)
	tag, _, err := ParseFrame(sent[0].Msg)
	r.NoError(err)
	r.Equal(TagSocialSAFlush, tag)
}

func TestHandleFrameHelloAddsPeer(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	remoteKey, err := id.NewRandomPrivatePeerKey()
	r.NoError(err)
	hello := Hello{Contact: social.Contact{Key: remoteKey.Public()}}

	err = h.router.HandleFrame(remoteKey.NodeID(), Frame(TagInterplexHello, hello.encodePayload()))
	r.NoError(err)
	r.True(h.identity.IsPeer(remoteKey.NodeID()))
}

func TestHandleFrameSAFlushRespondsWithSACreate(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())
	peer, _ := addPeer(t, h.identity)

	err := h.router.HandleFrame(peer.NodeID(), Frame(TagSocialSAFlush, SAFlush{}.encodePayload()))
	r.NoError(err)

	sent := h.transport.SentMessages()
	r.Len(sent, 1)
	tag, payload, err := ParseFrame(sent[0].Msg)
	r.NoError(err)
	r.Equal(TagSocialSACreate, tag)
	sac, err := decodeSACreate(payload)
	r.NoError(err)
	r.Len(peer.PrivateSAs(), 1)
	r.Equal(peer.PrivateSAs()[0], sac.PublicKey)
}

func TestHandleFrameMalformedReturnsError(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())
	err := h.router.HandleFrame(testNode(2), []byte{byte(TagSocialRetract), 0xFF})
	r.Error(err)
}

func TestSubscribeSnifferVetoesForwarding(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	dest := testNode(5)
	neighbor := testNode(6)
	v := h.rib.GetVportForNeighbor(neighbor)
	h.rib.Import(&rib.RoutingEntry{Destination: dest, ForwardPath: []uint32{v}, Seqno: 1})

	h.router.SubscribeSniffer(func(RoutedMessage) bool { return true })

	h.router.Route(RoutedMessage{SourceNode: testNode(1), DestinationNode: dest, HopCount: 5})

	r.Empty(h.transport.SentMessages())
	r.Equal(uint64(1), h.router.Statistics().MessagesDropped)
}

func TestSendMessageRoutesSloppyGroupPayloadThroughRib(t *testing.T) {
	r := require.New(t)
	h := newHarness(t, 100, DefaultConfig())

	dest := testNode(5)
	neighbor := testNode(6)
	v := h.rib.GetVportForNeighbor(neighbor)
	h.rib.Import(&rib.RoutingEntry{Destination: dest, ForwardPath: []uint32{v}, Seqno: 1})

	h.router.SendMessage(dest, ComponentSloppyGroup, sloppygroup.PayloadTypeAggregateNameAnnounce, []byte{0, 0})

	sent := h.transport.SentMessages()
	r.Len(sent, 1)
	r.Equal(neighbor, sent[0].Peer)
}

func mustSignKey(t *testing.T) *id.SignKeyPair {
	t.Helper()
	kp, err := id.NewSignKeyPair()
	require.NoError(t, err)
	return kp
}
