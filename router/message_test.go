package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/social"
	"github.com/luxfi/compactrouter/wire"
)

func testPeerKey(b byte) id.PeerKey {
	var k id.PeerKey
	k.Sign[0] = b
	k.Box[0] = b
	return k
}

func TestPathAnnounceRoundTrip(t *testing.T) {
	r := require.New(t)
	a := PathAnnounce{
		PublicKey:       testPeerKey(7),
		Landmark:        true,
		Seqno:           42,
		ForwardPath:     []uint32{1, 2, 3},
		ReversePath:     []uint32{9},
		DelegationChain: [][]byte{[]byte("sig1"), []byte("sig2")},
	}
	p := wire.NewPacker(128)
	a.Encode(p)
	r.NoError(p.Err)

	u := wire.NewUnpacker(p.Bytes)
	got, err := decodePathAnnounce(u)
	r.NoError(err)
	r.Equal(a, got)
}

func TestAggregatePathAnnounceRoundTrip(t *testing.T) {
	r := require.New(t)
	agg := AggregatePathAnnounce{Announces: []PathAnnounce{
		{PublicKey: testPeerKey(1), Seqno: 1, ForwardPath: []uint32{1}},
		{PublicKey: testPeerKey(2), Seqno: 2, ForwardPath: []uint32{2, 3}},
	}}
	got, err := decodeAggregatePathAnnounce(agg.encodePayload())
	r.NoError(err)
	r.Equal(agg, got)
}

func TestPathRetractRoundTrip(t *testing.T) {
	r := require.New(t)
	var dest id.NodeIdentifier
	dest[0] = 5
	pr := PathRetract{DestinationID: dest}
	got, err := decodePathRetract(pr.encodePayload())
	r.NoError(err)
	r.Equal(pr, got)
}

func TestPathRefreshWithAndWithoutDestination(t *testing.T) {
	r := require.New(t)
	var dest id.NodeIdentifier
	dest[0] = 9
	withDest := PathRefresh{DestinationID: dest, HasDestination: true}
	got, err := decodePathRefresh(withDest.encodePayload())
	r.NoError(err)
	r.Equal(withDest, got)

	empty := PathRefresh{}
	got2, err := decodePathRefresh(empty.encodePayload())
	r.NoError(err)
	r.Equal(empty, got2)
}

func TestRoutedMessageRoundTrip(t *testing.T) {
	r := require.New(t)
	var src, dst id.NodeIdentifier
	src[0], dst[0] = 1, 2
	m := RoutedMessage{
		SourceLandmarkID:      src,
		SourceAddress:         []uint32{1, 2},
		SourceNode:            src,
		SourceComp:            ComponentSloppyGroup,
		DestinationLandmarkID: dst,
		DestinationAddress:    []uint32{3},
		DestinationNode:       dst,
		DestinationComp:       ComponentRPCEngine,
		HopCount:              30,
		DeliveryMode:          true,
		PayloadType:           7,
		Payload:               []byte("hello"),
	}
	got, err := decodeRoutedMessage(m.encodePayload())
	r.NoError(err)
	r.Equal(m, got)
}

func TestSAMessagesRoundTrip(t *testing.T) {
	r := require.New(t)
	var key id.PublicSignKey
	key[0] = 3

	c, err := decodeSACreate(SACreate{PublicKey: key}.encodePayload())
	r.NoError(err)
	r.Equal(key, c.PublicKey)

	inv, err := decodeSAInvalid(SAInvalid{PublicKey: key}.encodePayload())
	r.NoError(err)
	r.Equal(key, inv.PublicKey)

	flush, err := decodeSAFlush(SAFlush{}.encodePayload())
	r.NoError(err)
	r.Equal(SAFlush{}, flush)
}

func TestHelloRoundTrip(t *testing.T) {
	r := require.New(t)
	h := Hello{Contact: social.Contact{
		Key: testPeerKey(4),
		Addresses: []social.Address{
			{Priority: 0, Kind: social.AddressIP, Endpoint: "10.0.0.1:9000"},
		},
	}}
	got, err := decodeHello(h.encodePayload())
	r.NoError(err)
	r.Equal(h.Contact.Key, got.Contact.Key)
	r.Equal(h.Contact.Addresses, got.Contact.Addresses)
}

func TestFrameRoundTrip(t *testing.T) {
	r := require.New(t)
	payload := []byte("payload-bytes")
	framed := Frame(TagSocialRetract, payload)
	tag, got, err := ParseFrame(framed)
	r.NoError(err)
	r.Equal(TagSocialRetract, tag)
	r.Equal(payload, got)
}

func TestParseFrameRejectsTruncated(t *testing.T) {
	r := require.New(t)
	_, _, err := ParseFrame([]byte{byte(TagSocialRetract), 0, 0, 0, 100})
	r.ErrorIs(err, ErrMalformed)
}
