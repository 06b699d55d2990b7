// Wire message types and their binary encoding (spec §6.1). Grounded on
// utils/wrappers.Packer's byte-oriented shape, extended as wire.Packer/
// Unpacker, and on ironwood/network-router.go's size/encode/decode
// quartet per wire type — reproduced here as Encode/Decode pairs (no
// separate Size/chop: the Go Unpacker tracks its own offset instead of
// needing a caller-managed chop step).
package router

import (
	"errors"

	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/social"
	"github.com/luxfi/compactrouter/wire"
)

// ErrMalformed is returned by Decode when a wire payload cannot be
// parsed, matching spec §7's "no routing-table operation panics on
// malformed input" discipline.
var ErrMalformed = errors.New("router: malformed wire payload")

// PathAnnounce is one announced path to public_key's node (spec §6.1).
type PathAnnounce struct {
	PublicKey       id.PeerKey
	Landmark        bool
	Seqno           uint16
	ForwardPath     []uint32
	ReversePath     []uint32
	DelegationChain [][]byte
}

func (a PathAnnounce) Encode(p *wire.Packer) {
	p.PackBytes(a.PublicKey.Bytes())
	p.PackBool(a.Landmark)
	p.PackShort(a.Seqno)
	packVports(p, a.ForwardPath)
	packVports(p, a.ReversePath)
	p.PackShort(uint16(len(a.DelegationChain)))
	for _, d := range a.DelegationChain {
		p.PackBlob(d)
	}
}

func (a PathAnnounce) encodePayload() []byte {
	p := wire.NewPacker(128)
	a.Encode(p)
	return p.Bytes
}

func decodePathAnnounce(u *wire.Unpacker) (PathAnnounce, error) {
	var a PathAnnounce
	keyBytes := u.UnpackBytes(id.PeerKeyLength)
	if u.Err != nil {
		return a, u.Err
	}
	key, err := id.PeerKeyFromBytes(keyBytes)
	if err != nil {
		return a, err
	}
	a.PublicKey = key
	a.Landmark = u.UnpackBool()
	a.Seqno = u.UnpackShort()
	a.ForwardPath = unpackVports(u)
	a.ReversePath = unpackVports(u)
	n := int(u.UnpackShort())
	a.DelegationChain = make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		a.DelegationChain = append(a.DelegationChain, append([]byte(nil), u.UnpackBlob()...))
	}
	if u.Err != nil {
		return PathAnnounce{}, u.Err
	}
	return a, nil
}

func packVports(p *wire.Packer, path []uint32) {
	p.PackShort(uint16(len(path)))
	for _, v := range path {
		p.PackInt(v)
	}
}

func unpackVports(u *wire.Unpacker) []uint32 {
	n := int(u.UnpackShort())
	if u.Err != nil {
		return nil
	}
	out := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, u.UnpackInt())
	}
	return out
}

// AggregatePathAnnounce batches multiple PathAnnounce records destined
// for the same peer, flattened from the per-peer aggregation buffer
// (spec §4.H's shared aggregation-buffer pattern).
type AggregatePathAnnounce struct {
	Announces []PathAnnounce
}

func (a AggregatePathAnnounce) encodePayload() []byte {
	p := wire.NewPacker(256)
	p.PackShort(uint16(len(a.Announces)))
	for _, ann := range a.Announces {
		ann.Encode(p)
	}
	return p.Bytes
}

func decodeAggregatePathAnnounce(b []byte) (AggregatePathAnnounce, error) {
	u := wire.NewUnpacker(b)
	n := int(u.UnpackShort())
	out := AggregatePathAnnounce{Announces: make([]PathAnnounce, 0, n)}
	for i := 0; i < n; i++ {
		ann, err := decodePathAnnounce(u)
		if err != nil {
			return AggregatePathAnnounce{}, err
		}
		out.Announces = append(out.Announces, ann)
	}
	if u.Err != nil {
		return AggregatePathAnnounce{}, u.Err
	}
	return out, nil
}

// PathRetract advisedly retracts a destination (spec §6.1 Social_Retract).
type PathRetract struct {
	DestinationID id.NodeIdentifier
}

func (r PathRetract) encodePayload() []byte {
	p := wire.NewPacker(id.Length)
	p.PackNodeID(r.DestinationID)
	return p.Bytes
}

func decodePathRetract(b []byte) (PathRetract, error) {
	u := wire.NewUnpacker(b)
	dest := u.UnpackNodeID()
	if u.Err != nil {
		return PathRetract{}, u.Err
	}
	return PathRetract{DestinationID: dest}, nil
}

// PathRefresh requests re-announcement of a specific destination, or of
// every active route when DestinationID is absent (spec §6.1
// Social_Refresh "destination_id or empty").
type PathRefresh struct {
	DestinationID id.NodeIdentifier
	HasDestination bool
}

func (r PathRefresh) encodePayload() []byte {
	p := wire.NewPacker(id.Length + 1)
	p.PackBool(r.HasDestination)
	if r.HasDestination {
		p.PackNodeID(r.DestinationID)
	}
	return p.Bytes
}

func decodePathRefresh(b []byte) (PathRefresh, error) {
	u := wire.NewUnpacker(b)
	has := u.UnpackBool()
	var out PathRefresh
	out.HasDestination = has
	if has {
		out.DestinationID = u.UnpackNodeID()
	}
	if u.Err != nil {
		return PathRefresh{}, u.Err
	}
	return out, nil
}

// RoutedMessage is the data-plane envelope carried end to end through
// the compact-routing overlay (spec §6.1).
type RoutedMessage struct {
	SourceLandmarkID      id.NodeIdentifier
	SourceAddress         []uint32
	SourceNode            id.NodeIdentifier
	SourceComp            Component
	DestinationLandmarkID id.NodeIdentifier
	DestinationAddress    []uint32
	DestinationNode       id.NodeIdentifier
	DestinationComp       Component
	HopCount              uint8
	// DeliveryMode is sticky once a shortcut or landmark resolves
	// dest_address: every later hop follows dest_address.path.front()
	// mechanically instead of re-deriving it from local state (spec
	// §4.H route() step 2).
	DeliveryMode          bool
	PayloadType           uint32
	Payload               []byte
	// TrackHopDistance/HopDistance implement spec §9 ambiguity 4:
	// hop_distance is only populated for messages that explicitly set
	// track_hop_distance. HopDistance counts the hops actually traveled
	// (incremented once per Route() call), distinct from HopCount's
	// countdown from the initial hop limit.
	TrackHopDistance bool
	HopDistance      uint8
}

func (m RoutedMessage) encodePayload() []byte {
	p := wire.NewPacker(128 + len(m.Payload))
	p.PackNodeID(m.SourceLandmarkID)
	packVports(p, m.SourceAddress)
	p.PackNodeID(m.SourceNode)
	p.PackByte(byte(m.SourceComp))
	p.PackNodeID(m.DestinationLandmarkID)
	packVports(p, m.DestinationAddress)
	p.PackNodeID(m.DestinationNode)
	p.PackByte(byte(m.DestinationComp))
	p.PackByte(m.HopCount)
	p.PackBool(m.DeliveryMode)
	p.PackInt(m.PayloadType)
	p.PackBlob(m.Payload)
	p.PackBool(m.TrackHopDistance)
	p.PackByte(m.HopDistance)
	return p.Bytes
}

func decodeRoutedMessage(b []byte) (RoutedMessage, error) {
	u := wire.NewUnpacker(b)
	var m RoutedMessage
	m.SourceLandmarkID = u.UnpackNodeID()
	m.SourceAddress = unpackVports(u)
	m.SourceNode = u.UnpackNodeID()
	m.SourceComp = Component(u.UnpackByte())
	m.DestinationLandmarkID = u.UnpackNodeID()
	m.DestinationAddress = unpackVports(u)
	m.DestinationNode = u.UnpackNodeID()
	m.DestinationComp = Component(u.UnpackByte())
	m.HopCount = u.UnpackByte()
	m.DeliveryMode = u.UnpackBool()
	m.PayloadType = u.UnpackInt()
	m.Payload = append([]byte(nil), u.UnpackBlob()...)
	m.TrackHopDistance = u.UnpackBool()
	m.HopDistance = u.UnpackByte()
	if u.Err != nil {
		return RoutedMessage{}, u.Err
	}
	return m, nil
}

// SACreate announces a new peer SA (spec §6.1 Social_SA_Create).
type SACreate struct {
	PublicKey id.PublicSignKey
}

func (s SACreate) encodePayload() []byte {
	p := wire.NewPacker(32)
	p.PackBytes(s.PublicKey[:])
	return p.Bytes
}

func decodeSACreate(b []byte) (SACreate, error) {
	u := wire.NewUnpacker(b)
	raw := u.UnpackBytes(32)
	if u.Err != nil {
		return SACreate{}, u.Err
	}
	var out SACreate
	copy(out.PublicKey[:], raw)
	return out, nil
}

// SAInvalid reports an SA we no longer recognize (spec §6.1
// Social_SA_Invalid).
type SAInvalid struct {
	PublicKey id.PublicSignKey
}

func (s SAInvalid) encodePayload() []byte {
	p := wire.NewPacker(32)
	p.PackBytes(s.PublicKey[:])
	return p.Bytes
}

func decodeSAInvalid(b []byte) (SAInvalid, error) {
	u := wire.NewUnpacker(b)
	raw := u.UnpackBytes(32)
	if u.Err != nil {
		return SAInvalid{}, u.Err
	}
	var out SAInvalid
	copy(out.PublicKey[:], raw)
	return out, nil
}

// SAFlush requests fresh SAs from the peer (spec §6.1 Social_SA_Flush);
// the payload is empty.
type SAFlush struct{}

func (SAFlush) encodePayload() []byte { return nil }

func decodeSAFlush(b []byte) (SAFlush, error) { return SAFlush{}, nil }

// Hello carries a peer's contact at handshake time (spec §6.1
// Interplex_Hello: "node ID + key + addresses").
type Hello struct {
	Contact social.Contact
}

func (h Hello) encodePayload() []byte {
	p := wire.NewPacker(128)
	p.PackBytes(h.Contact.Key.Bytes())
	p.PackShort(uint16(len(h.Contact.Addresses)))
	for _, a := range h.Contact.Addresses {
		p.PackByte(byte(a.Kind))
		p.PackInt(uint32(a.Priority))
		p.PackBlob([]byte(a.Endpoint))
	}
	return p.Bytes
}

func decodeHello(b []byte) (Hello, error) {
	u := wire.NewUnpacker(b)
	keyBytes := u.UnpackBytes(id.PeerKeyLength)
	if u.Err != nil {
		return Hello{}, u.Err
	}
	key, err := id.PeerKeyFromBytes(keyBytes)
	if err != nil {
		return Hello{}, err
	}
	n := int(u.UnpackShort())
	addrs := make([]social.Address, 0, n)
	for i := 0; i < n; i++ {
		kind := social.AddressKind(u.UnpackByte())
		priority := int(u.UnpackInt())
		endpoint := string(u.UnpackBlob())
		addrs = append(addrs, social.Address{Priority: priority, Kind: kind, Endpoint: endpoint})
	}
	if u.Err != nil {
		return Hello{}, u.Err
	}
	return Hello{Contact: social.Contact{Key: key, Addresses: addrs}}, nil
}

// Frame encodes tag+payload into the length-prefixed wire record format
// spec §6.1 describes: one byte Tag, four bytes big-endian length, the
// payload.
func Frame(tag Tag, payload []byte) []byte {
	p := wire.NewPacker(5 + len(payload))
	p.PackByte(byte(tag))
	p.PackInt(uint32(len(payload)))
	p.PackBytes(payload)
	return p.Bytes
}

// ParseFrame splits a wire record into its tag and payload, reporting
// ErrMalformed if the declared length doesn't fit the buffer.
func ParseFrame(b []byte) (Tag, []byte, error) {
	u := wire.NewUnpacker(b)
	tag := Tag(u.UnpackByte())
	n := int(u.UnpackInt())
	payload := u.UnpackBytes(n)
	if u.Err != nil {
		return 0, nil, ErrMalformed
	}
	return tag, payload, nil
}
