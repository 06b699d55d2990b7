package rpc

import (
	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/landmark"
	"github.com/luxfi/compactrouter/wire"
)

// envelopeKind distinguishes a request from a response on the wire;
// it is carried in RoutedMessage.PayloadType (spec §6.1
// RpcMessageType, grounded on rpc_channel.cpp's Request/Response
// PayloadType switch).
type envelopeKind uint32

const (
	kindRequest  envelopeKind = 0
	kindResponse envelopeKind = 1
)

// request is the wire envelope for an outbound call.
type request struct {
	CallID  uint64
	Method  Method
	Payload []byte
}

func (r request) encode() []byte {
	p := wire.NewPacker(32 + len(r.Payload))
	p.PackLong(r.CallID)
	p.PackBlob([]byte(r.Method))
	p.PackBlob(r.Payload)
	return p.Bytes
}

func decodeRequest(b []byte) (request, error) {
	u := wire.NewUnpacker(b)
	var r request
	r.CallID = u.UnpackLong()
	r.Method = Method(u.UnpackBlob())
	r.Payload = append([]byte(nil), u.UnpackBlob()...)
	if u.Err != nil {
		return request{}, u.Err
	}
	return r, nil
}

// response is the wire envelope for a call's reply.
type response struct {
	CallID  uint64
	Status  Status
	Payload []byte
}

func (r response) encode() []byte {
	p := wire.NewPacker(16 + len(r.Payload))
	p.PackLong(r.CallID)
	p.PackByte(byte(r.Status))
	p.PackBlob(r.Payload)
	return p.Bytes
}

func decodeResponse(b []byte) (response, error) {
	u := wire.NewUnpacker(b)
	var r response
	r.CallID = u.UnpackLong()
	r.Status = Status(u.UnpackByte())
	r.Payload = append([]byte(nil), u.UnpackBlob()...)
	if u.Err != nil {
		return response{}, u.Err
	}
	return r, nil
}

// PingRequest/PingResponse implement Core.Ping (spec §6.2): an opaque
// timestamp that the responder echoes back unmodified. TrackHopDistance
// opts the underlying RoutedMessage into hop-distance accounting (spec
// §9 ambiguity 4); when set, the responder reports how many hops the
// request actually traveled in PingResponse.HopDistance.
type PingRequest struct {
	Timestamp        int64
	TrackHopDistance bool
}

func (p PingRequest) encode() []byte {
	w := wire.NewPacker(9)
	w.PackLong(uint64(p.Timestamp))
	w.PackBool(p.TrackHopDistance)
	return w.Bytes
}

func decodePingRequest(b []byte) (PingRequest, error) {
	u := wire.NewUnpacker(b)
	ts := int64(u.UnpackLong())
	track := u.UnpackBool()
	if u.Err != nil {
		return PingRequest{}, u.Err
	}
	return PingRequest{Timestamp: ts, TrackHopDistance: track}, nil
}

type PingResponse struct {
	Timestamp   int64
	HopDistance uint8
}

func (p PingResponse) encode() []byte {
	w := wire.NewPacker(9)
	w.PackLong(uint64(p.Timestamp))
	w.PackByte(p.HopDistance)
	return w.Bytes
}

func decodePingResponse(b []byte) (PingResponse, error) {
	u := wire.NewUnpacker(b)
	ts := int64(u.UnpackLong())
	hd := u.UnpackByte()
	if u.Err != nil {
		return PingResponse{}, u.Err
	}
	return PingResponse{Timestamp: ts, HopDistance: hd}, nil
}

// PublishAddressRequest implements Core.NameDb.PublishAddress (spec
// §6.2): the caller's current list of L-R addresses, stored by the
// landmark as an Authority record keyed by the request's source node.
type PublishAddressRequest struct {
	Addresses []landmark.Address
}

func (p PublishAddressRequest) encode() []byte {
	w := wire.NewPacker(64 * (len(p.Addresses) + 1))
	w.PackShort(uint16(len(p.Addresses)))
	for _, a := range p.Addresses {
		w.PackAddress(a)
	}
	return w.Bytes
}

func decodePublishAddressRequest(b []byte) (PublishAddressRequest, error) {
	u := wire.NewUnpacker(b)
	n := int(u.UnpackShort())
	addrs := make([]landmark.Address, 0, n)
	for i := 0; i < n; i++ {
		addrs = append(addrs, u.UnpackAddress())
	}
	if u.Err != nil {
		return PublishAddressRequest{}, u.Err
	}
	return PublishAddressRequest{Addresses: addrs}, nil
}

// PublishAddressResponse carries no data; its presence alone
// acknowledges the publish.
type PublishAddressResponse struct{}

func (PublishAddressResponse) encode() []byte { return nil }

func decodePublishAddressResponse([]byte) (PublishAddressResponse, error) {
	return PublishAddressResponse{}, nil
}

// LookupType selects among Core.NameDb.LookupAddress's three modes
// (spec §4.F / §6.2).
type LookupType byte

const (
	LookupExact LookupType = iota
	LookupSGClosest
	LookupSGClosestNeighbors
)

// LookupAddressRequest implements Core.NameDb.LookupAddress. PrefixLen
// is required (and meaningful) only for the two SG_CLOSEST* modes,
// matching spec §4.F's "the latter two require prefix_length".
type LookupAddressRequest struct {
	NodeID    id.NodeIdentifier
	Type      LookupType
	PrefixLen int
}

func (l LookupAddressRequest) encode() []byte {
	w := wire.NewPacker(id.Length + 8)
	w.PackNodeID(l.NodeID)
	w.PackByte(byte(l.Type))
	w.PackInt(uint32(l.PrefixLen))
	return w.Bytes
}

func decodeLookupAddressRequest(b []byte) (LookupAddressRequest, error) {
	u := wire.NewUnpacker(b)
	var l LookupAddressRequest
	l.NodeID = u.UnpackNodeID()
	l.Type = LookupType(u.UnpackByte())
	l.PrefixLen = int(u.UnpackInt())
	if u.Err != nil {
		return LookupAddressRequest{}, u.Err
	}
	return l, nil
}

// AddressRecord is one entry of a LookupAddressResponse (spec §6.2
// "repeated {node_id, addresses}").
type AddressRecord struct {
	NodeID    id.NodeIdentifier
	Addresses []landmark.Address
}

type LookupAddressResponse struct {
	Records []AddressRecord
}

func (l LookupAddressResponse) encode() []byte {
	w := wire.NewPacker(64 * (len(l.Records) + 1))
	w.PackShort(uint16(len(l.Records)))
	for _, rec := range l.Records {
		w.PackNodeID(rec.NodeID)
		w.PackShort(uint16(len(rec.Addresses)))
		for _, a := range rec.Addresses {
			w.PackAddress(a)
		}
	}
	return w.Bytes
}

func decodeLookupAddressResponse(b []byte) (LookupAddressResponse, error) {
	u := wire.NewUnpacker(b)
	n := int(u.UnpackShort())
	out := LookupAddressResponse{Records: make([]AddressRecord, 0, n)}
	for i := 0; i < n; i++ {
		var rec AddressRecord
		rec.NodeID = u.UnpackNodeID()
		addrN := int(u.UnpackShort())
		if u.Err != nil {
			return LookupAddressResponse{}, u.Err
		}
		rec.Addresses = make([]landmark.Address, 0, addrN)
		for j := 0; j < addrN; j++ {
			rec.Addresses = append(rec.Addresses, u.UnpackAddress())
		}
		out.Records = append(out.Records, rec)
	}
	if u.Err != nil {
		return LookupAddressResponse{}, u.Err
	}
	return out, nil
}
