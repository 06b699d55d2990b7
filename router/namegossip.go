package router

import (
	"github.com/luxfi/compactrouter/landmark"
	"github.com/luxfi/compactrouter/ndb"
	"github.com/luxfi/compactrouter/wire"
)

// encodeNameRecords/decodeNameRecords serialize the ndb.Record batch
// carried by a RoutedMessage addressed to ComponentSloppyGroup with
// PayloadType sloppygroup.PayloadTypeNameAnnounce or
// PayloadTypeAggregateNameAnnounce (spec §4.G.1/.2). receivedPeerID and
// the local timestamp are not on the wire: the receiving sloppygroup.
// Manager fills those in itself via ndb.StoreReceivedFrom.
func encodeNameRecords(records []ndb.Record) []byte {
	p := wire.NewPacker(128 * (len(records) + 1))
	p.PackShort(uint16(len(records)))
	for _, rec := range records {
		p.PackNodeID(rec.NodeID)
		p.PackByte(byte(rec.Type))
		p.PackShort(rec.Seqno)
		p.PackNodeID(rec.OriginID)
		p.PackShort(uint16(len(rec.Addresses)))
		for _, a := range rec.Addresses {
			p.PackAddress(a)
		}
	}
	return p.Bytes
}

func decodeNameRecords(b []byte) ([]ndb.Record, error) {
	u := wire.NewUnpacker(b)
	n := int(u.UnpackShort())
	out := make([]ndb.Record, 0, n)
	for i := 0; i < n; i++ {
		var rec ndb.Record
		rec.NodeID = u.UnpackNodeID()
		rec.Type = ndb.Type(u.UnpackByte())
		rec.Seqno = u.UnpackShort()
		rec.OriginID = u.UnpackNodeID()
		addrN := int(u.UnpackShort())
		if u.Err != nil {
			return nil, u.Err
		}
		rec.Addresses = make([]landmark.Address, 0, addrN)
		for j := 0; j < addrN; j++ {
			addr := u.UnpackAddress()
			if u.Err != nil {
				return nil, u.Err
			}
			rec.Addresses = append(rec.Addresses, addr)
		}
		out = append(out, rec)
	}
	if u.Err != nil {
		return nil, u.Err
	}
	return out, nil
}
