// Package wire provides the sticky-error byte packer/unpacker shared by
// every wire message type the router and sloppy-group gossip protocols
// define (spec §6.1). Grounded on utils/wrappers.Packer's pack-only
// shape, extended here with the Unpacker counterpart and the
// length-prefixed helpers §6.1's "typed, length-prefixed records" wire
// style needs (node IDs, byte blobs, nested landmark addresses).
package wire

import (
	"errors"

	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/landmark"
)

// ErrShortBuffer is returned by Unpacker reads that run past the end of
// the underlying buffer.
var ErrShortBuffer = errors.New("wire: buffer too short")

// Packer packs values into a byte slice, sticking the first error it
// hits so callers can chain Pack* calls and check Err once at the end.
type Packer struct {
	Bytes []byte
	Err   error
}

// NewPacker returns a Packer with size bytes of pre-allocated capacity.
func NewPacker(size int) *Packer {
	return &Packer{Bytes: make([]byte, 0, size)}
}

func (p *Packer) PackByte(b byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b)
}

func (p *Packer) PackBool(b bool) {
	if b {
		p.PackByte(1)
	} else {
		p.PackByte(0)
	}
}

func (p *Packer) PackShort(s uint16) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, byte(s>>8), byte(s))
}

func (p *Packer) PackInt(i uint32) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, byte(i>>24), byte(i>>16), byte(i>>8), byte(i))
}

func (p *Packer) PackLong(l uint64) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes,
		byte(l>>56), byte(l>>48), byte(l>>40), byte(l>>32),
		byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
}

// PackBytes packs raw bytes with no length prefix.
func (p *Packer) PackBytes(b []byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b...)
}

// PackBlob packs a 2-byte length prefix followed by b.
func (p *Packer) PackBlob(b []byte) {
	if p.Err != nil {
		return
	}
	p.PackShort(uint16(len(b)))
	p.PackBytes(b)
}

// PackNodeID packs a fixed-width node identifier.
func (p *Packer) PackNodeID(n id.NodeIdentifier) {
	p.PackBytes(n[:])
}

// PackAddress packs a landmark address via its own wire encoding.
func (p *Packer) PackAddress(a landmark.Address) {
	p.PackBlob(a.Encode())
}

// Unpacker reads values sequentially out of a byte slice, sticking the
// first error it hits. Every Unpack* call after an error is a no-op
// returning the zero value, so callers can chain reads and check Err
// once at the end, exactly like Packer.
type Unpacker struct {
	Bytes  []byte
	Offset int
	Err    error
}

// NewUnpacker wraps b for sequential reads.
func NewUnpacker(b []byte) *Unpacker {
	return &Unpacker{Bytes: b}
}

func (u *Unpacker) need(n int) bool {
	if u.Err != nil {
		return false
	}
	if u.Offset+n > len(u.Bytes) {
		u.Err = ErrShortBuffer
		return false
	}
	return true
}

func (u *Unpacker) UnpackByte() byte {
	if !u.need(1) {
		return 0
	}
	b := u.Bytes[u.Offset]
	u.Offset++
	return b
}

func (u *Unpacker) UnpackBool() bool {
	return u.UnpackByte() != 0
}

func (u *Unpacker) UnpackShort() uint16 {
	if !u.need(2) {
		return 0
	}
	v := uint16(u.Bytes[u.Offset])<<8 | uint16(u.Bytes[u.Offset+1])
	u.Offset += 2
	return v
}

func (u *Unpacker) UnpackInt() uint32 {
	if !u.need(4) {
		return 0
	}
	b := u.Bytes[u.Offset:]
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	u.Offset += 4
	return v
}

func (u *Unpacker) UnpackLong() uint64 {
	if !u.need(8) {
		return 0
	}
	b := u.Bytes[u.Offset:]
	v := uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
	u.Offset += 8
	return v
}

// UnpackBytes reads exactly n raw bytes.
func (u *Unpacker) UnpackBytes(n int) []byte {
	if !u.need(n) {
		return nil
	}
	b := u.Bytes[u.Offset : u.Offset+n]
	u.Offset += n
	return b
}

// UnpackBlob reads a 2-byte length prefix followed by that many bytes.
func (u *Unpacker) UnpackBlob() []byte {
	n := int(u.UnpackShort())
	return u.UnpackBytes(n)
}

func (u *Unpacker) UnpackNodeID() id.NodeIdentifier {
	b := u.UnpackBytes(id.Length)
	if u.Err != nil {
		return id.NodeIdentifier{}
	}
	n, err := id.FromBytes(b)
	if err != nil {
		u.Err = err
		return id.NodeIdentifier{}
	}
	return n
}

func (u *Unpacker) UnpackAddress() landmark.Address {
	blob := u.UnpackBlob()
	if u.Err != nil {
		return landmark.Address{}
	}
	a, err := landmark.Decode(blob)
	if err != nil {
		u.Err = err
		return landmark.Address{}
	}
	return a
}

// Remaining reports how many unread bytes are left.
func (u *Unpacker) Remaining() int {
	return len(u.Bytes) - u.Offset
}
