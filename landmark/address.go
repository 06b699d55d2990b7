// Package landmark implements the landmark-relative (L-R) source-route
// address: a (landmark_id, vport_path) pair (spec §4.B).
//
// Grounded on original_source/src/social/address.{h,cpp}.
package landmark

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/compactrouter/id"
)

// ErrTruncated is returned by Decode when the input is too short for
// the declared path length.
var ErrTruncated = errors.New("landmark: truncated address")

// Address is a landmark-relative source route: the landmark a
// destination is reachable through, plus the vport path from that
// landmark to the destination. An empty Path with a non-zero Landmark
// means "I am destined for this landmark itself" (spec §4.B).
type Address struct {
	Landmark id.NodeIdentifier
	Path     []uint32
}

// New returns an Address for landmark with the given path. The path
// slice is copied so callers may reuse their buffer.
func New(landmark id.NodeIdentifier, path []uint32) Address {
	out := Address{Landmark: landmark}
	if len(path) > 0 {
		out.Path = append([]uint32(nil), path...)
	}
	return out
}

// Size returns the path length.
func (a Address) Size() int {
	return len(a.Path)
}

// IsLandmarkItself reports whether this address names the landmark
// itself (empty path, non-zero landmark).
func (a Address) IsLandmarkItself() bool {
	return len(a.Path) == 0 && !a.Landmark.IsZero()
}

// Shift removes the first vport from the path, consuming one hop (spec
// §4.B, used by the forwarding decision in router.Route). Shifting an
// already-empty path is idempotent (spec R4).
func (a *Address) Shift() {
	if len(a.Path) == 0 {
		return
	}
	a.Path = a.Path[1:]
}

// Front returns the first vport in the path and whether the path is
// non-empty.
func (a Address) Front() (uint32, bool) {
	if len(a.Path) == 0 {
		return 0, false
	}
	return a.Path[0], true
}

// Equal reports component-wise equality (spec §4.B).
func (a Address) Equal(other Address) bool {
	if a.Landmark != other.Landmark {
		return false
	}
	if len(a.Path) != len(other.Path) {
		return false
	}
	for i := range a.Path {
		if a.Path[i] != other.Path[i] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return fmt.Sprintf("%s%v", a.Landmark, a.Path)
}

// Less provides an explicit total order over addresses: by landmark
// bytes, then by path length, then lexicographically by path element.
// This resolves spec §9 ambiguity 2 ("Address::operator< returns false
// when types differ, which is not a strict weak ordering"): code that
// needs an ordering over addresses calls Less instead of relying on a
// derived struct comparison.
func Less(a, b Address) bool {
	if a.Landmark != b.Landmark {
		return a.Landmark.Less(b.Landmark)
	}
	if len(a.Path) != len(b.Path) {
		return len(a.Path) < len(b.Path)
	}
	for i := range a.Path {
		if a.Path[i] != b.Path[i] {
			return a.Path[i] < b.Path[i]
		}
	}
	return false
}

// Encode serializes the address as: landmark ID (id.Length bytes),
// followed by a big-endian uint32 path length, followed by that many
// big-endian uint32 vports — "the landmark ID followed by the path as a
// repeated uint32 field" (spec §4.B), framed with an explicit length
// the way the teacher's utils/wrappers.Packer frames variable-length
// fields.
func (a Address) Encode() []byte {
	out := make([]byte, id.Length+4+4*len(a.Path))
	copy(out, a.Landmark[:])
	binary.BigEndian.PutUint32(out[id.Length:], uint32(len(a.Path)))
	off := id.Length + 4
	for _, v := range a.Path {
		binary.BigEndian.PutUint32(out[off:], v)
		off += 4
	}
	return out
}

// Decode parses an Address produced by Encode.
func Decode(b []byte) (Address, error) {
	if len(b) < id.Length+4 {
		return Address{}, fmt.Errorf("landmark: decode: %w", ErrTruncated)
	}
	landmark, err := id.FromBytes(b[:id.Length])
	if err != nil {
		return Address{}, fmt.Errorf("landmark: decode landmark: %w", err)
	}
	n := binary.BigEndian.Uint32(b[id.Length:])
	off := id.Length + 4
	need := off + 4*int(n)
	if len(b) < need {
		return Address{}, fmt.Errorf("landmark: decode path: %w", ErrTruncated)
	}
	path := make([]uint32, n)
	for i := range path {
		path[i] = binary.BigEndian.Uint32(b[off:])
		off += 4
	}
	return Address{Landmark: landmark, Path: path}, nil
}
