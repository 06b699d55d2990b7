package id

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignOpenRoundTrip(t *testing.T) {
	r := require.New(t)

	kp, err := NewSignKeyPair()
	r.NoError(err)

	msg := []byte("path-delegation-blob")
	signed := kp.Sign(msg)

	out, err := kp.Public.Open(signed)
	r.NoError(err)
	r.Equal(msg, out)
}

func TestOpenRejectsTamperedSignature(t *testing.T) {
	r := require.New(t)

	kp, err := NewSignKeyPair()
	r.NoError(err)
	other, err := NewSignKeyPair()
	r.NoError(err)

	signed := kp.Sign([]byte("hello"))
	_, err = other.Public.Open(signed)
	r.ErrorIs(err, ErrInvalidSignature)
}

func TestPeerKeyNodeIDDerivation(t *testing.T) {
	r := require.New(t)

	priv, err := NewRandomPrivatePeerKey()
	r.NoError(err)

	pub := priv.Public()
	nodeID := pub.NodeID()
	r.Equal(nodeID, priv.NodeID())

	raw := pub.Bytes()
	r.Len(raw, PeerKeyLength)

	parsed, err := PeerKeyFromBytes(raw)
	r.NoError(err)
	r.Equal(pub, parsed)
	r.Equal(nodeID, parsed.NodeID())
}

func TestPeerKeyFromBytesInvalidLength(t *testing.T) {
	r := require.New(t)
	_, err := PeerKeyFromBytes(make([]byte, 10))
	r.ErrorIs(err, ErrInvalidLength)
}
