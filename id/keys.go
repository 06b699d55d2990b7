package id

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/sign"
)

// ErrInvalidSignature is returned by PublicSignKey.Open when a signed
// blob does not verify against the key.
var ErrInvalidSignature = errors.New("id: invalid signature")

// PublicSignKey is the public half of an Ed25519-over-Curve25519 (NaCl
// "sign") signing keypair, used to verify delegation blobs along a
// routing announcement's path (spec §4.A, §4.H).
type PublicSignKey [32]byte

// SignKeyPair is a signing keypair. Sign/Open follow NaCl's "attached
// signature" convention: Sign prepends the signature to the message,
// Open verifies and strips it back off in one step, which is exactly
// the "sign(msg) -> signed_blob" / "sign_open(signed_blob) -> msg |
// error" contract spec §4.A describes.
type SignKeyPair struct {
	Public  PublicSignKey
	private [64]byte
}

// NewSignKeyPair generates a fresh signing keypair.
func NewSignKeyPair() (*SignKeyPair, error) {
	pub, priv, err := sign.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("id: generate sign key: %w", err)
	}
	kp := &SignKeyPair{}
	copy(kp.Public[:], pub[:])
	copy(kp.private[:], priv[:])
	return kp, nil
}

// Sign signs msg, returning the signature-prepended blob.
func (k *SignKeyPair) Sign(msg []byte) []byte {
	priv := (*[64]byte)(&k.private)
	return sign.Sign(nil, msg, priv)
}

// Open verifies a blob produced by Sign against k's public key,
// returning the original message. It returns ErrInvalidSignature rather
// than a raw library error so callers can match it with errors.Is, as
// §7 taxonomy 1 (protocol-violation errors) requires.
func (k PublicSignKey) Open(signedMsg []byte) ([]byte, error) {
	pub := (*[32]byte)(&k)
	msg, ok := sign.Open(nil, signedMsg, pub)
	if !ok {
		return nil, ErrInvalidSignature
	}
	return msg, nil
}

// PublicBoxKey is the public half of a Curve25519 box (confidentiality)
// keypair. The routing core only generates, stores, and serializes box
// keys — it never seals or opens payloads with them (spec §4.A: boxing
// keys are "reserved for confidentiality of future transport payloads
// and are outside the routing core's decision logic").
type PublicBoxKey [32]byte

// BoxKeyPair is a box keypair.
type BoxKeyPair struct {
	Public  PublicBoxKey
	private [32]byte
}

// NewBoxKeyPair generates a fresh box keypair.
func NewBoxKeyPair() (*BoxKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("id: generate box key: %w", err)
	}
	kp := &BoxKeyPair{}
	copy(kp.Public[:], pub[:])
	copy(kp.private[:], priv[:])
	return kp, nil
}

// PeerKeyLength is the byte length of a serialized PeerKey.
const PeerKeyLength = 64

// PeerKey is the public (sign_subkey || box_subkey) concatenation that
// identifies a peer (spec §3).
type PeerKey struct {
	Sign PublicSignKey
	Box  PublicBoxKey
}

// Bytes returns the 64-byte raw concatenation sign||box used as input to
// NodeID.
func (k PeerKey) Bytes() []byte {
	out := make([]byte, 0, PeerKeyLength)
	out = append(out, k.Sign[:]...)
	out = append(out, k.Box[:]...)
	return out
}

// PeerKeyFromBytes parses a 64-byte raw peer key.
func PeerKeyFromBytes(b []byte) (PeerKey, error) {
	var k PeerKey
	if len(b) != PeerKeyLength {
		return k, fmt.Errorf("id: peer key from bytes: %w", ErrInvalidLength)
	}
	copy(k.Sign[:], b[:32])
	copy(k.Box[:], b[32:])
	return k, nil
}

// NodeID derives the node identifier from a public peer key:
// node_id(key) = first_160_bits(SHA-512(public_key_raw)) (spec §3).
func (k PeerKey) NodeID() NodeIdentifier {
	sum := sha512.Sum512(k.Bytes())
	var out NodeIdentifier
	copy(out[:], sum[:Length])
	return out
}

// PrivatePeerKey carries both public subkeys and their matching private
// halves (spec §3: "Private peer key carries matching private halves").
type PrivatePeerKey struct {
	Sign *SignKeyPair
	Box  *BoxKeyPair
}

// NewRandomPrivatePeerKey generates a fresh private peer key (one sign
// keypair and one box keypair).
func NewRandomPrivatePeerKey() (*PrivatePeerKey, error) {
	signKP, err := NewSignKeyPair()
	if err != nil {
		return nil, err
	}
	boxKP, err := NewBoxKeyPair()
	if err != nil {
		return nil, err
	}
	return &PrivatePeerKey{Sign: signKP, Box: boxKP}, nil
}

// Public projects the private peer key down to its public PeerKey.
func (k *PrivatePeerKey) Public() PeerKey {
	return PeerKey{Sign: k.Sign.Public, Box: k.Box.Public}
}

// NodeID is a convenience for Public().NodeID().
func (k *PrivatePeerKey) NodeID() NodeIdentifier {
	return k.Public().NodeID()
}
