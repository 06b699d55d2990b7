package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/compactrouter/executor"
	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/social"
)

func newTestIdentity(t *testing.T) *social.Identity {
	t.Helper()
	key, err := id.NewRandomPrivatePeerKey()
	require.NoError(t, err)
	exec := executor.New(1)
	t.Cleanup(exec.Close)
	return social.NewIdentity(key, exec)
}

func TestVerifyDelegationChainEmptyIsRejected(t *testing.T) {
	r := require.New(t)
	identity := newTestIdentity(t)
	originKey, err := id.NewRandomPrivatePeerKey()
	r.NoError(err)

	_, err = verifyDelegationChain(originKey.Public(), nil, identity)
	r.ErrorIs(err, ErrEmptyDelegationChain)
}

func TestVerifyDelegationChainSingleHop(t *testing.T) {
	r := require.New(t)
	identity := newTestIdentity(t)
	originKey, err := id.NewRandomPrivatePeerKey()
	r.NoError(err)

	revealed, err := id.NewSignKeyPair()
	r.NoError(err)
	blob := originKey.Sign.Sign(revealed.Public[:])

	final, err := verifyDelegationChain(originKey.Public(), [][]byte{blob}, identity)
	r.NoError(err)
	r.Equal(revealed.Public, final)
}

func TestVerifyDelegationChainMultiHop(t *testing.T) {
	r := require.New(t)
	identity := newTestIdentity(t)
	originKey, err := id.NewRandomPrivatePeerKey()
	r.NoError(err)

	hop1, err := id.NewSignKeyPair()
	r.NoError(err)
	hop2, err := id.NewSignKeyPair()
	r.NoError(err)

	blob1 := originKey.Sign.Sign(hop1.Public[:])
	blob2 := hop1.Sign(hop2.Public[:])

	final, err := verifyDelegationChain(originKey.Public(), [][]byte{blob1, blob2}, identity)
	r.NoError(err)
	r.Equal(hop2.Public, final)
}

func TestVerifyDelegationChainBadSignatureRejected(t *testing.T) {
	r := require.New(t)
	identity := newTestIdentity(t)
	originKey, err := id.NewRandomPrivatePeerKey()
	r.NoError(err)
	other, err := id.NewRandomPrivatePeerKey()
	r.NoError(err)

	revealed, err := id.NewSignKeyPair()
	r.NoError(err)
	// Signed by the wrong key: origin's public key won't open it.
	blob := other.Sign.Sign(revealed.Public[:])

	_, err = verifyDelegationChain(originKey.Public(), [][]byte{blob}, identity)
	r.ErrorIs(err, ErrBadDelegationSig)
}

func TestVerifyDelegationChainLoopDetected(t *testing.T) {
	r := require.New(t)
	identity := newTestIdentity(t)
	originKey, err := id.NewRandomPrivatePeerKey()
	r.NoError(err)

	// The verifying node already holds loopSA as a peer SA on some link:
	// a chain that reveals it means the announce looped back through us.
	peerContact := social.Contact{Key: other(t).Public()}
	peer := identity.AddPeer(peerContact)
	loopSA, err := id.NewSignKeyPair()
	r.NoError(err)
	peer.AddPeerSA(loopSA.Public)

	blob := originKey.Sign.Sign(loopSA.Public[:])

	_, err = verifyDelegationChain(originKey.Public(), [][]byte{blob}, identity)
	r.ErrorIs(err, ErrRoutingLoop)
}

func other(t *testing.T) *id.PrivatePeerKey {
	t.Helper()
	k, err := id.NewRandomPrivatePeerKey()
	require.NoError(t, err)
	return k
}
