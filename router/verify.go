package router

import (
	"errors"

	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/social"
)

// Errors returned by announce verification (spec §4.H "Announce
// verification on receipt", spec §7 taxonomy 1).
var (
	ErrEmptyDelegationChain = errors.New("router: empty delegation chain")
	ErrBadDelegationSig     = errors.New("router: delegation signature invalid")
	ErrRoutingLoop          = errors.New("router: routing loop detected")
)

// verifyDelegationChain walks an announcement's delegation chain
// starting from origin's root signing key, opening each signed blob in
// turn and checking the revealed next key is not already one of our own
// peer SAs (which would mean the announcement looped back through us).
// It returns the final key, which becomes the entry's sa_key — the key
// we must sign with when re-exporting this route.
func verifyDelegationChain(origin id.PeerKey, chain [][]byte, identity *social.Identity) (id.PublicSignKey, error) {
	if len(chain) == 0 {
		return id.PublicSignKey{}, ErrEmptyDelegationChain
	}

	known := origin.Sign
	for _, blob := range chain {
		msg, err := known.Open(blob)
		if err != nil {
			return id.PublicSignKey{}, ErrBadDelegationSig
		}
		if len(msg) != 32 {
			return id.PublicSignKey{}, ErrBadDelegationSig
		}
		var next id.PublicSignKey
		copy(next[:], msg)
		if _, looped := identity.HasPeerSA(next); looped {
			return id.PublicSignKey{}, ErrRoutingLoop
		}
		known = next
	}
	return known, nil
}
