// Package sloppygroup implements the sloppy-group manager: the group
// prefix computation, the three capped peer views, and the DV-style
// gossip protocol that keeps Authority/SloppyGroup name records spread
// within the local group (spec §4.G).
//
// Grounded on original_source/src/social/sloppy_group.{h,cpp}; the
// header's SloppyGroupManager is mostly a topology-dump/statistics
// shell, so the peer-view and gossip mechanics are drawn from spec.md
// §4.G directly, in the style the rest of the header establishes
// (size-estimator-driven sizing, a single owning mutex).
package sloppygroup

import (
	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/landmark"
)

// Peer is one entry in a peer view (spec §3 "Sloppy peer").
type Peer struct {
	NodeID    id.NodeIdentifier
	Addresses []landmark.Address
	Hops      int
}
