// Package ndb implements the name database: per-node landmark-relative
// address records with type-specific TTLs, and the consistent-hashing
// ring of registered landmarks used to place sloppy-group name records
// (spec §4.F).
//
// Grounded on original_source/src/social/name_database.{h,cpp}; the
// Authority record type and the full lookup/ring contract are
// supplements drawn from spec.md §4.F and §3, since the original
// header's NameRecord::Type only enumerates Cache and SloppyGroup.
package ndb

import (
	"time"

	"github.com/luxfi/compactrouter/id"
	"github.com/luxfi/compactrouter/landmark"
)

// Type distinguishes the three name-record kinds spec §3 names, each
// with its own TTL.
type Type uint8

const (
	// Cache holds an opportunistically-learned address, e.g. the source
	// address of an inbound message (spec §4.H route()'s "cache
	// msg.source_address into NDB as Cache type").
	Cache Type = iota + 1
	// Authority holds a node's self-published address, stored by the
	// landmarks responsible for that node's ID.
	Authority
	// SloppyGroup holds an address gossiped within the local sloppy
	// group.
	SloppyGroup
)

// TTL returns the per-type time-to-live (spec §3: "Cache 300s,
// Authority/SloppyGroup 1200s").
func (t Type) TTL() time.Duration {
	switch t {
	case Cache:
		return 300 * time.Second
	case Authority, SloppyGroup:
		return 1200 * time.Second
	default:
		return 0
	}
}

// Record is one name-database entry (spec §3 "Name record").
type Record struct {
	NodeID         id.NodeIdentifier
	Type           Type
	Addresses      []landmark.Address
	Seqno          uint16
	Timestamp      time.Time
	OriginID       id.NodeIdentifier
	LastUpdate     time.Time
	ReceivedPeerID id.NodeIdentifier
}

// LandmarkAddress returns the record's primary (first) address.
func (r Record) LandmarkAddress() (landmark.Address, bool) {
	if len(r.Addresses) == 0 {
		return landmark.Address{}, false
	}
	return r.Addresses[0], true
}

// Age returns how long ago the record was last updated relative to now.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.LastUpdate)
}
