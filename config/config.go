// Package config defines the embedder-facing configuration surface
// (spec §6.4): one flat option set plus per-collaborator translation
// methods that hand each of rib, ndb, sloppygroup, router, and rpc its
// own narrower Config value. Grounded on the teacher's config/config.go
// (Parameters/DefaultParams/Validate) shape, generalized to this spec's
// option set and split into per-package translations since, unlike the
// teacher's single consensus engine, this module's config fans out
// across several independently-configured collaborators.
package config

import (
	"errors"
	"time"

	"github.com/luxfi/compactrouter/ndb"
	"github.com/luxfi/compactrouter/rib"
	"github.com/luxfi/compactrouter/router"
	"github.com/luxfi/compactrouter/rpc"
	"github.com/luxfi/compactrouter/sloppygroup"
)

// Error variables for option validation, named per the teacher's
// ErrInvalidK/ErrInvalidAlpha style (one sentinel per offending field
// rather than one generic error).
var (
	ErrInvalidVicinitySizeScale  = errors.New("config: vicinity_size_scale must be > 0")
	ErrInvalidBucketSizeFloor    = errors.New("config: bucket_size_floor must be >= 1")
	ErrInvalidAnnounceInterval   = errors.New("config: announce_interval_secs must be > 0")
	ErrInvalidNeighborExpiry     = errors.New("config: neighbor_expiry_secs must be > 0")
	ErrInvalidOriginExpiry       = errors.New("config: origin_expiry_secs must be >= neighbor_expiry_secs")
	ErrInvalidNdbCacheEntriesMax = errors.New("config: ndb_cache_entries_max must be >= 0")
	ErrInvalidNdbStoredAddresses = errors.New("config: ndb_stored_addresses_max must be >= 1")
	ErrInvalidCacheRedundancy    = errors.New("config: cache_redundancy must be >= 1")
	ErrInvalidHopLimit           = errors.New("config: default_message_hop_limit must be >= 1")
)

// Config bundles every spec §6.4 option. Field names mirror the
// snake_case spec keys in Go style; each doc comment names the
// original key so the translation is traceable.
type Config struct {
	// VicinitySizeScale is the multiplicative factor on sqrt(n ln n)
	// (spec §6.4 vicinity_size_scale, default 1.0).
	VicinitySizeScale float64
	// BucketSizeFloor is the minimum extended-vicinity bucket size
	// (spec §6.4 bucket_size_floor, default 4).
	BucketSizeFloor int
	// AnnounceInterval is the self-announcement period (spec §6.4
	// announce_interval_secs, default 10s).
	AnnounceInterval time.Duration
	// NeighborExpiry is the expiry of single-hop routing entries (spec
	// §6.4 neighbor_expiry_secs, default 60s).
	NeighborExpiry time.Duration
	// OriginExpiry is the expiry of multi-hop routing entries (spec
	// §6.4 origin_expiry_secs, default 300s).
	OriginExpiry time.Duration
	// NdbCacheEntriesMax caps the name database's Cache-type tier (spec
	// §6.4 ndb_cache_entries_max, default 1024).
	NdbCacheEntriesMax int
	// NdbStoredAddressesMax caps how many L-R addresses a node publishes
	// about itself (spec §6.4 ndb_stored_addresses_max, "per-node",
	// default 3).
	NdbStoredAddressesMax int
	// CacheRedundancy is how many landmarks a node publishes its own
	// address to (spec §6.4 cache_redundancy, default 3).
	CacheRedundancy int
	// ForceLandmark overrides probabilistic landmark selection (spec
	// §6.4 force_landmark, default false).
	ForceLandmark bool
	// DefaultMessageHopLimit bounds forwarding hops for routed messages
	// (spec §6.4 default_message_hop_limit, default 30).
	DefaultMessageHopLimit uint8
}

// DefaultConfig returns the spec's default option set.
func DefaultConfig() Config {
	return Config{
		VicinitySizeScale:      1.0,
		BucketSizeFloor:        4,
		AnnounceInterval:       10 * time.Second,
		NeighborExpiry:         60 * time.Second,
		OriginExpiry:           300 * time.Second,
		NdbCacheEntriesMax:     1024,
		NdbStoredAddressesMax:  3,
		CacheRedundancy:        3,
		ForceLandmark:          false,
		DefaultMessageHopLimit: 30,
	}
}

// Validate checks every option against the constraints spec §6.4
// implies (positive scales/durations, hop limit and redundancy counts
// of at least one).
func (c Config) Validate() error {
	if c.VicinitySizeScale <= 0 {
		return ErrInvalidVicinitySizeScale
	}
	if c.BucketSizeFloor < 1 {
		return ErrInvalidBucketSizeFloor
	}
	if c.AnnounceInterval <= 0 {
		return ErrInvalidAnnounceInterval
	}
	if c.NeighborExpiry <= 0 {
		return ErrInvalidNeighborExpiry
	}
	if c.OriginExpiry < c.NeighborExpiry {
		return ErrInvalidOriginExpiry
	}
	if c.NdbCacheEntriesMax < 0 {
		return ErrInvalidNdbCacheEntriesMax
	}
	if c.NdbStoredAddressesMax < 1 {
		return ErrInvalidNdbStoredAddresses
	}
	if c.CacheRedundancy < 1 {
		return ErrInvalidCacheRedundancy
	}
	if c.DefaultMessageHopLimit < 1 {
		return ErrInvalidHopLimit
	}
	return nil
}

// RIBConfig translates the shared options into rib.Config, leaving
// rib.DefaultConfig's AnnounceInterval-unrelated timer tunables alone
// (rib has none beyond what's translated here).
func (c Config) RIBConfig() rib.Config {
	return rib.Config{
		VicinitySizeScale:      c.VicinitySizeScale,
		BucketSizeFloor:        c.BucketSizeFloor,
		NeighborExpiry:         c.NeighborExpiry,
		OriginExpiry:           c.OriginExpiry,
		LocalAddressRedundancy: c.NdbStoredAddressesMax,
	}
}

// NDBConfig translates the shared options into ndb.Config.
func (c Config) NDBConfig() ndb.Config {
	return ndb.Config{
		CacheEntriesMax: c.NdbCacheEntriesMax,
		CacheRedundancy: c.CacheRedundancy,
	}
}

// RouterConfig translates the shared options into router.Config,
// keeping the router-only knobs (jitter bounds, aggregation window,
// SA refresh tunables) at router.DefaultConfig's values.
func (c Config) RouterConfig() router.Config {
	cfg := router.DefaultConfig()
	cfg.AnnounceInterval = c.AnnounceInterval
	cfg.ForceLandmark = c.ForceLandmark
	cfg.DefaultHopLimit = c.DefaultMessageHopLimit
	return cfg
}

// SloppyGroupConfig returns sloppygroup.DefaultConfig unchanged: none
// of spec §6.4's named options address the sloppy-group manager's own
// timers (its AnnounceInterval is the 600s full-update period, a
// different knob than router's announce_interval_secs).
func (c Config) SloppyGroupConfig() sloppygroup.Config {
	return sloppygroup.DefaultConfig()
}

// RPCConfig returns rpc.DefaultConfig unchanged: spec §6.4 names no
// top-level option for RPC call/publish timeouts, those are fixed
// protocol constants (spec §5) rather than embedder-tunable.
func (c Config) RPCConfig() rpc.Config {
	return rpc.DefaultConfig()
}
