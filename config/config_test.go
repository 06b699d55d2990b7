package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()

	r.Equal(1.0, cfg.VicinitySizeScale)
	r.Equal(4, cfg.BucketSizeFloor)
	r.Equal(10*time.Second, cfg.AnnounceInterval)
	r.Equal(60*time.Second, cfg.NeighborExpiry)
	r.Equal(300*time.Second, cfg.OriginExpiry)
	r.Equal(1024, cfg.NdbCacheEntriesMax)
	r.Equal(3, cfg.NdbStoredAddressesMax)
	r.Equal(3, cfg.CacheRedundancy)
	r.False(cfg.ForceLandmark)
	r.EqualValues(30, cfg.DefaultMessageHopLimit)

	r.NoError(cfg.Validate())
}

func TestValidateRejectsNonPositiveVicinityScale(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.VicinitySizeScale = 0
	r.ErrorIs(cfg.Validate(), ErrInvalidVicinitySizeScale)
}

func TestValidateRejectsZeroBucketFloor(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.BucketSizeFloor = 0
	r.ErrorIs(cfg.Validate(), ErrInvalidBucketSizeFloor)
}

func TestValidateRejectsNonPositiveAnnounceInterval(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.AnnounceInterval = 0
	r.ErrorIs(cfg.Validate(), ErrInvalidAnnounceInterval)
}

func TestValidateRejectsOriginExpiryBelowNeighborExpiry(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.OriginExpiry = cfg.NeighborExpiry - time.Second
	r.ErrorIs(cfg.Validate(), ErrInvalidOriginExpiry)
}

func TestValidateRejectsNegativeCacheEntriesMax(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.NdbCacheEntriesMax = -1
	r.ErrorIs(cfg.Validate(), ErrInvalidNdbCacheEntriesMax)
}

func TestValidateRejectsZeroStoredAddressesMax(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.NdbStoredAddressesMax = 0
	r.ErrorIs(cfg.Validate(), ErrInvalidNdbStoredAddresses)
}

func TestValidateRejectsZeroCacheRedundancy(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.CacheRedundancy = 0
	r.ErrorIs(cfg.Validate(), ErrInvalidCacheRedundancy)
}

func TestValidateRejectsZeroHopLimit(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.DefaultMessageHopLimit = 0
	r.ErrorIs(cfg.Validate(), ErrInvalidHopLimit)
}

func TestRIBConfigTranslation(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.VicinitySizeScale = 2.5
	cfg.BucketSizeFloor = 8
	cfg.NeighborExpiry = 90 * time.Second
	cfg.OriginExpiry = 400 * time.Second
	cfg.NdbStoredAddressesMax = 5

	rc := cfg.RIBConfig()
	r.Equal(2.5, rc.VicinitySizeScale)
	r.Equal(8, rc.BucketSizeFloor)
	r.Equal(90*time.Second, rc.NeighborExpiry)
	r.Equal(400*time.Second, rc.OriginExpiry)
	r.Equal(5, rc.LocalAddressRedundancy)
}

func TestNDBConfigTranslation(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.NdbCacheEntriesMax = 2048
	cfg.CacheRedundancy = 7

	nc := cfg.NDBConfig()
	r.Equal(2048, nc.CacheEntriesMax)
	r.Equal(7, nc.CacheRedundancy)
}

func TestRouterConfigTranslationKeepsNonSharedDefaults(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	cfg.AnnounceInterval = 20 * time.Second
	cfg.ForceLandmark = true
	cfg.DefaultMessageHopLimit = 16

	rc := cfg.RouterConfig()
	r.Equal(20*time.Second, rc.AnnounceInterval)
	r.True(rc.ForceLandmark)
	r.EqualValues(16, rc.DefaultHopLimit)
	// Router-only knobs fall back to router.DefaultConfig, not zero values.
	r.Equal(5*time.Second, rc.AggregationWindow)
	r.Equal(30*time.Second, rc.SARefreshMinPeriod)
}

func TestSloppyGroupConfigTranslationUsesPackageDefaults(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	sc := cfg.SloppyGroupConfig()
	r.NotZero(sc.AnnounceInterval)
}

func TestRPCConfigTranslationUsesPackageDefaults(t *testing.T) {
	r := require.New(t)
	cfg := DefaultConfig()
	rc := cfg.RPCConfig()
	r.Equal(15*time.Second, rc.CallTimeout)
	r.Equal(30*time.Second, rc.PublishTimeout)
	r.Equal(600*time.Second, rc.PublishInterval)
}
