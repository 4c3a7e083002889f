package config

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/marmos91/nearstore/internal/bytesize"
	"github.com/marmos91/nearstore/pkg/backend"
	"github.com/marmos91/nearstore/pkg/backend/fs"
	"github.com/marmos91/nearstore/pkg/cache"
	"github.com/marmos91/nearstore/pkg/cache/store/badger"
	"github.com/marmos91/nearstore/pkg/ingest"
	"github.com/marmos91/nearstore/pkg/requests"
)

func TestBuildStorages(t *testing.T) {
	memFs := afero.NewMemMapFs()
	storages := []StorageConfig{
		{Name: "disk", Type: "fs", Tier: "online", AllowPhysicalDeletion: true, FS: fs.Config{Path: "/data/disk"}},
		{Name: "tape", Type: "fs", Tier: "nearline", FS: fs.Config{Path: "/data/tape"}},
	}

	reg, err := BuildStorages(context.Background(), storages, memFs, nil)
	if err != nil {
		t.Fatalf("BuildStorages failed: %v", err)
	}

	tape, err := reg.Get("tape")
	if err != nil {
		t.Fatalf("Expected tape storage to be registered: %v", err)
	}
	if tape.Tier() != backend.TierNearline {
		t.Errorf("Expected nearline tier, got %v", tape.Tier())
	}
	if tape.AllowsPhysicalDeletion() {
		t.Error("Expected tape storage to forbid physical deletion")
	}
	if ok, _ := afero.DirExists(memFs, "/data/disk"); !ok {
		t.Error("Expected the disk root to be created")
	}
}

func TestBuildStorages_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := BuildStorages(ctx, []StorageConfig{{Name: "x", Type: "ftp", Tier: "online"}}, afero.NewMemMapFs(), nil)
	if err == nil {
		t.Error("Expected error for unsupported storage type")
	}

	dup := StorageConfig{Name: "disk", Type: "fs", Tier: "online", FS: fs.Config{Path: "/d"}}
	_, err = BuildStorages(ctx, []StorageConfig{dup, dup}, afero.NewMemMapFs(), nil)
	if err == nil {
		t.Error("Expected error for duplicate storage names")
	}
}

func TestOpenCacheIndex(t *testing.T) {
	ctx := context.Background()

	idx, err := OpenCacheIndex(ctx, IndexConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("Failed to open memory index: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Errorf("Failed to close memory index: %v", err)
	}

	idx, err = OpenCacheIndex(ctx, IndexConfig{Type: "badger", Badger: badger.Config{InMemory: true}})
	if err != nil {
		t.Fatalf("Failed to open in-memory badger index: %v", err)
	}
	if err := idx.(cache.Healthchecker).Healthcheck(ctx); err != nil {
		t.Errorf("Badger healthcheck failed: %v", err)
	}
	_ = idx.Close()

	if _, err := OpenCacheIndex(ctx, IndexConfig{Type: "redis"}); err == nil {
		t.Error("Expected error for unsupported index type")
	}
}

func TestBuildTenants(t *testing.T) {
	cfg := &Config{
		Cache: CacheConfig{DefaultMaxSize: 10 * bytesize.GiB},
		Tenants: []TenantConfig{
			{Name: "acme", CacheMaxSize: 2 * bytesize.GiB},
			{Name: "globex"},
		},
	}

	reg, err := cfg.BuildTenants()
	if err != nil {
		t.Fatalf("BuildTenants failed: %v", err)
	}

	if got := reg.Active(); len(got) != 2 || got[0] != "acme" || got[1] != "globex" {
		t.Errorf("Unexpected active tenants %v", got)
	}
	if limit, _ := reg.MaxCacheSize("acme"); limit != int64(2*bytesize.GiB) {
		t.Errorf("Expected acme override, got %d", limit)
	}
	if limit, _ := reg.MaxCacheSize("globex"); limit != int64(10*bytesize.GiB) {
		t.Errorf("Expected default maximum for globex, got %d", limit)
	}
}

func TestBatchingKinds(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Batching = map[string]ingest.KindConfig{"retry": {BulkSize: 5}}

	kinds, err := cfg.BatchingKinds()
	if err != nil {
		t.Fatalf("BatchingKinds failed: %v", err)
	}
	if kinds[requests.KindRetry].BulkSize != 5 {
		t.Errorf("Expected retry bulk size 5, got %+v", kinds)
	}
}

func TestDerivedOptions(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cache.CleanupPeriod = 5 * time.Minute
	cfg.Groups.SweepPeriod = time.Minute

	sc := cfg.SchedulerConfig()
	if sc.CleanupPeriod != 5*time.Minute || sc.GroupsSweepPeriod != time.Minute {
		t.Errorf("Unexpected scheduler config %+v", sc)
	}
	if sc.VerificationSchedule != cfg.Cache.VerificationSchedule {
		t.Errorf("Expected verification schedule to be carried over, got %q", sc.VerificationSchedule)
	}

	opts := cfg.Groups.TrackerOptions()
	if opts.Expiration != cfg.Groups.Expiration {
		t.Errorf("Expected tracker expiration %v, got %v", cfg.Groups.Expiration, opts.Expiration)
	}

	memFs := afero.NewMemMapFs()
	fo := cfg.Availability.ServiceOptions(memFs)
	if fo.Parallelism != cfg.Availability.Parallelism || fo.Fs != memFs {
		t.Errorf("Unexpected file service options %+v", fo)
	}
}
