package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

func newTestChannel(t *testing.T) (ProgressChannel, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	pc, err := NewProgressChannel(log, rdb)
	if err != nil {
		t.Fatalf("NewProgressChannel: %v", err)
	}
	return pc, mr
}

func TestProgressChannel_SnapshotRoundTrip(t *testing.T) {
	pc, _ := newTestChannel(t)
	ctx := context.Background()
	videoID := uuid.New()

	got, err := pc.GetSnapshot(ctx, videoID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil snapshot before first write, got %+v", got)
	}

	snap := ProgressSnapshot{
		VideoID:      videoID.String(),
		Status:       "running_phase_3",
		CurrentPhase: 3,
		Progress:     60,
		TotalCost:    1.25,
	}
	if err := pc.SetSnapshot(ctx, snap); err != nil {
		t.Fatalf("SetSnapshot: %v", err)
	}

	got, err = pc.GetSnapshot(ctx, videoID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got == nil || got.Progress != 60 || got.Status != "running_phase_3" || got.TotalCost != 1.25 {
		t.Fatalf("snapshot round trip mismatch: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("SetSnapshot should stamp updated_at")
	}

	if err := pc.ClearSnapshot(ctx, videoID); err != nil {
		t.Fatalf("ClearSnapshot: %v", err)
	}
	got, err = pc.GetSnapshot(ctx, videoID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got != nil {
		t.Fatalf("snapshot should be gone after clear")
	}
}

func TestProgressChannel_SignedURLCache(t *testing.T) {
	pc, mr := newTestChannel(t)
	ctx := context.Background()

	if _, ok := pc.CachedSignedURL(ctx, "owner/videos/v1/chunk_0.mp4"); ok {
		t.Fatalf("cache should miss before first write")
	}

	if err := pc.CacheSignedURL(ctx, "owner/videos/v1/chunk_0.mp4", "https://signed.example/abc"); err != nil {
		t.Fatalf("CacheSignedURL: %v", err)
	}
	url, ok := pc.CachedSignedURL(ctx, "owner/videos/v1/chunk_0.mp4")
	if !ok || url != "https://signed.example/abc" {
		t.Fatalf("cache hit mismatch: %q %v", url, ok)
	}

	mr.FastForward(signedURLCacheTTL + 1)
	if _, ok := pc.CachedSignedURL(ctx, "owner/videos/v1/chunk_0.mp4"); ok {
		t.Fatalf("cache entry should expire with its TTL")
	}
}
