package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

const (
	snapshotTTL = 24 * time.Hour

	// Cached signed URLs expire server-side after an hour; keep the cache
	// entry slightly shorter so we never hand out a dead link.
	signedURLCacheTTL = 55 * time.Minute
)

// ProgressSnapshot is the polling payload clients read while a video runs.
type ProgressSnapshot struct {
	VideoID        string    `json:"video_id"`
	Status         string    `json:"status"`
	CurrentPhase   int       `json:"current_phase"`
	Progress       int       `json:"progress"`
	Error          string    `json:"error,omitempty"`
	TotalCost      float64   `json:"total_cost"`
	FinalVideoURL  string    `json:"final_video_url,omitempty"`
	StoryboardURLs []string  `json:"storyboard_urls,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ProgressChannel interface {
	SetSnapshot(ctx context.Context, snap ProgressSnapshot) error
	GetSnapshot(ctx context.Context, videoID uuid.UUID) (*ProgressSnapshot, error)
	ClearSnapshot(ctx context.Context, videoID uuid.UUID) error
	CacheSignedURL(ctx context.Context, blobKey, url string) error
	CachedSignedURL(ctx context.Context, blobKey string) (string, bool)
	Close() error
}

type progressChannel struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewProgressChannel(log *logger.Logger, rdb *goredis.Client) (ProgressChannel, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &progressChannel{
		log: log.With("service", "ProgressChannel"),
		rdb: rdb,
	}, nil
}

func snapshotKey(videoID string) string  { return "video:progress:" + videoID }
func signedURLKey(blobKey string) string { return "video:signed_url:" + blobKey }

func (p *progressChannel) SetSnapshot(ctx context.Context, snap ProgressSnapshot) error {
	snap.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, snapshotKey(snap.VideoID), raw, snapshotTTL).Err()
}

func (p *progressChannel) GetSnapshot(ctx context.Context, videoID uuid.UUID) (*ProgressSnapshot, error) {
	raw, err := p.rdb.Get(ctx, snapshotKey(videoID.String())).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap ProgressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("bad progress snapshot for %s: %w", videoID, err)
	}
	return &snap, nil
}

func (p *progressChannel) ClearSnapshot(ctx context.Context, videoID uuid.UUID) error {
	return p.rdb.Del(ctx, snapshotKey(videoID.String())).Err()
}

func (p *progressChannel) CacheSignedURL(ctx context.Context, blobKey, url string) error {
	return p.rdb.Set(ctx, signedURLKey(blobKey), url, signedURLCacheTTL).Err()
}

func (p *progressChannel) CachedSignedURL(ctx context.Context, blobKey string) (string, bool) {
	url, err := p.rdb.Get(ctx, signedURLKey(blobKey)).Result()
	if err == goredis.Nil {
		return "", false
	}
	if err != nil {
		p.log.Warn("signed url cache read failed", "blob_key", blobKey, "error", err)
		return "", false
	}
	return url, true
}

func (p *progressChannel) Close() error {
	return p.rdb.Close()
}
