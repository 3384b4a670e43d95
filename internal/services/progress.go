package services

import (
	"context"

	"github.com/reelforge/reelforge-backend/internal/clients/gcs"
	"github.com/reelforge/reelforge-backend/internal/clients/redis"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

// ProgressService is the best-effort live progress surface. Writes go to
// redis and never fail the pipeline; reads fall back to the video row when
// the snapshot is missing or redis is down.
type ProgressService interface {
	Publish(ctx context.Context, snap redis.ProgressSnapshot)
	SnapshotFor(ctx context.Context, v *domain.Video) redis.ProgressSnapshot
	SignedURL(ctx context.Context, blobKey string) (string, error)
}

type progressService struct {
	log     *logger.Logger
	channel redis.ProgressChannel
	bucket  gcs.BucketService
}

func NewProgressService(log *logger.Logger, channel redis.ProgressChannel, bucket gcs.BucketService) ProgressService {
	return &progressService{
		log:     log.With("service", "ProgressService"),
		channel: channel,
		bucket:  bucket,
	}
}

func (s *progressService) Publish(ctx context.Context, snap redis.ProgressSnapshot) {
	if err := s.channel.SetSnapshot(ctx, snap); err != nil {
		s.log.Warn("progress publish failed", "video_id", snap.VideoID, "error", err)
	}
}

func (s *progressService) SnapshotFor(ctx context.Context, v *domain.Video) redis.ProgressSnapshot {
	live, err := s.channel.GetSnapshot(ctx, v.ID)
	if err != nil {
		s.log.Warn("progress read failed, using video row", "video_id", v.ID, "error", err)
	}
	if live != nil {
		return *live
	}
	return redis.ProgressSnapshot{
		VideoID:       v.ID.String(),
		Status:        v.Status,
		CurrentPhase:  v.CurrentPhase,
		Progress:      v.Progress,
		Error:         v.ErrorMessage,
		TotalCost:     v.Cost,
		FinalVideoURL: v.FinalVideoURL,
	}
}

// SignedURL serves presigned links through the redis cache so repeated
// status polls do not re-sign every artifact.
func (s *progressService) SignedURL(ctx context.Context, blobKey string) (string, error) {
	if url, ok := s.channel.CachedSignedURL(ctx, blobKey); ok {
		return url, nil
	}
	url, err := s.bucket.SignedURL(blobKey)
	if err != nil {
		return "", err
	}
	if err := s.channel.CacheSignedURL(ctx, blobKey, url); err != nil {
		s.log.Warn("signed url cache write failed", "blob_key", blobKey, "error", err)
	}
	return url, nil
}
