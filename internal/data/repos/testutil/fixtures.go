package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge-backend/internal/domain"
)

func SeedVideo(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID) *domain.Video {
	tb.Helper()
	v := &domain.Video{
		ID:           uuid.New(),
		OwnerUserID:  ownerUserID,
		Prompt:       "showcase a chrome kettle",
		Status:       domain.VideoStatusQueued,
		PhaseOutputs: datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed video: %v", err)
	}
	return v
}

func SeedCheckpoint(tb testing.TB, ctx context.Context, tx *gorm.DB, v *domain.Video, branch string, phase, version int, parent *uuid.UUID) *domain.Checkpoint {
	tb.Helper()
	cp := &domain.Checkpoint{
		ID:                 uuid.New(),
		VideoID:            v.ID,
		OwnerUserID:        v.OwnerUserID,
		BranchName:         branch,
		PhaseNumber:        phase,
		Version:            version,
		ParentCheckpointID: parent,
		Status:             domain.CheckpointStatusPending,
		PhaseOutput:        datatypes.JSON([]byte("{}")),
		CreatedAt:          time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(cp).Error; err != nil {
		tb.Fatalf("seed checkpoint: %v", err)
	}
	return cp
}

func SeedArtifact(tb testing.TB, ctx context.Context, tx *gorm.DB, checkpointID uuid.UUID, artifactType, key string, version int) *domain.Artifact {
	tb.Helper()
	a := &domain.Artifact{
		ID:           uuid.New(),
		CheckpointID: checkpointID,
		Type:         artifactType,
		Key:          key,
		Version:      version,
		BlobURL:      "https://storage.example.com/" + key,
		BlobKey:      key,
		Metadata:     datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed artifact: %v", err)
	}
	return a
}
