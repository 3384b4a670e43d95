package repos

import (
	"gorm.io/gorm"

	"github.com/reelforge/reelforge-backend/internal/data/repos/artifact"
	"github.com/reelforge/reelforge-backend/internal/data/repos/checkpoint"
	"github.com/reelforge/reelforge-backend/internal/data/repos/jobs"
	"github.com/reelforge/reelforge-backend/internal/data/repos/video"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

type VideoRepo = video.VideoRepo
type CheckpointRepo = checkpoint.CheckpointRepo
type ArtifactRepo = artifact.ArtifactRepo
type JobRunRepo = jobs.JobRunRepo

func NewVideoRepo(db *gorm.DB, baseLog *logger.Logger) VideoRepo {
	return video.NewVideoRepo(db, baseLog)
}

func NewCheckpointRepo(db *gorm.DB, baseLog *logger.Logger) CheckpointRepo {
	return checkpoint.NewCheckpointRepo(db, baseLog)
}

func NewArtifactRepo(db *gorm.DB, baseLog *logger.Logger) ArtifactRepo {
	return artifact.NewArtifactRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
