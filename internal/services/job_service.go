package services

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/reelforge/reelforge-backend/internal/data/repos"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

const EntityTypeVideo = "video"

// Job types, one per phase runner plus the editor.
const (
	JobTypePhasePlan       = "video_phase_plan"
	JobTypePhaseStoryboard = "video_phase_storyboard"
	JobTypePhaseChunks     = "video_phase_chunks"
	JobTypePhaseRefine     = "video_phase_refine"
	JobTypeEdit            = "video_edit"
)

// JobTypeForPhase maps a phase number to its job type.
func JobTypeForPhase(phase int) (string, error) {
	switch phase {
	case 1:
		return JobTypePhasePlan, nil
	case 2:
		return JobTypePhaseStoryboard, nil
	case 3:
		return JobTypePhaseChunks, nil
	case 4:
		return JobTypePhaseRefine, nil
	default:
		return "", fmt.Errorf("no job type for phase %d", phase)
	}
}

type JobService interface {
	Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, videoID uuid.UUID, payload map[string]any) (*domain.JobRun, error)
	HasRunnableForVideo(dbc dbctx.Context, ownerUserID, videoID uuid.UUID) (bool, error)
}

type jobService struct {
	log  *logger.Logger
	jobs repos.JobRunRepo
}

func NewJobService(log *logger.Logger, jobs repos.JobRunRepo) JobService {
	return &jobService{
		log:  log.With("service", "JobService"),
		jobs: jobs,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, videoID uuid.UUID, payload map[string]any) (*domain.JobRun, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("owner required")
	}
	if jobType == "" {
		return nil, fmt.Errorf("job type required")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["video_id"] = videoID.String()

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}

	entityID := videoID
	job := &domain.JobRun{
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  EntityTypeVideo,
		EntityID:    &entityID,
		Status:      domain.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON(raw),
	}
	created, err := s.jobs.Create(dbc, []*domain.JobRun{job})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	s.log.Info("job enqueued", "job_type", jobType, "video_id", videoID)
	return created[0], nil
}

func (s *jobService) HasRunnableForVideo(dbc dbctx.Context, ownerUserID, videoID uuid.UUID) (bool, error) {
	return s.jobs.HasRunnableForEntity(dbc, ownerUserID, EntityTypeVideo, videoID)
}
