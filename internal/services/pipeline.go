package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge-backend/internal/clients/redis"
	"github.com/reelforge/reelforge-backend/internal/data/repos"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

type GenerateRequest struct {
	Prompt       string         `json:"prompt"`
	Assets       map[string]any `json:"assets,omitempty"`
	AutoContinue bool           `json:"auto_continue,omitempty"`
}

type ContinueResult struct {
	NextPhase int    `json:"next_phase"`
	Branch    string `json:"branch"`
	Forked    bool   `json:"forked"`
}

type BranchInfo struct {
	Name         string    `json:"name"`
	CheckpointID uuid.UUID `json:"checkpoint_id"`
	PhaseNumber  int       `json:"phase_number"`
	Status       string    `json:"status"`
}

type ArtifactView struct {
	ID      uuid.UUID `json:"id"`
	Type    string    `json:"type"`
	Key     string    `json:"key"`
	Version int       `json:"version"`
	URL     string    `json:"url"`
}

type StatusResponse struct {
	Video             *domain.Video           `json:"video"`
	Live              redis.ProgressSnapshot  `json:"live"`
	CurrentCheckpoint *domain.Checkpoint      `json:"current_checkpoint,omitempty"`
	Artifacts         []ArtifactView          `json:"artifacts,omitempty"`
	Tree              []*domain.CheckpointNode `json:"checkpoint_tree"`
	Branches          []BranchInfo            `json:"active_branches"`
}

// PipelineService is the orchestrator: it owns video creation, the
// continue/approve/fork flow and the composite status view. Phase runners
// are dispatched as job_run rows; workers pick them up.
type PipelineService interface {
	Generate(ctx context.Context, owner uuid.UUID, req GenerateRequest) (uuid.UUID, error)
	Continue(ctx context.Context, owner, videoID, checkpointID uuid.UUID) (*ContinueResult, error)
	Status(ctx context.Context, owner, videoID uuid.UUID) (*StatusResponse, error)

	ListCheckpoints(ctx context.Context, owner, videoID uuid.UUID, branch string) ([]*domain.Checkpoint, error)
	CurrentCheckpoint(ctx context.Context, owner, videoID uuid.UUID) (*domain.Checkpoint, error)
	CheckpointWithArtifacts(ctx context.Context, owner, videoID, checkpointID uuid.UUID) (*domain.Checkpoint, []ArtifactView, error)
	CheckpointTree(ctx context.Context, owner, videoID uuid.UUID) ([]*domain.CheckpointNode, error)
	Branches(ctx context.Context, owner, videoID uuid.UUID) ([]BranchInfo, error)
}

type pipelineService struct {
	log         *logger.Logger
	db          *gorm.DB
	videos      repos.VideoRepo
	checkpoints repos.CheckpointRepo
	artifacts   repos.ArtifactRepo
	jobs        JobService
	progress    ProgressService
}

func NewPipelineService(
	log *logger.Logger,
	db *gorm.DB,
	videos repos.VideoRepo,
	checkpoints repos.CheckpointRepo,
	artifacts repos.ArtifactRepo,
	jobs JobService,
	progress ProgressService,
) PipelineService {
	return &pipelineService{
		log:         log.With("service", "PipelineService"),
		db:          db,
		videos:      videos,
		checkpoints: checkpoints,
		artifacts:   artifacts,
		jobs:        jobs,
		progress:    progress,
	}
}

func (s *pipelineService) Generate(ctx context.Context, owner uuid.UUID, req GenerateRequest) (uuid.UUID, error) {
	if req.Prompt == "" {
		return uuid.Nil, apperr.Validationf("prompt required")
	}
	dbc := dbctx.Context{Ctx: ctx}

	var assets datatypes.JSON
	if req.Assets != nil {
		b, err := json.Marshal(req.Assets)
		if err != nil {
			return uuid.Nil, apperr.Validationf("bad assets: %v", err)
		}
		assets = datatypes.JSON(b)
	}

	v := &domain.Video{
		OwnerUserID:  owner,
		Prompt:       req.Prompt,
		Status:       domain.VideoStatusQueued,
		AutoContinue: req.AutoContinue,
		Assets:       assets,
		PhaseOutputs: datatypes.JSON([]byte("{}")),
	}
	created, err := s.videos.Create(dbc, v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create video: %w", err)
	}

	if _, err := s.jobs.Enqueue(dbc, owner, JobTypePhasePlan, created.ID, map[string]any{
		"branch": domain.RootBranch,
	}); err != nil {
		return uuid.Nil, err
	}

	s.progress.Publish(ctx, redis.ProgressSnapshot{
		VideoID: created.ID.String(),
		Status:  domain.VideoStatusQueued,
	})
	s.log.Info("video submitted", "video_id", created.ID, "auto_continue", req.AutoContinue)
	return created.ID, nil
}

// Continue approves a checkpoint and dispatches the next phase. Concurrent
// continues for the same video serialise on a transaction-scoped advisory
// lock; the loser re-reads state and usually finds the checkpoint already
// approved without edits, which is a validation error.
func (s *pipelineService) Continue(ctx context.Context, owner, videoID, checkpointID uuid.UUID) (*ContinueResult, error) {
	var result *ContinueResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		if err := s.checkpoints.LockVideo(dbc, videoID); err != nil {
			return fmt.Errorf("lock video: %w", err)
		}

		video, err := s.videos.GetForOwner(dbc, owner, videoID)
		if err != nil {
			return err
		}
		cp, err := s.checkpoints.GetForOwner(dbc, owner, checkpointID)
		if err != nil {
			return err
		}
		if cp.VideoID != video.ID {
			return apperr.Validationf("checkpoint %s does not belong to video %s", checkpointID, videoID)
		}
		if cp.PhaseNumber >= domain.TerminalPhase {
			return apperr.Validationf("phase %d is terminal, nothing to continue", cp.PhaseNumber)
		}

		edited, err := s.checkpoints.HasEdits(dbc, cp.ID)
		if err != nil {
			return err
		}
		if cp.Status == domain.CheckpointStatusApproved && !edited {
			return apperr.Validationf("checkpoint %s already approved and has no edits", cp.ID)
		}

		branch := cp.BranchName
		forked := false
		if edited {
			branch, err = s.checkpoints.NewBranch(dbc, cp)
			if err != nil {
				return fmt.Errorf("fork branch: %w", err)
			}
			forked = true
			if err := s.recordForkBranch(dbc, cp, branch); err != nil {
				return err
			}
		}

		if err := s.checkpoints.Approve(dbc, cp.ID); err != nil {
			return fmt.Errorf("approve checkpoint: %w", err)
		}

		nextPhase := cp.PhaseNumber + 1
		jobType, err := JobTypeForPhase(nextPhase)
		if err != nil {
			return err
		}
		if _, err := s.jobs.Enqueue(dbc, owner, jobType, video.ID, map[string]any{
			"branch":               branch,
			"parent_checkpoint_id": cp.ID.String(),
		}); err != nil {
			return err
		}

		if err := s.videos.UpdateFields(dbc, video.ID, map[string]interface{}{
			"status":        domain.VideoStatusRunningPhase(nextPhase),
			"current_phase": nextPhase,
		}); err != nil {
			return err
		}

		result = &ContinueResult{NextPhase: nextPhase, Branch: branch, Forked: forked}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("checkpoint continued",
		"video_id", videoID, "checkpoint_id", checkpointID,
		"next_phase", result.NextPhase, "branch", result.Branch, "forked", result.Forked)
	return result, nil
}

// recordForkBranch writes the fork target into the checkpoint's phase
// output so the lineage survives in the DAG.
func (s *pipelineService) recordForkBranch(dbc dbctx.Context, cp *domain.Checkpoint, branch string) error {
	out, err := domain.UnmarshalPhaseOutput(cp.PhaseOutput)
	if err != nil {
		out = &domain.PhaseOutput{Phase: cp.PhaseNumber, Branch: cp.BranchName, Version: cp.Version}
	}
	out.Branch = branch
	raw, err := out.Marshal()
	if err != nil {
		return err
	}
	return s.checkpoints.UpdatePhaseOutput(dbc, cp.ID, raw)
}

func (s *pipelineService) Status(ctx context.Context, owner, videoID uuid.UUID) (*StatusResponse, error) {
	dbc := dbctx.Context{Ctx: ctx}

	video, err := s.videos.GetForOwner(dbc, owner, videoID)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{
		Video: video,
		Live:  s.progress.SnapshotFor(ctx, video),
	}

	if cur, err := s.checkpoints.GetCurrent(dbc, videoID); err == nil && cur != nil {
		resp.CurrentCheckpoint = cur
		resp.Artifacts, _ = s.artifactViews(ctx, dbc, cur.ID)
	}

	resp.Tree, err = s.checkpoints.Tree(dbc, videoID)
	if err != nil {
		return nil, err
	}
	resp.Branches, err = s.Branches(ctx, owner, videoID)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *pipelineService) artifactViews(ctx context.Context, dbc dbctx.Context, checkpointID uuid.UUID) ([]ArtifactView, error) {
	latest, err := s.artifacts.LatestPerKey(dbc, checkpointID)
	if err != nil {
		return nil, err
	}
	views := make([]ArtifactView, 0, len(latest))
	for _, a := range latest {
		url := a.BlobURL
		if a.BlobKey != "" {
			if signed, err := s.progress.SignedURL(ctx, a.BlobKey); err == nil {
				url = signed
			}
		}
		views = append(views, ArtifactView{
			ID:      a.ID,
			Type:    a.Type,
			Key:     a.Key,
			Version: a.Version,
			URL:     url,
		})
	}
	return views, nil
}

func (s *pipelineService) ListCheckpoints(ctx context.Context, owner, videoID uuid.UUID, branch string) ([]*domain.Checkpoint, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.videos.GetForOwner(dbc, owner, videoID); err != nil {
		return nil, err
	}
	return s.checkpoints.ListByVideo(dbc, videoID, branch)
}

func (s *pipelineService) CurrentCheckpoint(ctx context.Context, owner, videoID uuid.UUID) (*domain.Checkpoint, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.videos.GetForOwner(dbc, owner, videoID); err != nil {
		return nil, err
	}
	cur, err := s.checkpoints.GetCurrent(dbc, videoID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, apperr.NotFoundf("no pending checkpoint for video %s", videoID)
	}
	return cur, nil
}

func (s *pipelineService) CheckpointWithArtifacts(ctx context.Context, owner, videoID, checkpointID uuid.UUID) (*domain.Checkpoint, []ArtifactView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.videos.GetForOwner(dbc, owner, videoID); err != nil {
		return nil, nil, err
	}
	cp, err := s.checkpoints.GetForOwner(dbc, owner, checkpointID)
	if err != nil {
		return nil, nil, err
	}
	if cp.VideoID != videoID {
		return nil, nil, apperr.Validationf("checkpoint %s does not belong to video %s", checkpointID, videoID)
	}
	views, err := s.artifactViews(ctx, dbc, cp.ID)
	if err != nil {
		return nil, nil, err
	}
	return cp, views, nil
}

func (s *pipelineService) CheckpointTree(ctx context.Context, owner, videoID uuid.UUID) ([]*domain.CheckpointNode, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.videos.GetForOwner(dbc, owner, videoID); err != nil {
		return nil, err
	}
	return s.checkpoints.Tree(dbc, videoID)
}

// Branches reports the active branch tips: every leaf checkpoint is the
// head of one explorable line of work.
func (s *pipelineService) Branches(ctx context.Context, owner, videoID uuid.UUID) ([]BranchInfo, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.videos.GetForOwner(dbc, owner, videoID); err != nil {
		return nil, err
	}
	leaves, err := s.checkpoints.GetLeaves(dbc, videoID)
	if err != nil {
		return nil, err
	}
	out := make([]BranchInfo, 0, len(leaves))
	for _, l := range leaves {
		out = append(out, BranchInfo{
			Name:         l.BranchName,
			CheckpointID: l.ID,
			PhaseNumber:  l.PhaseNumber,
			Status:       l.Status,
		})
	}
	return out, nil
}
