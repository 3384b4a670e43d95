package phasekit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/reelforge/reelforge-backend/internal/clients/gcs"
	"github.com/reelforge/reelforge-backend/internal/clients/imagegen"
	"github.com/reelforge/reelforge-backend/internal/clients/redis"
	"github.com/reelforge/reelforge-backend/internal/clients/videogen"
	"github.com/reelforge/reelforge-backend/internal/data/repos"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/jobs/runtime"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
	"github.com/reelforge/reelforge-backend/internal/services"
)

// Per-phase progress windows on the 0..100 video progress scale.
var progressWindows = map[int][2]int{
	1: {0, 25},
	2: {25, 40},
	3: {40, 90},
	4: {90, 100},
}

func StartPct(phase int) int { return progressWindows[phase][0] }
func EndPct(phase int) int   { return progressWindows[phase][1] }

// Deps is the full dependency set a phase runner may draw from; each
// pipeline uses the slice it needs.
type Deps struct {
	Log          *logger.Logger
	Videos       repos.VideoRepo
	Checkpoints  repos.CheckpointRepo
	Artifacts    repos.ArtifactRepo
	Jobs         services.JobService
	Progress     services.ProgressService
	Bucket       gcs.BucketService
	Media        services.MediaToolsService
	Music        services.MusicService
	Images       imagegen.Client
	Gen          videogen.Client
	HTTP         *http.Client
	StitchBudget time.Duration
}

// ArtifactSpec is one artifact row to create on the phase checkpoint.
type ArtifactSpec struct {
	Type    string
	Key     string
	BlobKey string
	BlobURL string
	Size    int64
}

// Run carries the per-invocation state of one phase execution.
type Run struct {
	Deps
	JC     *runtime.Context
	Phase  int
	Video  *domain.Video
	Branch string
	Parent *domain.Checkpoint
}

// Begin loads the video and parent checkpoint from the job payload and
// flips the video into its running state.
func Begin(jc *runtime.Context, deps Deps, phase int) (*Run, error) {
	videoID, ok := jc.PayloadUUID("video_id")
	if !ok {
		return nil, apperr.Integrityf("job %s has no video_id", jc.Job.ID)
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}

	video, err := deps.Videos.GetByID(dbc, videoID)
	if err != nil {
		return nil, err
	}
	if video.OwnerUserID != jc.Job.OwnerUserID {
		return nil, apperr.Ownershipf("job owner does not own video %s", videoID)
	}

	branch := jc.PayloadString("branch")
	if branch == "" {
		branch = domain.RootBranch
	}

	r := &Run{Deps: deps, JC: jc, Phase: phase, Video: video, Branch: branch}
	if parentID, ok := jc.PayloadUUID("parent_checkpoint_id"); ok {
		parent, err := deps.Checkpoints.GetByID(dbc, parentID)
		if err != nil {
			return nil, err
		}
		r.Parent = parent
	}

	if err := deps.Videos.UpdateFields(dbc, video.ID, map[string]interface{}{
		"status":        domain.VideoStatusRunningPhase(phase),
		"current_phase": phase,
		"progress":      StartPct(phase),
		"error_message": "",
	}); err != nil {
		return nil, err
	}
	video.Status = domain.VideoStatusRunningPhase(phase)
	video.CurrentPhase = phase
	video.Progress = StartPct(phase)

	r.Publish(StartPct(phase), nil)
	return r, nil
}

// ParentOutput decodes the parent checkpoint's phase output.
func (r *Run) ParentOutput() (*domain.PhaseOutput, error) {
	if r.Parent == nil {
		return nil, apperr.Integrityf("phase %d needs a parent checkpoint", r.Phase)
	}
	out, err := domain.UnmarshalPhaseOutput(r.Parent.PhaseOutput)
	if err != nil {
		return nil, apperr.Integrityf("parent checkpoint %s output does not parse: %v", r.Parent.ID, err)
	}
	return out, nil
}

// Publish pushes a live progress snapshot and mirrors pct onto the video
// row. Snapshot delivery is best effort.
func (r *Run) Publish(pct int, mutate func(*redis.ProgressSnapshot)) {
	dbc := dbctx.Context{Ctx: r.JC.Ctx}
	if pct != r.Video.Progress {
		_ = r.Videos.UpdateFields(dbc, r.Video.ID, map[string]interface{}{"progress": pct})
		r.Video.Progress = pct
	}
	snap := redis.ProgressSnapshot{
		VideoID:      r.Video.ID.String(),
		Status:       r.Video.Status,
		CurrentPhase: r.Phase,
		Progress:     pct,
		TotalCost:    r.Video.Cost,
	}
	if mutate != nil {
		mutate(&snap)
	}
	r.Progress.Publish(r.JC.Ctx, snap)
}

// FailVideo records a terminal phase failure on both the video and the
// job run. Phase failures stay failed; there is no automatic retry.
func (r *Run) FailVideo(stage string, err error) {
	dbc := dbctx.Context{Ctx: r.JC.Ctx}
	_ = r.Videos.UpdateFields(dbc, r.Video.ID, map[string]interface{}{
		"status":        domain.VideoStatusFailed,
		"error_message": err.Error(),
	})
	r.Progress.Publish(r.JC.Ctx, redis.ProgressSnapshot{
		VideoID:      r.Video.ID.String(),
		Status:       domain.VideoStatusFailed,
		CurrentPhase: r.Phase,
		Progress:     r.Video.Progress,
		Error:        err.Error(),
		TotalCost:    r.Video.Cost,
	})
	r.Log.Error("phase failed", "video_id", r.Video.ID, "phase", r.Phase, "stage", stage, "error", err)
	r.JC.Fail(stage, err)
}

// Complete writes the phase checkpoint, its artifact rows and the video
// bookkeeping, then either pauses for review, auto-continues, or finishes
// the pipeline at the terminal phase.
func (r *Run) Complete(out *domain.PhaseOutput, artifacts []ArtifactSpec, cost float64, videoUpdates map[string]interface{}) (*domain.Checkpoint, error) {
	dbc := dbctx.Context{Ctx: r.JC.Ctx}

	version, err := r.Checkpoints.NextVersion(dbc, r.Video.ID, r.Branch, r.Phase)
	if err != nil {
		return nil, err
	}
	out.Phase = r.Phase
	out.Branch = r.Branch
	out.Version = version
	rawOut, err := out.Marshal()
	if err != nil {
		return nil, err
	}

	cp := &domain.Checkpoint{
		VideoID:     r.Video.ID,
		OwnerUserID: r.Video.OwnerUserID,
		BranchName:  r.Branch,
		PhaseNumber: r.Phase,
		Version:     version,
		Status:      domain.CheckpointStatusPending,
		Cost:        cost,
		PhaseOutput: datatypes.JSON(rawOut),
	}
	if r.Parent != nil {
		parentID := r.Parent.ID
		cp.ParentCheckpointID = &parentID
	}
	cp, err = r.Checkpoints.Create(dbc, cp)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}

	for _, a := range artifacts {
		if _, err := r.Artifacts.Create(dbc, &domain.Artifact{
			CheckpointID: cp.ID,
			Type:         a.Type,
			Key:          a.Key,
			Version:      1,
			BlobKey:      a.BlobKey,
			BlobURL:      a.BlobURL,
			Size:         a.Size,
		}); err != nil {
			return nil, fmt.Errorf("create artifact %s/%s: %w", a.Type, a.Key, err)
		}
	}

	if videoUpdates == nil {
		videoUpdates = map[string]interface{}{}
	}
	outputs, err := r.Video.WithPhaseOutput(domain.PhaseOutputKey(r.Phase), out)
	if err != nil {
		return nil, err
	}
	videoUpdates["phase_outputs"] = outputs
	videoUpdates["progress"] = EndPct(r.Phase)

	terminal := r.Phase >= domain.TerminalPhase
	autoContinue := r.Video.AutoContinue && !terminal

	switch {
	case terminal:
		now := time.Now().UTC()
		videoUpdates["status"] = domain.VideoStatusComplete
		videoUpdates["completed_at"] = now
		if err := r.Checkpoints.Approve(dbc, cp.ID); err != nil {
			return nil, err
		}
	case autoContinue:
		videoUpdates["status"] = domain.VideoStatusRunningPhase(r.Phase + 1)
	default:
		videoUpdates["status"] = domain.VideoStatusPausedAtPhase(r.Phase)
	}

	if err := r.Videos.UpdateFields(dbc, r.Video.ID, videoUpdates); err != nil {
		return nil, err
	}
	if cost > 0 {
		if err := r.Videos.AddCost(dbc, r.Video.ID, cost); err != nil {
			return nil, err
		}
		r.Video.Cost += cost
	}
	if s, ok := videoUpdates["status"].(string); ok {
		r.Video.Status = s
	}

	if autoContinue {
		if err := r.autoContinue(dbc, cp); err != nil {
			return nil, err
		}
	}

	r.Publish(EndPct(r.Phase), func(snap *redis.ProgressSnapshot) {
		if terminal {
			if u, ok := videoUpdates["final_video_url"].(string); ok {
				snap.FinalVideoURL = u
			}
		}
	})
	r.Log.Info("phase complete", "video_id", r.Video.ID, "phase", r.Phase,
		"branch", r.Branch, "version", version, "checkpoint_id", cp.ID,
		"cost", cost, "auto_continue", autoContinue)
	return cp, nil
}

func (r *Run) autoContinue(dbc dbctx.Context, cp *domain.Checkpoint) error {
	if err := r.Checkpoints.Approve(dbc, cp.ID); err != nil {
		return err
	}
	jobType, err := services.JobTypeForPhase(r.Phase + 1)
	if err != nil {
		return err
	}
	_, err = r.Jobs.Enqueue(dbc, r.Video.OwnerUserID, jobType, r.Video.ID, map[string]any{
		"branch":               r.Branch,
		"parent_checkpoint_id": cp.ID.String(),
	})
	return err
}

// OwnerAndVideo is a convenience for steps that address blobs.
func (r *Run) OwnerAndVideo() (uuid.UUID, uuid.UUID) {
	return r.Video.OwnerUserID, r.Video.ID
}
