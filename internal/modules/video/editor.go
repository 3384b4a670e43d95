package video

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/reelforge/reelforge-backend/internal/clients/gcs"
	"github.com/reelforge/reelforge-backend/internal/clients/redis"
	"github.com/reelforge/reelforge-backend/internal/clients/videogen"
	"github.com/reelforge/reelforge-backend/internal/data/repos"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/modules/video/steps"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
	"github.com/reelforge/reelforge-backend/internal/services"
)

// Parts shorter than this are almost certainly selector mistakes.
const minSplitPart = 0.5

type ActionCost struct {
	Position int     `json:"position"`
	Type     string  `json:"type"`
	Cost     float64 `json:"cost"`
}

type CostEstimate struct {
	Total     float64      `json:"total"`
	PerAction []ActionCost `json:"per_action"`
}

type EditResult struct {
	FinalVideoURL string   `json:"final_video_url"`
	StitchedURL   string   `json:"stitched_url"`
	ChunkURLs     []string `json:"chunk_urls"`
	Cost          float64  `json:"cost"`
	Applied       int      `json:"applied"`
}

// EditorService is the non-destructive post-completion editor. Submit
// enqueues the edit as a job; Apply is what the job handler runs. Every
// rendition ever produced stays addressable through the editing state, so
// any action sequence can be walked back.
type EditorService interface {
	Submit(ctx context.Context, owner, videoID uuid.UUID, actions []EditAction) (*domain.JobRun, error)
	EstimateCost(ctx context.Context, owner, videoID uuid.UUID, actions []EditAction) (*CostEstimate, error)
	Apply(ctx context.Context, owner, videoID uuid.UUID, actions []EditAction) (*EditResult, error)
	State(ctx context.Context, owner, videoID uuid.UUID) (*domain.EditingState, error)
}

type editorService struct {
	log          *logger.Logger
	videos       repos.VideoRepo
	checkpoints  repos.CheckpointRepo
	artifacts    repos.ArtifactRepo
	jobs         services.JobService
	progress     services.ProgressService
	bucket       gcs.BucketService
	media        services.MediaToolsService
	gen          videogen.Client
	http         *http.Client
	stitchBudget time.Duration
}

func NewEditorService(
	log *logger.Logger,
	videos repos.VideoRepo,
	checkpoints repos.CheckpointRepo,
	artifacts repos.ArtifactRepo,
	jobs services.JobService,
	progress services.ProgressService,
	bucket gcs.BucketService,
	media services.MediaToolsService,
	gen videogen.Client,
	httpClient *http.Client,
	stitchBudget time.Duration,
) EditorService {
	return &editorService{
		log:          log.With("service", "EditorService"),
		videos:       videos,
		checkpoints:  checkpoints,
		artifacts:    artifacts,
		jobs:         jobs,
		progress:     progress,
		bucket:       bucket,
		media:        media,
		gen:          gen,
		http:         httpClient,
		stitchBudget: stitchBudget,
	}
}

func (s *editorService) editable(dbc dbctx.Context, owner, videoID uuid.UUID) (*domain.Video, error) {
	video, err := s.videos.GetForOwner(dbc, owner, videoID)
	if err != nil {
		return nil, err
	}
	if video.FinalVideoURL == "" {
		return nil, apperr.Validationf("video %s has no final cut yet; finish the pipeline first", videoID)
	}
	running, err := s.jobs.HasRunnableForVideo(dbc, owner, videoID)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, apperr.Validationf("video %s has a task running; wait for it to finish", videoID)
	}
	return video, nil
}

func (s *editorService) Submit(ctx context.Context, owner, videoID uuid.UUID, actions []EditAction) (*domain.JobRun, error) {
	if len(actions) == 0 {
		return nil, apperr.Validationf("no edit actions")
	}
	dbc := dbctx.Context{Ctx: ctx}
	video, err := s.editable(dbc, owner, videoID)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Enqueue(dbc, owner, services.JobTypeEdit, video.ID, map[string]any{
		"actions": actions,
	})
	if err != nil {
		return nil, err
	}
	if err := s.videos.UpdateFields(dbc, video.ID, map[string]interface{}{
		"status": domain.VideoStatusEditing,
	}); err != nil {
		return nil, err
	}
	s.progress.Publish(ctx, redis.ProgressSnapshot{
		VideoID: video.ID.String(),
		Status:  domain.VideoStatusEditing,
	})
	s.log.Info("edit submitted", "video_id", videoID, "actions", len(actions), "job_id", job.ID)
	return job, nil
}

// EstimateCost prices an action list without touching anything. Only
// replacements cost money; bookkeeping actions are free.
func (s *editorService) EstimateCost(ctx context.Context, owner, videoID uuid.UUID, actions []EditAction) (*CostEstimate, error) {
	dbc := dbctx.Context{Ctx: ctx}
	video, err := s.videos.GetForOwner(dbc, owner, videoID)
	if err != nil {
		return nil, err
	}
	spec, err := decodeSpec(video)
	if err != nil {
		return nil, err
	}
	model, err := videogen.LookupModel(spec.Model)
	if err != nil {
		return nil, apperr.Integrityf("%v", err)
	}

	est := &CostEstimate{PerAction: make([]ActionCost, 0, len(actions))}
	for i, a := range actions {
		cost := 0.0
		if a.Type == ActionReplace {
			cost = model.CostPerGeneration
		}
		est.PerAction = append(est.PerAction, ActionCost{Position: i, Type: a.Type, Cost: cost})
		est.Total += cost
	}
	return est, nil
}

func (s *editorService) State(ctx context.Context, owner, videoID uuid.UUID) (*domain.EditingState, error) {
	dbc := dbctx.Context{Ctx: ctx}
	video, err := s.videos.GetForOwner(dbc, owner, videoID)
	if err != nil {
		return nil, err
	}
	return loadEditingState(video)
}

// Apply runs the action list sequentially against an in-memory timeline,
// aborting on the first failure, then re-stitches and persists everything
// in one update. A failed edit leaves the stored video untouched.
func (s *editorService) Apply(ctx context.Context, owner, videoID uuid.UUID, actions []EditAction) (*EditResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	video, err := s.videos.GetForOwner(dbc, owner, videoID)
	if err != nil {
		return nil, err
	}
	spec, err := decodeSpec(video)
	if err != nil {
		return nil, err
	}
	model, err := videogen.LookupModel(spec.Model)
	if err != nil {
		return nil, apperr.Integrityf("%v", err)
	}
	state, err := loadEditingState(video)
	if err != nil {
		return nil, err
	}
	timeline := state.Timeline

	// Replacements version against the chunk checkpoint; resolve it once.
	var chunkCP *domain.Checkpoint
	for _, a := range actions {
		if a.Type == ActionReplace {
			chunkCP, err = s.chunkCheckpoint(dbc, videoID)
			if err != nil {
				return nil, err
			}
			break
		}
	}

	totalCost := 0.0
	for i, a := range actions {
		switch a.Type {
		case ActionReorder:
			timeline, err = applyReorder(timeline, a.Order)
		case ActionDelete:
			timeline, err = applyDelete(timeline, a.Indices)
		case ActionSelectVersion:
			err = selectVersion(state, timeline, a.ChunkIndex, a.VersionID)
		case ActionReplace:
			var cost float64
			cost, err = s.replaceChunk(ctx, dbc, owner, videoID, chunkCP, spec, model, state, timeline, a)
			totalCost += cost
		case ActionSplit:
			timeline, err = s.splitChunk(ctx, owner, videoID, spec, state, timeline, a)
		case ActionUndoSplit:
			timeline, err = undoSplit(state, timeline, a.OriginalIndex)
		default:
			err = apperr.Validationf("unknown action type %q", a.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("action %d (%s): %w", i, a.Type, err)
		}
	}
	state.Timeline = timeline

	chunkKeys := make([]string, len(timeline))
	chunkURLs := make([]string, len(timeline))
	for i, ref := range timeline {
		chunkKeys[i] = ref.BlobKey
		chunkURLs[i] = ref.URL
	}

	stitched, err := steps.Stitch(ctx, steps.StitchDeps{Log: s.log, Bucket: s.bucket, Media: s.media}, steps.StitchInput{
		OwnerUserID: owner,
		VideoID:     videoID,
		ChunkKeys:   chunkKeys,
		Budget:      s.stitchBudget,
	})
	if err != nil {
		return nil, err
	}

	finalURL, err := s.remixFinal(ctx, owner, videoID, video, stitched.BlobKey)
	if err != nil {
		return nil, err
	}

	urlsJSON, err := json.Marshal(chunkURLs)
	if err != nil {
		return nil, err
	}
	outputs, err := video.WithPhaseOutput(domain.EditingStateKey, state)
	if err != nil {
		return nil, err
	}
	if err := s.videos.UpdateFields(dbc, video.ID, map[string]interface{}{
		"chunk_urls":      datatypes.JSON(urlsJSON),
		"phase_outputs":   outputs,
		"stitched_url":    stitched.BlobURL,
		"final_video_url": finalURL,
		"status":          domain.VideoStatusComplete,
	}); err != nil {
		return nil, err
	}
	if totalCost > 0 {
		if err := s.videos.AddCost(dbc, video.ID, totalCost); err != nil {
			return nil, err
		}
	}

	s.log.Info("edit applied", "video_id", videoID,
		"actions", len(actions), "chunks", len(timeline), "cost", totalCost)
	return &EditResult{
		FinalVideoURL: finalURL,
		StitchedURL:   stitched.BlobURL,
		ChunkURLs:     chunkURLs,
		Cost:          totalCost,
		Applied:       len(actions),
	}, nil
}

// replaceChunk renders a fresh rendition for the chunk at a timeline
// position, records it as a new artifact version on the chunk checkpoint
// and selects it.
func (s *editorService) replaceChunk(ctx context.Context, dbc dbctx.Context, owner, videoID uuid.UUID, cp *domain.Checkpoint, spec *domain.VideoSpec, model videogen.ModelSpec, state *domain.EditingState, timeline []domain.ChunkRef, a EditAction) (float64, error) {
	if a.Prompt == "" {
		return 0, apperr.Validationf("replace needs a prompt")
	}
	if err := validatePosition(timeline, a.ChunkIndex); err != nil {
		return 0, err
	}
	origIdx, err := originalIndexAt(state, timeline, a.ChunkIndex)
	if err != nil {
		return 0, err
	}

	plan, err := steps.PlanChunks(spec, model)
	if err != nil {
		return 0, err
	}
	if origIdx >= len(plan.Chunks) {
		return 0, apperr.Integrityf("chunk %d not in the plan", origIdx)
	}
	chunk := plan.Chunks[origIdx]
	chunk.Prompt = a.Prompt

	initImage, err := initImageForChunk(s.bucket, owner, videoID, spec, chunk)
	if err != nil {
		return 0, err
	}

	version, err := s.artifacts.NextVersion(dbc, cp.ID, domain.ArtifactTypeVideoChunk, domain.ChunkVersionKey(origIdx))
	if err != nil {
		return 0, err
	}

	deps := steps.ChunkRenderDeps{Log: s.log, Gen: s.gen, Bucket: s.bucket, Media: s.media, HTTP: s.http}
	in := steps.ChunkRenderInput{OwnerUserID: owner, VideoID: videoID, Spec: spec, Plan: plan, Model: model}
	rendered, err := steps.RenderChunkVersion(ctx, deps, in, chunk, initImage, steps.ChunkVersionName(origIdx, version))
	if err != nil {
		return 0, err
	}

	ref := domain.ChunkRef{
		URL:       rendered.BlobURL,
		BlobKey:   rendered.BlobKey,
		Model:     model.ID,
		CreatedAt: time.Now().UTC(),
	}
	// The row lands with the blob; an aborted request leaves both behind,
	// same as any stray upload.
	art, err := s.recordChunkArtifact(dbc, cp, origIdx, version, ref, rendered.Cost)
	if err != nil {
		return 0, err
	}
	ref.ArtifactID = &art.ID
	if _, err := recordReplacement(state, timeline, a.ChunkIndex, ref); err != nil {
		return 0, err
	}
	return rendered.Cost, nil
}

// chunkCheckpoint finds the most recent phase-3 checkpoint, whichever
// branch it sits on.
func (s *editorService) chunkCheckpoint(dbc dbctx.Context, videoID uuid.UUID) (*domain.Checkpoint, error) {
	cps, err := s.checkpoints.ListByVideo(dbc, videoID, "")
	if err != nil {
		return nil, err
	}
	var latest *domain.Checkpoint
	for _, cp := range cps {
		if cp.PhaseNumber == 3 {
			latest = cp
		}
	}
	if latest == nil {
		return nil, apperr.Integrityf("video %s has no chunk checkpoint", videoID)
	}
	return latest, nil
}

// recordChunkArtifact inserts the next video_chunk artifact version for
// the chunk, parented on the previous latest.
func (s *editorService) recordChunkArtifact(dbc dbctx.Context, cp *domain.Checkpoint, origIdx, version int, ref domain.ChunkRef, cost float64) (*domain.Artifact, error) {
	key := domain.ChunkVersionKey(origIdx)
	var parentID *uuid.UUID
	if prev, err := s.artifacts.LatestVersion(dbc, cp.ID, domain.ArtifactTypeVideoChunk, key); err == nil && prev != nil {
		parentID = &prev.ID
	}
	meta, err := json.Marshal(map[string]any{"model": ref.Model, "cost": cost})
	if err != nil {
		return nil, fmt.Errorf("marshal artifact metadata: %w", err)
	}
	return s.artifacts.Create(dbc, &domain.Artifact{
		CheckpointID:     cp.ID,
		Type:             domain.ArtifactTypeVideoChunk,
		Key:              key,
		Version:          version,
		BlobKey:          ref.BlobKey,
		BlobURL:          ref.URL,
		ParentArtifactID: parentID,
		Metadata:         datatypes.JSON(meta),
	})
}

// splitChunk cuts the chunk at a timeline position into two parts at the
// requested point and swaps them into the timeline.
func (s *editorService) splitChunk(ctx context.Context, owner, videoID uuid.UUID, spec *domain.VideoSpec, state *domain.EditingState, timeline []domain.ChunkRef, a EditAction) ([]domain.ChunkRef, error) {
	if err := validatePosition(timeline, a.ChunkIndex); err != nil {
		return nil, err
	}
	origIdx, err := originalIndexAt(state, timeline, a.ChunkIndex)
	if err != nil {
		return nil, err
	}
	src := timeline[a.ChunkIndex]

	workDir, err := s.media.WorkDir(videoID.String(), "edit")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	srcPath := filepath.Join(workDir, "split_src.mp4")
	if err := s.bucket.DownloadToFile(ctx, src.BlobKey, srcPath); err != nil {
		return nil, fmt.Errorf("download chunk: %w", err)
	}
	probe, err := s.media.Probe(ctx, srcPath)
	if err != nil {
		return nil, err
	}

	splitAt, err := resolveSplitPoint(a, probe.Duration, probe.FPS)
	if err != nil {
		return nil, err
	}

	part1Path := filepath.Join(workDir, steps.ChunkPartName(origIdx, 1))
	part2Path := filepath.Join(workDir, steps.ChunkPartName(origIdx, 2))
	if err := s.media.Slice(ctx, srcPath, part1Path, 0, splitAt); err != nil {
		return nil, err
	}
	if err := s.media.Slice(ctx, srcPath, part2Path, splitAt, probe.Duration-splitAt); err != nil {
		return nil, err
	}

	part1Key := steps.BlobKey(owner, videoID, steps.ChunkPartName(origIdx, 1))
	part2Key := steps.BlobKey(owner, videoID, steps.ChunkPartName(origIdx, 2))
	if err := s.bucket.UploadFromFile(ctx, part1Key, part1Path); err != nil {
		return nil, err
	}
	if err := s.bucket.UploadFromFile(ctx, part2Key, part2Path); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	part1 := domain.ChunkRef{URL: s.bucket.PublicURL(part1Key), BlobKey: part1Key, CreatedAt: now}
	part2 := domain.ChunkRef{URL: s.bucket.PublicURL(part2Key), BlobKey: part2Key, CreatedAt: now}
	rec := &domain.SplitRecord{
		OriginalIndex: origIdx,
		OriginalURL:   src.URL,
		OriginalKey:   src.BlobKey,
		SplitTime:     splitAt,
		Part1URL:      part1.URL,
		Part2URL:      part2.URL,
		Part1Key:      part1Key,
		Part2Key:      part2Key,
		Part1Index:    a.ChunkIndex,
		Part2Index:    a.ChunkIndex + 1,
		CreatedAt:     now,
	}
	return insertSplit(state, timeline, a.ChunkIndex, rec, part1, part2)
}

// resolveSplitPoint turns whichever selector the action carries into
// seconds from the chunk start. Exactly one selector must be set and both
// parts must be at least minSplitPart long.
func resolveSplitPoint(a EditAction, duration float64, fps float64) (float64, error) {
	set := 0
	var at float64
	if a.SplitTime != nil {
		set++
		at = *a.SplitTime
	}
	if a.SplitPercentage != nil {
		set++
		p := *a.SplitPercentage
		if p > 1 {
			p /= 100
		}
		at = duration * p
	}
	if a.SplitFrame != nil {
		set++
		if fps <= 0 {
			return 0, apperr.Integrityf("chunk has no frame rate; cannot split by frame")
		}
		at = float64(*a.SplitFrame) / fps
	}
	if set != 1 {
		return 0, apperr.Validationf("split needs exactly one of split_time, split_percentage, split_frame")
	}
	if at < minSplitPart || duration-at < minSplitPart {
		return 0, apperr.Validationf("split at %.2fs leaves a part shorter than %.1fs (chunk is %.2fs)", at, minSplitPart, duration)
	}
	return at, nil
}

func decodeSpec(video *domain.Video) (*domain.VideoSpec, error) {
	if len(video.Spec) == 0 {
		return nil, apperr.Integrityf("video %s has no spec", video.ID)
	}
	var spec domain.VideoSpec
	if err := json.Unmarshal(video.Spec, &spec); err != nil {
		return nil, apperr.Integrityf("video %s spec does not parse: %v", video.ID, err)
	}
	return &spec, nil
}

// loadEditingState reads the stored state or seeds it from the phase-3
// output on the first edit.
func loadEditingState(video *domain.Video) (*domain.EditingState, error) {
	outputs, err := video.PhaseOutputsMap()
	if err != nil {
		return nil, err
	}
	state := &domain.EditingState{
		ChunkVersions: map[string]*domain.ChunkVersionSet{},
		SplitHistory:  map[string]*domain.SplitRecord{},
	}
	if raw, ok := outputs[domain.EditingStateKey]; ok {
		if err := json.Unmarshal(raw, state); err != nil {
			return nil, apperr.Integrityf("editing state does not parse: %v", err)
		}
		if state.ChunkVersions == nil {
			state.ChunkVersions = map[string]*domain.ChunkVersionSet{}
		}
		if state.SplitHistory == nil {
			state.SplitHistory = map[string]*domain.SplitRecord{}
		}
		if len(state.Timeline) > 0 {
			return state, nil
		}
	}

	raw, ok := outputs[domain.PhaseOutputKey(3)]
	if !ok {
		return nil, apperr.Integrityf("video %s has no chunk phase output to edit", video.ID)
	}
	var phase domain.PhaseOutput
	if err := json.Unmarshal(raw, &phase); err != nil || phase.Chunks == nil {
		return nil, apperr.Integrityf("video %s chunk phase output does not parse", video.ID)
	}

	out := phase.Chunks
	if len(out.ChunkURLs) == 0 {
		return nil, apperr.Integrityf("video %s has no chunks", video.ID)
	}
	for i, url := range out.ChunkURLs {
		key := ""
		if i < len(out.ChunkBlobKeys) {
			key = out.ChunkBlobKeys[i]
		}
		ref := domain.ChunkRef{URL: url, BlobKey: key, Model: out.Spec.Model}
		state.Timeline = append(state.Timeline, ref)
		state.ChunkVersions[domain.ChunkVersionKey(i)] = &domain.ChunkVersionSet{
			Original:        ref,
			CurrentSelected: VersionOriginal,
		}
	}
	return state, nil
}

// remixFinal rebuilds the final draft from the fresh composite, re-mixing
// the already chosen track when the video has one.
func (s *editorService) remixFinal(ctx context.Context, owner, videoID uuid.UUID, video *domain.Video, stitchedKey string) (string, error) {
	workDir, err := s.media.WorkDir(videoID.String(), "remix")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(workDir)

	stitchedPath := filepath.Join(workDir, steps.StitchedName)
	if err := s.bucket.DownloadToFile(ctx, stitchedKey, stitchedPath); err != nil {
		return "", fmt.Errorf("download stitched: %w", err)
	}

	finalKey := steps.BlobKey(owner, videoID, steps.FinalDraftName)
	if video.FinalMusicURL == "" {
		if err := s.bucket.UploadFromFile(ctx, finalKey, stitchedPath); err != nil {
			return "", fmt.Errorf("upload final: %w", err)
		}
		return s.bucket.PublicURL(finalKey), nil
	}

	musicKey := steps.BlobKey(owner, videoID, steps.MusicName)
	musicPath := filepath.Join(workDir, steps.MusicName)
	if err := s.bucket.DownloadToFile(ctx, musicKey, musicPath); err != nil {
		return "", fmt.Errorf("download music: %w", err)
	}
	finalPath := filepath.Join(workDir, steps.FinalDraftName)
	if err := s.media.MixMusic(ctx, stitchedPath, musicPath, finalPath); err != nil {
		return "", err
	}
	if err := s.bucket.UploadFromFile(ctx, finalKey, finalPath); err != nil {
		return "", fmt.Errorf("upload final: %w", err)
	}
	return s.bucket.PublicURL(finalKey), nil
}
