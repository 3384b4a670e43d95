package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/reelforge/reelforge-backend/internal/clients/gcs"
	"github.com/reelforge/reelforge-backend/internal/clients/imagegen"
	"github.com/reelforge/reelforge-backend/internal/clients/videogen"
	"github.com/reelforge/reelforge-backend/internal/data/repos"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/modules/video/steps"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
	"github.com/reelforge/reelforge-backend/internal/services"
)

// CheckpointEditService applies checkpoint-scoped edits. Every edit writes
// a new artifact version row on the SAME checkpoint; it never creates a
// checkpoint. The fork happens later, when an edited checkpoint is
// continued. Edits are gated to the phase whose output they touch.
type CheckpointEditService interface {
	UpdateSpec(ctx context.Context, owner, videoID, checkpointID uuid.UUID, patch map[string]any) (*domain.Artifact, error)
	UploadBeatImage(ctx context.Context, owner, videoID, checkpointID uuid.UUID, beatIndex int, image []byte) (*domain.Artifact, error)
	RegenerateBeat(ctx context.Context, owner, videoID, checkpointID uuid.UUID, beatIndex int, promptOverride string) (*domain.Artifact, error)
	RegenerateChunk(ctx context.Context, owner, videoID, checkpointID uuid.UUID, chunkIndex int, promptOverride, modelOverride string) (*domain.Artifact, error)
}

type checkpointEditService struct {
	log         *logger.Logger
	videos      repos.VideoRepo
	checkpoints repos.CheckpointRepo
	artifacts   repos.ArtifactRepo
	jobs        services.JobService
	bucket      gcs.BucketService
	images      imagegen.Client
	gen         videogen.Client
	media       services.MediaToolsService
	http        *http.Client
}

func NewCheckpointEditService(
	log *logger.Logger,
	videos repos.VideoRepo,
	checkpoints repos.CheckpointRepo,
	artifacts repos.ArtifactRepo,
	jobs services.JobService,
	bucket gcs.BucketService,
	images imagegen.Client,
	gen videogen.Client,
	media services.MediaToolsService,
	httpClient *http.Client,
) CheckpointEditService {
	return &checkpointEditService{
		log:         log.With("service", "CheckpointEditService"),
		videos:      videos,
		checkpoints: checkpoints,
		artifacts:   artifacts,
		jobs:        jobs,
		bucket:      bucket,
		images:      images,
		gen:         gen,
		media:       media,
		http:        httpClient,
	}
}

// target loads and gates the edit target: ownership, checkpoint/video
// pairing, phase match and no runnable phase job for the video.
func (s *checkpointEditService) target(ctx context.Context, owner, videoID, checkpointID uuid.UUID, phase int) (dbctx.Context, *domain.Video, *domain.Checkpoint, *domain.PhaseOutput, error) {
	dbc := dbctx.Context{Ctx: ctx}

	video, err := s.videos.GetForOwner(dbc, owner, videoID)
	if err != nil {
		return dbc, nil, nil, nil, err
	}
	cp, err := s.checkpoints.GetForOwner(dbc, owner, checkpointID)
	if err != nil {
		return dbc, nil, nil, nil, err
	}
	if cp.VideoID != video.ID {
		return dbc, nil, nil, nil, apperr.Validationf("checkpoint %s does not belong to video %s", checkpointID, videoID)
	}
	if cp.PhaseNumber != phase {
		return dbc, nil, nil, nil, apperr.Validationf("this edit applies to phase %d checkpoints, got phase %d", phase, cp.PhaseNumber)
	}
	running, err := s.jobs.HasRunnableForVideo(dbc, owner, videoID)
	if err != nil {
		return dbc, nil, nil, nil, err
	}
	if running {
		return dbc, nil, nil, nil, apperr.Validationf("a phase task is running for video %s; wait for it to finish", videoID)
	}

	out, err := domain.UnmarshalPhaseOutput(cp.PhaseOutput)
	if err != nil {
		return dbc, nil, nil, nil, apperr.Integrityf("checkpoint %s has no readable phase output: %v", cp.ID, err)
	}
	return dbc, video, cp, out, nil
}

// newVersion inserts the next artifact version row, parented on the
// current latest so the lineage is walkable.
func (s *checkpointEditService) newVersion(dbc dbctx.Context, cp *domain.Checkpoint, artifactType, key, blobKey, blobURL string, size int64, metadata map[string]any) (*domain.Artifact, error) {
	version, err := s.artifacts.NextVersion(dbc, cp.ID, artifactType, key)
	if err != nil {
		return nil, err
	}
	var parentID *uuid.UUID
	if prev, err := s.artifacts.LatestVersion(dbc, cp.ID, artifactType, key); err == nil && prev != nil {
		parentID = &prev.ID
	}

	var meta datatypes.JSON
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal artifact metadata: %w", err)
		}
		meta = datatypes.JSON(b)
	}

	return s.artifacts.Create(dbc, &domain.Artifact{
		CheckpointID:     cp.ID,
		Type:             artifactType,
		Key:              key,
		Version:          version,
		BlobKey:          blobKey,
		BlobURL:          blobURL,
		ParentArtifactID: parentID,
		Metadata:         meta,
		Size:             size,
	})
}

func (s *checkpointEditService) savePhaseOutput(dbc dbctx.Context, cp *domain.Checkpoint, out *domain.PhaseOutput) error {
	raw, err := out.Marshal()
	if err != nil {
		return err
	}
	return s.checkpoints.UpdatePhaseOutput(dbc, cp.ID, raw)
}

// UpdateSpec applies a shallow patch to the phase-1 plan. Beat timings are
// re-validated so a patch cannot break the sum invariant.
func (s *checkpointEditService) UpdateSpec(ctx context.Context, owner, videoID, checkpointID uuid.UUID, patch map[string]any) (*domain.Artifact, error) {
	if len(patch) == 0 {
		return nil, apperr.Validationf("empty spec patch")
	}
	dbc, video, cp, out, err := s.target(ctx, owner, videoID, checkpointID, 1)
	if err != nil {
		return nil, err
	}
	if out.Plan == nil {
		return nil, apperr.Integrityf("checkpoint %s has no plan output", cp.ID)
	}

	specMap := map[string]any{}
	base, err := json.Marshal(out.Plan.Spec)
	if err != nil {
		return nil, fmt.Errorf("marshal spec: %w", err)
	}
	if err := json.Unmarshal(base, &specMap); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	for k, v := range patch {
		specMap[k] = v
	}

	patched, err := json.Marshal(specMap)
	if err != nil {
		return nil, apperr.Validationf("bad spec patch: %v", err)
	}
	var spec domain.VideoSpec
	if err := json.Unmarshal(patched, &spec); err != nil {
		return nil, apperr.Validationf("patched spec does not parse: %v", err)
	}
	if len(spec.Beats) == 0 {
		return nil, apperr.Validationf("patched spec has no beats")
	}
	if math.Abs(spec.TotalBeatDuration()-spec.Duration) > 0.01 {
		return nil, apperr.Validationf("beat durations sum to %.2fs, spec duration is %.2fs", spec.TotalBeatDuration(), spec.Duration)
	}
	if _, err := videogen.LookupModel(spec.Model); err != nil {
		return nil, apperr.Validationf("%v", err)
	}

	version, err := s.artifacts.NextVersion(dbc, cp.ID, domain.ArtifactTypeSpec, "spec")
	if err != nil {
		return nil, err
	}
	blobKey := steps.BlobKey(owner, videoID, steps.SpecVersionName(version))
	if err := s.bucket.Upload(ctx, blobKey, bytes.NewReader(patched)); err != nil {
		return nil, err
	}

	artifact, err := s.newVersion(dbc, cp, domain.ArtifactTypeSpec, "spec",
		blobKey, s.bucket.PublicURL(blobKey), int64(len(patched)),
		map[string]any{"patched_fields": patchKeys(patch)})
	if err != nil {
		return nil, err
	}

	out.Plan.Spec = spec
	if err := s.savePhaseOutput(dbc, cp, out); err != nil {
		return nil, err
	}
	if err := s.videos.UpdateFields(dbc, video.ID, map[string]interface{}{
		"spec": datatypes.JSON(patched),
	}); err != nil {
		return nil, err
	}

	s.log.Info("spec patched", "video_id", videoID, "checkpoint_id", cp.ID, "version", artifact.Version)
	return artifact, nil
}

func patchKeys(patch map[string]any) []string {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	return keys
}

// UploadBeatImage swaps in a user-provided storyboard frame.
func (s *checkpointEditService) UploadBeatImage(ctx context.Context, owner, videoID, checkpointID uuid.UUID, beatIndex int, image []byte) (*domain.Artifact, error) {
	if len(image) == 0 {
		return nil, apperr.Validationf("empty image")
	}
	dbc, _, cp, out, err := s.target(ctx, owner, videoID, checkpointID, 2)
	if err != nil {
		return nil, err
	}
	if out.Storyboard == nil {
		return nil, apperr.Integrityf("checkpoint %s has no storyboard output", cp.ID)
	}
	if beatIndex < 0 || beatIndex >= len(out.Storyboard.Spec.Beats) {
		return nil, apperr.Validationf("beat index %d out of range (have %d beats)", beatIndex, len(out.Storyboard.Spec.Beats))
	}

	return s.storeBeatImage(ctx, dbc, owner, videoID, cp, out, beatIndex, image, map[string]any{
		"beat_index": beatIndex,
		"source":     "upload",
	})
}

// RegenerateBeat re-runs image generation for one storyboard frame,
// optionally with a new prompt.
func (s *checkpointEditService) RegenerateBeat(ctx context.Context, owner, videoID, checkpointID uuid.UUID, beatIndex int, promptOverride string) (*domain.Artifact, error) {
	dbc, video, cp, out, err := s.target(ctx, owner, videoID, checkpointID, 2)
	if err != nil {
		return nil, err
	}
	if out.Storyboard == nil {
		return nil, apperr.Integrityf("checkpoint %s has no storyboard output", cp.ID)
	}
	spec := &out.Storyboard.Spec
	if beatIndex < 0 || beatIndex >= len(spec.Beats) {
		return nil, apperr.Validationf("beat index %d out of range (have %d beats)", beatIndex, len(spec.Beats))
	}

	prompt := promptOverride
	if prompt == "" {
		prompt = steps.BuildBeatPrompt(spec, spec.Beats[beatIndex])
	}
	req := imagegen.ImageRequest{Prompt: prompt, Width: 1280, Height: 720}
	if ref, ok := spec.Product["image_url"].(string); ok {
		req.ReferenceImageURL = ref
	}
	result, err := s.images.GenerateImage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: regenerate beat %d: %v", apperr.ErrExternal, beatIndex, err)
	}

	artifact, err := s.storeBeatImage(ctx, dbc, owner, videoID, cp, out, beatIndex, result.Bytes, map[string]any{
		"beat_index": beatIndex,
		"source":     "regenerate",
		"prompt":     prompt,
	})
	if err != nil {
		return nil, err
	}
	if result.Cost > 0 {
		if err := s.videos.AddCost(dbc, video.ID, result.Cost); err != nil {
			return nil, err
		}
	}
	return artifact, nil
}

func (s *checkpointEditService) storeBeatImage(ctx context.Context, dbc dbctx.Context, owner, videoID uuid.UUID, cp *domain.Checkpoint, out *domain.PhaseOutput, beatIndex int, image []byte, metadata map[string]any) (*domain.Artifact, error) {
	key := fmt.Sprintf("beat_%d", beatIndex)
	version, err := s.artifacts.NextVersion(dbc, cp.ID, domain.ArtifactTypeBeatImage, key)
	if err != nil {
		return nil, err
	}
	blobKey := steps.BlobKey(owner, videoID, steps.BeatImageVersionName(beatIndex, version))
	if err := s.bucket.Upload(ctx, blobKey, bytes.NewReader(image)); err != nil {
		return nil, err
	}
	blobURL := s.bucket.PublicURL(blobKey)

	artifact, err := s.newVersion(dbc, cp, domain.ArtifactTypeBeatImage, key, blobKey, blobURL, int64(len(image)), metadata)
	if err != nil {
		return nil, err
	}

	// Phase 3 seeds anchors from the storyboard, so the swapped frame has
	// to land in the checkpoint output too.
	out.Storyboard.Spec.Beats[beatIndex].ImageURL = blobURL
	out.Storyboard.Spec.Beats[beatIndex].ImageBlobKey = blobKey
	if beatIndex < len(out.Storyboard.BeatImageURLs) {
		out.Storyboard.BeatImageURLs[beatIndex] = blobURL
	}
	if err := s.savePhaseOutput(dbc, cp, out); err != nil {
		return nil, err
	}

	s.log.Info("beat image updated", "video_id", videoID, "checkpoint_id", cp.ID,
		"beat", beatIndex, "version", artifact.Version)
	return artifact, nil
}

// RegenerateChunk re-renders one chunk against the same plan geometry and
// records it as the next version. The stitched result is NOT rebuilt here;
// continuing the edited checkpoint re-runs the downstream phases.
func (s *checkpointEditService) RegenerateChunk(ctx context.Context, owner, videoID, checkpointID uuid.UUID, chunkIndex int, promptOverride, modelOverride string) (*domain.Artifact, error) {
	dbc, video, cp, out, err := s.target(ctx, owner, videoID, checkpointID, 3)
	if err != nil {
		return nil, err
	}
	if out.Chunks == nil {
		return nil, apperr.Integrityf("checkpoint %s has no chunks output", cp.ID)
	}
	spec := &out.Chunks.Spec

	model, err := videogen.LookupModel(spec.Model)
	if err != nil {
		return nil, apperr.Integrityf("%v", err)
	}
	renderSpec := spec
	renderModel := model
	if modelOverride != "" && modelOverride != spec.Model {
		renderModel, err = videogen.LookupModel(modelOverride)
		if err != nil {
			return nil, apperr.Validationf("%v", err)
		}
		cloned := *spec
		cloned.Model = renderModel.ID
		renderSpec = &cloned
	}
	plan, err := steps.PlanChunks(spec, model)
	if err != nil {
		return nil, err
	}
	if chunkIndex < 0 || chunkIndex >= len(plan.Chunks) {
		return nil, apperr.Validationf("chunk index %d out of range (have %d chunks)", chunkIndex, len(plan.Chunks))
	}
	chunk := plan.Chunks[chunkIndex]
	if promptOverride != "" {
		chunk.Prompt = promptOverride
	}

	initImage, err := initImageForChunk(s.bucket, owner, videoID, spec, chunk)
	if err != nil {
		return nil, err
	}

	key := domain.ChunkVersionKey(chunkIndex)
	version, err := s.artifacts.NextVersion(dbc, cp.ID, domain.ArtifactTypeVideoChunk, key)
	if err != nil {
		return nil, err
	}

	deps := steps.ChunkRenderDeps{Log: s.log, Gen: s.gen, Bucket: s.bucket, Media: s.media, HTTP: s.http}
	in := steps.ChunkRenderInput{OwnerUserID: owner, VideoID: videoID, Spec: renderSpec, Plan: plan, Model: renderModel}
	rendered, err := steps.RenderChunkVersion(ctx, deps, in, chunk, initImage, steps.ChunkVersionName(chunkIndex, version))
	if err != nil {
		return nil, err
	}

	artifact, err := s.newVersion(dbc, cp, domain.ArtifactTypeVideoChunk, key,
		rendered.BlobKey, rendered.BlobURL, 0, map[string]any{
			"chunk_index": chunkIndex,
			"model":       renderModel.ID,
			"prompt":      chunk.Prompt,
		})
	if err != nil {
		return nil, err
	}

	if chunkIndex < len(out.Chunks.ChunkURLs) {
		out.Chunks.ChunkURLs[chunkIndex] = rendered.BlobURL
	}
	if chunkIndex < len(out.Chunks.ChunkBlobKeys) {
		out.Chunks.ChunkBlobKeys[chunkIndex] = rendered.BlobKey
	}
	if err := s.savePhaseOutput(dbc, cp, out); err != nil {
		return nil, err
	}
	if rendered.Cost > 0 {
		if err := s.videos.AddCost(dbc, video.ID, rendered.Cost); err != nil {
			return nil, err
		}
	}

	s.log.Info("chunk regenerated", "video_id", videoID, "checkpoint_id", cp.ID,
		"chunk", chunkIndex, "version", artifact.Version, "cost", rendered.Cost)
	return artifact, nil
}

// initImageForChunk mirrors the phase-3 seeding rule: anchors start from
// their beat's storyboard frame, continuations from their anchor's last
// frame.
func initImageForChunk(bucket gcs.BucketService, owner, videoID uuid.UUID, spec *domain.VideoSpec, chunk steps.PlannedChunk) (string, error) {
	if chunk.Anchor {
		beat := spec.Beats[chunk.BeatIndex]
		if beat.ImageBlobKey != "" {
			return bucket.SignedURL(beat.ImageBlobKey)
		}
		if beat.ImageURL == "" {
			return "", apperr.Integrityf("beat %d has no storyboard image", chunk.BeatIndex)
		}
		return beat.ImageURL, nil
	}
	frameKey := steps.BlobKey(owner, videoID, steps.ChunkLastFrameName(chunk.AnchorIndex))
	return bucket.SignedURL(frameKey)
}
