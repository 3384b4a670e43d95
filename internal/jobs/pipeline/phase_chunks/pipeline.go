package phase_chunks

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/reelforge/reelforge-backend/internal/clients/videogen"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phasekit"
	"github.com/reelforge/reelforge-backend/internal/jobs/runtime"
	"github.com/reelforge/reelforge-backend/internal/modules/video/steps"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
)

func (p *Pipeline) Run(jc *runtime.Context) error {
	r, err := phasekit.Begin(jc, p.deps, 3)
	if err != nil {
		jc.Fail("init", err)
		return err
	}

	parent, err := r.ParentOutput()
	if err != nil {
		r.FailVideo("parent", err)
		return err
	}
	if parent.Storyboard == nil {
		err := apperr.Integrityf("parent checkpoint has no storyboard output")
		r.FailVideo("parent", err)
		return err
	}
	spec := parent.Storyboard.Spec

	model, err := videogen.LookupModel(spec.Model)
	if err != nil {
		r.FailVideo("model", apperr.Integrityf("%v", err))
		return err
	}
	plan, err := steps.PlanChunks(&spec, model)
	if err != nil {
		r.FailVideo("plan", err)
		return err
	}

	owner, videoID := r.OwnerAndVideo()
	jc.Progress("render", 45, "rendering chunks")
	rendered, err := steps.RenderChunks(jc.Ctx, steps.ChunkRenderDeps{
		Log:    r.Log,
		Gen:    r.Gen,
		Bucket: r.Bucket,
		Media:  r.Media,
		HTTP:   r.HTTP,
	}, steps.ChunkRenderInput{
		OwnerUserID: owner,
		VideoID:     videoID,
		Spec:        &spec,
		Plan:        plan,
		Model:       model,
		OnProgress: func(pct int) {
			jc.Progress("render", pct, "")
			r.Publish(pct, nil)
		},
	})
	if err != nil {
		r.FailVideo("render", err)
		return err
	}

	chunkKeys := make([]string, len(rendered.Chunks))
	chunkURLs := make([]string, len(rendered.Chunks))
	frameURLs := make([]string, len(rendered.Chunks))
	for i, c := range rendered.Chunks {
		chunkKeys[i] = c.BlobKey
		chunkURLs[i] = c.BlobURL
		frameURLs[i] = r.Bucket.PublicURL(c.LastFrameKey)
	}

	jc.Progress("stitch", 75, "stitching composite")
	stitched, err := steps.Stitch(jc.Ctx, steps.StitchDeps{
		Log:    r.Log,
		Bucket: r.Bucket,
		Media:  r.Media,
	}, steps.StitchInput{
		OwnerUserID: owner,
		VideoID:     videoID,
		ChunkKeys:   chunkKeys,
		Budget:      r.StitchBudget,
	})
	if err != nil {
		r.FailVideo("stitch", err)
		return err
	}
	r.Publish(75, nil)

	urlsJSON, err := json.Marshal(chunkURLs)
	if err != nil {
		r.FailVideo("encode", err)
		return err
	}

	artifacts := make([]phasekit.ArtifactSpec, 0, len(rendered.Chunks)+1)
	for i, c := range rendered.Chunks {
		artifacts = append(artifacts, phasekit.ArtifactSpec{
			Type:    domain.ArtifactTypeVideoChunk,
			Key:     domain.ChunkVersionKey(i),
			BlobKey: c.BlobKey,
			BlobURL: c.BlobURL,
		})
	}

	phaseOut := &domain.PhaseOutput{
		Chunks: &domain.ChunksOutput{
			Spec:          spec,
			ChunkURLs:     chunkURLs,
			ChunkBlobKeys: chunkKeys,
			LastFrameURLs: frameURLs,
			BeatToChunk:   plan.BeatToChunk,
			ChunkDuration: plan.ChunkDuration,
			StitchedURL:   stitched.BlobURL,
			Cost:          rendered.TotalCost,
		},
	}
	cp, err := r.Complete(phaseOut, artifacts, rendered.TotalCost, map[string]interface{}{
		"chunk_urls":   datatypes.JSON(urlsJSON),
		"stitched_url": stitched.BlobURL,
	})
	if err != nil {
		r.FailVideo("checkpoint", err)
		return err
	}

	jc.Succeed("done", map[string]any{
		"checkpoint_id": cp.ID,
		"chunks":        len(rendered.Chunks),
		"cost":          rendered.TotalCost,
	})
	return nil
}
