package phase_plan

import (
	"bytes"
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phasekit"
	"github.com/reelforge/reelforge-backend/internal/jobs/runtime"
	"github.com/reelforge/reelforge-backend/internal/modules/video/steps"
)

func (p *Pipeline) Run(jc *runtime.Context) error {
	r, err := phasekit.Begin(jc, p.deps, 1)
	if err != nil {
		jc.Fail("init", err)
		return err
	}

	var assets map[string]any
	if len(r.Video.Assets) > 0 {
		if err := json.Unmarshal(r.Video.Assets, &assets); err != nil {
			r.FailVideo("assets", err)
			return err
		}
	}

	in := steps.PlanInput{Prompt: r.Video.Prompt, Assets: assets}
	if v, ok := assets["duration"].(float64); ok {
		in.Duration = v
	}
	if v, ok := assets["fps"].(float64); ok {
		in.FPS = int(v)
	}
	if v, ok := assets["model"].(string); ok {
		in.ModelID = v
	}

	jc.Progress("plan", 30, "building beat timeline")
	spec, err := steps.BuildPlan(in)
	if err != nil {
		r.FailVideo("plan", err)
		return err
	}

	specJSON, err := json.Marshal(spec)
	if err != nil {
		r.FailVideo("encode", err)
		return err
	}

	owner, videoID := r.OwnerAndVideo()
	blobKey := steps.BlobKey(owner, videoID, steps.SpecName)
	if err := r.Bucket.Upload(jc.Ctx, blobKey, bytes.NewReader(specJSON)); err != nil {
		r.FailVideo("upload", err)
		return err
	}
	blobURL := r.Bucket.PublicURL(blobKey)

	out := &domain.PhaseOutput{
		Plan: &domain.PlanOutput{Spec: *spec, SpecBlobURL: blobURL},
	}
	artifacts := []phasekit.ArtifactSpec{{
		Type:    domain.ArtifactTypeSpec,
		Key:     "spec",
		BlobKey: blobKey,
		BlobURL: blobURL,
		Size:    int64(len(specJSON)),
	}}
	cp, err := r.Complete(out, artifacts, 0, map[string]interface{}{
		"spec": datatypes.JSON(specJSON),
	})
	if err != nil {
		r.FailVideo("checkpoint", err)
		return err
	}

	jc.Succeed("done", map[string]any{
		"checkpoint_id": cp.ID,
		"beats":         len(spec.Beats),
	})
	return nil
}
