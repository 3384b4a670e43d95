package phase_storyboard

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phasekit"
	"github.com/reelforge/reelforge-backend/internal/jobs/runtime"
	"github.com/reelforge/reelforge-backend/internal/modules/video/steps"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
)

func (p *Pipeline) Run(jc *runtime.Context) error {
	r, err := phasekit.Begin(jc, p.deps, 2)
	if err != nil {
		jc.Fail("init", err)
		return err
	}

	parent, err := r.ParentOutput()
	if err != nil {
		r.FailVideo("parent", err)
		return err
	}
	if parent.Plan == nil {
		err := apperr.Integrityf("parent checkpoint has no plan output")
		r.FailVideo("parent", err)
		return err
	}
	spec := parent.Plan.Spec

	owner, videoID := r.OwnerAndVideo()
	jc.Progress("storyboard", 30, "rendering beat keyframes")
	out, err := steps.RenderStoryboard(jc.Ctx, steps.StoryboardDeps{
		Log:    r.Log,
		Images: r.Images,
		Bucket: r.Bucket,
	}, steps.StoryboardInput{
		OwnerUserID: owner,
		VideoID:     videoID,
		Spec:        &spec,
	})
	if err != nil {
		r.FailVideo("storyboard", err)
		return err
	}

	urls := make([]string, len(out.Images))
	artifacts := make([]phasekit.ArtifactSpec, 0, len(out.Images))
	for i, img := range out.Images {
		urls[i] = img.BlobURL
		artifacts = append(artifacts, phasekit.ArtifactSpec{
			Type:    domain.ArtifactTypeBeatImage,
			Key:     fmt.Sprintf("beat_%d", img.BeatIndex),
			BlobKey: img.BlobKey,
			BlobURL: img.BlobURL,
		})
	}

	specJSON, err := json.Marshal(&spec)
	if err != nil {
		r.FailVideo("encode", err)
		return err
	}

	phaseOut := &domain.PhaseOutput{
		Storyboard: &domain.StoryboardOutput{Spec: spec, BeatImageURLs: urls},
	}
	cp, err := r.Complete(phaseOut, artifacts, out.TotalCost, map[string]interface{}{
		"spec": datatypes.JSON(specJSON),
	})
	if err != nil {
		r.FailVideo("checkpoint", err)
		return err
	}

	jc.Succeed("done", map[string]any{
		"checkpoint_id": cp.ID,
		"images":        len(out.Images),
		"cost":          out.TotalCost,
	})
	return nil
}
