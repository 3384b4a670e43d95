package phase_refine

import (
	"github.com/reelforge/reelforge-backend/internal/clients/videogen"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phasekit"
	"github.com/reelforge/reelforge-backend/internal/jobs/runtime"
	"github.com/reelforge/reelforge-backend/internal/modules/video/steps"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
)

func (p *Pipeline) Run(jc *runtime.Context) error {
	r, err := phasekit.Begin(jc, p.deps, 4)
	if err != nil {
		jc.Fail("init", err)
		return err
	}

	parent, err := r.ParentOutput()
	if err != nil {
		r.FailVideo("parent", err)
		return err
	}
	if parent.Chunks == nil {
		err := apperr.Integrityf("parent checkpoint has no chunks output")
		r.FailVideo("parent", err)
		return err
	}
	chunks := parent.Chunks
	spec := chunks.Spec

	nativeAudio := false
	if model, err := videogen.LookupModel(spec.Model); err == nil {
		nativeAudio = model.NativeAudio
	}

	owner, videoID := r.OwnerAndVideo()
	stitchedKey := steps.BlobKey(owner, videoID, steps.StitchedName)

	jc.Progress("refine", 93, "mixing final draft")
	out, err := steps.Refine(jc.Ctx, steps.RefineDeps{
		Log:    r.Log,
		Bucket: r.Bucket,
		Media:  r.Media,
		Music:  r.Music,
	}, steps.RefineInput{
		OwnerUserID: owner,
		VideoID:     videoID,
		Spec:        &spec,
		StitchedKey: stitchedKey,
		NativeAudio: nativeAudio,
	})
	if err != nil {
		r.FailVideo("refine", err)
		return err
	}

	artifacts := []phasekit.ArtifactSpec{{
		Type:    domain.ArtifactTypeFinalVideo,
		Key:     "final",
		BlobKey: out.FinalKey,
		BlobURL: out.FinalURL,
	}}
	if out.MusicKey != "" {
		artifacts = append(artifacts, phasekit.ArtifactSpec{
			Type:    domain.ArtifactTypeMusic,
			Key:     "background",
			BlobKey: out.MusicKey,
			BlobURL: out.MusicURL,
		})
	}

	phaseOut := &domain.PhaseOutput{
		Refine: &domain.RefineOutput{
			FinalVideoURL: out.FinalURL,
			MusicURL:      out.MusicURL,
			MusicGenre:    out.MusicGenre,
			MusicSkipped:  out.MusicSkipped,
		},
	}
	cp, err := r.Complete(phaseOut, artifacts, 0, map[string]interface{}{
		"final_video_url": out.FinalURL,
		"final_music_url": out.MusicURL,
	})
	if err != nil {
		r.FailVideo("checkpoint", err)
		return err
	}

	jc.Succeed("done", map[string]any{
		"checkpoint_id": cp.ID,
		"final_url":     out.FinalURL,
		"music_skipped": out.MusicSkipped,
	})
	return nil
}
