package video_edit

import (
	"github.com/reelforge/reelforge-backend/internal/clients/redis"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/jobs/runtime"
	"github.com/reelforge/reelforge-backend/internal/modules/video"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
)

type editPayload struct {
	VideoID string             `json:"video_id"`
	Actions []video.EditAction `json:"actions"`
}

func (p *Pipeline) Run(jc *runtime.Context) error {
	videoID, ok := jc.PayloadUUID("video_id")
	if !ok {
		err := apperr.Integrityf("edit job %s has no video_id", jc.Job.ID)
		jc.Fail("init", err)
		return err
	}
	var payload editPayload
	if err := jc.DecodePayload(&payload); err != nil || len(payload.Actions) == 0 {
		err := apperr.Integrityf("edit job %s has no actions", jc.Job.ID)
		jc.Fail("init", err)
		return err
	}
	owner := jc.Job.OwnerUserID

	jc.Progress("edit", 10, "applying actions")
	result, err := p.editor.Apply(jc.Ctx, owner, videoID, payload.Actions)
	if err != nil {
		// A failed edit leaves the previous cut intact; the video goes
		// back to complete with the error recorded.
		dbc := dbctx.Context{Ctx: jc.Ctx}
		_ = p.videos.UpdateFields(dbc, videoID, map[string]interface{}{
			"status":        domain.VideoStatusComplete,
			"error_message": err.Error(),
		})
		p.progress.Publish(jc.Ctx, redis.ProgressSnapshot{
			VideoID: videoID.String(),
			Status:  domain.VideoStatusComplete,
			Error:   err.Error(),
		})
		p.log.Error("edit failed", "video_id", videoID, "error", err)
		jc.Fail("edit", err)
		return err
	}

	p.progress.Publish(jc.Ctx, redis.ProgressSnapshot{
		VideoID:       videoID.String(),
		Status:        domain.VideoStatusComplete,
		Progress:      100,
		FinalVideoURL: result.FinalVideoURL,
		TotalCost:     result.Cost,
	})
	jc.Succeed("done", result)
	return nil
}
