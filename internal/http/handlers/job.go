package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/reelforge/reelforge-backend/internal/data/repos"
	"github.com/reelforge/reelforge-backend/internal/http/response"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
)

type JobHandler struct {
	jobs repos.JobRunRepo
}

func NewJobHandler(jobs repos.JobRunRepo) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.GetByID(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	if job.OwnerUserID != owner {
		response.RespondAppError(c, apperr.Ownershipf("job %s", jobID))
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
