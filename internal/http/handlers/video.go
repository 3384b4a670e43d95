package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/reelforge/reelforge-backend/internal/http/middleware"
	"github.com/reelforge/reelforge-backend/internal/http/response"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/services"
)

type VideoHandler struct {
	pipeline services.PipelineService
}

func NewVideoHandler(pipeline services.PipelineService) *VideoHandler {
	return &VideoHandler{pipeline: pipeline}
}

func requestOwner(c *gin.Context) (uuid.UUID, bool) {
	owner, ok := middleware.OwnerID(c)
	if !ok {
		response.RespondError(c, http.StatusForbidden, "ownership", apperr.Ownershipf("no owner in request"))
	}
	return owner, ok
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", apperr.Validationf("bad %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/video
func (h *VideoHandler) Generate(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	var req services.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	videoID, err := h.pipeline.Generate(c.Request.Context(), owner, req)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"video_id": videoID})
}

// GET /api/video/:video_id
func (h *VideoHandler) Status(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	videoID, ok := pathUUID(c, "video_id")
	if !ok {
		return
	}
	status, err := h.pipeline.Status(c.Request.Context(), owner, videoID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, status)
}

// POST /api/video/:video_id/continue
func (h *VideoHandler) Continue(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	videoID, ok := pathUUID(c, "video_id")
	if !ok {
		return
	}
	var req struct {
		CheckpointID uuid.UUID `json:"checkpoint_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.CheckpointID == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "validation", apperr.Validationf("checkpoint_id required"))
		return
	}
	result, err := h.pipeline.Continue(c.Request.Context(), owner, videoID, req.CheckpointID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, result)
}

// GET /api/video/:video_id/checkpoints?branch=
func (h *VideoHandler) ListCheckpoints(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	videoID, ok := pathUUID(c, "video_id")
	if !ok {
		return
	}
	cps, err := h.pipeline.ListCheckpoints(c.Request.Context(), owner, videoID, c.Query("branch"))
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"checkpoints": cps})
}

// GET /api/video/:video_id/checkpoints/current
func (h *VideoHandler) CurrentCheckpoint(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	videoID, ok := pathUUID(c, "video_id")
	if !ok {
		return
	}
	cp, err := h.pipeline.CurrentCheckpoint(c.Request.Context(), owner, videoID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"checkpoint": cp})
}

// GET /api/video/:video_id/checkpoints/:checkpoint_id
func (h *VideoHandler) GetCheckpoint(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	videoID, ok := pathUUID(c, "video_id")
	if !ok {
		return
	}
	checkpointID, ok := pathUUID(c, "checkpoint_id")
	if !ok {
		return
	}
	cp, artifacts, err := h.pipeline.CheckpointWithArtifacts(c.Request.Context(), owner, videoID, checkpointID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"checkpoint": cp, "artifacts": artifacts})
}

// GET /api/video/:video_id/checkpoint-tree
func (h *VideoHandler) CheckpointTree(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	videoID, ok := pathUUID(c, "video_id")
	if !ok {
		return
	}
	tree, err := h.pipeline.CheckpointTree(c.Request.Context(), owner, videoID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"tree": tree})
}

// GET /api/video/:video_id/branches
func (h *VideoHandler) Branches(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	videoID, ok := pathUUID(c, "video_id")
	if !ok {
		return
	}
	branches, err := h.pipeline.Branches(c.Request.Context(), owner, videoID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"branches": branches})
}
