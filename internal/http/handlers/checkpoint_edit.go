package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reelforge/reelforge-backend/internal/http/response"
	"github.com/reelforge/reelforge-backend/internal/modules/video"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
)

// Uploaded storyboard frames are capped well above any realistic PNG.
const maxUploadBytes = 32 << 20

type CheckpointEditHandler struct {
	edits video.CheckpointEditService
}

func NewCheckpointEditHandler(edits video.CheckpointEditService) *CheckpointEditHandler {
	return &CheckpointEditHandler{edits: edits}
}

// PATCH /api/video/:video_id/checkpoints/:checkpoint_id/spec
func (h *CheckpointEditHandler) UpdateSpec(c *gin.Context) {
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
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	artifact, err := h.edits.UpdateSpec(c.Request.Context(), owner, videoID, checkpointID, patch)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"artifact_id": artifact.ID, "version": artifact.Version})
}

// POST /api/video/:video_id/checkpoints/:checkpoint_id/upload-image
// multipart form: beat_index, image
func (h *CheckpointEditHandler) UploadImage(c *gin.Context) {
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

	var form struct {
		BeatIndex int `form:"beat_index"`
	}
	if err := c.ShouldBind(&form); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	fileHeader, err := c.FormFile("image")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", apperr.Validationf("image file required"))
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.RespondError(c, http.StatusBadRequest, "validation", apperr.Validationf("image larger than %d bytes", maxUploadBytes))
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}

	artifact, err := h.edits.UploadBeatImage(c.Request.Context(), owner, videoID, checkpointID, form.BeatIndex, data)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"artifact_id": artifact.ID,
		"version":     artifact.Version,
		"blob_url":    artifact.BlobURL,
	})
}

// POST /api/video/:video_id/checkpoints/:checkpoint_id/regenerate-beat
func (h *CheckpointEditHandler) RegenerateBeat(c *gin.Context) {
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
	var req struct {
		BeatIndex      int    `json:"beat_index"`
		PromptOverride string `json:"prompt_override"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	artifact, err := h.edits.RegenerateBeat(c.Request.Context(), owner, videoID, checkpointID, req.BeatIndex, req.PromptOverride)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"artifact_id": artifact.ID,
		"version":     artifact.Version,
		"blob_url":    artifact.BlobURL,
	})
}

// POST /api/video/:video_id/checkpoints/:checkpoint_id/regenerate-chunk
func (h *CheckpointEditHandler) RegenerateChunk(c *gin.Context) {
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
	var req struct {
		ChunkIndex     int    `json:"chunk_index"`
		PromptOverride string `json:"prompt_override"`
		ModelOverride  string `json:"model_override"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	artifact, err := h.edits.RegenerateChunk(c.Request.Context(), owner, videoID, checkpointID, req.ChunkIndex, req.PromptOverride, req.ModelOverride)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"artifact_id": artifact.ID,
		"version":     artifact.Version,
		"blob_url":    artifact.BlobURL,
	})
}
