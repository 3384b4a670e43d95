package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/http/response"
	"github.com/reelforge/reelforge-backend/internal/modules/video"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/services"
)

type EditorHandler struct {
	editor   video.EditorService
	progress services.ProgressService
}

func NewEditorHandler(editor video.EditorService, progress services.ProgressService) *EditorHandler {
	return &EditorHandler{editor: editor, progress: progress}
}

// POST /api/video/:video_id/edit
func (h *EditorHandler) Edit(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	videoID, ok := pathUUID(c, "video_id")
	if !ok {
		return
	}
	var req struct {
		Actions          []video.EditAction `json:"actions"`
		EstimateCostOnly bool               `json:"estimate_cost_only"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}

	if req.EstimateCostOnly {
		est, err := h.editor.EstimateCost(c.Request.Context(), owner, videoID, req.Actions)
		if err != nil {
			response.RespondAppError(c, err)
			return
		}
		response.RespondOK(c, est)
		return
	}

	job, err := h.editor.Submit(c.Request.Context(), owner, videoID, req.Actions)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job_id": job.ID, "status": domain.VideoStatusEditing})
}

type chunkMetadata struct {
	Position      int      `json:"position"`
	URL           string   `json:"url"`
	BlobKey       string   `json:"blob_key"`
	Model         string   `json:"model,omitempty"`
	OriginalIndex *int     `json:"original_index,omitempty"`
	Versions      []string `json:"versions,omitempty"`
	Selected      string   `json:"selected,omitempty"`
}

// GET /api/video/:video_id/chunks
func (h *EditorHandler) ListChunks(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	videoID, ok := pathUUID(c, "video_id")
	if !ok {
		return
	}
	state, err := h.editor.State(c.Request.Context(), owner, videoID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}

	chunks := make([]chunkMetadata, 0, len(state.Timeline))
	for pos, ref := range state.Timeline {
		meta := chunkMetadata{Position: pos, URL: ref.URL, BlobKey: ref.BlobKey, Model: ref.Model}
		for key, set := range state.ChunkVersions {
			if !setContains(set, ref.BlobKey) {
				continue
			}
			if idx, err := strconv.Atoi(strings.TrimPrefix(key, "chunk_")); err == nil {
				meta.OriginalIndex = &idx
			}
			meta.Selected = set.CurrentSelected
			meta.Versions = append(meta.Versions, video.VersionOriginal)
			for id := range set.Replacements {
				meta.Versions = append(meta.Versions, id)
			}
			break
		}
		chunks = append(chunks, meta)
	}
	response.RespondOK(c, gin.H{"chunks": chunks})
}

func setContains(set *domain.ChunkVersionSet, blobKey string) bool {
	if set.Original.BlobKey == blobKey {
		return true
	}
	for _, r := range set.Replacements {
		if r.BlobKey == blobKey {
			return true
		}
	}
	return false
}

// GET /api/video/:video_id/chunks/:chunk/preview?version=
func (h *EditorHandler) Preview(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	videoID, ok := pathUUID(c, "video_id")
	if !ok {
		return
	}
	chunkIdx, err := strconv.Atoi(c.Param("chunk"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", apperr.Validationf("bad chunk index"))
		return
	}
	state, err := h.editor.State(c.Request.Context(), owner, videoID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}

	set := state.ChunkVersions[domain.ChunkVersionKey(chunkIdx)]
	if set == nil {
		response.RespondAppError(c, apperr.NotFoundf("chunk %d has no versions", chunkIdx))
		return
	}
	versionID := c.DefaultQuery("version", "current")
	var blobKey string
	switch versionID {
	case "current":
		blobKey = set.Original.BlobKey
		if set.CurrentSelected != "" && set.CurrentSelected != video.VersionOriginal {
			if r, ok := set.Replacements[set.CurrentSelected]; ok {
				blobKey = r.BlobKey
			}
		}
	case video.VersionOriginal:
		blobKey = set.Original.BlobKey
	default:
		r, ok := set.Replacements[versionID]
		if !ok {
			response.RespondAppError(c, apperr.NotFoundf("chunk %d has no version %q", chunkIdx, versionID))
			return
		}
		blobKey = r.BlobKey
	}

	url, err := h.progress.SignedURL(c.Request.Context(), blobKey)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"preview_url": url})
}

// POST /api/video/:video_id/chunks/:chunk/select-version?version=
func (h *EditorHandler) SelectVersion(c *gin.Context) {
	owner, ok := requestOwner(c)
	if !ok {
		return
	}
	videoID, ok := pathUUID(c, "video_id")
	if !ok {
		return
	}
	chunkIdx, err := strconv.Atoi(c.Param("chunk"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", apperr.Validationf("bad chunk index"))
		return
	}
	versionID := c.Query("version")
	if versionID == "" {
		response.RespondError(c, http.StatusBadRequest, "validation", apperr.Validationf("version required"))
		return
	}

	job, err := h.editor.Submit(c.Request.Context(), owner, videoID, []video.EditAction{{
		Type:       video.ActionSelectVersion,
		ChunkIndex: chunkIdx,
		VersionID:  versionID,
	}})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true, "job_id": job.ID})
}
