package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/reelforge/reelforge-backend/internal/http/handlers"
	httpMW "github.com/reelforge/reelforge-backend/internal/http/middleware"
)

type RouterConfig struct {
	VideoHandler          *httpH.VideoHandler
	CheckpointEditHandler *httpH.CheckpointEditHandler
	EditorHandler         *httpH.EditorHandler
	JobHandler            *httpH.JobHandler
	HealthHandler         *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	api.Use(httpMW.RequireOwner())
	{
		if cfg.VideoHandler != nil {
			api.POST("/video", cfg.VideoHandler.Generate)
			api.GET("/video/:video_id", cfg.VideoHandler.Status)
			api.POST("/video/:video_id/continue", cfg.VideoHandler.Continue)
			api.GET("/video/:video_id/checkpoints", cfg.VideoHandler.ListCheckpoints)
			api.GET("/video/:video_id/checkpoints/current", cfg.VideoHandler.CurrentCheckpoint)
			api.GET("/video/:video_id/checkpoints/:checkpoint_id", cfg.VideoHandler.GetCheckpoint)
			api.GET("/video/:video_id/checkpoint-tree", cfg.VideoHandler.CheckpointTree)
			api.GET("/video/:video_id/branches", cfg.VideoHandler.Branches)
		}

		if cfg.CheckpointEditHandler != nil {
			api.PATCH("/video/:video_id/checkpoints/:checkpoint_id/spec", cfg.CheckpointEditHandler.UpdateSpec)
			api.POST("/video/:video_id/checkpoints/:checkpoint_id/upload-image", cfg.CheckpointEditHandler.UploadImage)
			api.POST("/video/:video_id/checkpoints/:checkpoint_id/regenerate-beat", cfg.CheckpointEditHandler.RegenerateBeat)
			api.POST("/video/:video_id/checkpoints/:checkpoint_id/regenerate-chunk", cfg.CheckpointEditHandler.RegenerateChunk)
		}

		if cfg.EditorHandler != nil {
			api.POST("/video/:video_id/edit", cfg.EditorHandler.Edit)
			api.GET("/video/:video_id/chunks", cfg.EditorHandler.ListChunks)
			api.GET("/video/:video_id/chunks/:chunk/preview", cfg.EditorHandler.Preview)
			api.POST("/video/:video_id/chunks/:chunk/select-version", cfg.EditorHandler.SelectVersion)
		}

		if cfg.JobHandler != nil {
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}
	}

	return r
}
