package video_edit

import (
	"github.com/reelforge/reelforge-backend/internal/data/repos"
	"github.com/reelforge/reelforge-backend/internal/modules/video"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
	"github.com/reelforge/reelforge-backend/internal/services"
)

// Pipeline applies a queued editor action list and re-stitches the cut.
type Pipeline struct {
	log      *logger.Logger
	videos   repos.VideoRepo
	editor   video.EditorService
	progress services.ProgressService
}

func New(log *logger.Logger, videos repos.VideoRepo, editor video.EditorService, progress services.ProgressService) *Pipeline {
	return &Pipeline{
		log:      log.With("pipeline", "video_edit"),
		videos:   videos,
		editor:   editor,
		progress: progress,
	}
}

func (p *Pipeline) Type() string { return services.JobTypeEdit }
