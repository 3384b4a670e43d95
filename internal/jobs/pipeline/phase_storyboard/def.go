package phase_storyboard

import (
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phasekit"
	"github.com/reelforge/reelforge-backend/internal/services"
)

// Pipeline renders one keyframe per beat (phase 2).
type Pipeline struct {
	deps phasekit.Deps
}

func New(deps phasekit.Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

func (p *Pipeline) Type() string { return services.JobTypePhaseStoryboard }
