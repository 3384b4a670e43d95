package phase_plan

import (
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phasekit"
	"github.com/reelforge/reelforge-backend/internal/services"
)

// Pipeline turns the user prompt into the beat-timeline plan (phase 1).
type Pipeline struct {
	deps phasekit.Deps
}

func New(deps phasekit.Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

func (p *Pipeline) Type() string { return services.JobTypePhasePlan }
