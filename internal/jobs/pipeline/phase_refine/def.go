package phase_refine

import (
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phasekit"
	"github.com/reelforge/reelforge-backend/internal/services"
)

// Pipeline mixes background music under the composite and promotes the
// final draft (phase 4, terminal).
type Pipeline struct {
	deps phasekit.Deps
}

func New(deps phasekit.Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

func (p *Pipeline) Type() string { return services.JobTypePhaseRefine }
