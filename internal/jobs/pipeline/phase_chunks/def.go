package phase_chunks

import (
	"github.com/reelforge/reelforge-backend/internal/jobs/pipeline/phasekit"
	"github.com/reelforge/reelforge-backend/internal/services"
)

// Pipeline renders all video chunks in two waves and stitches them into
// the composite (phase 3).
type Pipeline struct {
	deps phasekit.Deps
}

func New(deps phasekit.Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

func (p *Pipeline) Type() string { return services.JobTypePhaseChunks }
