package steps

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/reelforge/reelforge-backend/internal/clients/videogen"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
)

const (
	// Chunks overlap their neighbours by 25% so the model has motion
	// context to continue from.
	overlapBudget = 0.25

	// A beat snaps onto a chunk boundary when its start is within this
	// tolerance of k*spacing.
	anchorTolerance = 0.5
)

type PlannedChunk struct {
	Index     int
	BeatIndex int
	Anchor    bool
	// Nearest prior anchor; equals Index for anchors.
	AnchorIndex int
	Start       float64
	Duration    float64
	Prompt      string
}

type ChunkPlan struct {
	ChunkDuration float64
	Spacing       float64
	Chunks        []PlannedChunk
	// chunk index -> beat index, only for chunks that start a beat.
	BeatToChunk map[int]int
}

func (p *ChunkPlan) AnchorIndices() []int {
	out := []int{}
	for _, c := range p.Chunks {
		if c.Anchor {
			out = append(out, c.Index)
		}
	}
	sort.Ints(out)
	return out
}

func (p *ChunkPlan) ContinuationIndices() []int {
	out := []int{}
	for _, c := range p.Chunks {
		if !c.Anchor {
			out = append(out, c.Index)
		}
	}
	sort.Ints(out)
	return out
}

// PlanChunks lays the beat timeline onto fixed-duration model chunks.
// Chunks that land on a beat start become anchors (init image = the beat's
// storyboard frame); all others continue from the previous chunk's last
// frame. Chunk 0 must be an anchor or the phase cannot start.
func PlanChunks(spec *domain.VideoSpec, model videogen.ModelSpec) (*ChunkPlan, error) {
	if spec == nil || len(spec.Beats) == 0 {
		return nil, apperr.Integrityf("spec has no beats")
	}
	if spec.Duration <= 0 {
		return nil, apperr.Integrityf("spec duration must be positive, got %v", spec.Duration)
	}

	chunkDuration := model.ChunkDuration
	spacing := chunkDuration * (1 - overlapBudget)
	chunkCount := int(math.Ceil(spec.Duration / chunkDuration))

	// Beats claim the chunk nearest their start. Iterating in beat order
	// means an already-claimed chunk keeps the earliest beat.
	beatToChunk := map[int]int{}
	for b, beat := range spec.Beats {
		k := int(math.Floor(beat.Start / spacing))
		if math.Abs(float64(k)*spacing-beat.Start) >= anchorTolerance {
			continue
		}
		if _, taken := beatToChunk[k]; !taken {
			beatToChunk[k] = b
		}
	}

	if _, ok := beatToChunk[0]; !ok {
		return nil, apperr.Integrityf("chunk 0 is not an anchor; first beat starts at %v", spec.Beats[0].Start)
	}

	chunks := make([]PlannedChunk, 0, chunkCount)
	lastAnchor := -1
	for i := 0; i < chunkCount; i++ {
		start := float64(i) * spacing
		beatIdx := beatForTime(spec.Beats, start)

		c := PlannedChunk{
			Index:     i,
			BeatIndex: beatIdx,
			Start:     start,
			Duration:  chunkDuration,
		}
		if b, ok := beatToChunk[i]; ok {
			c.Anchor = true
			c.AnchorIndex = i
			c.BeatIndex = b
			lastAnchor = i
		} else {
			if lastAnchor < 0 {
				return nil, apperr.Integrityf("chunk %d is a continuation with no prior anchor", i)
			}
			c.AnchorIndex = lastAnchor
		}
		c.Prompt = BuildBeatPrompt(spec, spec.Beats[c.BeatIndex])
		chunks = append(chunks, c)
	}

	return &ChunkPlan{
		ChunkDuration: chunkDuration,
		Spacing:       spacing,
		Chunks:        chunks,
		BeatToChunk:   beatToChunk,
	}, nil
}

// beatForTime returns the last beat whose window contains t, clamped to
// the final beat for times past the timeline end.
func beatForTime(beats []domain.Beat, t float64) int {
	idx := len(beats) - 1
	for i := len(beats) - 1; i >= 0; i-- {
		b := beats[i]
		if t >= b.Start && t < b.Start+b.Duration {
			return i
		}
	}
	return idx
}

// BuildBeatPrompt composes the rendering prompt from the beat template plus
// the spec's style and product descriptors.
func BuildBeatPrompt(spec *domain.VideoSpec, beat domain.Beat) string {
	parts := []string{strings.TrimSpace(beat.PromptTemplate)}
	if s := specMapString(spec.Style, "description"); s != "" {
		parts = append(parts, "Style: "+s)
	}
	if p := specMapString(spec.Product, "description"); p != "" {
		parts = append(parts, "Product: "+p)
	}
	if beat.ShotType != "" {
		parts = append(parts, "Shot: "+beat.ShotType)
	}
	out := []string{}
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ". ")
}

func specMapString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// ValidateChunkSet checks the produced indices form {0..n-1} with no gaps.
func ValidateChunkSet(produced map[int]bool, chunkCount int) error {
	missing := []int{}
	for i := 0; i < chunkCount; i++ {
		if !produced[i] {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return apperr.Integrityf("missing chunk indices %v", missing)
	}
	return nil
}
