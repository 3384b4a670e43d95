package steps

import (
	"fmt"
	"strings"

	"github.com/reelforge/reelforge-backend/internal/clients/videogen"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
)

// Beat archetypes for a short product promo, in narrative order. Shares
// are fractions of the total duration and sum to 1.
var beatArchetypes = []struct {
	id       string
	share    float64
	shotType string
	template string
}{
	{"hook", 0.25, "wide", "Opening hook: %s. Grab attention in the first seconds"},
	{"showcase", 0.35, "close_up", "Hero showcase of %s. Smooth product-centric motion"},
	{"detail", 0.25, "medium", "Detail pass on %s. Texture and craftsmanship in focus"},
	{"cta", 0.15, "close_up", "Closing shot of %s. Confident final framing with room for a call to action"},
}

type PlanInput struct {
	Prompt   string
	Assets   map[string]any
	Duration float64
	FPS      int
	ModelID  string
}

// BuildPlan turns the user prompt into a beat timeline. Beat 0 starts at
// zero so chunk 0 always anchors; the last beat absorbs rounding drift so
// beat durations sum exactly to the total.
func BuildPlan(in PlanInput) (*domain.VideoSpec, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, apperr.Validationf("prompt required")
	}

	model, err := videogen.LookupModel(in.ModelID)
	if err != nil {
		return nil, apperr.Validationf("%v", err)
	}

	duration := in.Duration
	if duration <= 0 {
		duration = 24
	}
	if duration < model.ChunkDuration {
		return nil, apperr.Validationf("duration %.1fs shorter than one %s chunk (%.1fs)", duration, model.ID, model.ChunkDuration)
	}
	fps := in.FPS
	if fps <= 0 {
		fps = model.FPS
	}

	beats := make([]domain.Beat, 0, len(beatArchetypes))
	cursor := 0.0
	for i, a := range beatArchetypes {
		d := duration * a.share
		if i == len(beatArchetypes)-1 {
			d = duration - cursor
		}
		beats = append(beats, domain.Beat{
			ID:             a.id,
			Start:          cursor,
			Duration:       d,
			PromptTemplate: fmt.Sprintf(a.template, prompt),
			ShotType:       a.shotType,
		})
		cursor += d
	}

	spec := &domain.VideoSpec{
		Beats:    beats,
		Duration: duration,
		FPS:      fps,
		Model:    model.ID,
		Style: map[string]any{
			"description": "clean commercial look, soft studio lighting, shallow depth of field",
		},
		Product: map[string]any{
			"description": prompt,
		},
		Audio: map[string]any{
			"mood": "upbeat",
		},
	}
	if in.Assets != nil {
		if v, ok := in.Assets["style"]; ok {
			if m, ok := v.(map[string]any); ok {
				spec.Style = m
			}
		}
		if v, ok := in.Assets["audio"]; ok {
			if m, ok := v.(map[string]any); ok {
				spec.Audio = m
			}
		}
		if v, ok := in.Assets["product"]; ok {
			if m, ok := v.(map[string]any); ok {
				spec.Product = m
			}
		}
	}
	return spec, nil
}
