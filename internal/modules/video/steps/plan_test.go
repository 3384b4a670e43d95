package steps

import (
	"errors"
	"math"
	"testing"

	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
)

func TestBuildPlan_BeatsSumToDuration(t *testing.T) {
	spec, err := BuildPlan(PlanInput{Prompt: "showcase a chrome kettle", Duration: 24})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(spec.Beats) == 0 {
		t.Fatalf("plan should produce beats")
	}
	if spec.Beats[0].Start != 0 {
		t.Fatalf("first beat must start at zero, got %v", spec.Beats[0].Start)
	}

	sum := 0.0
	cursor := 0.0
	for i, b := range spec.Beats {
		if math.Abs(b.Start-cursor) > 1e-9 {
			t.Fatalf("beat %d start %v does not follow previous end %v", i, b.Start, cursor)
		}
		sum += b.Duration
		cursor += b.Duration
	}
	if math.Abs(sum-spec.Duration) > 1e-9 {
		t.Fatalf("beat durations sum to %v, want %v", sum, spec.Duration)
	}
}

func TestBuildPlan_Validation(t *testing.T) {
	if _, err := BuildPlan(PlanInput{Prompt: "  "}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank prompt should be a validation error, got %v", err)
	}
	if _, err := BuildPlan(PlanInput{Prompt: "x", Duration: 3, ModelID: "veo"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("duration under one chunk should be a validation error, got %v", err)
	}
	if _, err := BuildPlan(PlanInput{Prompt: "x", ModelID: "nope"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown model should be a validation error, got %v", err)
	}
}

func TestBuildPlan_AssetOverrides(t *testing.T) {
	spec, err := BuildPlan(PlanInput{
		Prompt: "kettle",
		Assets: map[string]any{
			"audio": map[string]any{"genre": "cinematic"},
		},
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if spec.Audio["genre"] != "cinematic" {
		t.Fatalf("asset audio override not applied: %v", spec.Audio)
	}
}
