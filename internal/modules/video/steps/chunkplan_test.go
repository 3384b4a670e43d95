package steps

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/reelforge/reelforge-backend/internal/clients/videogen"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
)

func testSpec(duration float64, beats []domain.Beat) *domain.VideoSpec {
	return &domain.VideoSpec{
		Beats:    beats,
		Duration: duration,
		FPS:      24,
		Model:    "veo_fast",
	}
}

func mustModel(t *testing.T, id string) videogen.ModelSpec {
	t.Helper()
	m, err := videogen.LookupModel(id)
	if err != nil {
		t.Fatalf("LookupModel(%s): %v", id, err)
	}
	return m
}

func TestPlanChunks_CountAndSpacing(t *testing.T) {
	model := mustModel(t, "veo_fast") // 8s chunks, 6s spacing
	spec := testSpec(24, []domain.Beat{
		{ID: "hook", Start: 0, Duration: 6, PromptTemplate: "hook"},
		{ID: "showcase", Start: 6, Duration: 12, PromptTemplate: "showcase"},
		{ID: "cta", Start: 18, Duration: 6, PromptTemplate: "cta"},
	})

	plan, err := PlanChunks(spec, model)
	if err != nil {
		t.Fatalf("PlanChunks: %v", err)
	}
	if got := len(plan.Chunks); got != 3 {
		t.Fatalf("ceil(24/8) should give 3 chunks, got %d", got)
	}
	if plan.Spacing != 6 {
		t.Fatalf("spacing should be 8*0.75=6, got %v", plan.Spacing)
	}

	// Beats start at 0, 6, 18: all exact multiples of spacing, so every
	// chunk is an anchor.
	want := map[int]int{0: 0, 1: 1, 3: 2}
	if len(plan.BeatToChunk) != len(want) {
		t.Fatalf("beat map mismatch: got %v want %v", plan.BeatToChunk, want)
	}
	for k, v := range want {
		if plan.BeatToChunk[k] != v {
			t.Fatalf("beat map[%d] = %d, want %d", k, plan.BeatToChunk[k], v)
		}
	}
}

func TestPlanChunks_AnchorsAndContinuations(t *testing.T) {
	model := mustModel(t, "veo_fast")
	// Beat 1 starts at 13: floor(13/6)=2, |12-13|=1 >= 0.5, so no anchor
	// for it; chunks 1..3 continue from chunk 0.
	spec := testSpec(30, []domain.Beat{
		{ID: "a", Start: 0, Duration: 13, PromptTemplate: "a"},
		{ID: "b", Start: 13, Duration: 17, PromptTemplate: "b"},
	})

	plan, err := PlanChunks(spec, model)
	if err != nil {
		t.Fatalf("PlanChunks: %v", err)
	}
	anchors := plan.AnchorIndices()
	if len(anchors) != 1 || anchors[0] != 0 {
		t.Fatalf("only chunk 0 should anchor, got %v", anchors)
	}
	for _, c := range plan.Chunks[1:] {
		if c.Anchor {
			t.Fatalf("chunk %d should be a continuation", c.Index)
		}
		if c.AnchorIndex != 0 {
			t.Fatalf("chunk %d should continue from anchor 0, got %d", c.Index, c.AnchorIndex)
		}
	}
}

func TestPlanChunks_ToleranceSnap(t *testing.T) {
	model := mustModel(t, "veo_fast")
	// Beat starts at 6.4, within 0.5s of 1*6.0, so chunk 1 anchors it.
	spec := testSpec(16, []domain.Beat{
		{ID: "a", Start: 0, Duration: 6.4, PromptTemplate: "a"},
		{ID: "b", Start: 6.4, Duration: 9.6, PromptTemplate: "b"},
	})

	plan, err := PlanChunks(spec, model)
	if err != nil {
		t.Fatalf("PlanChunks: %v", err)
	}
	if b, ok := plan.BeatToChunk[1]; !ok || b != 1 {
		t.Fatalf("beat 1 at 6.4s should snap onto chunk 1, map=%v", plan.BeatToChunk)
	}
}

func TestPlanChunks_ChunkZeroMustAnchor(t *testing.T) {
	model := mustModel(t, "veo_fast")
	spec := testSpec(16, []domain.Beat{
		{ID: "late", Start: 2, Duration: 14, PromptTemplate: "late"},
	})

	_, err := PlanChunks(spec, model)
	if !errors.Is(err, apperr.ErrIntegrity) {
		t.Fatalf("non-anchor chunk 0 should be an integrity failure, got %v", err)
	}
}

func TestPlanChunks_EmptySpec(t *testing.T) {
	model := mustModel(t, "veo_fast")
	if _, err := PlanChunks(testSpec(10, nil), model); !errors.Is(err, apperr.ErrIntegrity) {
		t.Fatalf("zero beats should be an integrity failure, got %v", err)
	}
}

func TestBuildBeatPrompt(t *testing.T) {
	spec := &domain.VideoSpec{
		Style:   map[string]any{"description": "moody neon"},
		Product: map[string]any{"description": "chrome kettle"},
	}
	got := BuildBeatPrompt(spec, domain.Beat{PromptTemplate: "hero shot", ShotType: "close_up"})
	for _, want := range []string{"hero shot", "moody neon", "chrome kettle", "close_up"} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q: %q", want, got)
		}
	}
}

func TestValidateChunkSet(t *testing.T) {
	if err := ValidateChunkSet(map[int]bool{0: true, 1: true}, 2); err != nil {
		t.Fatalf("complete set should validate: %v", err)
	}
	err := ValidateChunkSet(map[int]bool{0: true, 2: true}, 3)
	if !errors.Is(err, apperr.ErrIntegrity) {
		t.Fatalf("gap should be an integrity failure, got %v", err)
	}
}

func TestBeatForTime_PastEndClamps(t *testing.T) {
	beats := []domain.Beat{
		{Start: 0, Duration: 10},
		{Start: 10, Duration: 10},
	}
	if got := beatForTime(beats, 25); got != 1 {
		t.Fatalf("time past end should clamp to last beat, got %d", got)
	}
	if got := beatForTime(beats, 10); got != 1 {
		t.Fatalf("boundary belongs to the later beat, got %d", got)
	}
	if math.Abs(float64(beatForTime(beats, 3))) != 0 {
		t.Fatalf("t=3 should be beat 0")
	}
}
