package video

import (
	"errors"
	"testing"
	"time"

	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/modules/video/steps"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
)

func chunkRef(key string) domain.ChunkRef {
	return domain.ChunkRef{URL: "https://cdn.example.com/" + key, BlobKey: key}
}

func seededState(n int) (*domain.EditingState, []domain.ChunkRef) {
	state := &domain.EditingState{
		ChunkVersions: map[string]*domain.ChunkVersionSet{},
		SplitHistory:  map[string]*domain.SplitRecord{},
	}
	timeline := make([]domain.ChunkRef, 0, n)
	for i := 0; i < n; i++ {
		ref := chunkRef(steps.ChunkName(i))
		timeline = append(timeline, ref)
		state.ChunkVersions[domain.ChunkVersionKey(i)] = &domain.ChunkVersionSet{
			Original:        ref,
			CurrentSelected: VersionOriginal,
		}
	}
	state.Timeline = timeline
	return state, timeline
}

func TestApplyReorder(t *testing.T) {
	_, timeline := seededState(3)

	out, err := applyReorder(timeline, []int{2, 0, 1})
	if err != nil {
		t.Fatalf("applyReorder: %v", err)
	}
	want := []string{timeline[2].BlobKey, timeline[0].BlobKey, timeline[1].BlobKey}
	for i, ref := range out {
		if ref.BlobKey != want[i] {
			t.Fatalf("position %d: got %q, want %q", i, ref.BlobKey, want[i])
		}
	}

	if _, err := applyReorder(timeline, []int{0, 1}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("short order: got %v, want validation error", err)
	}
	if _, err := applyReorder(timeline, []int{0, 1, 1}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("repeated position: got %v, want validation error", err)
	}
	if _, err := applyReorder(timeline, []int{0, 1, 3}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("out of range position: got %v, want validation error", err)
	}
}

func TestApplyDelete(t *testing.T) {
	_, timeline := seededState(4)

	out, err := applyDelete(timeline, []int{1, 3})
	if err != nil {
		t.Fatalf("applyDelete: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d chunks, want 2", len(out))
	}
	if out[0].BlobKey != timeline[0].BlobKey || out[1].BlobKey != timeline[2].BlobKey {
		t.Fatalf("wrong survivors: %q, %q", out[0].BlobKey, out[1].BlobKey)
	}

	if _, err := applyDelete(timeline, nil); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty delete: got %v, want validation error", err)
	}
	if _, err := applyDelete(timeline, []int{1, 1}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("repeated delete: got %v, want validation error", err)
	}
	if _, err := applyDelete(timeline, []int{0, 1, 2, 3}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("delete all: got %v, want validation error", err)
	}
}

func TestRecordReplacementAndSelectVersion(t *testing.T) {
	state, timeline := seededState(2)

	replacement := chunkRef("owner/videos/vid/chunk_01_v2.mp4")
	versionID, err := recordReplacement(state, timeline, 1, replacement)
	if err != nil {
		t.Fatalf("recordReplacement: %v", err)
	}
	if versionID != "replacement_1" {
		t.Fatalf("got version id %q, want replacement_1", versionID)
	}
	if timeline[1].BlobKey != replacement.BlobKey {
		t.Fatalf("timeline not updated: %q", timeline[1].BlobKey)
	}
	set := state.ChunkVersions[domain.ChunkVersionKey(1)]
	if set.CurrentSelected != "replacement_1" {
		t.Fatalf("current selected %q, want replacement_1", set.CurrentSelected)
	}

	// Both renditions must stay reachable.
	if err := selectVersion(state, timeline, 1, VersionOriginal); err != nil {
		t.Fatalf("select original: %v", err)
	}
	if timeline[1].BlobKey != steps.ChunkName(1) {
		t.Fatalf("original not restored: %q", timeline[1].BlobKey)
	}
	if err := selectVersion(state, timeline, 1, "replacement_1"); err != nil {
		t.Fatalf("select replacement_1: %v", err)
	}
	if timeline[1].BlobKey != replacement.BlobKey {
		t.Fatalf("replacement not restored: %q", timeline[1].BlobKey)
	}

	if err := selectVersion(state, timeline, 1, "replacement_9"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown version: got %v, want not found", err)
	}
}

func TestOriginalIndexSurvivesReorder(t *testing.T) {
	state, timeline := seededState(3)

	replacement := chunkRef("owner/videos/vid/chunk_02_v2.mp4")
	if _, err := recordReplacement(state, timeline, 2, replacement); err != nil {
		t.Fatalf("recordReplacement: %v", err)
	}
	out, err := applyReorder(timeline, []int{2, 1, 0})
	if err != nil {
		t.Fatalf("applyReorder: %v", err)
	}

	// The replaced chunk moved to position 0 but still resolves to its
	// original index 2.
	idx, err := originalIndexAt(state, out, 0)
	if err != nil {
		t.Fatalf("originalIndexAt: %v", err)
	}
	if idx != 2 {
		t.Fatalf("got original index %d, want 2", idx)
	}
}

func TestInsertAndUndoSplit(t *testing.T) {
	state, timeline := seededState(3)

	rec := &domain.SplitRecord{
		OriginalIndex: 1,
		OriginalURL:   timeline[1].URL,
		OriginalKey:   timeline[1].BlobKey,
		SplitTime:     2.5,
		Part1Key:      steps.ChunkPartName(1, 1),
		Part2Key:      steps.ChunkPartName(1, 2),
		CreatedAt:     time.Now().UTC(),
	}
	part1 := chunkRef(rec.Part1Key)
	part2 := chunkRef(rec.Part2Key)

	out, err := insertSplit(state, timeline, 1, rec, part1, part2)
	if err != nil {
		t.Fatalf("insertSplit: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d chunks after split, want 4", len(out))
	}
	if out[1].BlobKey != rec.Part1Key || out[2].BlobKey != rec.Part2Key {
		t.Fatalf("parts not in place: %q, %q", out[1].BlobKey, out[2].BlobKey)
	}

	// A chunk holds at most one live split.
	if _, err := insertSplit(state, out, 1, rec, part1, part2); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("double split: got %v, want validation error", err)
	}

	restored, err := undoSplit(state, out, 1)
	if err != nil {
		t.Fatalf("undoSplit: %v", err)
	}
	if len(restored) != 3 {
		t.Fatalf("got %d chunks after undo, want 3", len(restored))
	}
	if restored[1].BlobKey != rec.OriginalKey {
		t.Fatalf("original not restored: %q", restored[1].BlobKey)
	}
	if _, err := undoSplit(state, restored, 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("undo twice: got %v, want not found", err)
	}
}

func TestUndoSplitRequiresAdjacentParts(t *testing.T) {
	state, timeline := seededState(3)

	rec := &domain.SplitRecord{
		OriginalIndex: 0,
		OriginalURL:   timeline[0].URL,
		OriginalKey:   timeline[0].BlobKey,
		Part1Key:      steps.ChunkPartName(0, 1),
		Part2Key:      steps.ChunkPartName(0, 2),
	}
	out, err := insertSplit(state, timeline, 0, rec, chunkRef(rec.Part1Key), chunkRef(rec.Part2Key))
	if err != nil {
		t.Fatalf("insertSplit: %v", err)
	}
	// Move part2 away from part1.
	out, err = applyReorder(out, []int{0, 2, 1, 3})
	if err != nil {
		t.Fatalf("applyReorder: %v", err)
	}
	if _, err := undoSplit(state, out, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("separated parts: got %v, want validation error", err)
	}
}

func TestResolveSplitPoint(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	n := func(v int) *int { return &v }

	at, err := resolveSplitPoint(EditAction{SplitTime: f(2.0)}, 5.0, 24)
	if err != nil || at != 2.0 {
		t.Fatalf("split_time: at=%v err=%v", at, err)
	}
	at, err = resolveSplitPoint(EditAction{SplitPercentage: f(0.5)}, 5.0, 24)
	if err != nil || at != 2.5 {
		t.Fatalf("split_percentage fraction: at=%v err=%v", at, err)
	}
	// Percentages above 1 are read as 0..100.
	at, err = resolveSplitPoint(EditAction{SplitPercentage: f(50)}, 5.0, 24)
	if err != nil || at != 2.5 {
		t.Fatalf("split_percentage percent: at=%v err=%v", at, err)
	}
	at, err = resolveSplitPoint(EditAction{SplitFrame: n(48)}, 5.0, 24)
	if err != nil || at != 2.0 {
		t.Fatalf("split_frame: at=%v err=%v", at, err)
	}

	if _, err := resolveSplitPoint(EditAction{}, 5.0, 24); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("no selector: got %v, want validation error", err)
	}
	if _, err := resolveSplitPoint(EditAction{SplitTime: f(1), SplitFrame: n(24)}, 5.0, 24); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("two selectors: got %v, want validation error", err)
	}
	if _, err := resolveSplitPoint(EditAction{SplitTime: f(0.2)}, 5.0, 24); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("too close to start: got %v, want validation error", err)
	}
	if _, err := resolveSplitPoint(EditAction{SplitTime: f(4.8)}, 5.0, 24); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("too close to end: got %v, want validation error", err)
	}
	if _, err := resolveSplitPoint(EditAction{SplitFrame: n(10)}, 5.0, 0); !errors.Is(err, apperr.ErrIntegrity) {
		t.Fatalf("no fps: got %v, want integrity error", err)
	}
}
