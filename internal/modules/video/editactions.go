package video

import (
	"fmt"
	"sort"

	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
)

const (
	ActionReplace       = "replace"
	ActionSelectVersion = "select_version"
	ActionReorder       = "reorder"
	ActionDelete        = "delete"
	ActionSplit         = "split"
	ActionUndoSplit     = "undo_split"

	// VersionOriginal selects the phase-3 rendition of a chunk.
	VersionOriginal = "original"
)

// EditAction is one step of an edit request. Actions run in order and the
// whole request aborts on the first failure; nothing is persisted until
// every action has applied and the cut re-stitched.
type EditAction struct {
	Type       string `json:"type"`
	ChunkIndex int    `json:"chunk_index,omitempty"`

	// replace
	Prompt string `json:"prompt,omitempty"`

	// select_version
	VersionID string `json:"version_id,omitempty"`

	// reorder: permutation of current timeline positions.
	Order []int `json:"order,omitempty"`

	// delete: timeline positions to drop.
	Indices []int `json:"indices,omitempty"`

	// split: exactly one of the three selectors.
	SplitTime       *float64 `json:"split_time,omitempty"`
	SplitPercentage *float64 `json:"split_percentage,omitempty"`
	SplitFrame      *int     `json:"split_frame,omitempty"`

	// undo_split: original chunk index of the split to revert.
	OriginalIndex int `json:"original_index,omitempty"`
}

func validatePosition(timeline []domain.ChunkRef, pos int) error {
	if pos < 0 || pos >= len(timeline) {
		return apperr.Validationf("chunk index %d out of range (timeline has %d chunks)", pos, len(timeline))
	}
	return nil
}

// applyReorder returns the timeline permuted by order, which must mention
// every current position exactly once.
func applyReorder(timeline []domain.ChunkRef, order []int) ([]domain.ChunkRef, error) {
	if len(order) != len(timeline) {
		return nil, apperr.Validationf("reorder lists %d positions, timeline has %d", len(order), len(timeline))
	}
	seen := make(map[int]bool, len(order))
	out := make([]domain.ChunkRef, 0, len(order))
	for _, pos := range order {
		if pos < 0 || pos >= len(timeline) {
			return nil, apperr.Validationf("reorder position %d out of range", pos)
		}
		if seen[pos] {
			return nil, apperr.Validationf("reorder repeats position %d", pos)
		}
		seen[pos] = true
		out = append(out, timeline[pos])
	}
	return out, nil
}

// applyDelete removes the given timeline positions, highest first so the
// remaining positions stay valid while deleting.
func applyDelete(timeline []domain.ChunkRef, indices []int) ([]domain.ChunkRef, error) {
	if len(indices) == 0 {
		return nil, apperr.Validationf("delete lists no positions")
	}
	seen := make(map[int]bool, len(indices))
	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	for _, pos := range sorted {
		if pos < 0 || pos >= len(timeline) {
			return nil, apperr.Validationf("delete position %d out of range", pos)
		}
		if seen[pos] {
			return nil, apperr.Validationf("delete repeats position %d", pos)
		}
		seen[pos] = true
	}
	if len(timeline)-len(sorted) < 1 {
		return nil, apperr.Validationf("delete would leave an empty timeline")
	}
	out := make([]domain.ChunkRef, len(timeline))
	copy(out, timeline)
	for _, pos := range sorted {
		out = append(out[:pos], out[pos+1:]...)
	}
	return out, nil
}

// selectVersion swaps the rendition at a timeline position to a recorded
// version of its original chunk.
func selectVersion(state *domain.EditingState, timeline []domain.ChunkRef, pos int, versionID string) error {
	if err := validatePosition(timeline, pos); err != nil {
		return err
	}
	origIdx, err := originalIndexAt(state, timeline, pos)
	if err != nil {
		return err
	}
	key := domain.ChunkVersionKey(origIdx)
	set := state.ChunkVersions[key]
	if set == nil {
		return apperr.NotFoundf("chunk %d has no recorded versions", origIdx)
	}
	var ref domain.ChunkRef
	switch versionID {
	case VersionOriginal:
		ref = set.Original
	default:
		r, ok := set.Replacements[versionID]
		if !ok {
			return apperr.NotFoundf("chunk %d has no version %q", origIdx, versionID)
		}
		ref = r
	}
	set.CurrentSelected = versionID
	timeline[pos] = ref
	return nil
}

// recordReplacement stores a new rendition for the chunk at a timeline
// position and selects it. Returns the assigned version id.
func recordReplacement(state *domain.EditingState, timeline []domain.ChunkRef, pos int, ref domain.ChunkRef) (string, error) {
	origIdx, err := originalIndexAt(state, timeline, pos)
	if err != nil {
		return "", err
	}
	key := domain.ChunkVersionKey(origIdx)
	set := state.ChunkVersions[key]
	if set == nil {
		set = &domain.ChunkVersionSet{Original: timeline[pos], CurrentSelected: VersionOriginal}
		state.ChunkVersions[key] = set
	}
	if set.Replacements == nil {
		set.Replacements = map[string]domain.ChunkRef{}
	}
	versionID := fmt.Sprintf("replacement_%d", len(set.Replacements)+1)
	set.Replacements[versionID] = ref
	set.CurrentSelected = versionID
	timeline[pos] = ref
	return versionID, nil
}

// originalIndexAt resolves the original chunk index behind a timeline
// position by matching blob keys against the version sets; a position
// nobody has touched yet maps to itself.
func originalIndexAt(state *domain.EditingState, timeline []domain.ChunkRef, pos int) (int, error) {
	if err := validatePosition(timeline, pos); err != nil {
		return 0, err
	}
	key := timeline[pos].BlobKey
	for verKey, set := range state.ChunkVersions {
		if set.Original.BlobKey == key {
			return parseChunkVersionKey(verKey)
		}
		for _, r := range set.Replacements {
			if r.BlobKey == key {
				return parseChunkVersionKey(verKey)
			}
		}
	}
	return pos, nil
}

func parseChunkVersionKey(key string) (int, error) {
	var idx int
	if _, err := fmt.Sscanf(key, "chunk_%d", &idx); err != nil {
		return 0, apperr.Integrityf("bad chunk version key %q", key)
	}
	return idx, nil
}

// insertSplit replaces the chunk at pos with its two parts and records the
// split so it can be undone.
func insertSplit(state *domain.EditingState, timeline []domain.ChunkRef, pos int, rec *domain.SplitRecord, part1, part2 domain.ChunkRef) ([]domain.ChunkRef, error) {
	if err := validatePosition(timeline, pos); err != nil {
		return nil, err
	}
	key := domain.ChunkVersionKey(rec.OriginalIndex)
	if _, exists := state.SplitHistory[key]; exists {
		return nil, apperr.Validationf("chunk %d is already split; undo it first", rec.OriginalIndex)
	}
	state.SplitHistory[key] = rec

	out := make([]domain.ChunkRef, 0, len(timeline)+1)
	out = append(out, timeline[:pos]...)
	out = append(out, part1, part2)
	out = append(out, timeline[pos+1:]...)
	return out, nil
}

// undoSplit restores the pre-split chunk where its two parts sit adjacent
// in the timeline.
func undoSplit(state *domain.EditingState, timeline []domain.ChunkRef, originalIndex int) ([]domain.ChunkRef, error) {
	key := domain.ChunkVersionKey(originalIndex)
	rec := state.SplitHistory[key]
	if rec == nil {
		return nil, apperr.NotFoundf("chunk %d has no split to undo", originalIndex)
	}

	pos := -1
	for i := 0; i < len(timeline)-1; i++ {
		if timeline[i].BlobKey == rec.Part1Key && timeline[i+1].BlobKey == rec.Part2Key {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, apperr.Validationf("split parts of chunk %d are no longer adjacent; reorder them together first", originalIndex)
	}

	restored := domain.ChunkRef{
		URL:       rec.OriginalURL,
		BlobKey:   rec.OriginalKey,
		CreatedAt: rec.CreatedAt,
	}
	out := make([]domain.ChunkRef, 0, len(timeline)-1)
	out = append(out, timeline[:pos]...)
	out = append(out, restored)
	out = append(out, timeline[pos+2:]...)
	delete(state.SplitHistory, key)
	return out, nil
}
