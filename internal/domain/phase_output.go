package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PhaseOutput is the serialized result of one phase run, stored on the
// checkpoint and mirrored into Video.phase_outputs. One variant pointer is
// set per phase; the JSON blob shape stays forward compatible.
type PhaseOutput struct {
	Phase   int    `json:"phase"`
	Branch  string `json:"branch"`
	Version int    `json:"version"`
	Error   string `json:"error,omitempty"`

	Plan       *PlanOutput       `json:"plan,omitempty"`
	Storyboard *StoryboardOutput `json:"storyboard,omitempty"`
	Chunks     *ChunksOutput     `json:"chunks,omitempty"`
	Refine     *RefineOutput     `json:"refine,omitempty"`
}

type PlanOutput struct {
	Spec        VideoSpec `json:"spec"`
	SpecBlobURL string    `json:"spec_blob_url,omitempty"`
}

type StoryboardOutput struct {
	Spec          VideoSpec `json:"spec"`
	BeatImageURLs []string  `json:"beat_image_urls"`
}

type ChunksOutput struct {
	Spec          VideoSpec   `json:"spec"`
	ChunkURLs     []string    `json:"chunk_urls"`
	ChunkBlobKeys []string    `json:"chunk_blob_keys"`
	LastFrameURLs []string    `json:"last_frame_urls"`
	BeatToChunk   map[int]int `json:"beat_to_chunk"`
	ChunkDuration float64     `json:"chunk_duration"`
	StitchedURL   string      `json:"stitched_url"`
	Cost          float64     `json:"cost"`
}

type RefineOutput struct {
	FinalVideoURL string `json:"final_video_url"`
	MusicURL      string `json:"music_url,omitempty"`
	MusicGenre    string `json:"music_genre,omitempty"`
	MusicSkipped  bool   `json:"music_skipped,omitempty"`
}

func (p *PhaseOutput) Marshal() (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal phase output: %w", err)
	}
	return b, nil
}

func UnmarshalPhaseOutput(raw []byte) (*PhaseOutput, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty phase output")
	}
	var out PhaseOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal phase output: %w", err)
	}
	return &out, nil
}

// ChunkRef points at one concrete rendition of a chunk.
type ChunkRef struct {
	URL        string     `json:"url"`
	BlobKey    string     `json:"blob_key"`
	ArtifactID *uuid.UUID `json:"artifact_id,omitempty"`
	Model      string     `json:"model,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ChunkVersionSet tracks every rendition of one chunk index so the editor
// can switch between them without losing any.
type ChunkVersionSet struct {
	Original        ChunkRef            `json:"original"`
	Replacements    map[string]ChunkRef `json:"replacements,omitempty"`
	CurrentSelected string              `json:"current_selected,omitempty"`
}

// SplitRecord remembers a split so it can be undone.
type SplitRecord struct {
	OriginalIndex int       `json:"original_index"`
	OriginalURL   string    `json:"original_url"`
	OriginalKey   string    `json:"original_key"`
	SplitTime     float64   `json:"split_time"`
	Part1URL      string    `json:"part1_url"`
	Part2URL      string    `json:"part2_url"`
	Part1Key      string    `json:"part1_key"`
	Part2Key      string    `json:"part2_key"`
	Part1Index    int       `json:"part1_index"`
	Part2Index    int       `json:"part2_index"`
	CreatedAt     time.Time `json:"created_at"`
}

// EditingState lives in Video.phase_outputs["phase6_editing"]. Timeline is
// the current ordered cut; chunk_versions and split_history are keyed by
// original chunk index and survive reorders.
type EditingState struct {
	Timeline      []ChunkRef                  `json:"timeline,omitempty"`
	ChunkVersions map[string]*ChunkVersionSet `json:"chunk_versions,omitempty"`
	SplitHistory  map[string]*SplitRecord     `json:"split_history,omitempty"`
}

func ChunkVersionKey(index int) string { return fmt.Sprintf("chunk_%d", index) }
