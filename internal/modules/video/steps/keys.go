package steps

import (
	"fmt"

	"github.com/google/uuid"
)

// Object-store layout: {owner_id}/videos/{video_id}/{name}.
func BlobKey(owner, videoID uuid.UUID, name string) string {
	return fmt.Sprintf("%s/videos/%s/%s", owner, videoID, name)
}

func BeatImageName(i int) string      { return fmt.Sprintf("beat_%02d.png", i) }
func ChunkName(i int) string          { return fmt.Sprintf("chunk_%02d.mp4", i) }
func ChunkLastFrameName(i int) string { return fmt.Sprintf("chunk_%02d_last_frame.png", i) }
func ChunkPartName(i, part int) string {
	return fmt.Sprintf("chunk_%02d_part%d.mp4", i, part)
}

// Versioned names keep regenerated renditions next to the originals
// instead of overwriting them.
func BeatImageVersionName(i, version int) string {
	return fmt.Sprintf("beat_%02d_v%d.png", i, version)
}
func ChunkVersionName(i, version int) string {
	return fmt.Sprintf("chunk_%02d_v%d.mp4", i, version)
}
func SpecVersionName(version int) string { return fmt.Sprintf("spec_v%d.json", version) }

const (
	SpecName       = "spec.json"
	StitchedName   = "stitched.mp4"
	FinalDraftName = "final_draft.mp4"
	MusicName      = "background.mp3"
)
