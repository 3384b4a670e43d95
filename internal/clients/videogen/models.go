package videogen

import "fmt"

// ModelSpec describes one video generation backend and how to phrase its
// request parameters. Param names differ per vendor, so every model carries
// its own mapping.
type ModelSpec struct {
	ID                string
	ChunkDuration     float64
	FPS               int
	NativeAudio       bool
	CostPerGeneration float64

	// Request parameter names.
	DurationParam string // "duration" or "num_frames"
	SizeParam     string // "size" or "aspect_ratio"
	PathSuffix    string
}

var modelTable = map[string]ModelSpec{
	"veo_fast": {
		ID:                "veo_fast",
		ChunkDuration:     8,
		FPS:               24,
		NativeAudio:       true,
		CostPerGeneration: 0.40,
		DurationParam:     "duration",
		SizeParam:         "aspect_ratio",
		PathSuffix:        "veo-fast",
	},
	"veo": {
		ID:                "veo",
		ChunkDuration:     8,
		FPS:               24,
		NativeAudio:       true,
		CostPerGeneration: 1.20,
		DurationParam:     "duration",
		SizeParam:         "aspect_ratio",
		PathSuffix:        "veo",
	},
	"kling": {
		ID:                "kling",
		ChunkDuration:     5,
		FPS:               24,
		NativeAudio:       false,
		CostPerGeneration: 0.35,
		DurationParam:     "duration",
		SizeParam:         "aspect_ratio",
		PathSuffix:        "kling",
	},
	"hailuo": {
		ID:                "hailuo",
		ChunkDuration:     6,
		FPS:               25,
		NativeAudio:       false,
		CostPerGeneration: 0.30,
		DurationParam:     "num_frames",
		SizeParam:         "size",
		PathSuffix:        "hailuo",
	},
}

const DefaultModelID = "veo_fast"

func LookupModel(id string) (ModelSpec, error) {
	if id == "" {
		id = DefaultModelID
	}
	m, ok := modelTable[id]
	if !ok {
		return ModelSpec{}, fmt.Errorf("unknown video model %q", id)
	}
	return m, nil
}

// RequestParams phrases duration and output size the way the model expects.
func (m ModelSpec) RequestParams(durationSeconds float64, width, height int) map[string]any {
	params := map[string]any{}

	switch m.DurationParam {
	case "num_frames":
		params["num_frames"] = int(durationSeconds * float64(m.FPS))
	default:
		params["duration"] = durationSeconds
	}

	switch m.SizeParam {
	case "size":
		params["size"] = fmt.Sprintf("%dx%d", width, height)
	default:
		params["aspect_ratio"] = aspectRatio(width, height)
	}
	return params
}

func aspectRatio(w, h int) string {
	if w <= 0 || h <= 0 {
		return "16:9"
	}
	d := gcd(w, h)
	return fmt.Sprintf("%d:%d", w/d, h/d)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
