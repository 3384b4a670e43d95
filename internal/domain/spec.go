package domain

// Beat is one narrative segment of the planned video. Phase 2 fills ImageURL
// with the storyboard frame; phase 3 anchors chunks on it.
type Beat struct {
	ID             string  `json:"id"`
	Start          float64 `json:"start"`
	Duration       float64 `json:"duration"`
	PromptTemplate string  `json:"prompt_template"`
	ShotType       string  `json:"shot_type"`
	ImageURL       string  `json:"image_url,omitempty"`
	ImageBlobKey   string  `json:"image_blob_key,omitempty"`
}

// VideoSpec is the phase-1 plan. Beat durations must sum to Duration.
// Style/Product/Audio stay schemaless so spec PATCHes can carry arbitrary
// creative direction without a migration.
type VideoSpec struct {
	Beats       []Beat         `json:"beats"`
	Style       map[string]any `json:"style,omitempty"`
	Product     map[string]any `json:"product,omitempty"`
	Audio       map[string]any `json:"audio,omitempty"`
	Duration    float64        `json:"duration"`
	FPS         int            `json:"fps"`
	Model       string         `json:"model"`
	Transitions []string       `json:"transitions,omitempty"`
}

// TotalBeatDuration is used to validate the sum(beat.duration) == duration
// invariant.
func (s *VideoSpec) TotalBeatDuration() float64 {
	var total float64
	for _, b := range s.Beats {
		total += b.Duration
	}
	return total
}
