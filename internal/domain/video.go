package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	VideoStatusQueued   = "queued"
	VideoStatusEditing  = "editing"
	VideoStatusComplete = "complete"
	VideoStatusFailed   = "failed"
)

func VideoStatusRunningPhase(phase int) string { return fmt.Sprintf("running_phase_%d", phase) }
func VideoStatusPausedAtPhase(phase int) string { return fmt.Sprintf("paused_at_phase_%d", phase) }

// Video is the one-per-request pipeline root. Phase runners and the editor
// mutate it; it is never deleted by the core.
type Video struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Prompt        string         `gorm:"column:prompt;type:text;not null" json:"prompt"`
	Status        string         `gorm:"column:status;not null;index" json:"status"`
	CurrentPhase  int            `gorm:"column:current_phase;not null;default:0" json:"current_phase"`
	Progress      int            `gorm:"column:progress;not null;default:0" json:"progress"`
	AutoContinue  bool           `gorm:"column:auto_continue;not null;default:false" json:"auto_continue"`
	Cost          float64        `gorm:"column:cost;not null;default:0" json:"cost"`
	ErrorMessage  string         `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	Spec          datatypes.JSON `gorm:"column:spec;type:jsonb" json:"spec,omitempty"`
	Assets        datatypes.JSON `gorm:"column:assets;type:jsonb" json:"assets,omitempty"`
	ChunkURLs     datatypes.JSON `gorm:"column:chunk_urls;type:jsonb" json:"chunk_urls,omitempty"`
	StitchedURL   string         `gorm:"column:stitched_url" json:"stitched_url,omitempty"`
	FinalVideoURL string         `gorm:"column:final_video_url" json:"final_video_url,omitempty"`
	FinalMusicURL string         `gorm:"column:final_music_url" json:"final_music_url,omitempty"`
	PhaseOutputs  datatypes.JSON `gorm:"column:phase_outputs;type:jsonb" json:"phase_outputs,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	CompletedAt   *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Video) TableName() string { return "video" }

// Keys into Video.phase_outputs. Phase runners write "phase{n}"; the
// editor keeps its bookkeeping under its own key.
func PhaseOutputKey(phase int) string { return fmt.Sprintf("phase%d", phase) }

const EditingStateKey = "phase6_editing"

// PhaseOutputsMap decodes phase_outputs; an unset column reads as empty.
func (v *Video) PhaseOutputsMap() (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	if len(v.PhaseOutputs) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(v.PhaseOutputs, &out); err != nil {
		return nil, fmt.Errorf("decode phase outputs: %w", err)
	}
	return out, nil
}

// WithPhaseOutput returns phase_outputs with one entry replaced, ready for
// an UpdateFields call.
func (v *Video) WithPhaseOutput(key string, value any) (datatypes.JSON, error) {
	m, err := v.PhaseOutputsMap()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode phase output %s: %w", key, err)
	}
	m[key] = raw
	merged, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(merged), nil
}
