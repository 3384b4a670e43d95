package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CheckpointStatusPending  = "pending"
	CheckpointStatusApproved = "approved"

	// RootBranch is the branch every video starts on; forks append "-k".
	RootBranch = "main"

	// TerminalPhase is the last pipeline phase; no checkpoint past it.
	TerminalPhase = 4
)

// Checkpoint is a node in the per-video DAG. One row per
// (video, branch, phase, version); children reference parents by id, the
// tree is folded client-side.
type Checkpoint struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VideoID            uuid.UUID      `gorm:"type:uuid;not null;index;index:idx_checkpoint_video_branch,priority:1;uniqueIndex:uq_checkpoint_branch_phase_version,priority:1" json:"video_id"`
	OwnerUserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	BranchName         string         `gorm:"column:branch_name;not null;index:idx_checkpoint_video_branch,priority:2;uniqueIndex:uq_checkpoint_branch_phase_version,priority:2" json:"branch_name"`
	PhaseNumber        int            `gorm:"column:phase_number;not null;uniqueIndex:uq_checkpoint_branch_phase_version,priority:3;check:phase_number >= 1 AND phase_number <= 4" json:"phase_number"`
	Version            int            `gorm:"column:version;not null;default:1;uniqueIndex:uq_checkpoint_branch_phase_version,priority:4" json:"version"`
	ParentCheckpointID *uuid.UUID     `gorm:"type:uuid;column:parent_checkpoint_id;index" json:"parent_checkpoint_id,omitempty"`
	Status             string         `gorm:"column:status;not null;index" json:"status"`
	ApprovedAt         *time.Time     `gorm:"column:approved_at" json:"approved_at,omitempty"`
	Cost               float64        `gorm:"column:cost;not null;default:0" json:"cost"`
	EditDescription    string         `gorm:"column:edit_description;type:text" json:"edit_description,omitempty"`
	PhaseOutput        datatypes.JSON `gorm:"column:phase_output;type:jsonb" json:"phase_output,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Checkpoint) TableName() string { return "checkpoint" }

// CheckpointNode is the materialised tree returned by the tree endpoint.
type CheckpointNode struct {
	Checkpoint *Checkpoint       `json:"checkpoint"`
	Children   []*CheckpointNode `json:"children"`
}
