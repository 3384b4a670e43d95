package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ArtifactTypeSpec       = "spec"
	ArtifactTypeBeatImage  = "beat_image"
	ArtifactTypeVideoChunk = "video_chunk"
	ArtifactTypeMusic      = "music"
	ArtifactTypeFinalVideo = "final_video"
)

// Artifact is a typed, versioned blob reference attached to a checkpoint.
// Every version is its own row; "latest per key" is the max-version row.
// version > 1 anywhere under a checkpoint marks that checkpoint as edited.
type Artifact struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CheckpointID     uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:uq_artifact_key_version,priority:1" json:"checkpoint_id"`
	Type             string         `gorm:"column:type;not null;index;uniqueIndex:uq_artifact_key_version,priority:2" json:"type"`
	Key              string         `gorm:"column:key;not null;uniqueIndex:uq_artifact_key_version,priority:3" json:"key"`
	Version          int            `gorm:"column:version;not null;default:1;uniqueIndex:uq_artifact_key_version,priority:4" json:"version"`
	BlobURL          string         `gorm:"column:blob_url;not null" json:"blob_url"`
	BlobKey          string         `gorm:"column:blob_key;not null" json:"blob_key"`
	ParentArtifactID *uuid.UUID     `gorm:"type:uuid;column:parent_artifact_id;index" json:"parent_artifact_id,omitempty"`
	Metadata         datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	Size             int64          `gorm:"column:size;not null;default:0" json:"size"`
	CreatedAt        time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Artifact) TableName() string { return "artifact" }
