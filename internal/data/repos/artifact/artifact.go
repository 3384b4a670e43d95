package artifact

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

type ArtifactRepo interface {
	Create(dbc dbctx.Context, a *domain.Artifact) (*domain.Artifact, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Artifact, error)
	ListByCheckpoint(dbc dbctx.Context, checkpointID uuid.UUID) ([]*domain.Artifact, error)
	ListVersions(dbc dbctx.Context, checkpointID uuid.UUID, artifactType, key string) ([]*domain.Artifact, error)
	LatestVersion(dbc dbctx.Context, checkpointID uuid.UUID, artifactType, key string) (*domain.Artifact, error)
	LatestPerKey(dbc dbctx.Context, checkpointID uuid.UUID) ([]*domain.Artifact, error)
	NextVersion(dbc dbctx.Context, checkpointID uuid.UUID, artifactType, key string) (int, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type artifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewArtifactRepo(db *gorm.DB, baseLog *logger.Logger) ArtifactRepo {
	return &artifactRepo{
		db:  db,
		log: baseLog.With("repo", "ArtifactRepo"),
	}
}

// Create inserts one version row. Versions are rows, not in-place updates,
// so every rendition of an artifact stays listable for the editor.
func (r *artifactRepo) Create(dbc dbctx.Context, a *domain.Artifact) (*domain.Artifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if a == nil {
		return nil, nil
	}
	if a.Version < 1 {
		a.Version = 1
	}
	if err := transaction.WithContext(dbc.Ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

func (r *artifactRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Artifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, apperr.NotFoundf("artifact")
	}
	var a domain.Artifact
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("artifact %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *artifactRepo) ListByCheckpoint(dbc dbctx.Context, checkpointID uuid.UUID) ([]*domain.Artifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Artifact
	err := transaction.WithContext(dbc.Ctx).
		Where("checkpoint_id = ?", checkpointID).
		Order("type ASC, key ASC, version ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *artifactRepo) ListVersions(dbc dbctx.Context, checkpointID uuid.UUID, artifactType, key string) ([]*domain.Artifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Artifact
	err := transaction.WithContext(dbc.Ctx).
		Where("checkpoint_id = ? AND type = ? AND key = ?", checkpointID, artifactType, key).
		Order("version ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *artifactRepo) LatestVersion(dbc dbctx.Context, checkpointID uuid.UUID, artifactType, key string) (*domain.Artifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var a domain.Artifact
	err := transaction.WithContext(dbc.Ctx).
		Where("checkpoint_id = ? AND type = ? AND key = ?", checkpointID, artifactType, key).
		Order("version DESC").
		Limit(1).
		Find(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == uuid.Nil {
		return nil, nil
	}
	return &a, nil
}

// LatestPerKey returns the max-version row for each (type, key) under the
// checkpoint via DISTINCT ON.
func (r *artifactRepo) LatestPerKey(dbc dbctx.Context, checkpointID uuid.UUID) ([]*domain.Artifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Artifact
	err := transaction.WithContext(dbc.Ctx).
		Raw(`SELECT DISTINCT ON (type, key) *
		     FROM artifact
		     WHERE checkpoint_id = ? AND deleted_at IS NULL
		     ORDER BY type, key, version DESC`, checkpointID).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NextVersion returns latest+1 for (checkpoint, type, key); increments are
// always by one relative to the current latest.
func (r *artifactRepo) NextVersion(dbc dbctx.Context, checkpointID uuid.UUID, artifactType, key string) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var maxVersion int
	err := transaction.WithContext(dbc.Ctx).
		Model(&domain.Artifact{}).
		Where("checkpoint_id = ? AND type = ? AND key = ?", checkpointID, artifactType, key).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}

// UpdateFields only touches references and metadata; blobs themselves are
// never copied or deleted here.
func (r *artifactRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.Artifact{}).
		Where("id = ?", id).
		Updates(updates).Error
}
