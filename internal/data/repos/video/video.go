package video

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

type VideoRepo interface {
	Create(dbc dbctx.Context, v *domain.Video) (*domain.Video, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Video, error)
	GetForOwner(dbc dbctx.Context, ownerUserID, id uuid.UUID) (*domain.Video, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	AddCost(dbc dbctx.Context, id uuid.UUID, delta float64) error
}

type videoRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoRepo(db *gorm.DB, baseLog *logger.Logger) VideoRepo {
	return &videoRepo{
		db:  db,
		log: baseLog.With("repo", "VideoRepo"),
	}
}

func (r *videoRepo) Create(dbc dbctx.Context, v *domain.Video) (*domain.Video, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if v == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

func (r *videoRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Video, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, apperr.NotFoundf("video")
	}
	var v domain.Video
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("video %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetForOwner distinguishes a missing video (404) from one owned by someone
// else (403).
func (r *videoRepo) GetForOwner(dbc dbctx.Context, ownerUserID, id uuid.UUID) (*domain.Video, error) {
	v, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if v.OwnerUserID != ownerUserID {
		return nil, apperr.ErrOwnership
	}
	return v, nil
}

func (r *videoRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.Video{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *videoRepo) AddCost(dbc dbctx.Context, id uuid.UUID, delta float64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || delta == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.Video{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"cost":       gorm.Expr("cost + ?", delta),
			"updated_at": time.Now(),
		}).Error
}
