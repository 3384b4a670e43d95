package checkpoint

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

type CheckpointRepo interface {
	Create(dbc dbctx.Context, cp *domain.Checkpoint) (*domain.Checkpoint, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Checkpoint, error)
	GetForOwner(dbc dbctx.Context, ownerUserID, id uuid.UUID) (*domain.Checkpoint, error)
	ListByVideo(dbc dbctx.Context, videoID uuid.UUID, branch string) ([]*domain.Checkpoint, error)
	GetCurrent(dbc dbctx.Context, videoID uuid.UUID) (*domain.Checkpoint, error)
	GetLeaves(dbc dbctx.Context, videoID uuid.UUID) ([]*domain.Checkpoint, error)
	Approve(dbc dbctx.Context, id uuid.UUID) error
	HasEdits(dbc dbctx.Context, id uuid.UUID) (bool, error)
	Tree(dbc dbctx.Context, videoID uuid.UUID) ([]*domain.CheckpointNode, error)
	NewBranch(dbc dbctx.Context, cp *domain.Checkpoint) (string, error)
	NextVersion(dbc dbctx.Context, videoID uuid.UUID, branch string, phase int) (int, error)
	LockVideo(dbc dbctx.Context, videoID uuid.UUID) error
	UpdatePhaseOutput(dbc dbctx.Context, id uuid.UUID, phaseOutput []byte) error
}

type checkpointRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCheckpointRepo(db *gorm.DB, baseLog *logger.Logger) CheckpointRepo {
	return &checkpointRepo{
		db:  db,
		log: baseLog.With("repo", "CheckpointRepo"),
	}
}

func (r *checkpointRepo) Create(dbc dbctx.Context, cp *domain.Checkpoint) (*domain.Checkpoint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if cp == nil {
		return nil, nil
	}
	if cp.BranchName == "" {
		cp.BranchName = domain.RootBranch
	}
	if cp.Version < 1 {
		cp.Version = 1
	}
	if cp.Status == "" {
		cp.Status = domain.CheckpointStatusPending
	}
	if err := transaction.WithContext(dbc.Ctx).Create(cp).Error; err != nil {
		return nil, err
	}
	return cp, nil
}

func (r *checkpointRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Checkpoint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, apperr.NotFoundf("checkpoint")
	}
	var cp domain.Checkpoint
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("checkpoint %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *checkpointRepo) GetForOwner(dbc dbctx.Context, ownerUserID, id uuid.UUID) (*domain.Checkpoint, error) {
	cp, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if cp.OwnerUserID != ownerUserID {
		return nil, apperr.ErrOwnership
	}
	return cp, nil
}

func (r *checkpointRepo) ListByVideo(dbc dbctx.Context, videoID uuid.UUID, branch string) ([]*domain.Checkpoint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Checkpoint
	q := transaction.WithContext(dbc.Ctx).
		Where("video_id = ?", videoID).
		Order("created_at ASC")
	if branch != "" {
		q = q.Where("branch_name = ?", branch)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetCurrent returns the most recent pending checkpoint, nil when none.
func (r *checkpointRepo) GetCurrent(dbc dbctx.Context, videoID uuid.UUID) (*domain.Checkpoint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var cp domain.Checkpoint
	err := transaction.WithContext(dbc.Ctx).
		Where("video_id = ? AND status = ?", videoID, domain.CheckpointStatusPending).
		Order("created_at DESC").
		Limit(1).
		Find(&cp).Error
	if err != nil {
		return nil, err
	}
	if cp.ID == uuid.Nil {
		return nil, nil
	}
	return &cp, nil
}

// GetLeaves returns checkpoints with no children; each one is an active
// branch tip.
func (r *checkpointRepo) GetLeaves(dbc dbctx.Context, videoID uuid.UUID) ([]*domain.Checkpoint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Checkpoint
	err := transaction.WithContext(dbc.Ctx).
		Where(`video_id = ? AND NOT EXISTS (
			SELECT 1 FROM checkpoint child
			WHERE child.parent_checkpoint_id = checkpoint.id
			  AND child.deleted_at IS NULL
		)`, videoID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Approve is idempotent: an already-approved checkpoint is left untouched.
func (r *checkpointRepo) Approve(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.Checkpoint{}).
		Where("id = ? AND status = ?", id, domain.CheckpointStatusPending).
		Updates(map[string]interface{}{
			"status":      domain.CheckpointStatusApproved,
			"approved_at": now,
			"updated_at":  now,
		}).Error
}

// HasEdits reports whether any artifact under the checkpoint has version > 1,
// which is what makes a continue fork a new branch.
func (r *checkpointRepo) HasEdits(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&domain.Artifact{}).
		Where("checkpoint_id = ? AND version > 1", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Tree loads every checkpoint of the video and folds the (id, parent_id)
// rows into nested nodes, breadth-first by depth then created time. The DAG
// is materialised on demand, never stored nested.
func (r *checkpointRepo) Tree(dbc dbctx.Context, videoID uuid.UUID) ([]*domain.CheckpointNode, error) {
	all, err := r.ListByVideo(dbc, videoID, "")
	if err != nil {
		return nil, err
	}
	nodes := make(map[uuid.UUID]*domain.CheckpointNode, len(all))
	for _, cp := range all {
		nodes[cp.ID] = &domain.CheckpointNode{Checkpoint: cp, Children: []*domain.CheckpointNode{}}
	}
	var roots []*domain.CheckpointNode
	for _, cp := range all {
		node := nodes[cp.ID]
		if cp.ParentCheckpointID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*cp.ParentCheckpointID]
		if !ok {
			// Parent outside this video's rows; treat as a root rather
			// than dropping the subtree.
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	sortNodes(roots)
	return roots, nil
}

func sortNodes(nodes []*domain.CheckpointNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Checkpoint.CreatedAt.Before(nodes[j].Checkpoint.CreatedAt)
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// NewBranch allocates the next free child branch name under cp's branch
// ("main" -> "main-1", "main-2"; "main-1" -> "main-1-1"). It does not create
// a checkpoint; the caller embeds the name in the next phase's input.
// Callers racing on the same video must serialise via LockVideo.
func (r *checkpointRepo) NewBranch(dbc dbctx.Context, cp *domain.Checkpoint) (string, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if cp == nil {
		return "", fmt.Errorf("nil checkpoint")
	}
	base := cp.BranchName
	if base == "" {
		base = domain.RootBranch
	}
	var names []string
	err := transaction.WithContext(dbc.Ctx).
		Model(&domain.Checkpoint{}).
		Where("video_id = ? AND branch_name LIKE ?", cp.VideoID, base+"-%").
		Distinct().
		Pluck("branch_name", &names).Error
	if err != nil {
		return "", err
	}
	maxChild := 0
	for _, name := range names {
		suffix := strings.TrimPrefix(name, base+"-")
		// Only immediate children count: "main-1-2" is a grandchild of "main".
		if strings.Contains(suffix, "-") {
			continue
		}
		k, convErr := strconv.Atoi(suffix)
		if convErr != nil {
			continue
		}
		if k > maxChild {
			maxChild = k
		}
	}
	return fmt.Sprintf("%s-%d", base, maxChild+1), nil
}

// NextVersion returns max(version)+1 for (video, branch, phase), 1 when none.
func (r *checkpointRepo) NextVersion(dbc dbctx.Context, videoID uuid.UUID, branch string, phase int) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var maxVersion int
	err := transaction.WithContext(dbc.Ctx).
		Model(&domain.Checkpoint{}).
		Where("video_id = ? AND branch_name = ? AND phase_number = ?", videoID, branch, phase).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}

// LockVideo takes a transaction-scoped advisory lock on the video id so
// concurrent continues cannot approve and dispatch twice. Only meaningful
// inside a transaction.
func (r *checkpointRepo) LockVideo(dbc dbctx.Context, videoID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Exec(`SELECT pg_advisory_xact_lock(hashtext(?::text))`, videoID.String()).Error
}

func (r *checkpointRepo) UpdatePhaseOutput(dbc dbctx.Context, id uuid.UUID, phaseOutput []byte) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.Checkpoint{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"phase_output": phaseOutput,
			"updated_at":   time.Now(),
		}).Error
}
