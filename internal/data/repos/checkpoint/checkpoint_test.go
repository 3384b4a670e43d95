package checkpoint

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge-backend/internal/data/repos/testutil"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
)

func TestCheckpointRepo_BranchNaming(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCheckpointRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	owner := uuid.New()
	v := testutil.SeedVideo(t, ctx, tx, owner)
	root := testutil.SeedCheckpoint(t, ctx, tx, v, "main", 1, 1, nil)

	name, err := repo.NewBranch(dbc, root)
	if err != nil {
		t.Fatalf("NewBranch: %v", err)
	}
	if name != "main-1" {
		t.Fatalf("first fork of main should be main-1, got %q", name)
	}

	testutil.SeedCheckpoint(t, ctx, tx, v, "main-1", 2, 1, &root.ID)
	testutil.SeedCheckpoint(t, ctx, tx, v, "main-3", 2, 1, &root.ID)
	// Grandchild branches must not bump main's child counter.
	testutil.SeedCheckpoint(t, ctx, tx, v, "main-1-2", 3, 1, &root.ID)

	name, err = repo.NewBranch(dbc, root)
	if err != nil {
		t.Fatalf("NewBranch: %v", err)
	}
	if name != "main-4" {
		t.Fatalf("fork after main-3 should be main-4, got %q", name)
	}

	child := &domain.Checkpoint{VideoID: v.ID, BranchName: "main-1"}
	name, err = repo.NewBranch(dbc, child)
	if err != nil {
		t.Fatalf("NewBranch: %v", err)
	}
	if name != "main-1-3" {
		t.Fatalf("fork of main-1 after main-1-2 should be main-1-3, got %q", name)
	}
}

func TestCheckpointRepo_NextVersion(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCheckpointRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	owner := uuid.New()
	v := testutil.SeedVideo(t, ctx, tx, owner)

	got, err := repo.NextVersion(dbc, v.ID, "main", 1)
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if got != 1 {
		t.Fatalf("empty branch+phase should version at 1, got %d", got)
	}

	testutil.SeedCheckpoint(t, ctx, tx, v, "main", 1, 1, nil)
	testutil.SeedCheckpoint(t, ctx, tx, v, "main", 1, 2, nil)

	got, err = repo.NextVersion(dbc, v.ID, "main", 1)
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if got != 3 {
		t.Fatalf("want version 3 after versions 1 and 2, got %d", got)
	}
}

func TestCheckpointRepo_ApproveIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCheckpointRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	owner := uuid.New()
	v := testutil.SeedVideo(t, ctx, tx, owner)
	cp := testutil.SeedCheckpoint(t, ctx, tx, v, "main", 1, 1, nil)

	if err := repo.Approve(dbc, cp.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	first, err := repo.GetByID(dbc, cp.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if first.Status != domain.CheckpointStatusApproved || first.ApprovedAt == nil {
		t.Fatalf("checkpoint not approved: %+v", first)
	}

	if err := repo.Approve(dbc, cp.ID); err != nil {
		t.Fatalf("second Approve: %v", err)
	}
	second, err := repo.GetByID(dbc, cp.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !second.ApprovedAt.Equal(*first.ApprovedAt) {
		t.Fatalf("second approve moved approved_at: %v vs %v", second.ApprovedAt, first.ApprovedAt)
	}
}

func TestCheckpointRepo_LeavesAndTree(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCheckpointRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	owner := uuid.New()
	v := testutil.SeedVideo(t, ctx, tx, owner)

	cp1 := testutil.SeedCheckpoint(t, ctx, tx, v, "main", 1, 1, nil)
	cp2 := testutil.SeedCheckpoint(t, ctx, tx, v, "main", 2, 1, &cp1.ID)
	cp2b := testutil.SeedCheckpoint(t, ctx, tx, v, "main-1", 2, 1, &cp1.ID)
	cp3 := testutil.SeedCheckpoint(t, ctx, tx, v, "main", 3, 1, &cp2.ID)

	leaves, err := repo.GetLeaves(dbc, v.ID)
	if err != nil {
		t.Fatalf("GetLeaves: %v", err)
	}
	leafIDs := map[uuid.UUID]bool{}
	for _, l := range leaves {
		leafIDs[l.ID] = true
	}
	if len(leaves) != 2 || !leafIDs[cp3.ID] || !leafIDs[cp2b.ID] {
		t.Fatalf("want leaves {cp3, cp2b}, got %v", leafIDs)
	}

	tree, err := repo.Tree(dbc, v.ID)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tree) != 1 || tree[0].Checkpoint.ID != cp1.ID {
		t.Fatalf("want single root cp1, got %d roots", len(tree))
	}
	if len(tree[0].Children) != 2 {
		t.Fatalf("cp1 should have two children, got %d", len(tree[0].Children))
	}
	if tree[0].Children[0].Checkpoint.ID != cp2.ID {
		t.Fatalf("children should be ordered by created_at")
	}
	if len(tree[0].Children[0].Children) != 1 || tree[0].Children[0].Children[0].Checkpoint.ID != cp3.ID {
		t.Fatalf("cp3 should hang under cp2")
	}
}

func TestCheckpointRepo_HasEdits(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCheckpointRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	owner := uuid.New()
	v := testutil.SeedVideo(t, ctx, tx, owner)
	cp := testutil.SeedCheckpoint(t, ctx, tx, v, "main", 1, 1, nil)
	testutil.SeedArtifact(t, ctx, tx, cp.ID, domain.ArtifactTypeSpec, "spec", 1)

	edited, err := repo.HasEdits(dbc, cp.ID)
	if err != nil {
		t.Fatalf("HasEdits: %v", err)
	}
	if edited {
		t.Fatalf("version-1 artifact should not count as an edit")
	}

	testutil.SeedArtifact(t, ctx, tx, cp.ID, domain.ArtifactTypeSpec, "spec", 2)
	edited, err = repo.HasEdits(dbc, cp.ID)
	if err != nil {
		t.Fatalf("HasEdits: %v", err)
	}
	if !edited {
		t.Fatalf("version-2 artifact should mark the checkpoint edited")
	}
}

func TestCheckpointRepo_GetCurrent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCheckpointRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	owner := uuid.New()
	v := testutil.SeedVideo(t, ctx, tx, owner)

	cur, err := repo.GetCurrent(dbc, v.ID)
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur != nil {
		t.Fatalf("no checkpoints yet, want nil")
	}

	cp1 := testutil.SeedCheckpoint(t, ctx, tx, v, "main", 1, 1, nil)
	if err := repo.Approve(dbc, cp1.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	cp2 := testutil.SeedCheckpoint(t, ctx, tx, v, "main", 2, 1, &cp1.ID)

	cur, err = repo.GetCurrent(dbc, v.ID)
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur == nil || cur.ID != cp2.ID {
		t.Fatalf("want pending cp2, got %+v", cur)
	}
}
