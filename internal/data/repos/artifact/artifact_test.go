package artifact

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge-backend/internal/data/repos/testutil"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
)

func TestArtifactRepo_Versioning(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewArtifactRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	owner := uuid.New()
	v := testutil.SeedVideo(t, ctx, tx, owner)
	cp := testutil.SeedCheckpoint(t, ctx, tx, v, "main", 3, 1, nil)

	next, err := repo.NextVersion(dbc, cp.ID, domain.ArtifactTypeVideoChunk, "chunk_0")
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if next != 1 {
		t.Fatalf("fresh key should version at 1, got %d", next)
	}

	testutil.SeedArtifact(t, ctx, tx, cp.ID, domain.ArtifactTypeVideoChunk, "chunk_0", 1)
	testutil.SeedArtifact(t, ctx, tx, cp.ID, domain.ArtifactTypeVideoChunk, "chunk_0", 2)
	testutil.SeedArtifact(t, ctx, tx, cp.ID, domain.ArtifactTypeVideoChunk, "chunk_1", 1)

	next, err = repo.NextVersion(dbc, cp.ID, domain.ArtifactTypeVideoChunk, "chunk_0")
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if next != 3 {
		t.Fatalf("want next version 3, got %d", next)
	}

	latest, err := repo.LatestVersion(dbc, cp.ID, domain.ArtifactTypeVideoChunk, "chunk_0")
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if latest == nil || latest.Version != 2 {
		t.Fatalf("want latest version 2, got %+v", latest)
	}

	versions, err := repo.ListVersions(dbc, cp.ID, domain.ArtifactTypeVideoChunk, "chunk_0")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 || versions[0].Version != 1 || versions[1].Version != 2 {
		t.Fatalf("all versions must stay listable, got %d rows", len(versions))
	}
}

func TestArtifactRepo_LatestPerKey(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewArtifactRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	owner := uuid.New()
	v := testutil.SeedVideo(t, ctx, tx, owner)
	cp := testutil.SeedCheckpoint(t, ctx, tx, v, "main", 2, 1, nil)

	testutil.SeedArtifact(t, ctx, tx, cp.ID, domain.ArtifactTypeBeatImage, "beat_0", 1)
	testutil.SeedArtifact(t, ctx, tx, cp.ID, domain.ArtifactTypeBeatImage, "beat_0", 2)
	testutil.SeedArtifact(t, ctx, tx, cp.ID, domain.ArtifactTypeBeatImage, "beat_1", 1)
	testutil.SeedArtifact(t, ctx, tx, cp.ID, domain.ArtifactTypeSpec, "spec", 1)

	latest, err := repo.LatestPerKey(dbc, cp.ID)
	if err != nil {
		t.Fatalf("LatestPerKey: %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("want 3 distinct (type,key) rows, got %d", len(latest))
	}
	byKey := map[string]int{}
	for _, a := range latest {
		byKey[a.Type+"/"+a.Key] = a.Version
	}
	if byKey[domain.ArtifactTypeBeatImage+"/beat_0"] != 2 {
		t.Fatalf("beat_0 should surface version 2, got %d", byKey[domain.ArtifactTypeBeatImage+"/beat_0"])
	}
	if byKey[domain.ArtifactTypeBeatImage+"/beat_1"] != 1 {
		t.Fatalf("beat_1 should surface version 1")
	}
}
