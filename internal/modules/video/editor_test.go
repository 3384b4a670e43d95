package video

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge-backend/internal/data/repos"
	"github.com/reelforge/reelforge-backend/internal/data/repos/testutil"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/dbctx"
)

func TestReplaceVersionsChunkArtifacts(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	owner := uuid.New()
	v := testutil.SeedVideo(t, ctx, tx, owner)
	planCP := testutil.SeedCheckpoint(t, ctx, tx, v, "main", 1, 1, nil)
	mainCP := testutil.SeedCheckpoint(t, ctx, tx, v, "main", 3, 1, &planCP.ID)
	forkCP := testutil.SeedCheckpoint(t, ctx, tx, v, "main-1", 3, 1, &mainCP.ID)
	testutil.SeedArtifact(t, ctx, tx, forkCP.ID, domain.ArtifactTypeVideoChunk, "chunk_0", 1)

	s := &editorService{
		log:         log,
		checkpoints: repos.NewCheckpointRepo(db, log),
		artifacts:   repos.NewArtifactRepo(db, log),
	}

	cp, err := s.chunkCheckpoint(dbc, v.ID)
	if err != nil {
		t.Fatalf("chunkCheckpoint: %v", err)
	}
	if cp.ID != forkCP.ID {
		t.Fatalf("got checkpoint %s, want the most recent phase-3 checkpoint %s", cp.ID, forkCP.ID)
	}

	const replaceOps = 3
	for n := 1; n <= replaceOps; n++ {
		version, err := s.artifacts.NextVersion(dbc, cp.ID, domain.ArtifactTypeVideoChunk, domain.ChunkVersionKey(0))
		if err != nil {
			t.Fatalf("NextVersion: %v", err)
		}
		if version != 1+n {
			t.Fatalf("replace %d: got version %d, want %d", n, version, 1+n)
		}
		ref := domain.ChunkRef{
			URL:     fmt.Sprintf("https://storage.example.com/chunk_00_v%d.mp4", version),
			BlobKey: fmt.Sprintf("%s/videos/%s/chunk_00_v%d.mp4", owner, v.ID, version),
			Model:   "veo_fast",
		}
		art, err := s.recordChunkArtifact(dbc, cp, 0, version, ref, 0.4)
		if err != nil {
			t.Fatalf("recordChunkArtifact: %v", err)
		}
		if art.Version != version {
			t.Fatalf("replace %d: row has version %d, want %d", n, art.Version, version)
		}
		if art.ParentArtifactID == nil {
			t.Fatalf("replace %d: row must be parented on the previous latest", n)
		}
	}

	// Every replace bumps the max version by exactly one.
	latest, err := s.artifacts.LatestVersion(dbc, cp.ID, domain.ArtifactTypeVideoChunk, domain.ChunkVersionKey(0))
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if latest == nil || latest.Version != 1+replaceOps {
		t.Fatalf("got latest version %+v, want %d", latest, 1+replaceOps)
	}
	versions, err := s.artifacts.ListVersions(dbc, cp.ID, domain.ArtifactTypeVideoChunk, domain.ChunkVersionKey(0))
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 1+replaceOps {
		t.Fatalf("all renditions must stay queryable, got %d rows", len(versions))
	}
}
