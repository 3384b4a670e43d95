package steps

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge-backend/internal/clients/gcs"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
	"github.com/reelforge/reelforge-backend/internal/services"
)

const (
	// Minimum wall clock that must remain for the final concat pass.
	concatFloor = 45 * time.Second

	// Inputs within 10% of the target in both dimensions can go through
	// filter-complex in one pass; anything wider gets normalised first.
	resolutionSlack = 0.10
)

type StitchDeps struct {
	Log    *logger.Logger
	Bucket gcs.BucketService
	Media  services.MediaToolsService
}

type StitchInput struct {
	OwnerUserID uuid.UUID
	VideoID     uuid.UUID
	ChunkKeys   []string
	Budget      time.Duration
}

type StitchOutput struct {
	BlobKey string
	BlobURL string
	Width   int
	Height  int
}

// Stitch joins the ordered chunk list into one composite under a hard
// wall-clock budget. Filter-complex is tried first for near-uniform
// inputs; mismatched or failed runs fall back to per-chunk normalisation
// plus the concat demuxer.
func Stitch(ctx context.Context, deps StitchDeps, in StitchInput) (*StitchOutput, error) {
	if len(in.ChunkKeys) == 0 {
		return nil, apperr.Integrityf("no chunks to stitch")
	}
	start := time.Now()
	remaining := func() time.Duration { return in.Budget - time.Since(start) }

	workDir, err := deps.Media.WorkDir(in.VideoID.String(), "stitch")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	localPaths := make([]string, len(in.ChunkKeys))
	probes := make([]*services.ProbeResult, len(in.ChunkKeys))
	for i, key := range in.ChunkKeys {
		p := filepath.Join(workDir, fmt.Sprintf("in_%02d.mp4", i))
		if err := deps.Bucket.DownloadToFile(ctx, key, p); err != nil {
			return nil, fmt.Errorf("download chunk %d: %w", i, err)
		}
		probe, err := deps.Media.Probe(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("probe chunk %d: %w", i, err)
		}
		localPaths[i] = p
		probes[i] = probe
	}

	targetW, targetH := targetResolution(probes)
	outPath := filepath.Join(workDir, StitchedName)

	if !resolutionsDiffer(probes, targetW, targetH) {
		if remaining() < concatFloor {
			return nil, fmt.Errorf("%w: %s left before concat", apperr.ErrBudgetExceeded, remaining().Round(time.Second))
		}
		if err := deps.Media.ConcatFilterComplex(ctx, localPaths, outPath, targetW, targetH); err == nil {
			return uploadStitched(ctx, deps, in, outPath, targetW, targetH)
		} else {
			deps.Log.Warn("filter-complex concat failed, falling back to demuxer", "error", err)
		}
	}

	// Normalise sequentially; one ffmpeg at a time keeps memory bounded.
	// When the budget runs short, remaining chunks keep their originals.
	normalized := make([]string, len(localPaths))
	for i, p := range localPaths {
		if remaining() < concatFloor*2 {
			deps.Log.Warn("stitch budget low, skipping normalisation for remaining chunks",
				"from_chunk", i, "remaining", remaining().Round(time.Second))
			for j := i; j < len(localPaths); j++ {
				normalized[j] = localPaths[j]
			}
			break
		}
		np := filepath.Join(workDir, fmt.Sprintf("norm_%02d.mp4", i))
		if err := deps.Media.Normalize(ctx, p, np, targetW, targetH); err != nil {
			return nil, fmt.Errorf("normalize chunk %d: %w", i, err)
		}
		normalized[i] = np
	}

	if remaining() < concatFloor {
		return nil, fmt.Errorf("%w: %s left before concat", apperr.ErrBudgetExceeded, remaining().Round(time.Second))
	}
	if err := deps.Media.ConcatDemuxer(ctx, normalized, outPath); err != nil {
		return nil, fmt.Errorf("demuxer concat: %w", err)
	}
	return uploadStitched(ctx, deps, in, outPath, targetW, targetH)
}

func uploadStitched(ctx context.Context, deps StitchDeps, in StitchInput, outPath string, w, h int) (*StitchOutput, error) {
	key := BlobKey(in.OwnerUserID, in.VideoID, StitchedName)
	if err := deps.Bucket.UploadFromFile(ctx, key, outPath); err != nil {
		return nil, fmt.Errorf("upload stitched: %w", err)
	}
	return &StitchOutput{
		BlobKey: key,
		BlobURL: deps.Bucket.PublicURL(key),
		Width:   w,
		Height:  h,
	}, nil
}

// targetResolution is the max width and max height over all chunks,
// rounded up to even for the encoder.
func targetResolution(probes []*services.ProbeResult) (int, int) {
	w, h := 0, 0
	for _, p := range probes {
		if p.Width > w {
			w = p.Width
		}
		if p.Height > h {
			h = p.Height
		}
	}
	return roundEven(w), roundEven(h)
}

func roundEven(n int) int {
	if n%2 != 0 {
		return n + 1
	}
	return n
}

// resolutionsDiffer reports whether any chunk deviates from the target by
// more than 10% in either dimension.
func resolutionsDiffer(probes []*services.ProbeResult, targetW, targetH int) bool {
	for _, p := range probes {
		if relDiff(p.Width, targetW) > resolutionSlack || relDiff(p.Height, targetH) > resolutionSlack {
			return true
		}
	}
	return false
}

func relDiff(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return math.Abs(float64(a-b)) / float64(b)
}
