package steps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/reelforge/reelforge-backend/internal/clients/gcs"
	"github.com/reelforge/reelforge-backend/internal/clients/videogen"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
	"github.com/reelforge/reelforge-backend/internal/services"
)

const (
	chunkMaxRetries  = 2
	chunkRetryDelay  = 3 * time.Second
	vendorFetchLimit = int64(512 << 20)
)

type ChunkRenderDeps struct {
	Log    *logger.Logger
	Gen    videogen.Client
	Bucket gcs.BucketService
	Media  services.MediaToolsService
	HTTP   *http.Client
}

type ChunkRenderInput struct {
	OwnerUserID uuid.UUID
	VideoID     uuid.UUID
	Spec        *domain.VideoSpec
	Plan        *ChunkPlan
	Model       videogen.ModelSpec
	// Called with 60 after the anchor wave, 70 after continuations.
	OnProgress func(pct int)
}

type RenderedChunk struct {
	Index        int
	BlobKey      string
	BlobURL      string
	LastFrameKey string
	Cost         float64
}

type ChunkRenderOutput struct {
	Chunks      []RenderedChunk
	TotalCost   float64
	NativeAudio bool
}

// RenderChunks runs the two-wave fan-out: all anchors in parallel, a
// barrier, then all continuations in parallel. Continuations seed from
// their anchor's last frame, which is why the barrier is hard; a single
// anchor failure fails the wave and the phase.
func RenderChunks(ctx context.Context, deps ChunkRenderDeps, in ChunkRenderInput) (*ChunkRenderOutput, error) {
	plan := in.Plan
	results := make([]RenderedChunk, len(plan.Chunks))

	var mu sync.Mutex
	lastFrames := map[int]string{}

	runWave := func(indices []int, initImage func(c PlannedChunk) (string, error)) error {
		g, gctx := errgroup.WithContext(ctx)
		for _, idx := range indices {
			c := plan.Chunks[idx]
			g.Go(func() error {
				img, err := initImage(c)
				if err != nil {
					return err
				}
				rendered, err := renderOne(gctx, deps, in, c, img)
				if err != nil {
					return fmt.Errorf("chunk %d: %w", c.Index, err)
				}
				mu.Lock()
				results[c.Index] = *rendered
				lastFrames[c.Index] = rendered.LastFrameKey
				mu.Unlock()
				return nil
			})
		}
		return g.Wait()
	}

	anchorInit := func(c PlannedChunk) (string, error) {
		beat := in.Spec.Beats[c.BeatIndex]
		if beat.ImageURL == "" {
			return "", apperr.Integrityf("beat %d has no storyboard image", c.BeatIndex)
		}
		if beat.ImageBlobKey != "" {
			return deps.Bucket.SignedURL(beat.ImageBlobKey)
		}
		return beat.ImageURL, nil
	}
	if err := runWave(plan.AnchorIndices(), anchorInit); err != nil {
		return nil, fmt.Errorf("anchor wave: %w", err)
	}
	if in.OnProgress != nil {
		in.OnProgress(60)
	}

	continuationInit := func(c PlannedChunk) (string, error) {
		mu.Lock()
		key := lastFrames[c.AnchorIndex]
		mu.Unlock()
		if key == "" {
			return "", apperr.Integrityf("chunk %d has no anchor frame (anchor %d)", c.Index, c.AnchorIndex)
		}
		return deps.Bucket.SignedURL(key)
	}
	if err := runWave(plan.ContinuationIndices(), continuationInit); err != nil {
		return nil, fmt.Errorf("continuation wave: %w", err)
	}
	if in.OnProgress != nil {
		in.OnProgress(70)
	}

	produced := map[int]bool{}
	total := 0.0
	for _, r := range results {
		if r.BlobKey != "" {
			produced[r.Index] = true
			total += r.Cost
		}
	}
	if err := ValidateChunkSet(produced, len(plan.Chunks)); err != nil {
		return nil, err
	}

	return &ChunkRenderOutput{
		Chunks:      results,
		TotalCost:   total,
		NativeAudio: in.Model.NativeAudio,
	}, nil
}

func renderOne(ctx context.Context, deps ChunkRenderDeps, in ChunkRenderInput, c PlannedChunk, initImageURL string) (*RenderedChunk, error) {
	return RenderChunkVersion(ctx, deps, in, c, initImageURL, ChunkName(c.Index))
}

// RenderChunkVersion renders one chunk rendition under an explicit blob
// name; regenerated versions pass ChunkVersionName so earlier renditions
// survive for the editor.
func RenderChunkVersion(ctx context.Context, deps ChunkRenderDeps, in ChunkRenderInput, c PlannedChunk, initImageURL, blobName string) (*RenderedChunk, error) {
	var lastErr error
	for attempt := 0; attempt <= chunkMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(chunkRetryDelay):
			}
			deps.Log.Warn("retrying chunk render",
				"chunk", c.Index, "attempt", attempt, "error", lastErr)
		}
		rendered, err := renderOnce(ctx, deps, in, c, initImageURL, blobName)
		if err == nil {
			return rendered, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func renderOnce(ctx context.Context, deps ChunkRenderDeps, in ChunkRenderInput, c PlannedChunk, initImageURL, blobName string) (*RenderedChunk, error) {
	gen, err := deps.Gen.GenerateChunk(ctx, videogen.ChunkRequest{
		ModelID:         in.Spec.Model,
		Prompt:          c.Prompt,
		InitImageURL:    initImageURL,
		DurationSeconds: c.Duration,
		FPS:             in.Spec.FPS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrExternal, err)
	}

	workDir, err := deps.Media.WorkDir(in.VideoID.String())
	if err != nil {
		return nil, err
	}
	localPath := filepath.Join(workDir, blobName)
	if err := fetchToFile(ctx, deps.HTTP, gen.URL, localPath, vendorFetchLimit); err != nil {
		return nil, fmt.Errorf("%w: fetch chunk: %v", apperr.ErrExternal, err)
	}
	defer os.Remove(localPath)

	chunkKey := BlobKey(in.OwnerUserID, in.VideoID, blobName)
	if err := deps.Bucket.UploadFromFile(ctx, chunkKey, localPath); err != nil {
		return nil, err
	}

	frameName := strings.TrimSuffix(blobName, ".mp4") + "_last_frame.png"
	framePath := filepath.Join(workDir, frameName)
	if err := deps.Media.ExtractLastFrame(ctx, localPath, framePath); err != nil {
		return nil, err
	}
	defer os.Remove(framePath)

	frameKey := BlobKey(in.OwnerUserID, in.VideoID, frameName)
	if err := deps.Bucket.UploadFromFile(ctx, frameKey, framePath); err != nil {
		return nil, err
	}

	return &RenderedChunk{
		Index:        c.Index,
		BlobKey:      chunkKey,
		BlobURL:      deps.Bucket.PublicURL(chunkKey),
		LastFrameKey: frameKey,
		Cost:         gen.Cost,
	}, nil
}

func fetchToFile(ctx context.Context, client *http.Client, url, path string, limit int64) error {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	// Read one byte past the cap so an oversized body is an error, not a
	// silently truncated file.
	n, err := io.Copy(f, io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return err
	}
	if n > limit {
		return apperr.Externalf("fetch %s: body exceeds %d bytes", url, limit)
	}
	return nil
}
