package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge-backend/internal/clients/gcs"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
	"github.com/reelforge/reelforge-backend/internal/services"
)

type RefineDeps struct {
	Log    *logger.Logger
	Bucket gcs.BucketService
	Media  services.MediaToolsService
	Music  services.MusicService
}

type RefineInput struct {
	OwnerUserID uuid.UUID
	VideoID     uuid.UUID
	Spec        *domain.VideoSpec
	StitchedKey string
	// Models with native audio keep their own soundtrack.
	NativeAudio bool
}

type RefineOutput struct {
	FinalKey     string
	FinalURL     string
	MusicKey     string
	MusicURL     string
	MusicGenre   string
	MusicSkipped bool
}

// Refine mixes a catalog track under the stitched composite at 70% volume
// and uploads the result as the final draft. Native-audio models skip the
// mix; the composite is promoted to final as-is.
func Refine(ctx context.Context, deps RefineDeps, in RefineInput) (*RefineOutput, error) {
	if in.StitchedKey == "" {
		return nil, apperr.Integrityf("no stitched composite to refine")
	}

	workDir, err := deps.Media.WorkDir(in.VideoID.String(), "refine")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	stitchedPath := filepath.Join(workDir, StitchedName)
	if err := deps.Bucket.DownloadToFile(ctx, in.StitchedKey, stitchedPath); err != nil {
		return nil, fmt.Errorf("download stitched: %w", err)
	}

	finalKey := BlobKey(in.OwnerUserID, in.VideoID, FinalDraftName)

	if in.NativeAudio {
		if err := deps.Bucket.UploadFromFile(ctx, finalKey, stitchedPath); err != nil {
			return nil, fmt.Errorf("upload final: %w", err)
		}
		return &RefineOutput{
			FinalKey:     finalKey,
			FinalURL:     deps.Bucket.PublicURL(finalKey),
			MusicSkipped: true,
		}, nil
	}

	genre := deps.Music.InferGenre(styleHints(in.Spec))
	trackKey, err := deps.Music.PickTrack(ctx, genre)
	if err != nil {
		return nil, fmt.Errorf("%w: pick track: %v", apperr.ErrExternal, err)
	}
	if trackKey == "" {
		deps.Log.Warn("no catalog track available, shipping without music",
			"video_id", in.VideoID, "genre", genre)
		if err := deps.Bucket.UploadFromFile(ctx, finalKey, stitchedPath); err != nil {
			return nil, fmt.Errorf("upload final: %w", err)
		}
		return &RefineOutput{
			FinalKey:     finalKey,
			FinalURL:     deps.Bucket.PublicURL(finalKey),
			MusicGenre:   genre,
			MusicSkipped: true,
		}, nil
	}

	trackPath := filepath.Join(workDir, MusicName)
	if err := deps.Bucket.DownloadToFile(ctx, trackKey, trackPath); err != nil {
		return nil, fmt.Errorf("download track: %w", err)
	}

	finalPath := filepath.Join(workDir, FinalDraftName)
	if err := deps.Media.MixMusic(ctx, stitchedPath, trackPath, finalPath); err != nil {
		return nil, err
	}

	if err := deps.Bucket.UploadFromFile(ctx, finalKey, finalPath); err != nil {
		return nil, fmt.Errorf("upload final: %w", err)
	}
	musicKey := BlobKey(in.OwnerUserID, in.VideoID, MusicName)
	if err := deps.Bucket.UploadFromFile(ctx, musicKey, trackPath); err != nil {
		return nil, fmt.Errorf("upload music: %w", err)
	}

	return &RefineOutput{
		FinalKey:   finalKey,
		FinalURL:   deps.Bucket.PublicURL(finalKey),
		MusicKey:   musicKey,
		MusicURL:   deps.Bucket.PublicURL(musicKey),
		MusicGenre: genre,
	}, nil
}

func styleHints(spec *domain.VideoSpec) []string {
	if spec == nil {
		return nil
	}
	return []string{
		specMapString(spec.Audio, "genre"),
		specMapString(spec.Audio, "mood"),
		specMapString(spec.Style, "description"),
	}
}
