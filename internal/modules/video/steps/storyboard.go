package steps

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge-backend/internal/clients/gcs"
	"github.com/reelforge/reelforge-backend/internal/clients/imagegen"
	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

type StoryboardDeps struct {
	Log    *logger.Logger
	Images imagegen.Client
	Bucket gcs.BucketService
}

type StoryboardInput struct {
	OwnerUserID uuid.UUID
	VideoID     uuid.UUID
	Spec        *domain.VideoSpec
}

type BeatImage struct {
	BeatIndex int
	BlobKey   string
	BlobURL   string
	Cost      float64
}

type StoryboardOutput struct {
	Images    []BeatImage
	TotalCost float64
}

// RenderStoryboard generates one keyframe per beat, sequentially, and
// writes the image reference back into the spec so the chunk phase can
// read it. Any single beat failure fails the whole step.
func RenderStoryboard(ctx context.Context, deps StoryboardDeps, in StoryboardInput) (*StoryboardOutput, error) {
	if in.Spec == nil || len(in.Spec.Beats) == 0 {
		return nil, apperr.Integrityf("spec has no beats")
	}

	out := &StoryboardOutput{}
	refImage := specMapString(in.Spec.Product, "image_url")

	for i := range in.Spec.Beats {
		beat := &in.Spec.Beats[i]
		prompt := BuildBeatPrompt(in.Spec, *beat)

		img, err := deps.Images.GenerateImage(ctx, imagegen.ImageRequest{
			Prompt:            prompt,
			ReferenceImageURL: refImage,
			Width:             1280,
			Height:            720,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: beat %d image: %v", apperr.ErrExternal, i, err)
		}

		key := BlobKey(in.OwnerUserID, in.VideoID, BeatImageName(i))
		if err := deps.Bucket.Upload(ctx, key, bytes.NewReader(img.Bytes)); err != nil {
			return nil, fmt.Errorf("upload beat %d image: %w", i, err)
		}

		url := deps.Bucket.PublicURL(key)
		beat.ImageURL = url
		beat.ImageBlobKey = key

		out.Images = append(out.Images, BeatImage{
			BeatIndex: i,
			BlobKey:   key,
			BlobURL:   url,
			Cost:      img.Cost,
		})
		out.TotalCost += img.Cost
	}

	for i, b := range in.Spec.Beats {
		if b.ImageURL == "" {
			return nil, apperr.Integrityf("beat %d missing image after storyboard", i)
		}
	}
	return out, nil
}
