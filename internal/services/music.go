package services

import (
	"context"
	"fmt"
	"math/rand"
	"path"
	"strings"

	"github.com/reelforge/reelforge-backend/internal/clients/gcs"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

const (
	musicCatalogPrefix = "catalog/music/"
	fallbackGenre      = "upbeat"
)

var genreTokens = map[string][]string{
	"upbeat":     {"upbeat", "energetic", "fun", "bright", "pop"},
	"cinematic":  {"cinematic", "epic", "dramatic", "trailer", "orchestral"},
	"chill":      {"chill", "calm", "relaxed", "lofi", "ambient", "soft"},
	"electronic": {"electronic", "edm", "techno", "synth", "futuristic"},
	"acoustic":   {"acoustic", "folk", "organic", "warm", "guitar"},
}

// MusicService picks a backing track from the object-store catalog.
// Tracks live under catalog/music/{genre}/; the genre directory is the
// primary signal, filename tokens the secondary one. PickTrack returns an
// empty key when the catalog has nothing to offer.
type MusicService interface {
	InferGenre(styleHints []string) string
	PickTrack(ctx context.Context, genre string) (blobKey string, err error)
}

type musicService struct {
	log    *logger.Logger
	bucket gcs.BucketService
}

func NewMusicService(log *logger.Logger, bucket gcs.BucketService) MusicService {
	return &musicService{
		log:    log.With("service", "MusicService"),
		bucket: bucket,
	}
}

// InferGenre matches style hints from the video spec against known genre
// vocabularies. Unmatched hints fall back to upbeat.
func (s *musicService) InferGenre(styleHints []string) string {
	for _, hint := range styleHints {
		h := strings.ToLower(strings.TrimSpace(hint))
		if h == "" {
			continue
		}
		for genre, tokens := range genreTokens {
			for _, tok := range tokens {
				if strings.Contains(h, tok) {
					return genre
				}
			}
		}
	}
	return fallbackGenre
}

func (s *musicService) PickTrack(ctx context.Context, genre string) (string, error) {
	if genre == "" {
		genre = fallbackGenre
	}

	keys, err := s.listAudio(ctx, genre)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 && genre != fallbackGenre {
		s.log.Warn("no tracks for genre, falling back", "genre", genre, "fallback", fallbackGenre)
		keys, err = s.listAudio(ctx, fallbackGenre)
		if err != nil {
			return "", err
		}
	}
	// An empty catalog is a deployment gap, not a reason to fail the cut;
	// the caller ships the video without music.
	if len(keys) == 0 {
		s.log.Warn("music catalog empty, skipping music", "genre", genre)
		return "", nil
	}

	return keys[rand.Intn(len(keys))], nil
}

func (s *musicService) listAudio(ctx context.Context, genre string) ([]string, error) {
	keys, err := s.bucket.ListKeys(ctx, musicCatalogPrefix+genre+"/")
	if err != nil {
		return nil, fmt.Errorf("list music catalog: %w", err)
	}
	out := keys[:0]
	for _, k := range keys {
		switch strings.ToLower(path.Ext(k)) {
		case ".mp3", ".wav", ".m4a", ".aac", ".ogg":
			out = append(out, k)
		}
	}
	return out, nil
}
