package services

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

type fakeBucket struct {
	keys map[string][]string
}

func (f *fakeBucket) Upload(ctx context.Context, key string, r io.Reader) error { return nil }
func (f *fakeBucket) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}
func (f *fakeBucket) DownloadToFile(ctx context.Context, key, path string) error { return nil }
func (f *fakeBucket) UploadFromFile(ctx context.Context, key, path string) error { return nil }
func (f *fakeBucket) Delete(ctx context.Context, key string) error               { return nil }
func (f *fakeBucket) DeletePrefix(ctx context.Context, prefix string) error      { return nil }
func (f *fakeBucket) SignedURL(key string) (string, error)                       { return "https://signed/" + key, nil }
func (f *fakeBucket) PublicURL(key string) string                                { return "https://public/" + key }
func (f *fakeBucket) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	return f.keys[prefix], nil
}

func testMusic(t *testing.T, bucket *fakeBucket) MusicService {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewMusicService(log, bucket)
}

func TestInferGenre(t *testing.T) {
	svc := testMusic(t, &fakeBucket{})

	cases := []struct {
		hints []string
		want  string
	}{
		{[]string{"epic product trailer"}, "cinematic"},
		{[]string{"lofi and cozy"}, "chill"},
		{[]string{"futuristic synth look"}, "electronic"},
		{[]string{"warm acoustic vibe"}, "acoustic"},
		{[]string{"something unmatched"}, "upbeat"},
		{nil, "upbeat"},
		{[]string{"", "  ", "EPIC"}, "cinematic"},
	}
	for _, tc := range cases {
		if got := svc.InferGenre(tc.hints); got != tc.want {
			t.Fatalf("InferGenre(%v) = %q, want %q", tc.hints, got, tc.want)
		}
	}
}

func TestPickTrack(t *testing.T) {
	bucket := &fakeBucket{keys: map[string][]string{
		"catalog/music/cinematic/": {
			"catalog/music/cinematic/epic_01.mp3",
			"catalog/music/cinematic/readme.txt",
		},
		"catalog/music/upbeat/": {
			"catalog/music/upbeat/track.mp3",
		},
	}}
	svc := testMusic(t, bucket)

	key, err := svc.PickTrack(context.Background(), "cinematic")
	if err != nil {
		t.Fatalf("PickTrack: %v", err)
	}
	if key != "catalog/music/cinematic/epic_01.mp3" {
		t.Fatalf("picked %q; non-audio keys must be filtered out", key)
	}

	// A genre with no tracks falls back to the upbeat shelf.
	key, err = svc.PickTrack(context.Background(), "chill")
	if err != nil {
		t.Fatalf("PickTrack fallback: %v", err)
	}
	if key != "catalog/music/upbeat/track.mp3" {
		t.Fatalf("fallback picked %q", key)
	}

	// An empty catalog skips music rather than failing the phase.
	empty := testMusic(t, &fakeBucket{keys: map[string][]string{}})
	key, err = empty.PickTrack(context.Background(), "upbeat")
	if err != nil {
		t.Fatalf("empty catalog must not error: %v", err)
	}
	if key != "" {
		t.Fatalf("empty catalog returned key %q, want none", key)
	}
}
