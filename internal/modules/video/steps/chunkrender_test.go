package steps

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
)

func TestFetchToFile(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	ctx := context.Background()

	path := filepath.Join(dir, "chunk.mp4")
	if err := fetchToFile(ctx, srv.Client(), srv.URL, path, 1024); err != nil {
		t.Fatalf("fetchToFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %d bytes, want %d", len(got), len(payload))
	}

	// A body over the cap must error out, never land truncated.
	if err := fetchToFile(ctx, srv.Client(), srv.URL, filepath.Join(dir, "big.mp4"), 32); !errors.Is(err, apperr.ErrExternal) {
		t.Fatalf("oversized body: got %v, want external error", err)
	}

	errSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer errSrv.Close()
	if err := fetchToFile(ctx, errSrv.Client(), errSrv.URL, filepath.Join(dir, "bad.mp4"), 1024); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}
