package steps

import (
	"testing"

	"github.com/reelforge/reelforge-backend/internal/services"
)

func probes(dims ...[2]int) []*services.ProbeResult {
	out := make([]*services.ProbeResult, 0, len(dims))
	for _, d := range dims {
		out = append(out, &services.ProbeResult{Width: d[0], Height: d[1]})
	}
	return out
}

func TestTargetResolution(t *testing.T) {
	w, h := targetResolution(probes([2]int{1280, 720}, [2]int{1920, 1080}))
	if w != 1920 || h != 1080 {
		t.Fatalf("target should be max per dimension, got %dx%d", w, h)
	}

	// Odd dimensions round up to even for the encoder.
	w, h = targetResolution(probes([2]int{853, 481}))
	if w != 854 || h != 482 {
		t.Fatalf("odd dims should round up to even, got %dx%d", w, h)
	}
}

func TestResolutionsDiffer(t *testing.T) {
	// 1216 is 5% under 1280: within slack.
	if resolutionsDiffer(probes([2]int{1280, 720}, [2]int{1216, 684}), 1280, 720) {
		t.Fatalf("5%% deviation should stay on the filter-complex path")
	}
	// 1024 is 20% under 1280: needs normalisation.
	if !resolutionsDiffer(probes([2]int{1280, 720}, [2]int{1024, 720}), 1280, 720) {
		t.Fatalf("20%% width deviation should force the demuxer path")
	}
	if !resolutionsDiffer(probes([2]int{1280, 576}), 1280, 720) {
		t.Fatalf("20%% height deviation should force the demuxer path")
	}
}
