package videogen

import "testing"

func TestLookupModel(t *testing.T) {
	m, err := LookupModel("")
	if err != nil {
		t.Fatalf("LookupModel default: %v", err)
	}
	if m.ID != DefaultModelID {
		t.Fatalf("empty id should resolve the default model, got %q", m.ID)
	}

	if _, err := LookupModel("sora-9000"); err == nil {
		t.Fatalf("unknown model should error")
	}

	veo, _ := LookupModel("veo")
	if !veo.NativeAudio || veo.ChunkDuration != 8 {
		t.Fatalf("veo should be native audio with 8s chunks: %+v", veo)
	}
	kling, _ := LookupModel("kling")
	if kling.NativeAudio || kling.ChunkDuration != 5 {
		t.Fatalf("kling should be silent with 5s chunks: %+v", kling)
	}
}

func TestModelSpec_RequestParams(t *testing.T) {
	veo, _ := LookupModel("veo_fast")
	params := veo.RequestParams(8, 1920, 1080)
	if params["duration"] != 8.0 {
		t.Fatalf("veo_fast phrases duration in seconds, got %v", params["duration"])
	}
	if params["aspect_ratio"] != "16:9" {
		t.Fatalf("veo_fast phrases size as aspect ratio, got %v", params["aspect_ratio"])
	}

	hailuo, _ := LookupModel("hailuo")
	params = hailuo.RequestParams(6, 1280, 720)
	if params["num_frames"] != 150 {
		t.Fatalf("hailuo phrases duration as frame count (6s * 25fps), got %v", params["num_frames"])
	}
	if params["size"] != "1280x720" {
		t.Fatalf("hailuo phrases size as WxH, got %v", params["size"])
	}
	if _, ok := params["duration"]; ok {
		t.Fatalf("hailuo must not also send duration")
	}
}
