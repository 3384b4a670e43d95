package videogen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

// Client generates a single video chunk from a prompt plus an init image
// (storyboard keyframe for anchors, previous chunk's last frame for
// continuations).
type Client interface {
	GenerateChunk(ctx context.Context, req ChunkRequest) (*ChunkResult, error)
	Model(id string) (ModelSpec, error)
}

type ChunkRequest struct {
	ModelID         string
	Prompt          string
	InitImageURL    string
	DurationSeconds float64
	Width           int
	Height          int
	FPS             int
}

type ChunkResult struct {
	// URL of the rendered chunk on the vendor side; callers download and
	// re-upload into our own bucket.
	URL         string
	Cost        float64
	NativeAudio bool
}

type client struct {
	log        *logger.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimSpace(os.Getenv("VIDEOGEN_API_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing VIDEOGEN_API_URL")
	}
	apiKey := strings.TrimSpace(os.Getenv("VIDEOGEN_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing VIDEOGEN_API_KEY")
	}

	return &client{
		log:        log.With("service", "VideogenClient"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}, nil
}

func (c *client) Model(id string) (ModelSpec, error) {
	return LookupModel(id)
}

type chunkAPIResponse struct {
	URL   string `json:"url"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) GenerateChunk(ctx context.Context, req ChunkRequest) (*ChunkResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt required")
	}
	model, err := LookupModel(req.ModelID)
	if err != nil {
		return nil, err
	}

	duration := req.DurationSeconds
	if duration <= 0 {
		duration = model.ChunkDuration
	}

	payload := model.RequestParams(duration, req.Width, req.Height)
	payload["prompt"] = req.Prompt
	if req.InitImageURL != "" {
		payload["init_image"] = req.InitImageURL
	}
	if req.FPS > 0 && model.DurationParam != "num_frames" {
		payload["fps"] = req.FPS
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/models/%s/generate", c.baseURL, model.PathSuffix)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("videogen %s request: %w", model.ID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("videogen %s read body: %w", model.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("videogen %s status %d: %s", model.ID, resp.StatusCode, truncate(string(raw), 300))
	}

	var parsed chunkAPIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("videogen %s decode: %w", model.ID, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("videogen %s: %s", model.ID, parsed.Error.Message)
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("videogen %s returned no url", model.ID)
	}

	c.log.Info("chunk generated",
		"model", model.ID,
		"duration_s", duration,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return &ChunkResult{
		URL:         parsed.URL,
		Cost:        model.CostPerGeneration,
		NativeAudio: model.NativeAudio,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
