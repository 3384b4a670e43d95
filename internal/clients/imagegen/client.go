package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

// Client renders storyboard keyframes from beat prompts.
type Client interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

type ImageRequest struct {
	Prompt string
	// Optional product reference shot the model should stay faithful to.
	ReferenceImageURL string
	Width             int
	Height            int
}

type ImageResult struct {
	Bytes    []byte
	MimeType string
	Cost     float64
}

type client struct {
	log        *logger.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	costPerGen float64
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimSpace(os.Getenv("IMAGEGEN_API_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing IMAGEGEN_API_URL")
	}
	apiKey := strings.TrimSpace(os.Getenv("IMAGEGEN_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing IMAGEGEN_API_KEY")
	}
	model := strings.TrimSpace(os.Getenv("IMAGEGEN_MODEL"))
	if model == "" {
		model = "flux-schnell"
	}

	return &client{
		log:        log.With("service", "ImagegenClient"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		costPerGen: 0.01,
	}, nil
}

type imageAPIRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	ReferenceImage string `json:"reference_image,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type imageAPIResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt required")
	}

	body, err := json.Marshal(imageAPIRequest{
		Model:          c.model,
		Prompt:         req.Prompt,
		ReferenceImage: req.ReferenceImageURL,
		Width:          req.Width,
		Height:         req.Height,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("imagegen request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("imagegen read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagegen status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var parsed imageAPIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("imagegen decode: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("imagegen: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("imagegen returned no image data")
	}

	img, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("imagegen base64: %w", err)
	}

	return &ImageResult{
		Bytes:    img,
		MimeType: "image/png",
		Cost:     c.costPerGen,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
