package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
)

// MediaToolsService wraps the ffmpeg/ffprobe binaries the worker runtime
// must ship with. Synchronous and deterministic; call from worker jobs,
// not request handlers.
type MediaToolsService interface {
	AssertReady(ctx context.Context) error

	Probe(ctx context.Context, videoPath string) (*ProbeResult, error)
	ExtractLastFrame(ctx context.Context, videoPath, outPath string) error
	Normalize(ctx context.Context, inPath, outPath string, width, height int) error
	ConcatFilterComplex(ctx context.Context, inPaths []string, outPath string, width, height int) error
	ConcatDemuxer(ctx context.Context, inPaths []string, outPath string) error
	Slice(ctx context.Context, inPath, outPath string, start, duration float64) error
	MixMusic(ctx context.Context, videoPath, musicPath, outPath string) error

	WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error)
	WorkDir(parts ...string) (string, error)
}

type ProbeResult struct {
	Width    int
	Height   int
	Duration float64
	FPS      float64
}

type mediaToolsService struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string

	workRoot string

	defaultTimeout time.Duration
}

// Encoder settings shared by every render pass. Even dimensions always.
var encodeArgs = []string{
	"-c:v", "libx264",
	"-pix_fmt", "yuv420p",
	"-r", "24",
	"-preset", "ultrafast",
	"-crf", "23",
	"-threads", "2",
}

func NewMediaToolsService(log *logger.Logger) MediaToolsService {
	slog := log.With("service", "MediaToolsService")
	return &mediaToolsService{
		log:            slog,
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		workRoot:       "/tmp/reelforge-media",
		defaultTimeout: 10 * time.Minute,
	}
}

func (m *mediaToolsService) AssertReady(ctx context.Context) error {
	ctx = defaultCtx(ctx)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *mediaToolsService) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	f, err := os.CreateTemp(m.workRoot, "blob-*"+suffix)
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", func() {}, err
	}
	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}

func (m *mediaToolsService) WorkDir(parts ...string) (string, error) {
	dir := filepath.Join(append([]string{m.workRoot}, parts...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		NBReadFrames string `json:"nb_read_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (m *mediaToolsService) Probe(ctx context.Context, videoPath string) (*ProbeResult, error) {
	ctx = defaultCtx(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", videoPath, err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("ffprobe decode: %w", err)
	}

	res := &ProbeResult{}
	for _, s := range parsed.Streams {
		if s.CodecType != "video" {
			continue
		}
		res.Width = s.Width
		res.Height = s.Height
		res.FPS = parseFrameRate(s.RFrameRate)
		break
	}
	if res.Width == 0 || res.Height == 0 {
		return nil, fmt.Errorf("ffprobe found no video stream in %s", videoPath)
	}
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		res.Duration = d
	}
	return res, nil
}

func parseFrameRate(r string) float64 {
	parts := strings.SplitN(r, "/", 2)
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// ExtractLastFrame counts frames and selects the final one by index. When
// the count probe fails it seeks 0.1s from the end instead. Output is PNG.
func (m *mediaToolsService) ExtractLastFrame(ctx context.Context, videoPath, outPath string) error {
	ctx = defaultCtx(ctx)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir outPath dir: %w", err)
	}

	if n, err := m.countFrames(ctx, videoPath); err == nil && n > 0 {
		cmd := exec.CommandContext(ctx, m.ffmpegPath,
			"-y",
			"-i", videoPath,
			"-vf", fmt.Sprintf("select='eq(n\\,%d)'", n-1),
			"-vframes", "1",
			outPath,
		)
		if out, err := cmd.CombinedOutput(); err == nil {
			if _, statErr := os.Stat(outPath); statErr == nil {
				return nil
			}
			_ = out
		}
	}

	// Fallback: seek from the end.
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-sseof", "-0.1",
		"-i", videoPath,
		"-vframes", "1",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg last frame failed: %w; out=%s", err, string(out))
	}
	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("last frame output missing at %s", outPath)
	}
	return nil
}

func (m *mediaToolsService) countFrames(ctx context.Context, videoPath string) (int, error) {
	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "quiet",
		"-select_streams", "v:0",
		"-count_frames",
		"-show_entries", "stream=nb_read_frames",
		"-print_format", "json",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return 0, err
	}
	if len(parsed.Streams) == 0 {
		return 0, fmt.Errorf("no streams")
	}
	return strconv.Atoi(parsed.Streams[0].NBReadFrames)
}

// Normalize scales and pads one chunk to the target resolution.
func (m *mediaToolsService) Normalize(ctx context.Context, inPath, outPath string, width, height int) error {
	ctx = defaultCtx(ctx)
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		width, height, width, height,
	)
	args := []string{"-y", "-i", inPath, "-vf", vf}
	args = append(args, encodeArgs...)
	args = append(args, "-c:a", "aac", outPath)

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg normalize failed: %w; out=%s", err, string(out))
	}
	return nil
}

// ConcatFilterComplex scales, pads and fps-normalises every input to the
// target in a single pass, then concats. Cleanest output but heaviest.
func (m *mediaToolsService) ConcatFilterComplex(ctx context.Context, inPaths []string, outPath string, width, height int) error {
	ctx = defaultCtx(ctx)
	if len(inPaths) == 0 {
		return fmt.Errorf("no inputs to concat")
	}
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{"-y"}
	for _, p := range inPaths {
		args = append(args, "-i", p)
	}

	var filter strings.Builder
	for i := range inPaths {
		fmt.Fprintf(&filter,
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=24[v%d];",
			i, width, height, width, height, i,
		)
	}
	for i := range inPaths {
		fmt.Fprintf(&filter, "[v%d]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=0[outv]", len(inPaths))

	args = append(args, "-filter_complex", filter.String(), "-map", "[outv]")
	args = append(args, encodeArgs...)
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg filter-complex concat failed: %w; out=%s", err, string(out))
	}
	return nil
}

// ConcatDemuxer joins pre-normalised inputs via a list file. Stream copy,
// so inputs must already share resolution and codec parameters.
func (m *mediaToolsService) ConcatDemuxer(ctx context.Context, inPaths []string, outPath string) error {
	ctx = defaultCtx(ctx)
	if len(inPaths) == 0 {
		return fmt.Errorf("no inputs to concat")
	}
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	var list strings.Builder
	for _, p := range inPaths {
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(p, "'", `'\''`))
	}
	listPath, cleanup, err := m.WriteTempFile(ctx, []byte(list.String()), ".txt")
	if err != nil {
		return err
	}
	defer cleanup()

	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg demuxer concat failed: %w; out=%s", err, string(out))
	}
	return nil
}

// Slice cuts [start, start+duration) and re-encodes for frame accuracy.
func (m *mediaToolsService) Slice(ctx context.Context, inPath, outPath string, start, duration float64) error {
	ctx = defaultCtx(ctx)
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", inPath,
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
	}
	args = append(args, encodeArgs...)
	args = append(args, "-c:a", "aac", outPath)

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg slice failed: %w; out=%s", err, string(out))
	}
	return nil
}

// MixMusic lays the track under the composite at 70% volume, trimmed to
// the video's length.
func (m *mediaToolsService) MixMusic(ctx context.Context, videoPath, musicPath, outPath string) error {
	ctx = defaultCtx(ctx)
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-stream_loop", "-1",
		"-i", musicPath,
		"-filter_complex", "[1:a]volume=0.7[music]",
		"-map", "0:v",
		"-map", "[music]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg music mix failed: %w; out=%s", err, string(out))
	}
	return nil
}

func defaultCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
