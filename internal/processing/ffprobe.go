package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"go.uber.org/zap"
)

var ErrToolUnavailable = errors.New("external tool unavailable")

// ProbeInfo is the subset of container metadata the catalog records.
type ProbeInfo struct {
	HasVideo bool
	Width    int
	Height   int
	Duration float64 // seconds
}

// Prober wraps the external media tools. Implementations must honor ctx cancellation.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeInfo, error)
	// CaptureFrame writes one JPEG frame taken at seconds into src to dst, scaled to fit
	// a box x box square without upscaling.
	CaptureFrame(ctx context.Context, src, dst string, seconds float64, box int) error
}

// FFProber shells out to ffprobe and ffmpeg.
type FFProber struct {
	ffprobePath string
	ffmpegPath  string
}

func NewFFProber(ffprobePath, ffmpegPath string, log *zap.Logger) *FFProber {
	return &FFProber{
		ffprobePath: lookPath(ffprobePath, log),
		ffmpegPath:  lookPath(ffmpegPath, log),
	}
}

func lookPath(name string, log *zap.Logger) string {
	path, err := exec.LookPath(name)
	if err != nil {
		log.Warn("external tool not found, dependent processing will degrade", zap.String("tool", name))
		return ""
	}
	log.Info("external tool found", zap.String("tool", name), zap.String("path", path))
	return path
}

func (f *FFProber) Probe(ctx context.Context, path string) (*ProbeInfo, error) {
	if f.ffprobePath == "" {
		return nil, fmt.Errorf("%w: ffprobe", ErrToolUnavailable)
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height,duration:format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ffprobe: %w", ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe failed: %w; stderr=%s", err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbeOutput(out)
}

func (f *FFProber) CaptureFrame(ctx context.Context, src, dst string, seconds float64, box int) error {
	if f.ffmpegPath == "" {
		return fmt.Errorf("%w: ffmpeg", ErrToolUnavailable)
	}

	// min() keeps small videos at their native size; decrease preserves aspect ratio
	scale := fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease", box, box)
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-y",
		"-v", "error",
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", src,
		"-frames:v", "1",
		"-vf", scale,
		"-q:v", "3",
		dst,
	)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return fmt.Errorf("ffmpeg: %w", ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("ffmpeg frame capture failed: %w; out=%s", err, out)
	}
	return nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbeOutput(out []byte) (*ProbeInfo, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	info := &ProbeInfo{}
	info.Duration, _ = strconv.ParseFloat(parsed.Format.Duration, 64)

	for _, s := range parsed.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.HasVideo = true
		info.Width, info.Height = s.Width, s.Height
		if info.Duration <= 0 {
			info.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		}
		break
	}

	if info.Duration <= 0 && len(parsed.Streams) > 0 && !info.HasVideo {
		info.Duration, _ = strconv.ParseFloat(parsed.Streams[0].Duration, 64)
	}
	if len(parsed.Streams) == 0 && info.Duration <= 0 {
		return nil, errors.New("ffprobe found no streams")
	}
	return info, nil
}
