package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

var (
	ErrFFmpegNotFound  = fmt.Errorf("media: ffmpeg not found in PATH")
	ErrFFprobeNotFound = fmt.Errorf("media: ffprobe not found in PATH")
)

type VideoConfig struct {
	*Config

	FFmpegPath  string
	FFprobePath string

	// Bounded output resolution and bitrates.
	MaxWidth     int
	MaxHeight    int
	VideoBitrate string
	AudioBitrate string

	// ThumbnailAt is the playback position (0..1) of the extracted frame.
	ThumbnailAt float64
}

func DefaultVideoConfig() *VideoConfig {
	return &VideoConfig{
		Config:       DefaultConfig(),
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		MaxWidth:     1280,
		MaxHeight:    720,
		VideoBitrate: "1000k",
		AudioBitrate: "128k",
		ThumbnailAt:  0.1,
	}
}

var _ Processor = (*VideoProcessor)(nil)

// VideoProcessor re-encodes a video to a bounded resolution and bitrate,
// extracts one representative frame as the thumbnail, and reads the
// container duration. All intermediate files live in a private temp dir
// removed before returning.
type VideoProcessor struct {
	config *VideoConfig
}

func NewVideoProcessor(cfg *VideoConfig) (*VideoProcessor, error) {
	if cfg == nil {
		cfg = DefaultVideoConfig()
	}

	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFFmpegNotFound, err)
	}
	if _, err := exec.LookPath(cfg.FFprobePath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFFprobeNotFound, err)
	}

	return &VideoProcessor{config: cfg}, nil
}

func (p *VideoProcessor) Kind() string {
	return "video"
}

func (p *VideoProcessor) Process(ctx context.Context, sourcePath string) (*Output, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, sourcePath)
		}
		return nil, fmt.Errorf("%w: stat source: %v", ErrProcessingFailed, err)
	}

	meta, err := p.probe(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnprocessable, err)
	}

	tempDir, err := os.MkdirTemp(p.config.TempDir, "video-*")
	if err != nil {
		if os.IsNotExist(err) {
			tempDir, err = os.MkdirTemp("", "video-*")
		}
		if err != nil {
			return nil, fmt.Errorf("%w: create temp dir: %v", ErrProcessingFailed, err)
		}
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	processedPath := filepath.Join(tempDir, "processed.mp4")
	args := []string{
		"-i", sourcePath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-vf", fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease", p.config.MaxWidth, p.config.MaxHeight),
		"-b:v", p.config.VideoBitrate,
		"-b:a", p.config.AudioBitrate,
		"-movflags", "+faststart",
		"-y",
		processedPath,
	}

	cmd := exec.CommandContext(ctx, p.config.FFmpegPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: transcode: %v, output: %s", ErrUnprocessable, err, string(out))
	}

	thumbPath := filepath.Join(tempDir, "thumb.jpg")
	timestamp := meta.Duration * p.config.ThumbnailAt
	thumbArgs := []string{
		"-ss", fmt.Sprintf("%.2f", timestamp),
		"-i", sourcePath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
			p.config.ThumbWidth, p.config.ThumbHeight, p.config.ThumbWidth, p.config.ThumbHeight),
		"-q:v", "2",
		"-y",
		thumbPath,
	}

	cmd = exec.CommandContext(ctx, p.config.FFmpegPath, thumbArgs...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: extract thumbnail: %v, output: %s", ErrUnprocessable, err, string(out))
	}

	processedData, err := os.ReadFile(processedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read transcoded output: %v", ErrProcessingFailed, err)
	}

	thumbData, err := os.ReadFile(thumbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read thumbnail: %v", ErrProcessingFailed, err)
	}

	return &Output{
		Processed: Artifact{
			Data:        bytes.NewReader(processedData),
			ContentType: "video/mp4",
			Size:        int64(len(processedData)),
		},
		Thumbnail: Artifact{
			Data:        bytes.NewReader(thumbData),
			ContentType: "image/jpeg",
			Size:        int64(len(thumbData)),
		},
		DurationSeconds: meta.Duration,
		Width:           meta.Width,
		Height:          meta.Height,
	}, nil
}

type videoMetadata struct {
	Duration float64
	Width    int
	Height   int
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *VideoProcessor) probe(ctx context.Context, path string) (*videoMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.config.FFprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	meta := &videoMetadata{}
	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			meta.Duration = d
		}
	}
	for _, s := range probe.Streams {
		if s.CodecType == "video" {
			meta.Width = s.Width
			meta.Height = s.Height
			break
		}
	}

	if meta.Width == 0 && meta.Height == 0 {
		return nil, fmt.Errorf("no video stream found")
	}
	return meta, nil
}
