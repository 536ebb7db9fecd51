package media

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrSourceMissing distinguishes a vanished staged file from a
	// transform failure; the source will not reappear, so callers must
	// not retry.
	ErrSourceMissing = errors.New("media: source file missing")

	// ErrUnprocessable covers undecodable input and unsupported codecs.
	ErrUnprocessable = errors.New("media: unprocessable input")

	ErrProcessingFailed = errors.New("media: processing failed")
)

// Processor transforms one staged source file into a processed variant and
// a thumbnail. Implementations write nothing outside their own temp
// space: output is returned in memory, so no partial writes can remain at
// destination paths when an error surfaces.
type Processor interface {
	Process(ctx context.Context, sourcePath string) (*Output, error)
	Kind() string
}

// Artifact is one produced output stream.
type Artifact struct {
	Data        io.Reader
	ContentType string
	Size        int64
}

type Output struct {
	Processed Artifact
	Thumbnail Artifact

	// DurationSeconds is populated by video processing only.
	DurationSeconds float64

	Width  int
	Height int
}

type Config struct {
	// Bounding box for processed images; aspect preserved, never upscaled.
	MaxWidth  int
	MaxHeight int
	Quality   int

	// Fixed-aspect crop for thumbnails.
	ThumbWidth   int
	ThumbHeight  int
	ThumbQuality int

	TempDir string
}

func DefaultConfig() *Config {
	return &Config{
		MaxWidth:     1200,
		MaxHeight:    800,
		Quality:      85,
		ThumbWidth:   300,
		ThumbHeight:  200,
		ThumbQuality: 80,
		TempDir:      "/tmp/blogmedia",
	}
}
