package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

var _ Processor = (*ImageProcessor)(nil)

// ImageProcessor re-encodes an image into a size-bounded JPEG plus a
// center-cropped thumbnail.
type ImageProcessor struct {
	config *Config
}

func NewImageProcessor(cfg *Config) *ImageProcessor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ImageProcessor{config: cfg}
}

func (p *ImageProcessor) Kind() string {
	return "image"
}

func (p *ImageProcessor) Process(ctx context.Context, sourcePath string) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, sourcePath)
		}
		return nil, fmt.Errorf("%w: open source: %v", ErrProcessingFailed, err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnprocessable, err)
	}

	bounds := img.Bounds()
	processed := img
	// Never upscale: only bound the image when it exceeds the box.
	if bounds.Dx() > p.config.MaxWidth || bounds.Dy() > p.config.MaxHeight {
		processed = imaging.Fit(img, p.config.MaxWidth, p.config.MaxHeight, imaging.Lanczos)
	}

	var processedBuf bytes.Buffer
	if err := imaging.Encode(&processedBuf, processed, imaging.JPEG, imaging.JPEGQuality(p.config.Quality)); err != nil {
		return nil, fmt.Errorf("%w: encode processed: %v", ErrProcessingFailed, err)
	}

	thumb := imaging.Fill(img, p.config.ThumbWidth, p.config.ThumbHeight, imaging.Center, imaging.Lanczos)
	var thumbBuf bytes.Buffer
	if err := imaging.Encode(&thumbBuf, thumb, imaging.JPEG, imaging.JPEGQuality(p.config.ThumbQuality)); err != nil {
		return nil, fmt.Errorf("%w: encode thumbnail: %v", ErrProcessingFailed, err)
	}

	outBounds := processed.Bounds()
	return &Output{
		Processed: Artifact{
			Data:        bytes.NewReader(processedBuf.Bytes()),
			ContentType: "image/jpeg",
			Size:        int64(processedBuf.Len()),
		},
		Thumbnail: Artifact{
			Data:        bytes.NewReader(thumbBuf.Bytes()),
			ContentType: "image/jpeg",
			Size:        int64(thumbBuf.Len()),
		},
		Width:  outBounds.Dx(),
		Height: outBounds.Dy(),
	}, nil
}
