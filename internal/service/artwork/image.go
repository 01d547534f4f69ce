package artwork

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// ThumbnailSize is the largest edge the channel accepts for audio thumbnails.
	ThumbnailSize = 320
	// ThumbnailMaxBytes is the channel's thumbnail size cap.
	ThumbnailMaxBytes = 200 * 1024

	defaultQuality = 90
)

// ImageService resizes cover art.
type ImageService struct{}

func NewImageService() *ImageService {
	return &ImageService{}
}

// ResizeImage scales data to fit within maxWidth x maxHeight, keeping the
// aspect ratio, and returns it JPEG-encoded. Smaller images are re-encoded
// at their own size.
func (s *ImageService) ResizeImage(ctx context.Context, data []byte, maxWidth, maxHeight, quality int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), maxWidth, maxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	// JPEG has no alpha; transparent areas become white.
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail produces a JPEG no larger than ThumbnailSize on either edge and
// under ThumbnailMaxBytes, lowering quality until it fits.
func (s *ImageService) Thumbnail(ctx context.Context, data []byte) ([]byte, error) {
	for quality := defaultQuality; ; quality -= 20 {
		thumb, err := s.ResizeImage(ctx, data, ThumbnailSize, ThumbnailSize, quality)
		if err != nil {
			return nil, err
		}
		if len(thumb) <= ThumbnailMaxBytes || quality <= 30 {
			return thumb, nil
		}
	}
}

func fitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}
	ratio := float64(width) / float64(height)
	if float64(maxWidth)/float64(maxHeight) > ratio {
		width = int(float64(maxHeight) * ratio)
		height = maxHeight
	} else {
		height = int(float64(maxWidth) / ratio)
		width = maxWidth
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}
