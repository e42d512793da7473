package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"math"

	"golang.org/x/image/draw"
)

// DefaultThumbnailDim bounds the longer edge of generated thumbnails.
const DefaultThumbnailDim = 256

// thumbnailQuality is the JPEG quality for thumbnails. Library previews are
// small; 80 keeps them crisp without caching megabytes per document.
const thumbnailQuality = 80

// Thumbnail scales an image so its longer edge is at most maxDim pixels,
// preserving aspect ratio, and encodes it as JPEG. Images already within
// bounds are re-encoded without scaling so callers always get JPEG bytes.
func Thumbnail(data []byte, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		maxDim = DefaultThumbnailDim
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxDim || h > maxDim {
		scale := math.Min(float64(maxDim)/float64(w), float64(maxDim)/float64(h))
		targetW := int(float64(w) * scale)
		targetH := int(float64(h) * scale)
		if targetW < 1 {
			targetW = 1
		}
		if targetH < 1 {
			targetH = 1
		}

		dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
