// Package placeholder turns a small raster image into an inline data URL
// suitable for a blur-up placeholder.
package placeholder

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
)

const (
	// DefaultWidth is the placeholder width in pixels.
	DefaultWidth = 8
	jpegQuality  = 70
)

// Encode decodes src, scales it down to at most maxWidth pixels wide keeping
// its aspect ratio, and returns it as a base64 JPEG data URL.
func Encode(src io.Reader, maxWidth int) (string, error) {
	if maxWidth <= 0 {
		maxWidth = DefaultWidth
	}
	img, _, err := image.Decode(src)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return "", fmt.Errorf("decode image: empty bounds %v", bounds)
	}

	if w > maxWidth {
		newH := h * maxWidth / w
		if newH < 1 {
			newH = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
