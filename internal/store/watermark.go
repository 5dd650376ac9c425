package store

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const watermarkText = "PREVIEW"

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// IsImage reports whether the filename looks like a raster image we can
// watermark. Everything else gets its original bytes as the preview.
func IsImage(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	return imageExtensions[strings.ToLower(filename[idx:])]
}

// Watermark decodes the image and tiles semi-transparent diagonal preview
// text over it. Output is always PNG regardless of the input format.
func Watermark(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	dc := gg.NewContext(w, h)
	dc.DrawImage(img, 0, 0)

	ft, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	size := math.Max(float64(w)/12, 24)
	dc.SetFontFace(truetype.NewFace(ft, &truetype.Options{Size: size}))
	dc.SetRGBA(1, 1, 1, 0.45)

	step := size * 4
	dc.RotateAbout(gg.Radians(-30), float64(w)/2, float64(h)/2)
	for y := -float64(h); y < float64(h)*2; y += step {
		for x := -float64(w); x < float64(w)*2; x += step * 2 {
			dc.DrawStringAnchored(watermarkText, x, y, 0.5, 0.5)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
