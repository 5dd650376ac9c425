package store

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestIsImage(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"design.png", true},
		{"photo.JPG", true},
		{"mock.jpeg", true},
		{"anim.gif", true},
		{"report.pdf", false},
		{"archive.tar.gz", false},
		{"README", false},
	}
	for _, c := range cases {
		if got := IsImage(c.name); got != c.want {
			t.Errorf("IsImage(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestWatermarkProducesPNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			src.Set(x, y, color.RGBA{R: 40, G: 80, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}

	out, err := Watermark(buf.Bytes())
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}

	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not valid png: %v", err)
	}
	if decoded.Bounds() != src.Bounds() {
		t.Errorf("dimensions changed: got %v, want %v", decoded.Bounds(), src.Bounds())
	}
	if bytes.Equal(out, buf.Bytes()) {
		t.Error("watermarked output is byte-identical to the input")
	}
}

func TestWatermarkRejectsGarbage(t *testing.T) {
	if _, err := Watermark([]byte("not an image")); err == nil {
		t.Error("expected error for non-image input")
	}
}
