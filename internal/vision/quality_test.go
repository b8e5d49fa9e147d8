package vision

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func uniformImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestAssessQuality_UniformFrame(t *testing.T) {
	img := uniformImage(100, 100, color.RGBA{127, 127, 127, 255})

	q := AssessQuality(img, [4]float32{20, 20, 80, 90}, DefaultQualityWeights())

	if math.Abs(q.Brightness-1) > 0.01 {
		t.Errorf("brightness = %v, want ~1", q.Brightness)
	}
	if q.Sharpness != 0 {
		t.Errorf("flat image should have zero sharpness, got %v", q.Sharpness)
	}
	if q.Size != 1 {
		t.Errorf("size = %v, want 1", q.Size)
	}
	if q.Pose != 1 {
		t.Errorf("pose = %v, want 1", q.Pose)
	}
	if math.Abs(q.Alignment-0.95) > 1e-9 {
		t.Errorf("alignment = %v, want 0.95", q.Alignment)
	}
	if math.Abs(q.Score-0.74) > 0.01 {
		t.Errorf("score = %v, want ~0.74", q.Score)
	}
	if q.Label != "good" {
		t.Errorf("label = %q, want good", q.Label)
	}
}

func TestAssessQuality_TinyRegion(t *testing.T) {
	img := uniformImage(100, 100, color.White)
	q := AssessQuality(img, [4]float32{0, 0, 5, 5}, DefaultQualityWeights())
	if q.Score != 0 || q.Label != "poor" {
		t.Errorf("tiny region should be poor with zero score, got %+v", q)
	}
}

func TestQualityLabel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.9, "excellent"},
		{0.75, "good"},
		{0.61, "good"},
		{0.6, "fair"},
		{0.41, "fair"},
		{0.4, "poor"},
		{0, "poor"},
	}
	for _, tt := range tests {
		if got := QualityLabel(tt.score); got != tt.want {
			t.Errorf("QualityLabel(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestDecodeDataURL(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, uniformImage(4, 3, color.Black)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	b64 := base64.StdEncoding.EncodeToString(buf.Bytes())

	for _, in := range []string{b64, "data:image/png;base64," + b64} {
		img, err := DecodeDataURL(in)
		if err != nil {
			t.Fatalf("DecodeDataURL() error = %v", err)
		}
		if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
			t.Errorf("unexpected bounds %v", img.Bounds())
		}
	}

	if _, err := DecodeDataURL("data:image/png;base64,"); err != ErrEmptyImage {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}
	if _, err := DecodeDataURL("not base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}
