package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
)

var (
	detMean = [3]float32{127.5, 127.5, 127.5}
	detStd  = [3]float32{128.0, 128.0, 128.0}
	embMean = [3]float32{127.5, 127.5, 127.5}
	embStd  = [3]float32{127.5, 127.5, 127.5}
)

// ErrEmptyImage is returned when a payload carries no image bytes.
var ErrEmptyImage = errors.New("empty image")

// DecodeImage decodes raw JPEG/PNG/GIF bytes.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// DecodeDataURL decodes a base64 image, with or without a "data:image/...;base64," prefix.
func DecodeDataURL(s string) (image.Image, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return nil, ErrEmptyImage
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return DecodeImage(raw)
}

// EncodeJPEG encodes an image as JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes()
}

// imageToFloat32CHW resizes img and lays it out as normalized CHW floats:
//
//	pixel = (pixel - mean) / std
func imageToFloat32CHW(img image.Image, w, h int, mean, std [3]float32) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	data := make([]float32, 3*h*w)
	plane := h * w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := dst.PixOffset(x, y)
			idx := y*w + x
			data[idx] = (float32(dst.Pix[o]) - mean[0]) / std[0]
			data[plane+idx] = (float32(dst.Pix[o+1]) - mean[1]) / std[1]
			data[2*plane+idx] = (float32(dst.Pix[o+2]) - mean[2]) / std[2]
		}
	}
	return data
}

// cropFace cuts the bbox out of img with 10% padding per side, clamped to the image.
// Returns nil for boxes that fall outside the image.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	b := img.Bounds()
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return nil
	}

	r := image.Rect(
		int(bbox[0]-w*0.1), int(bbox[1]-h*0.1),
		int(bbox[2]+w*0.1), int(bbox[3]+h*0.1),
	).Intersect(b)
	if r.Empty() {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}
