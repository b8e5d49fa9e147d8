package vision

import (
	"image"
	"math"
)

// QualityWeights are the contributions of each sub-score to the overall quality.
type QualityWeights struct {
	Brightness float64 `yaml:"brightness"`
	Sharpness  float64 `yaml:"sharpness"`
	Size       float64 `yaml:"size"`
	Alignment  float64 `yaml:"alignment"`
	Pose       float64 `yaml:"pose"`
}

// DefaultQualityWeights returns the tuned defaults.
func DefaultQualityWeights() QualityWeights {
	return QualityWeights{Brightness: 0.15, Sharpness: 0.25, Size: 0.20, Alignment: 0.20, Pose: 0.20}
}

// Quality is an enrollment-frame quality assessment, each score in [0, 1].
type Quality struct {
	Brightness float64 `json:"brightness"`
	Sharpness  float64 `json:"sharpness"`
	Size       float64 `json:"size"`
	Alignment  float64 `json:"alignment"`
	Pose       float64 `json:"pose"`
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
}

const minQualityRegion = 10

// AssessQuality scores the face region of bbox within img.
func AssessQuality(img image.Image, bbox [4]float32, w QualityWeights) Quality {
	q := Quality{Label: "poor"}
	if img == nil {
		return q
	}
	frame := img.Bounds()
	roi := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])).Intersect(frame)
	if roi.Dx() <= minQualityRegion || roi.Dy() <= minQualityRegion {
		return q
	}

	gray := grayscale(img, roi)
	mean := 0.0
	for _, v := range gray {
		mean += v
	}
	mean /= float64(len(gray))
	q.Brightness = 1 - math.Min(math.Abs(mean-127)/127, 1)
	q.Sharpness = math.Min(laplacianVariance(gray, roi.Dx(), roi.Dy())/500, 1)

	ratio := float64(roi.Dx()*roi.Dy()) / float64(frame.Dx()*frame.Dy())
	switch {
	case ratio > 0.15:
		q.Size = 1.0
	case ratio > 0.08:
		q.Size = 0.7
	case ratio > 0.05:
		q.Size = 0.4
	default:
		q.Size = 0.1
	}

	fcx, fcy := frame.Min.X+frame.Dx()/2, frame.Min.Y+frame.Dy()/2
	maxDist := float64(min(frame.Dx()/2, frame.Dy()/2))
	if maxDist > 0 {
		dx := math.Abs(float64(roi.Min.X+roi.Dx()/2 - fcx))
		dy := math.Abs(float64(roi.Min.Y+roi.Dy()/2 - fcy))
		q.Alignment = ((1 - math.Min(dx/maxDist, 1)) + (1 - math.Min(dy/maxDist, 1))) / 2
	}

	aspect := float64(roi.Dx()) / float64(roi.Dy())
	switch {
	case aspect >= 0.6 && aspect <= 1.0:
		q.Pose = 1.0
	case aspect >= 0.5 && aspect <= 1.2:
		q.Pose = 0.7
	default:
		q.Pose = 0.3
	}

	q.Score = q.Brightness*w.Brightness + q.Sharpness*w.Sharpness + q.Size*w.Size +
		q.Alignment*w.Alignment + q.Pose*w.Pose
	q.Label = QualityLabel(q.Score)
	return q
}

// QualityLabel buckets an overall score.
func QualityLabel(score float64) string {
	switch {
	case score > 0.75:
		return "excellent"
	case score > 0.6:
		return "good"
	case score > 0.4:
		return "fair"
	default:
		return "poor"
	}
}

// grayscale returns ITU-R 601 luma in [0, 255] for r, row-major.
func grayscale(img image.Image, r image.Rectangle) []float64 {
	out := make([]float64, 0, r.Dx()*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			out = append(out, (0.299*float64(cr>>8) + 0.587*float64(cg>>8) + 0.114*float64(cb>>8)))
		}
	}
	return out
}

// laplacianVariance is the variance of the 4-neighbour Laplacian over the interior pixels.
func laplacianVariance(gray []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			l := gray[i-w] + gray[i+w] + gray[i-1] + gray[i+1] - 4*gray[i]
			sum += l
			sumSq += l * l
			n++
		}
	}
	m := sum / float64(n)
	return sumSq/float64(n) - m*m
}
