package vision

import "math"

// IoU returns the intersection over union of two x1,y1,x2,y2 boxes.
func IoU(a, b [4]float32) float32 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])

	intersection := max(0, x2-x1) * max(0, y2-y1)
	union := BoxArea(a) + BoxArea(b) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// BoxArea returns the area of a box, 0 for inverted boxes.
func BoxArea(b [4]float32) float32 {
	w := b[2] - b[0]
	h := b[3] - b[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// ValidBox reports whether a box has finite coordinates and a positive area.
func ValidBox(b [4]float32) bool {
	for _, v := range b {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return BoxArea(b) > 0
}

// BlendBox returns old*(1-alpha) + incoming*alpha per coordinate.
func BlendBox(old, incoming [4]float32, alpha float32) [4]float32 {
	var out [4]float32
	for i := range out {
		out[i] = old[i]*(1-alpha) + incoming[i]*alpha
	}
	return out
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
