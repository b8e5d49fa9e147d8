package vision

import "math"

// Dot returns the dot product of two equal-length vectors, accumulated in float64.
func Dot(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

// CosineSimilarity computes dot(a,b)/(|a||b|), clamped to [-1, 1].
// Mismatched, empty or zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := Dot(a, b) / (na * nb)
	return float32(math.Min(1.0, math.Max(-1.0, sim)))
}

// CosineDistance is 1 - CosineSimilarity, and 1 when either vector is missing.
func CosineDistance(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	return 1 - CosineSimilarity(a, b)
}

// Normalize performs L2 normalization in-place and returns v.
func Normalize(v []float32) []float32 {
	norm := Norm(v)
	if norm > 0 {
		for i := range v {
			v[i] = float32(float64(v[i]) / norm)
		}
	}
	return v
}

// Mean returns the element-wise mean of vectors sharing the first vector's length.
// Vectors of a different length are skipped.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}
	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / float64(n))
	}
	return out
}

// Centroid is the normalized mean of the given samples.
func Centroid(samples [][]float32) []float32 {
	return Normalize(Mean(samples))
}

// BlendVector returns a normalized old*(1-alpha) + incoming*alpha.
// A missing side yields a normalized copy of the other.
func BlendVector(old, incoming []float32, alpha float32) []float32 {
	switch {
	case len(incoming) == 0:
		return Normalize(append([]float32(nil), old...))
	case len(old) == 0 || len(old) != len(incoming):
		return Normalize(append([]float32(nil), incoming...))
	}
	out := make([]float32, len(old))
	for i := range old {
		out[i] = old[i]*(1-alpha) + incoming[i]*alpha
	}
	return Normalize(out)
}
