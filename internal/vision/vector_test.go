package vision

import (
	"math"
	"testing"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"unnormalized", []float32{3, 0}, []float32{10, 0}, 1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if !approx(float64(got), float64(tt.want), 1e-6) {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineDistance_MissingEmbedding(t *testing.T) {
	if d := CosineDistance(nil, []float32{1, 0}); d != 1 {
		t.Errorf("expected distance 1 for missing embedding, got %v", d)
	}
	if d := CosineDistance([]float32{0, 1}, []float32{0, 1}); !approx(float64(d), 0, 1e-6) {
		t.Errorf("expected distance 0 for identical vectors, got %v", d)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if !approx(float64(v[0]), 0.6, 1e-6) || !approx(float64(v[1]), 0.8, 1e-6) {
		t.Errorf("Normalize() = %v, want [0.6 0.8]", v)
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector should stay zero, got %v", zero)
	}
}

func TestCentroid_IdenticalSamples(t *testing.T) {
	v := Normalize([]float32{0.2, -0.5, 0.7, 0.1})
	samples := make([][]float32, 7)
	for i := range samples {
		samples[i] = append([]float32(nil), v...)
	}

	c := Centroid(samples)
	for i := range v {
		if !approx(float64(c[i]), float64(v[i]), 1e-6) {
			t.Fatalf("centroid[%d] = %v, want %v", i, c[i], v[i])
		}
	}
}

func TestCentroid_SkipsMismatchedLengths(t *testing.T) {
	c := Centroid([][]float32{{1, 0}, {1, 0, 0}, {0, 1}})
	want := float64(1 / math.Sqrt(2))
	if len(c) != 2 || !approx(float64(c[0]), want, 1e-6) || !approx(float64(c[1]), want, 1e-6) {
		t.Errorf("Centroid() = %v", c)
	}
}

func TestBlendVector(t *testing.T) {
	got := BlendVector([]float32{1, 0}, []float32{0, 1}, 0.3)
	if !approx(Norm(got), 1, 1e-6) {
		t.Errorf("blended vector not unit length: %v", got)
	}
	if got[0] <= got[1] {
		t.Errorf("old direction should dominate with alpha 0.3, got %v", got)
	}

	fromEmpty := BlendVector(nil, []float32{0, 2}, 0.3)
	if !approx(float64(fromEmpty[1]), 1, 1e-6) {
		t.Errorf("missing old embedding should adopt incoming, got %v", fromEmpty)
	}

	keep := BlendVector([]float32{2, 0}, nil, 0.3)
	if !approx(float64(keep[0]), 1, 1e-6) {
		t.Errorf("missing incoming embedding should keep old, got %v", keep)
	}
}
