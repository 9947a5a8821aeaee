package vector

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosine_Bounded(t *testing.T) {
	vecs := [][]float32{
		{0.1, -0.7, 3.2},
		{-5, 4, 0.001},
		{1e-6, 1e-6, 1e-6},
		{1e6, -1e6, 42},
	}
	for i := range vecs {
		for j := range vecs {
			got := Cosine(vecs[i], vecs[j])
			if got < -1 || got > 1 {
				t.Fatalf("Cosine(%v, %v) = %v out of [-1,1]", vecs[i], vecs[j], got)
			}
		}
	}
}
