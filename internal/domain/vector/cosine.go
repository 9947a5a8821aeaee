package vector

import "math"

// Cosine returns dot(a,b)/(|a|*|b|), clamped to [-1,1].
// Zero-norm or length-mismatched inputs yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return max(-1, min(1, sim))
}
