package retrieval

import "math"

// Cosine returns the cosine similarity of a and b. Vectors of different
// lengths are compared over the shorter prefix, with magnitudes taken over
// that same prefix. A zero-magnitude vector yields 0.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, aSq, bSq float64
	for i := range n {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		aSq += x * x
		bSq += y * y
	}
	if aSq == 0 || bSq == 0 {
		return 0
	}
	return dot / (math.Sqrt(aSq) * math.Sqrt(bSq))
}
