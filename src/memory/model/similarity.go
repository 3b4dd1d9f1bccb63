package model

import "math"

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths or a zero vector yield 0. The result is clamped
// to [-1, 1] so accumulated float error cannot push it past the bounds.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / math.Sqrt(normA*normB)
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}
