package facematch

import "math"

// CosineSimilarity returns the cosine of the angle between a and b, or 0 for
// mismatched or zero vectors.
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Similarity scores two face embeddings on a 0-100 scale.
func Similarity(a, b []float32) float64 {
	s := CosineSimilarity(a, b) * 100
	return math.Max(0, math.Min(100, s))
}

// BestSimilarity returns the highest score of reference against any target face.
func BestSimilarity(targets [][]float32, reference []float32) float64 {
	best := 0.0
	for _, t := range targets {
		best = math.Max(best, Similarity(t, reference))
	}
	return best
}
