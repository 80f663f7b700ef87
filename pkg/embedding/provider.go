package embedding

import (
	"context"
	"math"
)

// Provider turns free text into a fixed-size dense vector. Implementations
// must be safe for concurrent use and must always return vectors of
// Dimensions() length.
type Provider interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Normalize scales a vector to unit length. Cosine distance backends
// (pgvector <=>, Qdrant cosine collections) expect magnitude-1 vectors
// for accurate scores.
func Normalize(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
