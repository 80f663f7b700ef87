package embedding

import (
	"context"
	"hash/fnv"
	"strings"
)

// HashProvider produces deterministic bag-of-words vectors without any
// external model. Texts sharing tokens get similar vectors, which is
// enough for local development and tests.
type HashProvider struct {
	dimensions int
}

func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &HashProvider{dimensions: dimensions}
}

func (p *HashProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, p.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()
		vec[sum%uint64(p.dimensions)] += 1
		// second bucket reduces collisions between short token sets
		vec[(sum>>32)%uint64(p.dimensions)] += 0.5
	}

	return Normalize(vec), nil
}

func (p *HashProvider) Dimensions() int {
	return p.dimensions
}
