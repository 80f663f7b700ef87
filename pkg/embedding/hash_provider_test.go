package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestHashProviderDeterministic(t *testing.T) {
	p := NewHashProvider(64)

	a, err := p.Generate(context.Background(), "el phishing es una estafa")
	require.NoError(t, err)
	b, err := p.Generate(context.Background(), "el phishing es una estafa")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, p.Dimensions())
}

func TestHashProviderUnitNorm(t *testing.T) {
	p := NewHashProvider(64)

	vec, err := p.Generate(context.Background(), "texto con varios tokens distintos")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, math.Sqrt(dot(vec, vec)), 1e-5)
}

func TestHashProviderSimilarity(t *testing.T) {
	p := NewHashProvider(256)

	query, err := p.Generate(context.Background(), "phishing correo sospechoso")
	require.NoError(t, err)
	related, err := p.Generate(context.Background(), "recibi un correo de phishing muy sospechoso")
	require.NoError(t, err)
	unrelated, err := p.Generate(context.Background(), "receta de tortilla de patatas")
	require.NoError(t, err)

	assert.Greater(t, dot(query, related), dot(query, unrelated),
		"texts sharing tokens must score closer to the query")
}

func TestHashProviderCaseInsensitive(t *testing.T) {
	p := NewHashProvider(64)

	lower, err := p.Generate(context.Background(), "phishing")
	require.NoError(t, err)
	upper, err := p.Generate(context.Background(), "PHISHING")
	require.NoError(t, err)

	assert.Equal(t, lower, upper)
}

func TestHashProviderCanceledContext(t *testing.T) {
	p := NewHashProvider(64)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Generate(ctx, "texto")
	assert.Error(t, err)
}
