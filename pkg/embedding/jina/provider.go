package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"mateo-memory-be/pkg/embedding"
)

// Provider generates embeddings through the Jina AI embeddings API.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

func NewProvider(apiKey string, dimensions int) *Provider {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &Provider{
		apiKey:     apiKey,
		baseURL:    "https://api.jina.ai/v1/embeddings",
		model:      "jina-embeddings-v2-base-en",
		dimensions: dimensions,
		client:     &http.Client{},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *Provider) Generate(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(embeddingRequest{
		Model: p.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	res, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, fmt.Errorf("jina embedding: invalid response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("jina embedding: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("jina embedding: empty response")
	}

	vec := parsed.Data[0].Embedding
	if len(vec) != p.dimensions {
		return nil, fmt.Errorf("jina returned %d dimensions, expected %d", len(vec), p.dimensions)
	}

	return embedding.Normalize(vec), nil
}

func (p *Provider) Dimensions() int {
	return p.dimensions
}
