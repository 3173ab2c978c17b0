// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package capability

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/pdiddy/brain-engine/pkg/types"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns a unit-length embedding for text. Results are cached by
// content hash; identical text never hits the network twice while the
// entry is warm.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, &types.CapabilityError{
			Capability: "embedding",
			Err:        fmt.Errorf("empty input"),
		}
	}

	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}

	req := embeddingRequest{Model: c.cfg.EmbeddingModel, Input: []string{text}}
	var resp embeddingResponse
	if err := c.postJSON(ctx, "embedding", c.cfg.BaseURL+"/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &types.CapabilityError{
			Capability: "embedding",
			Err:        fmt.Errorf("response contained no embedding"),
		}
	}

	vec := normalizeUnit(resp.Data[0].Embedding)
	if len(vec) != c.cfg.EmbeddingDimension {
		return nil, &types.CapabilityError{
			Capability: "embedding",
			Err: fmt.Errorf("expected dimension %d, got %d",
				c.cfg.EmbeddingDimension, len(vec)),
		}
	}

	c.cache.Add(key, vec)
	return vec, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// normalizeUnit scales v to unit length so cosine similarity reduces to a
// dot product downstream.
func normalizeUnit(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / n)
	}
	return out
}
