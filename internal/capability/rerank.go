// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package capability

import (
	"context"
	"fmt"

	"github.com/pdiddy/brain-engine/pkg/types"
)

type rerankRequest struct {
	Model string      `json:"model"`
	Input rerankInput `json:"input"`
	TopN  int         `json:"top_n,omitempty"`
}

type rerankInput struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Output struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	} `json:"output"`
}

// RerankResult scores one candidate document against the query. Index
// refers back into the documents slice passed to Rerank.
type RerankResult struct {
	Index int
	Score float64
}

// Rerank scores (query, document) pairs and returns results ordered by
// relevance, best first. Callers must treat failure as a degradation
// signal and fall back to their primary ordering, never as a query
// failure.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if c.cfg.RerankURL == "" {
		return nil, &types.CapabilityError{
			Capability: "rerank",
			Err:        fmt.Errorf("rerank endpoint not configured"),
		}
	}

	req := rerankRequest{
		Model: c.cfg.RerankModel,
		Input: rerankInput{Query: query, Documents: documents},
		TopN:  topN,
	}
	var resp rerankResponse
	if err := c.postJSON(ctx, "rerank", c.cfg.RerankURL, req, &resp); err != nil {
		return nil, err
	}

	results := make([]RerankResult, 0, len(resp.Output.Results))
	for _, r := range resp.Output.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, &types.CapabilityError{
				Capability: "rerank",
				Err:        fmt.Errorf("result index %d out of range", r.Index),
			}
		}
		results = append(results, RerankResult{Index: r.Index, Score: r.RelevanceScore})
	}
	return results, nil
}
