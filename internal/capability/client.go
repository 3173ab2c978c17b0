// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package capability talks to the external model-serving API that backs
// every inference the engine consumes: embeddings, OCR/vision description,
// transcription, summarization, entity extraction, intent classification,
// and reranking. The engine stores and searches what comes back but never
// computes any of it locally.
//
// The API surface is an OpenAI-compatible endpoint (chat completions,
// embeddings, audio transcription) plus a DashScope-style rerank endpoint.
// Transient failures are retried with backoff before a typed
// CapabilityError surfaces; permanent failures (malformed input) are not
// retried.
package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/pdiddy/brain-engine/internal/httputil"
	"github.com/pdiddy/brain-engine/pkg/types"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultCacheSize = 1024
	defaultDimension = 1024
)

// Client is a capability client bound to one API configuration.
type Client struct {
	cfg    types.CapabilityConfig
	http   *http.Client
	cache  *lru.Cache[string, []float32]
	logger *zap.Logger
}

// NewClient builds a Client from config. The embedding cache keeps repeat
// queries (the common case for conversational search) off the network.
func NewClient(cfg types.CapabilityConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.EmbeddingCacheSize <= 0 {
		cfg.EmbeddingCacheSize = defaultCacheSize
	}
	if cfg.EmbeddingDimension <= 0 {
		cfg.EmbeddingDimension = defaultDimension
	}

	cache, err := lru.New[string, []float32](cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		cache:  cache,
		logger: logger,
	}, nil
}

// postJSON sends a JSON request through the retry policy and decodes a
// JSON response into out. Failures are classified into the capability
// error taxonomy.
func (c *Client) postJSON(ctx context.Context, capability, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &types.CapabilityError{Capability: capability, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &types.CapabilityError{Capability: capability, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries)
	if err != nil {
		return &types.CapabilityError{Capability: capability, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &types.CapabilityError{
			Capability: capability,
			Transient:  httputil.Retryable(resp.StatusCode),
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &types.CapabilityError{Capability: capability, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func decodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// stripCodeFence removes a Markdown code fence around a model response, a
// common artifact when asking for raw JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
