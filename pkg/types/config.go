package types

import "time"

// StoreConfig holds settings for the local store.
type StoreConfig struct {
	// DataDir is the base directory for all persisted state. It contains
	// index/ (the SQLite database) and objects/ (raw content bytes,
	// partitioned by ingestion date).
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// CapabilityConfig holds settings for the external model-serving API.
// All inference (embedding, OCR, transcription, summarization, entity
// extraction, reranking) goes through these endpoints; the engine itself
// never computes any of it.
type CapabilityConfig struct {
	// BaseURL is an OpenAI-compatible API root (e.g. a DashScope
	// compatible-mode or Ollama endpoint).
	BaseURL string `json:"base_url" yaml:"base_url"`

	// RerankURL is the rerank endpoint. Empty disables reranking; queries
	// then return similarity-ordered results flagged as degraded.
	RerankURL string `json:"rerank_url,omitempty" yaml:"rerank_url,omitempty"`

	// APIKey authenticates requests. Usually loaded from .secrets/.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	ChatModel       string `json:"chat_model" yaml:"chat_model"`
	EmbeddingModel  string `json:"embedding_model" yaml:"embedding_model"`
	VisionModel     string `json:"vision_model" yaml:"vision_model"`
	TranscribeModel string `json:"transcribe_model" yaml:"transcribe_model"`
	RerankModel     string `json:"rerank_model" yaml:"rerank_model"`

	// EmbeddingDimension is the expected vector width (default 1024).
	EmbeddingDimension int `json:"embedding_dimension" yaml:"embedding_dimension"`

	// Timeout bounds each capability call (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries bounds retries on transient failures (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// EmbeddingCacheSize is the LRU cache capacity for embeddings
	// (default 1024 entries).
	EmbeddingCacheSize int `json:"embedding_cache_size" yaml:"embedding_cache_size"`
}

// ChunkingConfig holds settings for the modal chunking pipeline.
type ChunkingConfig struct {
	// WindowTokens is the maximum chunk size in tokens (default 512).
	WindowTokens int `json:"window_tokens" yaml:"window_tokens"`

	// OverlapTokens is the window overlap in tokens (default 64).
	OverlapTokens int `json:"overlap_tokens" yaml:"overlap_tokens"`

	// Encoding names the tiktoken encoding used for token counting
	// (default "cl100k_base").
	Encoding string `json:"encoding" yaml:"encoding"`
}

// RetrievalConfig holds settings for the hybrid retrieval engine.
type RetrievalConfig struct {
	// CandidateMultiplier sizes the vector candidate set relative to k
	// before reranking (default 3).
	CandidateMultiplier int `json:"candidate_multiplier" yaml:"candidate_multiplier"`

	// GraphDepth is the neighbor traversal depth for graph candidates
	// (default 2, capped at 4).
	GraphDepth int `json:"graph_depth" yaml:"graph_depth"`
}

// Config groups all stage configurations.
type Config struct {
	Store      StoreConfig      `json:"store" yaml:"store"`
	Capability CapabilityConfig `json:"capability" yaml:"capability"`
	Chunking   ChunkingConfig   `json:"chunking" yaml:"chunking"`
	Retrieval  RetrievalConfig  `json:"retrieval" yaml:"retrieval"`
}
