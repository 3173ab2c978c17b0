// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieval answers hybrid queries: vector similarity, keyword
// match, and knowledge-graph expansion feed one candidate pool, which a
// reranking model orders before the top results are returned. When the
// reranker is unreachable the engine degrades to similarity order rather
// than failing the query.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/brain-engine/internal/capability"
	"github.com/pdiddy/brain-engine/internal/graph"
	"github.com/pdiddy/brain-engine/internal/store"
	"github.com/pdiddy/brain-engine/internal/vectorindex"
	"github.com/pdiddy/brain-engine/pkg/types"
)

// maxEntityGram bounds how many consecutive query words are tried as an
// entity name during graph expansion.
const maxEntityGram = 3

// Ranker is the slice of the capability surface the engine consumes.
type Ranker interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]capability.RerankResult, error)
}

// ChunkSource loads chunk and item rows and serves keyword matches.
type ChunkSource interface {
	GetChunks(ctx context.Context, chunkIDs []string) ([]types.Chunk, error)
	GetItem(ctx context.Context, id string) (types.Item, error)
	KeywordSearch(ctx context.Context, query string, limit int) ([]store.KeywordMatch, error)
}

// Expander resolves entities named in the query and walks their
// neighborhood to chunks that mention them.
type Expander interface {
	Resolve(ctx context.Context, name string) (types.Entity, error)
	Neighbors(ctx context.Context, seedIDs []string, predicate string, depth int) (graph.Neighborhood, error)
	MentionedChunks(ctx context.Context, entityIDs []string) ([]string, error)
}

// Query is one retrieval request.
type Query struct {
	Text    string
	Limit   int
	Filters vectorindex.Filters
}

// Result is one ranked chunk with its provenance reference.
type Result struct {
	Chunk types.Chunk
	Score float64
	Ref   types.Ref
}

// Results carries the ranked chunks plus a degradation marker set when the
// reranking stage was skipped.
type Results struct {
	Hits     []Result
	Degraded bool
}

// Engine wires the stages together.
type Engine struct {
	ranker   Ranker
	index    *vectorindex.Index
	chunks   ChunkSource
	expander Expander
	cfg      types.RetrievalConfig
	logger   *zap.Logger
}

func NewEngine(ranker Ranker, index *vectorindex.Index, chunks ChunkSource, expander Expander, cfg types.RetrievalConfig, logger *zap.Logger) *Engine {
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{ranker: ranker, index: index, chunks: chunks, expander: expander, cfg: cfg, logger: logger}
}

// Search runs the full hybrid pipeline. The candidate pool is the union of
// vector, graph, and keyword hits, deduplicated by chunk id; candidate
// order (similarity first) is what survives if reranking degrades.
func (e *Engine) Search(ctx context.Context, q Query) (Results, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Results{}, fmt.Errorf("query text must not be empty")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	candidateIDs, scores, degraded, err := e.gather(ctx, text, limit, q.Filters)
	if err != nil {
		return Results{}, err
	}
	if len(candidateIDs) == 0 {
		return Results{Degraded: degraded}, nil
	}

	chunks, err := e.chunks.GetChunks(ctx, candidateIDs)
	if err != nil {
		return Results{}, err
	}
	// Restore candidate order; GetChunks does not guarantee it.
	byID := make(map[string]types.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	ordered := make([]types.Chunk, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}

	res, err := e.rank(ctx, text, ordered, scores, limit)
	if err != nil {
		return Results{}, err
	}
	e.annotate(ctx, res.Hits)
	res.Degraded = res.Degraded || degraded
	return res, nil
}

// gather assembles the deduplicated candidate pool. Vector hits come first
// in similarity order, then graph-expansion hits, then keyword hits. The
// degraded flag reports a skipped vector stage.
func (e *Engine) gather(ctx context.Context, text string, limit int, filters vectorindex.Filters) ([]string, map[string]float64, bool, error) {
	poolSize := limit * e.cfg.CandidateMultiplier
	seen := make(map[string]bool)
	scores := make(map[string]float64)
	var pool []string

	add := func(id string, score float64) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		scores[id] = score
		pool = append(pool, id)
	}

	degraded := false
	queryVec, err := e.ranker.Embed(ctx, text)
	if err != nil {
		if !types.IsCapabilityUnavailable(err) {
			return nil, nil, false, err
		}
		// Without an embedding the vector stage is skipped entirely;
		// keyword and graph stages can still answer.
		e.logger.Warn("embedding unavailable, skipping vector stage", zap.Error(err))
		degraded = true
	} else {
		for _, m := range e.index.Search(queryVec, poolSize, filters) {
			add(m.ChunkID, m.Score)
		}
	}

	entityIDs := e.matchEntities(ctx, text)
	if len(entityIDs) > 0 {
		hood, err := e.expander.Neighbors(ctx, entityIDs, "", e.cfg.GraphDepth)
		if err != nil {
			return nil, nil, false, err
		}
		mentioned, err := e.expander.MentionedChunks(ctx, hood.EntityIDs)
		if err != nil {
			return nil, nil, false, err
		}
		for _, id := range mentioned {
			add(id, 0)
		}
	}

	keyword, err := e.chunks.KeywordSearch(ctx, text, poolSize)
	if err != nil {
		return nil, nil, false, err
	}
	for _, m := range keyword {
		add(m.ChunkID, 0)
	}

	return pool, scores, degraded, nil
}

// matchEntities tries word n-grams of the query as entity names or aliases.
func (e *Engine) matchEntities(ctx context.Context, text string) []string {
	words := strings.Fields(text)
	seen := make(map[string]bool)
	var ids []string
	for n := maxEntityGram; n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			name := strings.Join(words[i:i+n], " ")
			entity, err := e.expander.Resolve(ctx, name)
			if err != nil {
				if !errors.Is(err, types.ErrNotFound) {
					e.logger.Debug("entity resolution failed", zap.String("name", name), zap.Error(err))
				}
				continue
			}
			if !seen[entity.ID] {
				seen[entity.ID] = true
				ids = append(ids, entity.ID)
			}
		}
	}
	return ids
}

// rank orders candidates with the reranking model and keeps the top limit.
// A rerank failure falls back to the incoming candidate order and marks the
// results degraded.
func (e *Engine) rank(ctx context.Context, text string, candidates []types.Chunk, scores map[string]float64, limit int) (Results, error) {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}

	ranked, err := e.ranker.Rerank(ctx, text, docs, limit)
	if err != nil {
		e.logger.Warn("rerank unavailable, falling back to similarity order", zap.Error(err))
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		res := Results{Degraded: true}
		for _, c := range candidates {
			res.Hits = append(res.Hits, result(c, scores[c.ID]))
		}
		return res, nil
	}

	var res Results
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		res.Hits = append(res.Hits, result(candidates[r.Index], r.Score))
	}
	return res, nil
}

func result(c types.Chunk, score float64) Result {
	return Result{
		Chunk: c,
		Score: score,
		Ref:   types.Ref{Kind: types.RefChunk, ID: c.ID},
	}
}

// annotate classifies each hit by the kind of item it came from: a typed
// note is cited as an entry, ingested content as a file. Hits whose item
// cannot be loaded keep the generic chunk kind.
func (e *Engine) annotate(ctx context.Context, hits []Result) {
	kinds := make(map[string]types.RefKind)
	for i, h := range hits {
		kind, ok := kinds[h.Chunk.ItemID]
		if !ok {
			kind = types.RefChunk
			item, err := e.chunks.GetItem(ctx, h.Chunk.ItemID)
			if err != nil {
				e.logger.Debug("item lookup for ref failed",
					zap.String("item", h.Chunk.ItemID), zap.Error(err))
			} else if item.SourcePath == "" {
				kind = types.RefEntry
			} else {
				kind = types.RefFile
			}
			kinds[h.Chunk.ItemID] = kind
		}
		hits[i].Ref.Kind = kind
	}
}
