// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package brain is the tool surface the agent invokes: write_entry,
// ingest_content, update_entry, delete_entry, search_semantic,
// search_graph, read_document. It composes the content store, chunking
// pipeline, vector index, knowledge graph, and retrieval engine, and
// records exactly one audit entry per invocation.
package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/brain-engine/internal/audit"
	"github.com/pdiddy/brain-engine/internal/capability"
	"github.com/pdiddy/brain-engine/internal/chunking"
	"github.com/pdiddy/brain-engine/internal/contentstore"
	"github.com/pdiddy/brain-engine/internal/graph"
	"github.com/pdiddy/brain-engine/internal/retrieval"
	"github.com/pdiddy/brain-engine/internal/store"
	"github.com/pdiddy/brain-engine/internal/vectorindex"
	"github.com/pdiddy/brain-engine/pkg/types"
)

// indexWorkers bounds concurrent embedding calls during one ingestion.
const indexWorkers = 4

// Enricher is the slice of the capability surface the facade calls
// directly; everything else reaches the capability client through the
// pipeline or the retrieval engine.
type Enricher interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ExtractEntities(ctx context.Context, text string) (capability.Extraction, error)
	Summarize(ctx context.Context, text string) (capability.Annotation, error)
}

// Brain owns one store and every component built on it.
type Brain struct {
	store   *store.Store
	content *contentstore.ContentStore
	chunker *chunking.Pipeline
	index   *vectorindex.Index
	graph   *graph.Graph
	engine  *retrieval.Engine
	ledger  *audit.Ledger
	ai      Enricher
	logger  *zap.Logger
}

type Deps struct {
	Store   *store.Store
	Content *contentstore.ContentStore
	Chunker *chunking.Pipeline
	Index   *vectorindex.Index
	Graph   *graph.Graph
	Engine  *retrieval.Engine
	Ledger  *audit.Ledger
	AI      Enricher
	Logger  *zap.Logger
}

func New(d Deps) *Brain {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Brain{
		store:   d.Store,
		content: d.Content,
		chunker: d.Chunker,
		index:   d.Index,
		graph:   d.Graph,
		engine:  d.Engine,
		ledger:  d.Ledger,
		ai:      d.AI,
		logger:  logger,
	}
}

// IngestResult reports what one write/ingest invocation did.
type IngestResult struct {
	Item         types.Item
	WasDuplicate bool
	ChunkCount   int
	// Degraded is set when an enrichment stage (embedding, entity
	// extraction) was skipped for some chunks.
	Degraded bool
}

// WriteEntry stores a typed note. Identical content resolves to the
// existing entry with WasDuplicate set.
func (b *Brain) WriteEntry(ctx context.Context, text, conversationID string) (IngestResult, error) {
	res, err := b.ingest(ctx, []byte(text), types.ModalityText, "", conversationID)
	b.ledger.Record(ctx, "write_entry",
		map[string]any{"text_len": len(text)},
		ingestSummary(res, err), conversationID)
	return res, err
}

// IngestContent stores raw bytes read from a source path (file upload).
func (b *Brain) IngestContent(ctx context.Context, data []byte, modality types.Modality, sourcePath, conversationID string) (IngestResult, error) {
	res, err := b.ingest(ctx, data, modality, sourcePath, conversationID)
	b.ledger.Record(ctx, "ingest_content",
		map[string]any{"modality": string(modality), "source_path": sourcePath, "size_bytes": len(data)},
		ingestSummary(res, err), conversationID)
	return res, err
}

// UpdateEntry replaces an entry's content. Content addressing makes items
// immutable, so an update tombstones the old item and ingests the new text
// under the same conversation.
func (b *Brain) UpdateEntry(ctx context.Context, id, text, conversationID string) (IngestResult, error) {
	res, err := b.update(ctx, id, text, conversationID)
	b.ledger.Record(ctx, "update_entry",
		map[string]any{"id": id, "text_len": len(text)},
		ingestSummary(res, err), conversationID)
	return res, err
}

func (b *Brain) update(ctx context.Context, id, text, conversationID string) (IngestResult, error) {
	item, err := b.content.Get(ctx, id)
	if err != nil {
		return IngestResult{}, err
	}
	if item.Deleted() {
		return IngestResult{}, types.ErrNotFound
	}
	if err := b.content.Tombstone(ctx, id); err != nil {
		return IngestResult{}, err
	}
	b.index.RemoveItem(id)
	return b.ingest(ctx, []byte(text), types.ModalityText, item.SourcePath, conversationID)
}

// DeleteEntry tombstones an item and drops its chunks from every index.
// Entities and relations extracted from it remain in the graph.
func (b *Brain) DeleteEntry(ctx context.Context, id, conversationID string) error {
	err := b.content.Tombstone(ctx, id)
	if err == nil {
		b.index.RemoveItem(id)
	}
	summary := "tombstoned"
	if err != nil {
		summary = "error: " + err.Error()
	}
	b.ledger.Record(ctx, "delete_entry", map[string]any{"id": id}, summary, conversationID)
	return err
}

// SearchSemantic runs the hybrid retrieval pipeline.
func (b *Brain) SearchSemantic(ctx context.Context, q retrieval.Query, conversationID string) (retrieval.Results, error) {
	res, err := b.engine.Search(ctx, q)
	summary := fmt.Sprintf("%d results", len(res.Hits))
	if res.Degraded {
		summary += " (degraded)"
	}
	if err != nil {
		summary = "error: " + err.Error()
	}
	b.ledger.Record(ctx, "search_semantic",
		map[string]any{"query": q.Text, "limit": q.Limit},
		summary, conversationID)
	return res, err
}

// GraphResult is the answer to a search_graph invocation.
type GraphResult struct {
	Root      types.Entity
	Entities  []types.Entity
	Relations []types.Relation
}

// SearchGraph resolves an entity by name and returns its neighborhood.
func (b *Brain) SearchGraph(ctx context.Context, name, predicate string, depth int, conversationID string) (GraphResult, error) {
	res, err := b.searchGraph(ctx, name, predicate, depth)
	summary := fmt.Sprintf("%d entities, %d relations", len(res.Entities), len(res.Relations))
	if err != nil {
		summary = "error: " + err.Error()
	}
	b.ledger.Record(ctx, "search_graph",
		map[string]any{"entity": name, "predicate": predicate, "depth": depth},
		summary, conversationID)
	return res, err
}

func (b *Brain) searchGraph(ctx context.Context, name, predicate string, depth int) (GraphResult, error) {
	root, err := b.graph.Resolve(ctx, name)
	if err != nil {
		return GraphResult{}, err
	}
	hood, err := b.graph.Neighbors(ctx, []string{root.ID}, predicate, depth)
	if err != nil {
		return GraphResult{}, err
	}
	result := GraphResult{Root: root, Relations: hood.Relations}
	for _, id := range hood.EntityIDs {
		entity, err := b.store.GetEntity(ctx, id)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return GraphResult{}, err
		}
		result.Entities = append(result.Entities, entity)
	}
	return result, nil
}

// Document is an item with its chunk sequence restored.
type Document struct {
	Item   types.Item
	Chunks []types.Chunk
	Text   string
}

// ReadDocument returns the item's chunks in ordinal order plus their
// concatenation.
func (b *Brain) ReadDocument(ctx context.Context, id, conversationID string) (Document, error) {
	doc, err := b.readDocument(ctx, id)
	summary := fmt.Sprintf("%d chunks", len(doc.Chunks))
	if err != nil {
		summary = "error: " + err.Error()
	}
	b.ledger.Record(ctx, "read_document", map[string]any{"id": id}, summary, conversationID)
	return doc, err
}

func (b *Brain) readDocument(ctx context.Context, id string) (Document, error) {
	item, err := b.content.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if item.Deleted() {
		return Document{}, types.ErrNotFound
	}
	chunks, err := b.store.ChunksForItem(ctx, id)
	if err != nil {
		return Document{}, err
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return Document{Item: item, Chunks: chunks, Text: strings.Join(texts, "\n\n")}, nil
}

// Audit exposes the ledger for the CLI.
func (b *Brain) Audit() *audit.Ledger { return b.ledger }

// ingest is the shared write path: dedup, chunk, then fan out enrichment.
func (b *Brain) ingest(ctx context.Context, data []byte, modality types.Modality, sourcePath, conversationID string) (IngestResult, error) {
	put, err := b.content.Put(ctx, data, modality, sourcePath, conversationID)
	if err != nil {
		return IngestResult{}, err
	}
	if put.WasDuplicate {
		return IngestResult{Item: put.Item, WasDuplicate: true}, nil
	}

	chunks, err := b.chunker.Process(ctx, put.Item.ID)
	if err != nil {
		return IngestResult{Item: put.Item}, err
	}

	degraded := b.enrich(ctx, put.Item, chunks)

	// The item may have been deleted while enrichment calls were in
	// flight; discard their results rather than resurrect it.
	live, err := b.store.ItemLive(ctx, put.Item.ID)
	if err != nil {
		return IngestResult{Item: put.Item}, err
	}
	if !live {
		b.index.RemoveItem(put.Item.ID)
		return IngestResult{Item: put.Item}, store.ErrItemGone
	}

	b.score(ctx, put.Item, chunks)
	b.summarizeItem(ctx, put.Item, chunks)

	return IngestResult{Item: put.Item, ChunkCount: len(chunks), Degraded: degraded}, nil
}

// summarizeItem attaches an item-level summary note built from
// representative chunks: first, last, and up to eight spread through the
// middle. Best-effort; a capability failure leaves the item unsummarized.
func (b *Brain) summarizeItem(ctx context.Context, item types.Item, chunks []types.Chunk) {
	if len(chunks) < 2 {
		return
	}
	reps := representatives(chunks, 8)
	texts := make([]string, len(reps))
	for i, c := range reps {
		texts[i] = c.Text
	}
	ann, err := b.ai.Summarize(ctx, strings.Join(texts, "\n\n"))
	if err != nil || ann.Summary == "" {
		if err != nil {
			b.logger.Debug("item summarization failed", zap.String("item_id", item.ID), zap.Error(err))
		}
		return
	}
	if err := b.store.AppendItemNote(ctx, item.ID, "summary: "+ann.Summary); err != nil {
		b.logger.Debug("recording summary note failed", zap.String("item_id", item.ID), zap.Error(err))
	}
}

// representatives picks the first, the last, and up to middle evenly
// spaced chunks between them.
func representatives(chunks []types.Chunk, middle int) []types.Chunk {
	if len(chunks) <= middle+2 {
		return chunks
	}
	picked := []types.Chunk{chunks[0]}
	inner := len(chunks) - 2
	for i := 0; i < middle; i++ {
		picked = append(picked, chunks[1+(i*inner)/middle])
	}
	return append(picked, chunks[len(chunks)-1])
}

// enrich embeds chunks into the vector index and extracts entities into
// the graph. Both run concurrently; capability failures degrade the item
// rather than fail the ingestion.
func (b *Brain) enrich(ctx context.Context, item types.Item, chunks []types.Chunk) bool {
	var mu sync.Mutex
	degraded := false
	note := func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		degraded = true
		if err := b.store.AppendItemNote(ctx, item.ID, msg); err != nil {
			b.logger.Debug("recording item note failed", zap.String("item_id", item.ID), zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexWorkers)
	for _, chunk := range chunks {
		g.Go(func() error {
			vec, err := b.ai.Embed(gctx, chunk.Text)
			if err != nil {
				note(fmt.Sprintf("chunk %d: embedding: %v", chunk.Ordinal, err))
				return nil
			}
			meta := vectorindex.Meta{
				ItemID:     item.ID,
				Modality:   item.Modality,
				SourceType: sourceType(item),
				CreatedAt:  item.CreatedAt,
			}
			if err := b.index.Upsert(gctx, chunk.ID, vec, meta); err != nil {
				note(fmt.Sprintf("chunk %d: indexing: %v", chunk.Ordinal, err))
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := b.extractGraph(gctx, chunks); err != nil {
			note(fmt.Sprintf("entity extraction: %v", err))
		}
		return nil
	})
	_ = g.Wait()
	return degraded
}

// extractGraph pulls entities and relations out of each chunk and upserts
// them with the chunk as provenance.
func (b *Brain) extractGraph(ctx context.Context, chunks []types.Chunk) error {
	for _, chunk := range chunks {
		extraction, err := b.ai.ExtractEntities(ctx, chunk.Text)
		if err != nil {
			return err
		}
		byName := make(map[string]string, len(extraction.Entities))
		for _, ext := range extraction.Entities {
			entity, err := b.graph.UpsertEntity(ctx, ext.Name, types.EntityType(ext.Type), nil)
			if err != nil {
				return err
			}
			byName[graph.Normalize(ext.Name)] = entity.ID
			if err := b.graph.RecordMention(ctx, entity.ID, chunk.ID); err != nil {
				return err
			}
		}
		for _, rel := range extraction.Relations {
			subjID, ok := byName[graph.Normalize(rel.Source)]
			if !ok {
				continue
			}
			objID, ok := byName[graph.Normalize(rel.Target)]
			if !ok {
				continue
			}
			if _, err := b.graph.UpsertRelation(ctx, subjID, rel.Type, objID, rel.Confidence, chunk.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// score stores the trash heuristic computed over the extracted text.
func (b *Brain) score(ctx context.Context, item types.Item, chunks []types.Chunk) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	score := contentstore.TrashScore(item, strings.Join(texts, "\n"))
	if err := b.store.SetTrashScore(ctx, item.ID, score); err != nil {
		b.logger.Debug("storing trash score failed", zap.String("item_id", item.ID), zap.Error(err))
	}
}

func sourceType(item types.Item) string {
	if item.SourcePath == "" {
		return "entry"
	}
	return "file"
}

func ingestSummary(res IngestResult, err error) string {
	switch {
	case err != nil:
		return "error: " + err.Error()
	case res.WasDuplicate:
		return "duplicate of " + res.Item.ID
	default:
		s := fmt.Sprintf("item %s, %d chunks", res.Item.ID, res.ChunkCount)
		if res.Degraded {
			s += " (degraded)"
		}
		return s
	}
}
