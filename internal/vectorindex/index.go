// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vectorindex answers nearest-neighbor queries over chunk
// embeddings with metadata filters. The index lives in memory for search
// speed and is backed by the embeddings table for durability; Load warms
// it at startup.
package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/viterin/vek/vek32"
	"go.uber.org/zap"

	"github.com/pdiddy/brain-engine/internal/store"
	"github.com/pdiddy/brain-engine/pkg/types"
)

// Meta is the filterable metadata attached to each indexed vector. All
// fields describe the owning Item, not the chunk.
type Meta struct {
	ItemID     string
	Modality   types.Modality
	SourceType string // "entry" for written entries, "file" for ingested files
	CreatedAt  time.Time
}

// entry pairs an immutable unit-length vector with its metadata. Entries
// are replaced wholesale on upsert, never mutated, so a concurrent reader
// observes either the old or the new vector and never a torn value.
type entry struct {
	vector []float32
	meta   Meta
}

// Index is the in-memory ANN structure. Reads are lock-free against the
// entries map; writers serialize among themselves only.
type Index struct {
	entries sync.Map // chunk id -> *entry
	writeMu sync.Mutex
	store   *store.Store
	logger  *zap.Logger
}

// New returns an empty index backed by s.
func New(s *store.Store, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{store: s, logger: logger}
}

// Load warms the index from the embeddings table. Chunks of tombstoned
// items are not stored, so everything loaded is live.
func (ix *Index) Load(ctx context.Context) error {
	var n int
	err := ix.store.LoadEmbeddings(ctx, func(se store.StoredEmbedding) error {
		ix.entries.Store(se.ChunkID, &entry{
			vector: unit(se.Vector),
			meta: Meta{
				ItemID:     se.ItemID,
				Modality:   se.Modality,
				SourceType: sourceType(se.SourcePath),
				CreatedAt:  parseStoredTime(se.ItemCreatedAt),
			},
		})
		n++
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading embeddings: %w", err)
	}
	ix.logger.Debug("vector index loaded", zap.Int("vectors", n))
	return nil
}

// Upsert indexes a chunk embedding and persists it. The vector is
// normalized to unit length so search reduces to dot products.
func (ix *Index) Upsert(ctx context.Context, chunkID string, vector []float32, meta Meta) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for chunk %s", chunkID)
	}
	v := unit(vector)

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	if err := ix.store.UpsertEmbedding(ctx, chunkID, v); err != nil {
		return err
	}
	ix.entries.Store(chunkID, &entry{vector: v, meta: meta})
	return nil
}

// Remove drops one chunk from the index and its persisted embedding.
func (ix *Index) Remove(ctx context.Context, chunkID string) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	if err := ix.store.DeleteEmbedding(ctx, chunkID); err != nil {
		return err
	}
	ix.entries.Delete(chunkID)
	return nil
}

// RemoveItem drops every indexed chunk belonging to an item. The
// persisted rows are already gone by the time an item is tombstoned; this
// only clears the in-memory side.
func (ix *Index) RemoveItem(itemID string) {
	ix.entries.Range(func(key, value any) bool {
		if value.(*entry).meta.ItemID == itemID {
			ix.entries.Delete(key)
		}
		return true
	})
}

// Filters restricts a search to items in a time range [Start, End), of a
// modality, or of a source type. Zero values mean no restriction. Filters
// are applied during the scan, never post-hoc, so they cannot displace
// true top-k candidates.
type Filters struct {
	Start      time.Time
	End        time.Time
	Modality   types.Modality
	SourceType string
}

func (f Filters) match(m Meta) bool {
	if !f.Start.IsZero() && m.CreatedAt.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && !m.CreatedAt.Before(f.End) {
		return false
	}
	if f.Modality != "" && m.Modality != f.Modality {
		return false
	}
	if f.SourceType != "" && m.SourceType != f.SourceType {
		return false
	}
	return true
}

// Match is one search hit.
type Match struct {
	ChunkID string
	Score   float64
	Meta    Meta
}

// Search returns the k chunks most similar to query, filtered, ordered by
// cosine similarity with ties broken by more recent item creation time.
func (ix *Index) Search(query []float32, k int, filters Filters) []Match {
	if k <= 0 || len(query) == 0 {
		return nil
	}
	q := unit(query)

	var matches []Match
	ix.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		if !filters.match(e.meta) {
			return true
		}
		if len(e.vector) != len(q) {
			return true
		}
		matches = append(matches, Match{
			ChunkID: key.(string),
			Score:   float64(vek32.Dot(q, e.vector)),
			Meta:    e.meta,
		})
		return true
	})

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Meta.CreatedAt.After(matches[j].Meta.CreatedAt)
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Len reports the number of indexed vectors.
func (ix *Index) Len() int {
	n := 0
	ix.entries.Range(func(_, _ any) bool { n++; return true })
	return n
}

// unit returns a normalized copy of v. The copy is unconditional so the
// index never aliases a caller-owned slice.
func unit(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	n := float32(math.Sqrt(float64(vek32.Dot(v, v))))
	if n == 0 {
		return out
	}
	vek32.MulNumber_Inplace(out, 1/n)
	return out
}

func sourceType(sourcePath string) string {
	if sourcePath == "" {
		return string(types.RefEntry)
	}
	return string(types.RefFile)
}

func parseStoredTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
