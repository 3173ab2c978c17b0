// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vectorindex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/brain-engine/internal/store"
	"github.com/pdiddy/brain-engine/pkg/types"
)

func newTestIndex(t *testing.T) (*Index, *store.Store) {
	t.Helper()
	st, err := store.Open(types.StoreConfig{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, nil), st
}

func seedChunk(t *testing.T, st *store.Store, modality types.Modality, sourcePath string, createdAt time.Time) (types.Item, types.Chunk) {
	t.Helper()
	ctx := context.Background()
	item := types.Item{
		ID:          uuid.NewString(),
		ContentHash: uuid.NewString(),
		Modality:    modality,
		SourcePath:  sourcePath,
		CreatedAt:   createdAt,
	}
	require.NoError(t, st.InsertItem(ctx, item))
	chunk := types.Chunk{ID: uuid.NewString(), ItemID: item.ID, Ordinal: 0, Text: "indexed text"}
	require.NoError(t, st.ReplaceChunks(ctx, item.ID, []types.Chunk{chunk}))
	return item, chunk
}

func metaFor(item types.Item) Meta {
	st := "entry"
	if item.SourcePath != "" {
		st = "file"
	}
	return Meta{ItemID: item.ID, Modality: item.Modality, SourceType: st, CreatedAt: item.CreatedAt}
}

func TestUpsertNormalizesAndSearches(t *testing.T) {
	ix, st := newTestIndex(t)
	ctx := context.Background()

	item, chunk := seedChunk(t, st, types.ModalityText, "", time.Now())
	require.NoError(t, ix.Upsert(ctx, chunk.ID, []float32{3, 0, 4}, metaFor(item)))

	matches := ix.Search([]float32{3, 0, 4}, 5, Filters{})
	require.Len(t, matches, 1)
	assert.Equal(t, chunk.ID, matches[0].ChunkID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

// unit must always hand back an owned copy, zero-norm vectors included;
// otherwise the index aliases a slice the caller may still mutate.
func TestUnitNeverAliasesInput(t *testing.T) {
	v := []float32{3, 0, 4}
	u := unit(v)
	v[0] = 99
	assert.InDelta(t, 0.6, u[0], 1e-6)

	zero := []float32{0, 0, 0}
	z := unit(zero)
	zero[0] = 1
	assert.Equal(t, float32(0), z[0])
}

func TestSearchOrdersByScoreThenRecency(t *testing.T) {
	ix, st := newTestIndex(t)
	ctx := context.Background()

	old, oldChunk := seedChunk(t, st, types.ModalityText, "", time.Now().Add(-time.Hour))
	recent, recentChunk := seedChunk(t, st, types.ModalityText, "", time.Now())
	_, offAxis := seedChunk(t, st, types.ModalityText, "", time.Now())

	require.NoError(t, ix.Upsert(ctx, oldChunk.ID, []float32{1, 0}, metaFor(old)))
	require.NoError(t, ix.Upsert(ctx, recentChunk.ID, []float32{1, 0}, metaFor(recent)))
	require.NoError(t, ix.Upsert(ctx, offAxis.ID, []float32{0, 1}, Meta{ItemID: offAxis.ItemID, Modality: types.ModalityText, SourceType: "entry", CreatedAt: time.Now()}))

	matches := ix.Search([]float32{1, 0}, 3, Filters{})
	require.Len(t, matches, 3)
	// Equal scores: the more recently created item wins the tie.
	assert.Equal(t, recentChunk.ID, matches[0].ChunkID)
	assert.Equal(t, oldChunk.ID, matches[1].ChunkID)
	assert.Equal(t, offAxis.ID, matches[2].ChunkID)
}

func TestSearchFilters(t *testing.T) {
	ix, st := newTestIndex(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	textItem, textChunk := seedChunk(t, st, types.ModalityText, "", base)
	imageItem, imageChunk := seedChunk(t, st, types.ModalityImage, "/pics/a.png", base.Add(48*time.Hour))

	require.NoError(t, ix.Upsert(ctx, textChunk.ID, []float32{1, 0}, metaFor(textItem)))
	require.NoError(t, ix.Upsert(ctx, imageChunk.ID, []float32{1, 0}, metaFor(imageItem)))

	byModality := ix.Search([]float32{1, 0}, 5, Filters{Modality: types.ModalityImage})
	require.Len(t, byModality, 1)
	assert.Equal(t, imageChunk.ID, byModality[0].ChunkID)

	bySource := ix.Search([]float32{1, 0}, 5, Filters{SourceType: "entry"})
	require.Len(t, bySource, 1)
	assert.Equal(t, textChunk.ID, bySource[0].ChunkID)

	// [Start, End) over item creation time.
	byTime := ix.Search([]float32{1, 0}, 5, Filters{Start: base, End: base.Add(24 * time.Hour)})
	require.Len(t, byTime, 1)
	assert.Equal(t, textChunk.ID, byTime[0].ChunkID)

	boundary := ix.Search([]float32{1, 0}, 5, Filters{End: base})
	assert.Empty(t, boundary)
}

func TestUpsertPersistsAcrossLoad(t *testing.T) {
	ix, st := newTestIndex(t)
	ctx := context.Background()

	item, chunk := seedChunk(t, st, types.ModalityText, "", time.Now())
	require.NoError(t, ix.Upsert(ctx, chunk.ID, []float32{0, 1}, metaFor(item)))

	reloaded := New(st, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 1, reloaded.Len())

	matches := reloaded.Search([]float32{0, 1}, 1, Filters{})
	require.Len(t, matches, 1)
	assert.Equal(t, chunk.ID, matches[0].ChunkID)
	assert.Equal(t, item.ID, matches[0].Meta.ItemID)
}

func TestRemoveAndRemoveItem(t *testing.T) {
	ix, st := newTestIndex(t)
	ctx := context.Background()

	item, chunk := seedChunk(t, st, types.ModalityText, "", time.Now())
	other, otherChunk := seedChunk(t, st, types.ModalityText, "", time.Now())
	require.NoError(t, ix.Upsert(ctx, chunk.ID, []float32{1, 0}, metaFor(item)))
	require.NoError(t, ix.Upsert(ctx, otherChunk.ID, []float32{1, 0}, metaFor(other)))

	require.NoError(t, ix.Remove(ctx, chunk.ID))
	assert.Equal(t, 1, ix.Len())

	ix.RemoveItem(other.ID)
	assert.Zero(t, ix.Len())
}

func TestSearchDuringConcurrentWrites(t *testing.T) {
	ix, st := newTestIndex(t)
	ctx := context.Background()

	item, chunk := seedChunk(t, st, types.ModalityText, "", time.Now())
	require.NoError(t, ix.Upsert(ctx, chunk.ID, []float32{1, 0}, metaFor(item)))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			vec := []float32{1, 0}
			if i%2 == 1 {
				vec = []float32{0, 1}
			}
			_ = ix.Upsert(ctx, chunk.ID, vec, metaFor(item))
		}
	}()

	// Readers must always observe a whole vector: score 1 against one of
	// the two axes, never something in between.
	for i := 0; i < 200; i++ {
		matches := ix.Search([]float32{1, 0}, 1, Filters{})
		require.Len(t, matches, 1)
		score := matches[0].Score
		ok := score > 0.999 || score < 0.001
		require.True(t, ok, "torn read: score %v", score)
	}
	close(stop)
	wg.Wait()
}
