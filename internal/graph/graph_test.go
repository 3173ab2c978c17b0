// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/brain-engine/internal/store"
	"github.com/pdiddy/brain-engine/pkg/types"
)

func newTestGraph(t *testing.T) (*Graph, *store.Store) {
	t.Helper()
	st, err := store.Open(types.StoreConfig{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, nil), st
}

func seedChunk(t *testing.T, st *store.Store) string {
	t.Helper()
	ctx := context.Background()
	itemID := uuid.NewString()
	require.NoError(t, st.InsertItem(ctx, types.Item{
		ID:          itemID,
		ContentHash: uuid.NewString(),
		Modality:    types.ModalityText,
	}))
	chunkID := uuid.NewString()
	require.NoError(t, st.ReplaceChunks(ctx, itemID, []types.Chunk{
		{ID: chunkID, ItemID: itemID, Ordinal: 0, Text: "seed chunk"},
	}))
	return chunkID
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "jose garcia", Normalize("José  García"))
	assert.Equal(t, "zurich", Normalize("Zürich"))
	assert.Equal(t, "张三", Normalize("张三"))
	assert.Equal(t, "acme corp", Normalize("  ACME   Corp "))
}

func TestUpsertEntityCreatesOnce(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	first, err := g.UpsertEntity(ctx, "Ada Lovelace", types.EntityPerson, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.FirstSeen.IsZero())

	second, err := g.UpsertEntity(ctx, "ada  lovelace", types.EntityPerson, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ada Lovelace", second.CanonicalName)
}

func TestUpsertEntityResolvesByAlias(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	created, err := g.UpsertEntity(ctx, "张三", types.EntityPerson, []string{"Zhang San"})
	require.NoError(t, err)

	// A later mention under the alias resolves to the same entity.
	resolved, err := g.UpsertEntity(ctx, "Zhang San", types.EntityPerson, nil)
	require.NoError(t, err)
	assert.Equal(t, created.ID, resolved.ID)
	assert.Equal(t, "张三", resolved.CanonicalName)
	assert.Contains(t, resolved.Aliases, "Zhang San")
}

func TestUpsertEntityAliasMatchGainsNewName(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	created, err := g.UpsertEntity(ctx, "Kubernetes", types.EntityTechnology, []string{"k8s"})
	require.NoError(t, err)

	merged, err := g.UpsertEntity(ctx, "k8s", types.EntityTechnology, []string{"kube"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, merged.ID)
	assert.Contains(t, merged.Aliases, "kube")

	// The new alias is now a resolution key too.
	again, err := g.Resolve(ctx, "Kube")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
}

func TestResolveUnknown(t *testing.T) {
	g, _ := newTestGraph(t)

	_, err := g.Resolve(context.Background(), "nobody")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUpsertEntityEmptyName(t *testing.T) {
	g, _ := newTestGraph(t)

	_, err := g.UpsertEntity(context.Background(), "   ", types.EntityPerson, nil)
	assert.Error(t, err)
}

func TestUpsertRelationConfidenceNeverDecreases(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	alice, err := g.UpsertEntity(ctx, "Alice", types.EntityPerson, nil)
	require.NoError(t, err)
	atlas, err := g.UpsertEntity(ctx, "Atlas", types.EntityProject, nil)
	require.NoError(t, err)

	rel, err := g.UpsertRelation(ctx, alice.ID, "works_on", atlas.ID, 0.6, "chunk-a")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, rel.Confidence, 1e-9)

	// A weaker re-observation must not lower confidence.
	rel, err = g.UpsertRelation(ctx, alice.ID, "works_on", atlas.ID, 0.3, "chunk-b")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, rel.Confidence, 1e-9)
	assert.ElementsMatch(t, []string{"chunk-a", "chunk-b"}, rel.Provenance)

	rel, err = g.UpsertRelation(ctx, alice.ID, "works_on", atlas.ID, 0.9, "chunk-a")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, rel.Confidence, 1e-9)
	assert.ElementsMatch(t, []string{"chunk-a", "chunk-b"}, rel.Provenance)
}

func TestUpsertRelationValidation(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	_, err := g.UpsertRelation(ctx, "", "works_on", "x", 0.5, "")
	assert.Error(t, err)
	_, err = g.UpsertRelation(ctx, "a", "works_on", "b", 1.5, "")
	assert.Error(t, err)
}

func TestRecordMentionIdempotent(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()
	chunkID := seedChunk(t, st)

	alice, err := g.UpsertEntity(ctx, "Alice", types.EntityPerson, nil)
	require.NoError(t, err)

	require.NoError(t, g.RecordMention(ctx, alice.ID, chunkID))
	require.NoError(t, g.RecordMention(ctx, alice.ID, chunkID))

	reloaded, err := st.GetEntity(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.MentionCount)

	chunks, err := g.MentionedChunks(ctx, []string{alice.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{chunkID}, chunks)
}

func TestNeighborsWalksBoundedDepth(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	// alice -> atlas -> go -> google, a three-hop chain.
	alice, _ := g.UpsertEntity(ctx, "Alice", types.EntityPerson, nil)
	atlas, _ := g.UpsertEntity(ctx, "Atlas", types.EntityProject, nil)
	golang, _ := g.UpsertEntity(ctx, "Go", types.EntityTechnology, nil)
	google, _ := g.UpsertEntity(ctx, "Google", types.EntityOrganization, nil)

	_, err := g.UpsertRelation(ctx, alice.ID, "works_on", atlas.ID, 0.9, "")
	require.NoError(t, err)
	_, err = g.UpsertRelation(ctx, atlas.ID, "uses", golang.ID, 0.9, "")
	require.NoError(t, err)
	_, err = g.UpsertRelation(ctx, golang.ID, "created_by", google.ID, 0.9, "")
	require.NoError(t, err)

	one, err := g.Neighbors(ctx, []string{alice.ID}, "", 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{alice.ID, atlas.ID}, one.EntityIDs)
	assert.Len(t, one.Relations, 1)

	two, err := g.Neighbors(ctx, []string{alice.ID}, "", 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{alice.ID, atlas.ID, golang.ID}, two.EntityIDs)

	deep, err := g.Neighbors(ctx, []string{alice.ID}, "", 3)
	require.NoError(t, err)
	assert.Contains(t, deep.EntityIDs, google.ID)
}

func TestNeighborsPredicateFilter(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	alice, _ := g.UpsertEntity(ctx, "Alice", types.EntityPerson, nil)
	atlas, _ := g.UpsertEntity(ctx, "Atlas", types.EntityProject, nil)
	paris, _ := g.UpsertEntity(ctx, "Paris", types.EntityLocation, nil)

	_, err := g.UpsertRelation(ctx, alice.ID, "works_on", atlas.ID, 0.9, "")
	require.NoError(t, err)
	_, err = g.UpsertRelation(ctx, alice.ID, "located_in", paris.ID, 0.9, "")
	require.NoError(t, err)

	hood, err := g.Neighbors(ctx, []string{alice.ID}, "works_on", 2)
	require.NoError(t, err)
	assert.Contains(t, hood.EntityIDs, atlas.ID)
	assert.NotContains(t, hood.EntityIDs, paris.ID)
}

func TestNeighborsDefaultAndCap(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	// depth 0 falls back to the default, absurd depth is capped; both
	// should simply terminate and include the seed.
	alice, _ := g.UpsertEntity(ctx, "Alice", types.EntityPerson, nil)

	hood, err := g.Neighbors(ctx, []string{alice.ID}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID}, hood.EntityIDs)

	hood, err = g.Neighbors(ctx, []string{alice.ID}, "", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID}, hood.EntityIDs)
}
