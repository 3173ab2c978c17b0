// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/brain-engine/internal/capability"
	"github.com/pdiddy/brain-engine/internal/store"
	"github.com/pdiddy/brain-engine/pkg/types"
)

type fakeBackend struct {
	items     map[string]types.Item
	objects   map[string][]byte
	committed []types.Chunk
	notes     []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{items: map[string]types.Item{}, objects: map[string][]byte{}}
}

func (f *fakeBackend) add(item types.Item, data []byte) {
	f.items[item.ID] = item
	f.objects[item.ID] = data
}

func (f *fakeBackend) GetItem(_ context.Context, id string) (types.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return types.Item{}, types.ErrNotFound
	}
	return item, nil
}

func (f *fakeBackend) ReplaceChunks(_ context.Context, itemID string, chunks []types.Chunk) error {
	item, ok := f.items[itemID]
	if !ok || item.Deleted() {
		return store.ErrItemGone
	}
	f.committed = append([]types.Chunk(nil), chunks...)
	return nil
}

func (f *fakeBackend) AppendItemNote(_ context.Context, id, note string) error {
	f.notes = append(f.notes, note)
	return nil
}

func (f *fakeBackend) ReadBytes(_ context.Context, item types.Item) ([]byte, error) {
	data, ok := f.objects[item.ID]
	if !ok {
		return nil, types.ErrInconsistentState
	}
	return data, nil
}

type fakeAnnotator struct {
	summarizeErr error
	description  string
	describeErr  error
	transcript   string
	subordinate  bool
	classifyErr  error

	describeCalls int
}

func (f *fakeAnnotator) Summarize(_ context.Context, text string) (capability.Annotation, error) {
	if f.summarizeErr != nil {
		return capability.Annotation{}, f.summarizeErr
	}
	return capability.Annotation{Summary: "summary of " + text[:min(10, len(text))], Tags: []string{"tag"}}, nil
}

func (f *fakeAnnotator) DescribeImage(_ context.Context, _ []byte, _ string) (string, error) {
	f.describeCalls++
	if f.describeErr != nil {
		return "", f.describeErr
	}
	return f.description, nil
}

func (f *fakeAnnotator) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return f.transcript, nil
}

func (f *fakeAnnotator) ClassifySubordinate(_ context.Context, _, _, _ string) (bool, error) {
	if f.classifyErr != nil {
		return false, f.classifyErr
	}
	return f.subordinate, nil
}

func newTestPipeline(t *testing.T, backend *fakeBackend, ai *fakeAnnotator) *Pipeline {
	t.Helper()
	p, err := NewPipeline(backend, backend, ai, types.ChunkingConfig{WindowTokens: 64, OverlapTokens: 8}, nil)
	require.NoError(t, err)
	return p
}

func textItem(id string) types.Item {
	return types.Item{ID: id, Modality: types.ModalityText, CreatedAt: time.Now()}
}

func TestProcessTextCommitsOrderedChunks(t *testing.T) {
	backend := newFakeBackend()
	backend.add(textItem("item-1"), []byte("# One\nfirst body\n\n# Two\nsecond body"))
	ai := &fakeAnnotator{}
	p := newTestPipeline(t, backend, ai)

	chunks, err := p.Process(context.Background(), "item-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, "item-1", c.ItemID)
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.Summary)
	}
	assert.Contains(t, chunks[0].Text, "first body")
	assert.Contains(t, chunks[1].Text, "second body")
	assert.Equal(t, chunks, backend.committed)
}

func TestProcessUnknownItem(t *testing.T) {
	p := newTestPipeline(t, newFakeBackend(), &fakeAnnotator{})

	_, err := p.Process(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestProcessTombstonedItem(t *testing.T) {
	backend := newFakeBackend()
	deleted := time.Now()
	item := textItem("gone")
	item.DeletedAt = &deleted
	backend.add(item, []byte("text"))
	p := newTestPipeline(t, backend, &fakeAnnotator{})

	_, err := p.Process(context.Background(), "gone")
	assert.ErrorIs(t, err, store.ErrItemGone)
	assert.Empty(t, backend.committed)
}

func TestProcessImageUsesDescription(t *testing.T) {
	backend := newFakeBackend()
	item := types.Item{ID: "img-1", Modality: types.ModalityImage, Filename: "photo.png", CreatedAt: time.Now()}
	backend.add(item, []byte{0x89, 0x50, 0x4e, 0x47})
	ai := &fakeAnnotator{description: "a whiteboard covered in diagrams"}
	p := newTestPipeline(t, backend, ai)

	chunks, err := p.Process(context.Background(), "img-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "whiteboard")
	assert.Equal(t, 1, ai.describeCalls)
}

func TestProcessAudioUsesTranscript(t *testing.T) {
	backend := newFakeBackend()
	item := types.Item{ID: "aud-1", Modality: types.ModalityAudio, Filename: "memo.mp3", CreatedAt: time.Now()}
	backend.add(item, []byte("fake-audio"))
	ai := &fakeAnnotator{transcript: "remember to renew the domain"}
	p := newTestPipeline(t, backend, ai)

	chunks, err := p.Process(context.Background(), "aud-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "renew the domain")
}

func TestProcessImageFailurePropagates(t *testing.T) {
	backend := newFakeBackend()
	item := types.Item{ID: "img-2", Modality: types.ModalityImage, CreatedAt: time.Now()}
	backend.add(item, []byte("data"))
	ai := &fakeAnnotator{describeErr: errors.New("model offline")}
	p := newTestPipeline(t, backend, ai)

	_, err := p.Process(context.Background(), "img-2")
	assert.Error(t, err)
	assert.Empty(t, backend.committed)
}

func TestSummarizeFailureLeavesChunkWithoutSummary(t *testing.T) {
	backend := newFakeBackend()
	backend.add(textItem("item-2"), []byte("plain body text"))
	ai := &fakeAnnotator{summarizeErr: fmt.Errorf("quota: %w", &types.CapabilityError{Capability: "chat", Transient: true, Err: errors.New("429")})}
	p := newTestPipeline(t, backend, ai)

	chunks, err := p.Process(context.Background(), "item-2")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].Summary)
	assert.Empty(t, chunks[0].Tags)
}

func TestRefineMergesSubordinateSections(t *testing.T) {
	backend := newFakeBackend()
	backend.add(textItem("item-3"), []byte("# Parent\nparent body\n\n## Child\nchild body"))
	ai := &fakeAnnotator{subordinate: true}
	p := newTestPipeline(t, backend, ai)

	chunks, err := p.Process(context.Background(), "item-3")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "parent body")
	assert.Contains(t, chunks[0].Text, "child body")
}

func TestRefineKeepsSplitWhenCapabilityDown(t *testing.T) {
	backend := newFakeBackend()
	backend.add(textItem("item-4"), []byte("# Parent\nparent body\n\n## Child\nchild body"))
	ai := &fakeAnnotator{classifyErr: &types.CapabilityError{Capability: "chat", Transient: true, Err: errors.New("unreachable")}}
	p := newTestPipeline(t, backend, ai)

	chunks, err := p.Process(context.Background(), "item-4")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestProcessEmptyContent(t *testing.T) {
	backend := newFakeBackend()
	backend.add(textItem("item-5"), []byte("   \n\n  "))
	p := newTestPipeline(t, backend, &fakeAnnotator{})

	_, err := p.Process(context.Background(), "item-5")
	assert.ErrorIs(t, err, types.ErrInconsistentState)
}
