// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package contentstore

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/brain-engine/internal/store"
	"github.com/pdiddy/brain-engine/pkg/types"
)

func newTestContentStore(t *testing.T) *ContentStore {
	t.Helper()
	st, err := store.Open(types.StoreConfig{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, nil)
}

func TestPutStoresAndReadsBack(t *testing.T) {
	cs := newTestContentStore(t)
	ctx := context.Background()

	res, err := cs.Put(ctx, []byte("weekly planning notes"), types.ModalityText, "", "conv-1")
	require.NoError(t, err)
	assert.False(t, res.WasDuplicate)
	_, err = uuid.Parse(res.Item.ID)
	assert.NoError(t, err)
	assert.Len(t, res.Item.ContentHash, 64)
	assert.Equal(t, "conv-1", res.Item.ConversationID)
	assert.Empty(t, res.Item.Filename)

	data, err := cs.ReadBytes(ctx, res.Item)
	require.NoError(t, err)
	assert.Equal(t, "weekly planning notes", string(data))
}

func TestPutDeduplicatesNormalizedText(t *testing.T) {
	cs := newTestContentStore(t)
	ctx := context.Background()

	first, err := cs.Put(ctx, []byte("line one\nline two"), types.ModalityText, "", "conv-1")
	require.NoError(t, err)

	// CRLF line endings and trailing whitespace normalize to the same
	// fingerprint.
	second, err := cs.Put(ctx, []byte("line one\r\nline two  \n"), types.ModalityText, "", "conv-2")
	require.NoError(t, err)
	assert.True(t, second.WasDuplicate)
	assert.Equal(t, first.Item.ID, second.Item.ID)
}

func TestPutBinaryNotNormalized(t *testing.T) {
	cs := newTestContentStore(t)
	ctx := context.Background()

	a, err := cs.Put(ctx, []byte("payload\r\n"), types.ModalityImage, "/p/a.png", "")
	require.NoError(t, err)
	b, err := cs.Put(ctx, []byte("payload\n"), types.ModalityImage, "/p/b.png", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.Item.ID, b.Item.ID)
	assert.Equal(t, "a.png", a.Item.Filename)
}

func TestPutRejectsInvalidInput(t *testing.T) {
	cs := newTestContentStore(t)
	ctx := context.Background()

	_, err := cs.Put(ctx, []byte("x"), "video", "", "")
	assert.Error(t, err)
	_, err = cs.Put(ctx, nil, types.ModalityText, "", "")
	assert.Error(t, err)
}

func TestConcurrentPutsSingleWinner(t *testing.T) {
	cs := newTestContentStore(t)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	var winners atomic.Int32
	ids := make([]string, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := cs.Put(ctx, []byte("contended content"), types.ModalityText, "", "")
			if assert.NoError(t, err) {
				ids[i] = res.Item.ID
				if !res.WasDuplicate {
					winners.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

// TestOverlappingPutsKeepOneWinner pins the executing Put inside its
// flight so a second identical Put genuinely joins it, then checks that
// exactly one caller created the item. The flight executor must not be
// demoted to a duplicate just because someone shared its result.
func TestOverlappingPutsKeepOneWinner(t *testing.T) {
	cs := newTestContentStore(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	nowFunc = func() time.Time {
		once.Do(func() {
			close(entered)
			<-release
		})
		return time.Now()
	}
	defer func() { nowFunc = time.Now }()

	results := make(chan PutResult, 2)
	put := func() {
		res, err := cs.Put(ctx, []byte("overlapping content"), types.ModalityText, "", "")
		assert.NoError(t, err)
		results <- res
	}

	go put()
	<-entered
	go put()
	time.Sleep(100 * time.Millisecond)
	close(release)

	a, b := <-results, <-results
	winners := 0
	for _, res := range []PutResult{a, b} {
		if !res.WasDuplicate {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, a.Item.ID, b.Item.ID)
}

func TestTombstoneFreesHashForReingestion(t *testing.T) {
	cs := newTestContentStore(t)
	ctx := context.Background()

	first, err := cs.Put(ctx, []byte("transient note"), types.ModalityText, "", "")
	require.NoError(t, err)
	require.NoError(t, cs.Tombstone(ctx, first.Item.ID))

	second, err := cs.Put(ctx, []byte("transient note"), types.ModalityText, "", "")
	require.NoError(t, err)
	assert.False(t, second.WasDuplicate)
	assert.NotEqual(t, first.Item.ID, second.Item.ID)
	assert.Equal(t, first.Item.ContentHash, second.Item.ContentHash)
}

func TestReadBytesMissingObject(t *testing.T) {
	cs := newTestContentStore(t)
	ctx := context.Background()

	res, err := cs.Put(ctx, []byte("doomed object"), types.ModalityText, "", "")
	require.NoError(t, err)

	objPath := cs.store.ObjectPath(res.Item.ContentHash, res.Item.CreatedAt)
	require.NoError(t, os.Remove(objPath))

	_, err = cs.ReadBytes(ctx, res.Item)
	assert.ErrorIs(t, err, types.ErrInconsistentState)
}

func TestTrashScore(t *testing.T) {
	keep := TrashScore(types.Item{Modality: types.ModalityText}, "a substantial note about something that matters")
	assert.InDelta(t, 1.0, keep, 1e-9)

	empty := TrashScore(types.Item{Modality: types.ModalityText}, "hi")
	assert.Less(t, empty, 1.0)

	tinyShot := TrashScore(types.Item{
		Modality:  types.ModalityImage,
		SizeBytes: 1024,
		Filename:  "Screenshot 2026-03-01.png",
	}, "")
	assert.InDelta(t, 0.0, tinyShot, 1e-9)
}
