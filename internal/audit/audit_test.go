// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/brain-engine/internal/store"
	"github.com/pdiddy/brain-engine/pkg/types"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	st, err := store.Open(types.StoreConfig{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, nil)
}

func TestRecordAndQuery(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.Record(ctx, "write_entry", map[string]any{"text_len": 42}, "created item abc", "conv-1")
	l.Record(ctx, "search_semantic", map[string]any{"query": "go talks"}, "5 results", "conv-1")
	l.Record(ctx, "delete_entry", nil, "tombstoned", "conv-2")

	records, err := l.Query(ctx, "conv-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "search_semantic", records[0].Operation)
	assert.Equal(t, "write_entry", records[1].Operation)
	assert.JSONEq(t, `{"text_len": 42}`, records[1].Arguments)
	assert.Equal(t, "created item abc", records[1].ResultSummary)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestQueryAllConversations(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.Record(ctx, "write_entry", nil, "", "conv-1")
	l.Record(ctx, "write_entry", nil, "", "conv-2")

	records, err := l.Query(ctx, "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestQueryTimeRange(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := nowFunc
	defer func() { nowFunc = orig }()

	for i := 0; i < 3; i++ {
		stamp := base.Add(time.Duration(i) * time.Hour)
		nowFunc = func() time.Time { return stamp }
		l.Record(ctx, "write_entry", nil, "", "conv-1")
	}

	records, err := l.Query(ctx, "conv-1", base.Add(30*time.Minute), base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, base.Add(time.Hour), records[0].Timestamp.UTC())
}

type failingSink struct{}

func (failingSink) AppendAudit(context.Context, types.AuditRecord) error {
	return errors.New("disk full")
}

func (failingSink) QueryAudit(context.Context, string, time.Time, time.Time) ([]types.AuditRecord, error) {
	return nil, nil
}

func TestRecordSwallowsSinkFailure(t *testing.T) {
	l := New(failingSink{}, nil)

	// Must not panic or surface the error.
	l.Record(context.Background(), "write_entry", map[string]any{"k": "v"}, "", "conv-1")
}

func TestMarshalArgsEmpty(t *testing.T) {
	assert.Equal(t, "{}", marshalArgs(nil))
	assert.Equal(t, "{}", marshalArgs(map[string]any{}))
}
