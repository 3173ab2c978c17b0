// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package audit records every state-changing and retrieval operation in an
// append-only ledger. Recording never fails the operation it describes: a
// write error is logged and swallowed so a ledger hiccup cannot take down
// ingestion or search.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/brain-engine/pkg/types"
)

// Sink is the persistence surface the ledger writes through.
type Sink interface {
	AppendAudit(ctx context.Context, rec types.AuditRecord) error
	QueryAudit(ctx context.Context, conversationID string, start, end time.Time) ([]types.AuditRecord, error)
}

// Ledger appends one record per tool invocation.
type Ledger struct {
	sink   Sink
	logger *zap.Logger
}

var nowFunc = time.Now

func New(sink Sink, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{sink: sink, logger: logger}
}

// Record appends one entry for an operation. Arguments are serialized to
// JSON; a value that refuses to marshal yields a placeholder rather than a
// missing record.
func (l *Ledger) Record(ctx context.Context, operation string, args map[string]any, resultSummary, conversationID string) {
	rec := types.AuditRecord{
		ID:             uuid.NewString(),
		Timestamp:      nowFunc().UTC(),
		Operation:      operation,
		Arguments:      marshalArgs(args),
		ResultSummary:  resultSummary,
		ConversationID: conversationID,
	}
	if err := l.sink.AppendAudit(ctx, rec); err != nil {
		l.logger.Warn("audit append failed",
			zap.String("operation", operation),
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}

// Query returns records newest first, optionally filtered by conversation
// and time range. Zero times mean unbounded.
func (l *Ledger) Query(ctx context.Context, conversationID string, start, end time.Time) ([]types.AuditRecord, error) {
	return l.sink.QueryAudit(ctx, conversationID, start, end)
}

func marshalArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{\"_unserializable\": true}"
	}
	return string(b)
}
