// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pdiddy/brain-engine/pkg/types"
)

// AppendAudit inserts one record into the append-only audit log. There is
// deliberately no update or delete counterpart.
func (s *Store) AppendAudit(ctx context.Context, rec types.AuditRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, ts, operation, arguments, result_summary, conversation_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, formatTime(rec.Timestamp), rec.Operation, rec.Arguments,
		rec.ResultSummary, rec.ConversationID)
	if err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}
	return nil
}

// QueryAudit returns audit records, optionally filtered by conversation
// and time range [start, end), newest first.
func (s *Store) QueryAudit(ctx context.Context, conversationID string, start, end time.Time) ([]types.AuditRecord, error) {
	q := `SELECT id, ts, operation, arguments, result_summary, conversation_id
		 FROM audit_log WHERE 1=1`
	var args []any
	if conversationID != "" {
		q += ` AND conversation_id = ?`
		args = append(args, conversationID)
	}
	if !start.IsZero() {
		q += ` AND ts >= ?`
		args = append(args, formatTime(start))
	}
	if !end.IsZero() {
		q += ` AND ts < ?`
		args = append(args, formatTime(end))
	}
	q += ` ORDER BY ts DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var records []types.AuditRecord
	for rows.Next() {
		var (
			rec    types.AuditRecord
			ts     string
			argStr sql.NullString
			resStr sql.NullString
			convID sql.NullString
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.Operation, &argStr, &resStr, &convID); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		rec.Timestamp = parseTime(ts)
		rec.Arguments = argStr.String
		rec.ResultSummary = resStr.String
		rec.ConversationID = convID.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
