// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/brain-engine/pkg/types"
)

// ErrItemGone reports that the owning item was tombstoned between the
// start of processing and the chunk commit. The in-flight results are
// discarded, not an error surfaced to the user.
var ErrItemGone = errors.New("item tombstoned during processing")

// ReplaceChunks atomically replaces all chunks for an item. Re-running the
// pipeline for an item is therefore idempotent. The item's liveness is
// re-checked inside the transaction: results computed for an item that was
// tombstoned mid-flight are discarded with ErrItemGone.
func (s *Store) ReplaceChunks(ctx context.Context, itemID string, chunks []types.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var live int
	if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM items WHERE id = ? AND deleted_at IS NULL`, itemID,
	).Scan(&live); err != nil {
		return fmt.Errorf("checking item liveness: %w", err)
	}
	if live == 0 {
		return ErrItemGone
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE item_id = ?)`, itemID); err != nil {
		return fmt.Errorf("deleting old embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entity_mentions WHERE chunk_id IN (SELECT id FROM chunks WHERE item_id = ?)`, itemID); err != nil {
		return fmt.Errorf("deleting old mentions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, item_id, ordinal, text, summary, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if c.Text == "" {
			return fmt.Errorf("chunk %d of item %s has empty text: %w", i, itemID, types.ErrInconsistentState)
		}
		if c.Ordinal != i {
			return fmt.Errorf("chunk ordinals for item %s not contiguous: %w", itemID, types.ErrInconsistentState)
		}
		tagsJSON, _ := json.Marshal(c.Tags)
		if _, err := stmt.ExecContext(ctx,
			c.ID, itemID, c.Ordinal, c.Text, c.Summary, string(tagsJSON),
			formatTime(c.CreatedAt),
		); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// ChunksForItem returns the item's chunks in ordinal order.
func (s *Store) ChunksForItem(ctx context.Context, itemID string) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, ordinal, text, summary, tags, created_at
		 FROM chunks WHERE item_id = ? ORDER BY ordinal`, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// GetChunk loads a single chunk by id.
func (s *Store) GetChunk(ctx context.Context, chunkID string) (types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, ordinal, text, summary, tags, created_at
		 FROM chunks WHERE id = ?`, chunkID)
	if err != nil {
		return types.Chunk{}, fmt.Errorf("querying chunk: %w", err)
	}
	defer rows.Close()

	chunks, err := scanChunks(rows)
	if err != nil {
		return types.Chunk{}, err
	}
	if len(chunks) == 0 {
		return types.Chunk{}, types.ErrNotFound
	}
	return chunks[0], nil
}

// GetChunks loads several chunks at once, skipping unknown ids.
func (s *Store) GetChunks(ctx context.Context, chunkIDs []string) ([]types.Chunk, error) {
	result := make([]types.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		c, err := s.GetChunk(ctx, id)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

// KeywordMatch is one FTS5 hit with its BM25 rank (lower is better).
type KeywordMatch struct {
	ChunkID string
	Rank    float64
}

// KeywordSearch runs an FTS5 match over chunk text. Used by the hybrid
// retrieval engine as a supplemental candidate source; an unparsable query
// string yields no candidates rather than an error.
func (s *Store) KeywordSearch(ctx context.Context, query string, limit int) ([]KeywordMatch, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.maxResults
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, chunks_fts.rank
		 FROM chunks_fts
		 JOIN chunks c ON c.rowid = chunks_fts.rowid
		 WHERE chunks_fts MATCH ?
		 ORDER BY chunks_fts.rank
		 LIMIT ?`, ftsQuote(query), limit)
	if err != nil {
		// FTS5 rejects some raw user strings; treat as no matches.
		s.logger.Debug("keyword search failed", zap.Error(err))
		return nil, nil
	}
	defer rows.Close()

	var matches []KeywordMatch
	for rows.Next() {
		var m KeywordMatch
		if err := rows.Scan(&m.ChunkID, &m.Rank); err != nil {
			return nil, fmt.Errorf("scanning keyword match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ftsQuote wraps each query token in double quotes so punctuation in user
// text is matched literally instead of being parsed as FTS5 syntax.
func ftsQuote(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}

func scanChunks(rows *sql.Rows) ([]types.Chunk, error) {
	var chunks []types.Chunk
	for rows.Next() {
		var (
			c         types.Chunk
			summary   sql.NullString
			tagsJSON  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.ItemID, &c.Ordinal, &c.Text, &summary,
			&tagsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Summary = summary.String
		if tagsJSON.Valid && tagsJSON.String != "" {
			json.Unmarshal([]byte(tagsJSON.String), &c.Tags)
		}
		c.CreatedAt = parseTime(createdAt)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
