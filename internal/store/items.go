// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/pdiddy/brain-engine/pkg/types"
)

// ErrDuplicateHash reports that a live item with the same content hash
// already exists. It is a normal dedup signal, not a failure.
var ErrDuplicateHash = errors.New("duplicate content hash")

// InsertItem stores a new item record. If a live item with the same
// content hash exists the unique index rejects the insert and
// ErrDuplicateHash is returned; the caller resolves the winner.
func (s *Store) InsertItem(ctx context.Context, item types.Item) error {
	notesJSON, _ := json.Marshal(item.Notes)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, content_hash, modality, source_path, filename,
			size_bytes, conversation_id, notes, trash_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ContentHash, string(item.Modality), item.SourcePath,
		item.Filename, item.SizeBytes, item.ConversationID, string(notesJSON),
		item.TrashScore, formatTime(item.CreatedAt),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint &&
			sqliteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
			return ErrDuplicateHash
		}
		return fmt.Errorf("inserting item: %w", err)
	}
	return nil
}

// GetItem loads an item by id, including tombstoned ones.
// Returns types.ErrNotFound for an unknown id.
func (s *Store) GetItem(ctx context.Context, id string) (types.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content_hash, modality, source_path, filename, size_bytes,
			conversation_id, notes, trash_score, created_at, deleted_at
		 FROM items WHERE id = ?`, id)
	return scanItem(row)
}

// GetItemByHash loads the live item with the given content hash.
// Returns types.ErrNotFound when no live item matches.
func (s *Store) GetItemByHash(ctx context.Context, hash string) (types.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content_hash, modality, source_path, filename, size_bytes,
			conversation_id, notes, trash_score, created_at, deleted_at
		 FROM items WHERE content_hash = ? AND deleted_at IS NULL`, hash)
	return scanItem(row)
}

// ItemLive reports whether the item exists and has not been tombstoned.
// The chunking pipeline checks this before committing chunk writes so a
// session abandoned mid-ingestion never resurrects a deleted item.
func (s *Store) ItemLive(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM items WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking item liveness: %w", err)
	}
	return n > 0, nil
}

// TombstoneItem marks the item deleted and removes its chunks and
// embeddings. Entities and relations derived from the item are left
// intact; only chunk-level provenance disappears with the chunks.
func (s *Store) TombstoneItem(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE items SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(nowFunc()), id)
	if err != nil {
		return fmt.Errorf("tombstoning item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("tombstoning item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item %s: %w", id, types.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE item_id = ?)`, id); err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entity_mentions WHERE chunk_id IN (SELECT id FROM chunks WHERE item_id = ?)`, id); err != nil {
		return fmt.Errorf("deleting mentions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	return tx.Commit()
}

// AppendItemNote records a partial-failure note on the item, e.g. one
// document page the extraction capability could not process.
func (s *Store) AppendItemNote(ctx context.Context, id, note string) error {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	notes := append(item.Notes, note)
	notesJSON, _ := json.Marshal(notes)
	_, err = s.db.ExecContext(ctx,
		`UPDATE items SET notes = ? WHERE id = ?`, string(notesJSON), id)
	if err != nil {
		return fmt.Errorf("appending item note: %w", err)
	}
	return nil
}

// SetTrashScore updates the disposability heuristic on an item.
func (s *Store) SetTrashScore(ctx context.Context, id string, score float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET trash_score = ? WHERE id = ?`, score, id)
	if err != nil {
		return fmt.Errorf("updating trash score: %w", err)
	}
	return nil
}

func scanItem(row *sql.Row) (types.Item, error) {
	var (
		item       types.Item
		modality   string
		sourcePath sql.NullString
		filename   sql.NullString
		convID     sql.NullString
		notesJSON  sql.NullString
		createdAt  string
		deletedAt  sql.NullString
	)
	err := row.Scan(&item.ID, &item.ContentHash, &modality, &sourcePath,
		&filename, &item.SizeBytes, &convID, &notesJSON, &item.TrashScore,
		&createdAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Item{}, types.ErrNotFound
		}
		return types.Item{}, fmt.Errorf("scanning item: %w", err)
	}

	item.Modality = types.Modality(modality)
	item.SourcePath = sourcePath.String
	item.Filename = filename.String
	item.ConversationID = convID.String
	if notesJSON.Valid && notesJSON.String != "" {
		json.Unmarshal([]byte(notesJSON.String), &item.Notes)
	}
	item.CreatedAt = parseTime(createdAt)
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		item.DeletedAt = &t
	}
	return item, nil
}
