// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pdiddy/brain-engine/pkg/types"
)

// InsertEntity stores a new entity. The (entity_type, normalized_name)
// pair is unique; resolution against existing names and aliases happens in
// the graph component before this is called.
func (s *Store) InsertEntity(ctx context.Context, e types.Entity, normalized string, normalizedAliases []string) error {
	aliasesJSON, _ := json.Marshal(e.Aliases)
	normAliasesJSON, _ := json.Marshal(normalizedAliases)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (id, canonical_name, normalized_name, entity_type,
			aliases, normalized_aliases, first_seen, mention_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CanonicalName, normalized, string(e.EntityType),
		string(aliasesJSON), string(normAliasesJSON),
		formatTime(e.FirstSeen), e.MentionCount)
	if err != nil {
		return fmt.Errorf("inserting entity: %w", err)
	}
	return nil
}

// FindEntity looks up an entity whose normalized canonical name or any
// normalized alias equals the given normalized name. Returns
// types.ErrNotFound when nothing matches. Matching is exact by design:
// fuzzy linking silently merges distinct real-world entities.
func (s *Store) FindEntity(ctx context.Context, normalized string) (types.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, canonical_name, entity_type, aliases, first_seen, mention_count
		 FROM entities
		 WHERE normalized_name = ?
			OR EXISTS (SELECT 1 FROM json_each(normalized_aliases) WHERE value = ?)
		 ORDER BY mention_count DESC
		 LIMIT 1`, normalized, normalized)
	return scanEntity(row)
}

// GetEntity loads an entity by id.
func (s *Store) GetEntity(ctx context.Context, id string) (types.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, canonical_name, entity_type, aliases, first_seen, mention_count
		 FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

// AddEntityAlias appends an alias (and its normalized form) to an entity.
func (s *Store) AddEntityAlias(ctx context.Context, id, alias, normalizedAlias string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE entities SET
			aliases = json_insert(COALESCE(aliases, '[]'), '$[#]', ?),
			normalized_aliases = json_insert(COALESCE(normalized_aliases, '[]'), '$[#]', ?)
		 WHERE id = ?
			AND NOT EXISTS (SELECT 1 FROM json_each(normalized_aliases) WHERE value = ?)`,
		alias, normalizedAlias, id, normalizedAlias)
	if err != nil {
		return fmt.Errorf("adding entity alias: %w", err)
	}
	return nil
}

// IncrementMentionCount bumps an entity's mention counter.
func (s *Store) IncrementMentionCount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE entities SET mention_count = mention_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("incrementing mention count: %w", err)
	}
	return nil
}

// GetRelation loads the relation for a (subject, predicate, object) triple.
func (s *Store) GetRelation(ctx context.Context, subjectID, predicate, objectID string) (types.Relation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, subject_id, predicate, object_id, confidence, provenance,
			created_at, updated_at
		 FROM relations WHERE subject_id = ? AND predicate = ? AND object_id = ?`,
		subjectID, predicate, objectID)
	return scanRelation(row)
}

// InsertRelation stores a new relation edge.
func (s *Store) InsertRelation(ctx context.Context, r types.Relation) error {
	provJSON, _ := json.Marshal(r.Provenance)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relations (id, subject_id, predicate, object_id, confidence,
			provenance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SubjectID, r.Predicate, r.ObjectID, r.Confidence,
		string(provJSON), formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting relation: %w", err)
	}
	return nil
}

// UpdateRelation rewrites confidence and provenance on an existing edge.
func (s *Store) UpdateRelation(ctx context.Context, r types.Relation) error {
	provJSON, _ := json.Marshal(r.Provenance)
	_, err := s.db.ExecContext(ctx,
		`UPDATE relations SET confidence = ?, provenance = ?, updated_at = ?
		 WHERE id = ?`,
		r.Confidence, string(provJSON), formatTime(r.UpdatedAt), r.ID)
	if err != nil {
		return fmt.Errorf("updating relation: %w", err)
	}
	return nil
}

// RelationsTouching returns all edges where the entity is subject or
// object, optionally filtered by predicate.
func (s *Store) RelationsTouching(ctx context.Context, entityID, predicate string) ([]types.Relation, error) {
	q := `SELECT id, subject_id, predicate, object_id, confidence, provenance,
			created_at, updated_at
		 FROM relations WHERE (subject_id = ? OR object_id = ?)`
	args := []any{entityID, entityID}
	if predicate != "" {
		q += ` AND predicate = ?`
		args = append(args, predicate)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying relations: %w", err)
	}
	defer rows.Close()

	var relations []types.Relation
	for rows.Next() {
		r, err := scanRelationRows(rows)
		if err != nil {
			return nil, err
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}

// InsertMention links an entity to the chunk it was extracted from. It
// reports whether the link is new; a repeated mention is a no-op.
func (s *Store) InsertMention(ctx context.Context, entityID, chunkID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entity_mentions (entity_id, chunk_id) VALUES (?, ?)`,
		entityID, chunkID)
	if err != nil {
		return false, fmt.Errorf("inserting mention: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ChunksMentioning returns the chunk ids whose provenance references any of
// the given entities.
func (s *Store) ChunksMentioning(ctx context.Context, entityIDs []string) ([]string, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var chunkIDs []string
	for _, id := range entityIDs {
		rows, err := s.db.QueryContext(ctx,
			`SELECT chunk_id FROM entity_mentions WHERE entity_id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("querying mentions: %w", err)
		}
		for rows.Next() {
			var chunkID string
			if err := rows.Scan(&chunkID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning mention: %w", err)
			}
			if !seen[chunkID] {
				seen[chunkID] = true
				chunkIDs = append(chunkIDs, chunkID)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return chunkIDs, nil
}

func scanEntity(row *sql.Row) (types.Entity, error) {
	var (
		e           types.Entity
		entityType  string
		aliasesJSON sql.NullString
		firstSeen   string
	)
	err := row.Scan(&e.ID, &e.CanonicalName, &entityType, &aliasesJSON,
		&firstSeen, &e.MentionCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Entity{}, types.ErrNotFound
		}
		return types.Entity{}, fmt.Errorf("scanning entity: %w", err)
	}
	e.EntityType = types.EntityType(entityType)
	if aliasesJSON.Valid && aliasesJSON.String != "" {
		json.Unmarshal([]byte(aliasesJSON.String), &e.Aliases)
	}
	e.FirstSeen = parseTime(firstSeen)
	return e, nil
}

func scanRelation(row *sql.Row) (types.Relation, error) {
	var (
		r         types.Relation
		provJSON  sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&r.ID, &r.SubjectID, &r.Predicate, &r.ObjectID,
		&r.Confidence, &provJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Relation{}, types.ErrNotFound
		}
		return types.Relation{}, fmt.Errorf("scanning relation: %w", err)
	}
	if provJSON.Valid && provJSON.String != "" {
		json.Unmarshal([]byte(provJSON.String), &r.Provenance)
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

func scanRelationRows(rows *sql.Rows) (types.Relation, error) {
	var (
		r         types.Relation
		provJSON  sql.NullString
		createdAt string
		updatedAt string
	)
	err := rows.Scan(&r.ID, &r.SubjectID, &r.Predicate, &r.ObjectID,
		&r.Confidence, &provJSON, &createdAt, &updatedAt)
	if err != nil {
		return types.Relation{}, fmt.Errorf("scanning relation: %w", err)
	}
	if provJSON.Valid && provJSON.String != "" {
		json.Unmarshal([]byte(provJSON.String), &r.Provenance)
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}
