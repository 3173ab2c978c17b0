// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pdiddy/brain-engine/pkg/types"
)

// UpsertEmbedding persists a chunk embedding. The vector is encoded as
// little-endian float32, matching the on-disk format the index loads at
// startup.
func (s *Store) UpsertEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (chunk_id, vector, dim) VALUES (?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET vector=excluded.vector, dim=excluded.dim`,
		chunkID, encodeVector(vector), len(vector))
	if err != nil {
		return fmt.Errorf("upserting embedding: %w", err)
	}
	return nil
}

// StoredEmbedding pairs a chunk embedding with the metadata the vector
// index filters on.
type StoredEmbedding struct {
	ChunkID       string
	ItemID        string
	Vector        []float32
	Modality      types.Modality
	SourcePath    string
	ItemCreatedAt string
}

// LoadEmbeddings streams all embeddings of live items to fn, used to warm
// the in-memory vector index at startup. A chunk whose owning item is
// missing is an invariant violation and aborts the load.
func (s *Store) LoadEmbeddings(ctx context.Context, fn func(StoredEmbedding) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.chunk_id, c.item_id, e.vector, e.dim,
			i.modality, i.source_path, i.created_at
		 FROM embeddings e
		 JOIN chunks c ON c.id = e.chunk_id
		 LEFT JOIN items i ON i.id = c.item_id AND i.deleted_at IS NULL
		 ORDER BY e.chunk_id`)
	if err != nil {
		return fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			se       StoredEmbedding
			blob     []byte
			dim      int
			modality *string
			source   *string
			created  *string
		)
		if err := rows.Scan(&se.ChunkID, &se.ItemID, &blob, &dim,
			&modality, &source, &created); err != nil {
			return fmt.Errorf("scanning embedding: %w", err)
		}
		if modality == nil {
			return fmt.Errorf("embedding for chunk %s references missing item %s: %w",
				se.ChunkID, se.ItemID, types.ErrInconsistentState)
		}
		se.Vector = decodeVector(blob, dim)
		se.Modality = types.Modality(*modality)
		if source != nil {
			se.SourcePath = *source
		}
		if created != nil {
			se.ItemCreatedAt = *created
		}
		if err := fn(se); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DeleteEmbedding removes one chunk embedding.
func (s *Store) DeleteEmbedding(ctx context.Context, chunkID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE chunk_id = ?`, chunkID); err != nil {
		return fmt.Errorf("deleting embedding: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte, dim int) []float32 {
	if len(b) < dim*4 {
		dim = len(b) / 4
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
