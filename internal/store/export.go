// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportEntry holds one chunk with item-level metadata for export.
type ExportEntry struct {
	ChunkID   string   `json:"chunk_id" yaml:"chunk_id"`
	ItemID    string   `json:"item_id" yaml:"item_id"`
	Ordinal   int      `json:"ordinal" yaml:"ordinal"`
	Text      string   `json:"text" yaml:"text"`
	Summary   string   `json:"summary,omitempty" yaml:"summary,omitempty"`
	Tags      []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Modality  string   `json:"modality" yaml:"modality"`
	Filename  string   `json:"filename,omitempty" yaml:"filename,omitempty"`
	CreatedAt string   `json:"created_at" yaml:"created_at"`
}

const exportLimit = 100000

// ExportYAML writes the live knowledge base to <data-dir>/index/export.yaml.
func (s *Store) ExportYAML(ctx context.Context) error {
	entries, err := s.exportEntries(ctx)
	if err != nil {
		return err
	}

	path := filepath.Join(s.dataDir, indexDir, "export.yaml")
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the live knowledge base to <data-dir>/index/export.json.
func (s *Store) ExportJSON(ctx context.Context) error {
	entries, err := s.exportEntries(ctx)
	if err != nil {
		return err
	}

	path := filepath.Join(s.dataDir, indexDir, "export.json")
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context) ([]ExportEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.item_id, c.ordinal, c.text, c.summary, c.tags,
			i.modality, i.filename, i.created_at
		 FROM chunks c
		 JOIN items i ON i.id = c.item_id
		 WHERE i.deleted_at IS NULL
		 ORDER BY i.created_at, c.item_id, c.ordinal
		 LIMIT ?`, exportLimit)
	if err != nil {
		return nil, fmt.Errorf("querying export entries: %w", err)
	}
	defer rows.Close()

	var entries []ExportEntry
	for rows.Next() {
		var (
			e        ExportEntry
			summary  sql.NullString
			tagsJSON sql.NullString
			filename sql.NullString
		)
		if err := rows.Scan(&e.ChunkID, &e.ItemID, &e.Ordinal, &e.Text,
			&summary, &tagsJSON, &e.Modality, &filename, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning export entry: %w", err)
		}
		e.Summary = summary.String
		e.Filename = filename.String
		if tagsJSON.Valid && tagsJSON.String != "" {
			json.Unmarshal([]byte(tagsJSON.String), &e.Tags)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
