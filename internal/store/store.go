// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists Items, Chunks, the entity graph, embeddings, and
// the audit ledger in a single local SQLite database, with raw content
// bytes on disk partitioned by ingestion date.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/brain-engine/pkg/types"
)

const (
	indexDir   = "index"
	objectsDir = "objects"
	dbFile     = "brain.db"
)

// Store owns the SQLite database and the on-disk object layout. It is the
// single shared handle passed into every component; there is no ambient
// global state.
type Store struct {
	db         *sql.DB
	dataDir    string
	maxResults int
	logger     *zap.Logger
}

// Open opens or creates the database at dataDir/index/brain.db and creates
// the schema if it does not exist. WAL mode keeps retrieval queries
// readable while ingestion writes are in flight.
func Open(cfg types.StoreConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dbDir := filepath.Join(cfg.DataDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, objectsDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating objects directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{
		db:         db,
		dataDir:    cfg.DataDir,
		maxResults: maxResults,
		logger:     logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// MaxResults returns the configured default result limit.
func (s *Store) MaxResults() int { return s.maxResults }

// ObjectPath returns the on-disk path for raw content with the given
// fingerprint, partitioned by ingestion date for operational browsability.
func (s *Store) ObjectPath(fingerprint string, ingestedAt time.Time) string {
	return filepath.Join(s.dataDir, objectsDir,
		ingestedAt.UTC().Format("2006/01/02"), fingerprint)
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			modality TEXT NOT NULL,
			source_path TEXT,
			filename TEXT,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			conversation_id TEXT,
			notes TEXT,
			trash_score REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			deleted_at TEXT
		)`,
		// The dedup invariant: one live item per fingerprint. Tombstoned
		// items drop out of the index so the hash can be re-ingested.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_live_hash
			ON items(content_hash) WHERE deleted_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS chunks (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			item_id TEXT NOT NULL REFERENCES items(id),
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			summary TEXT,
			tags TEXT,
			created_at TEXT NOT NULL,
			UNIQUE(item_id, ordinal)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_item_id ON chunks(item_id)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			vector BLOB NOT NULL,
			dim INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			canonical_name TEXT NOT NULL,
			normalized_name TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			aliases TEXT,
			normalized_aliases TEXT,
			first_seen TEXT NOT NULL,
			mention_count INTEGER NOT NULL DEFAULT 0,
			UNIQUE(entity_type, normalized_name)
		)`,
		`CREATE TABLE IF NOT EXISTS relations (
			id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL REFERENCES entities(id),
			predicate TEXT NOT NULL,
			object_id TEXT NOT NULL REFERENCES entities(id),
			confidence REAL NOT NULL,
			provenance TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(subject_id, predicate, object_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_subject ON relations(subject_id)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_object ON relations(object_id)`,
		`CREATE TABLE IF NOT EXISTS entity_mentions (
			entity_id TEXT NOT NULL REFERENCES entities(id),
			chunk_id TEXT NOT NULL,
			PRIMARY KEY (entity_id, chunk_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mentions_chunk ON entity_mentions(chunk_id)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			operation TEXT NOT NULL,
			arguments TEXT,
			result_summary TEXT,
			conversation_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_conversation ON audit_log(conversation_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='chunks_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE chunks_fts USING fts5(text, content=chunks, content_rowid=rowid)`,
			`CREATE TRIGGER chunks_ai AFTER INSERT ON chunks BEGIN
				INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
			END`,
			`CREATE TRIGGER chunks_ad AFTER DELETE ON chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
			END`,
			`CREATE TRIGGER chunks_au AFTER UPDATE ON chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
				INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// nowFunc supplies the current time. Tests override it for deterministic
// timestamps.
var nowFunc = time.Now

// timeFormat is the canonical text encoding for timestamps in the database.
const timeFormat = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
