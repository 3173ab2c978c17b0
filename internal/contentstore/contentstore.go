// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package contentstore provides content-addressed storage of raw ingested
// bytes with fingerprint-based deduplication. It is the single gate that
// keeps duplicate content from reaching the expensive downstream stages.
package contentstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/brain-engine/internal/store"
	"github.com/pdiddy/brain-engine/pkg/types"
)

// nowFunc supplies the current time. Tests override it for deterministic
// ingestion dates.
var nowFunc = time.Now

// ContentStore deduplicates and persists raw content.
type ContentStore struct {
	store  *store.Store
	group  singleflight.Group
	logger *zap.Logger
}

// New returns a ContentStore backed by s.
func New(s *store.Store, logger *zap.Logger) *ContentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentStore{store: s, logger: logger}
}

// PutResult reports the outcome of a Put.
type PutResult struct {
	Item types.Item

	// WasDuplicate is true when a live item with the same fingerprint
	// already existed. No downstream processing should happen in that
	// case.
	WasDuplicate bool
}

// Put fingerprints the normalized bytes and stores them unless a live item
// with the same fingerprint exists. Two concurrent Puts of identical bytes
// collapse onto one flight; exactly one caller creates the item and every
// other caller observes WasDuplicate=true.
func (cs *ContentStore) Put(ctx context.Context, data []byte, modality types.Modality, sourcePath, conversationID string) (PutResult, error) {
	if !modality.Valid() {
		return PutResult{}, fmt.Errorf("unknown modality %q", modality)
	}
	if len(data) == 0 {
		return PutResult{}, fmt.Errorf("refusing to ingest empty content")
	}

	normalized := Normalize(data, modality)
	fingerprint := Fingerprint(normalized)

	// Each caller carries its own token; the flight outcome records which
	// token created the item. Joined callers hold a different token and
	// observe a duplicate even though they share the winner's result.
	token := new(struct{})
	v, err, _ := cs.group.Do(fingerprint, func() (any, error) {
		res, err := cs.putOnce(ctx, normalized, fingerprint, modality, sourcePath, conversationID)
		if err != nil {
			return nil, err
		}
		out := flightOutcome{res: res}
		if !res.WasDuplicate {
			out.creator = token
		}
		return out, nil
	})
	if err != nil {
		return PutResult{}, err
	}

	out := v.(flightOutcome)
	res := out.res
	if out.creator != token {
		res.WasDuplicate = true
	}
	return res, nil
}

// flightOutcome is the shared result of one dedup flight. creator is the
// token of the caller whose putOnce inserted the item, nil when the item
// already existed.
type flightOutcome struct {
	res     PutResult
	creator *struct{}
}

func (cs *ContentStore) putOnce(ctx context.Context, normalized []byte, fingerprint string, modality types.Modality, sourcePath, conversationID string) (PutResult, error) {
	if existing, err := cs.store.GetItemByHash(ctx, fingerprint); err == nil {
		return PutResult{Item: existing, WasDuplicate: true}, nil
	} else if !errors.Is(err, types.ErrNotFound) {
		return PutResult{}, err
	}

	// The id is fresh per ingestion rather than derived from the
	// fingerprint: a tombstoned row keeps its id forever, and re-ingesting
	// previously deleted content must produce a distinct item.
	now := nowFunc()
	item := types.Item{
		ID:             uuid.NewString(),
		ContentHash:    fingerprint,
		Modality:       modality,
		SourcePath:     sourcePath,
		Filename:       filepath.Base(sourcePath),
		SizeBytes:      int64(len(normalized)),
		ConversationID: conversationID,
		CreatedAt:      now,
	}
	if sourcePath == "" {
		item.Filename = ""
	}

	objPath := cs.store.ObjectPath(fingerprint, now)
	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return PutResult{}, fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.WriteFile(objPath, normalized, 0o644); err != nil {
		return PutResult{}, fmt.Errorf("writing object: %w", err)
	}

	err := cs.store.InsertItem(ctx, item)
	if errors.Is(err, store.ErrDuplicateHash) {
		// Lost a race against another writer; first to commit wins.
		existing, getErr := cs.store.GetItemByHash(ctx, fingerprint)
		if getErr != nil {
			return PutResult{}, getErr
		}
		return PutResult{Item: existing, WasDuplicate: true}, nil
	}
	if err != nil {
		return PutResult{}, err
	}

	cs.logger.Debug("stored item",
		zap.String("item", item.ID),
		zap.String("modality", string(modality)),
		zap.Int64("bytes", item.SizeBytes))

	return PutResult{Item: item}, nil
}

// Get loads an item by id.
func (cs *ContentStore) Get(ctx context.Context, id string) (types.Item, error) {
	return cs.store.GetItem(ctx, id)
}

// ReadBytes returns the stored raw bytes for an item.
func (cs *ContentStore) ReadBytes(ctx context.Context, item types.Item) ([]byte, error) {
	data, err := os.ReadFile(cs.store.ObjectPath(item.ContentHash, item.CreatedAt))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object for item %s missing on disk: %w",
				item.ID, types.ErrInconsistentState)
		}
		return nil, fmt.Errorf("reading object: %w", err)
	}
	return data, nil
}

// Tombstone marks the item deleted and removes its chunks and embeddings.
// The raw object file stays on disk for traceability.
func (cs *ContentStore) Tombstone(ctx context.Context, id string) error {
	return cs.store.TombstoneItem(ctx, id)
}

// Normalize canonicalizes bytes before fingerprinting. Text modalities are
// NFC-normalized with CRLF folded to LF and trailing whitespace trimmed;
// binary modalities are fingerprinted raw.
func Normalize(data []byte, modality types.Modality) []byte {
	if modality != types.ModalityText {
		return data
	}
	out := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	out = norm.NFC.Bytes(out)
	return []byte(strings.TrimRight(string(out), " \t\n"))
}

// Fingerprint returns the hex SHA-256 digest of the normalized bytes.
func Fingerprint(normalized []byte) string {
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}

// TrashScore estimates how disposable an item is, 0 (trash) to 1 (keep):
// near-empty extracted text, tiny images, and screenshot filenames score
// low. Heuristic only; it never gates storage.
func TrashScore(item types.Item, extractedText string) float64 {
	score := 1.0
	if len(extractedText) < 10 {
		score -= 0.5
	}
	if item.Modality == types.ModalityImage && item.SizeBytes < 50*1024 {
		score -= 0.3
	}
	if strings.Contains(strings.ToLower(item.Filename), "screenshot") {
		score -= 0.2
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
