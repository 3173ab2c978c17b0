// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the domain model shared across brain-engine stages.
package types

import "time"

// Modality identifies the kind of raw content an Item holds. Dispatch in
// the chunking pipeline is a closed switch over these four values.
type Modality string

const (
	ModalityText     Modality = "text"
	ModalityDocument Modality = "document"
	ModalityImage    Modality = "image"
	ModalityAudio    Modality = "audio"
)

// Valid reports whether m is one of the four known modalities.
func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalityDocument, ModalityImage, ModalityAudio:
		return true
	}
	return false
}

// EntityType categorizes a knowledge-graph entity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityProject      EntityType = "project"
	EntityLocation     EntityType = "location"
	EntityTechnology   EntityType = "technology"
	EntityOrganization EntityType = "organization"
	EntityConcept      EntityType = "concept"
)

// Item is one deduplicated unit of raw ingested content. Items are never
// mutated after creation except for the DeletedAt tombstone and
// partial-failure Notes appended during chunking.
type Item struct {
	// ID is unique per ingestion. Deduplication happens on ContentHash,
	// not the id: re-ingesting content deleted earlier yields a new item.
	ID string `json:"id" yaml:"id"`

	// ContentHash is the SHA-256 digest of the normalized bytes. Unique
	// among non-deleted items; a second ingestion of identical bytes is
	// reported as a duplicate rather than re-processed.
	ContentHash string `json:"content_hash" yaml:"content_hash"`

	Modality   Modality `json:"modality" yaml:"modality"`
	SourcePath string   `json:"source_path" yaml:"source_path"`
	Filename   string   `json:"filename" yaml:"filename"`
	SizeBytes  int64    `json:"size_bytes" yaml:"size_bytes"`

	// ConversationID is an optional back-reference to the conversation
	// that produced the item. It is not an ownership link.
	ConversationID string `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`

	// Notes records partial extraction failures, one line per skipped
	// sub-unit (e.g. a document page the OCR capability rejected).
	Notes []string `json:"notes,omitempty" yaml:"notes,omitempty"`

	// TrashScore estimates how disposable the content is, 0 (trash) to 1
	// (keep). Heuristic only; it never gates storage.
	TrashScore float64 `json:"trash_score" yaml:"trash_score"`

	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" yaml:"deleted_at,omitempty"`
}

// Deleted reports whether the item has been tombstoned.
func (it Item) Deleted() bool { return it.DeletedAt != nil }

// Chunk is a retrievable text segment derived from an Item. Ordinals are
// contiguous per item starting at zero; concatenating a live item's chunks
// in ordinal order reconstructs its text.
type Chunk struct {
	ID      string `json:"id" yaml:"id"`
	ItemID  string `json:"item_id" yaml:"item_id"`
	Ordinal int    `json:"ordinal" yaml:"ordinal"`

	// Text is the chunk body. Never empty for a stored chunk.
	Text string `json:"text" yaml:"text"`

	// Summary and Tags are produced by the summarization capability and
	// may be empty when the capability is unavailable.
	Summary string   `json:"summary,omitempty" yaml:"summary,omitempty"`
	Tags    []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Entity is a named real-world concept in the knowledge graph.
// CanonicalName is unique per EntityType after normalization; mentions
// matching an alias merge into the existing entity.
type Entity struct {
	ID            string     `json:"id" yaml:"id"`
	CanonicalName string     `json:"canonical_name" yaml:"canonical_name"`
	EntityType    EntityType `json:"entity_type" yaml:"entity_type"`
	Aliases       []string   `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	FirstSeen     time.Time  `json:"first_seen" yaml:"first_seen"`
	MentionCount  int        `json:"mention_count" yaml:"mention_count"`
}

// Relation is a directed typed edge between two entities with provenance.
// The (subject, predicate, object) triple is unique; re-deriving it from a
// new chunk raises confidence and appends provenance.
type Relation struct {
	ID         string  `json:"id" yaml:"id"`
	SubjectID  string  `json:"subject_id" yaml:"subject_id"`
	Predicate  string  `json:"predicate" yaml:"predicate"`
	ObjectID   string  `json:"object_id" yaml:"object_id"`
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Provenance lists the chunk IDs the relation was derived from, in
	// derivation order.
	Provenance []string `json:"provenance,omitempty" yaml:"provenance,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// AuditRecord is one immutable line in the audit ledger.
type AuditRecord struct {
	ID             string    `json:"id" yaml:"id"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	Operation      string    `json:"operation" yaml:"operation"`
	Arguments      string    `json:"arguments" yaml:"arguments"`
	ResultSummary  string    `json:"result_summary" yaml:"result_summary"`
	ConversationID string    `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
}

// RefKind classifies a retrieval result for downstream citation.
type RefKind string

const (
	RefEntry RefKind = "entry"
	RefFile  RefKind = "file"
	RefChunk RefKind = "chunk"
)

// Ref is a citation reference attached to a retrieval result.
type Ref struct {
	Kind RefKind `json:"kind" yaml:"kind"`
	ID   string  `json:"id" yaml:"id"`
}
