// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package graph maintains the entity-relation layer on top of the store:
// entity resolution by normalized name or alias, relation upserts whose
// confidence only ever rises, and bounded neighborhood traversal.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/brain-engine/pkg/types"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultDepth = 2
	maxDepth     = 4
)

var nowFunc = time.Now

// EntityStore is the slice of the store the graph layer consumes.
type EntityStore interface {
	InsertEntity(ctx context.Context, e types.Entity, normalized string, normalizedAliases []string) error
	FindEntity(ctx context.Context, normalized string) (types.Entity, error)
	GetEntity(ctx context.Context, id string) (types.Entity, error)
	AddEntityAlias(ctx context.Context, id, alias, normalizedAlias string) error
	IncrementMentionCount(ctx context.Context, id string) error
	GetRelation(ctx context.Context, subjectID, predicate, objectID string) (types.Relation, error)
	InsertRelation(ctx context.Context, r types.Relation) error
	UpdateRelation(ctx context.Context, r types.Relation) error
	RelationsTouching(ctx context.Context, entityID, predicate string) ([]types.Relation, error)
	InsertMention(ctx context.Context, entityID, chunkID string) (bool, error)
	ChunksMentioning(ctx context.Context, entityIDs []string) ([]string, error)
}

// Graph resolves, links, and walks entities.
type Graph struct {
	store  EntityStore
	logger *zap.Logger
}

func New(store EntityStore, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{store: store, logger: logger}
}

// Normalize folds an entity name for matching: lowercase, Unicode
// normalization, diacritics stripped, whitespace collapsed. CJK names pass
// through unchanged apart from case and spacing.
func Normalize(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// UpsertEntity resolves name against canonical names and aliases and returns
// the surviving entity. An unknown name creates a fresh entity; a known one
// gains the incoming aliases (and the incoming name, when it arrived via an
// alias match) instead of a duplicate row.
func (g *Graph) UpsertEntity(ctx context.Context, name string, entityType types.EntityType, aliases []string) (types.Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Entity{}, fmt.Errorf("entity name must not be empty")
	}
	normalized := Normalize(name)

	existing, err := g.store.FindEntity(ctx, normalized)
	switch {
	case err == nil:
		return g.merge(ctx, existing, name, aliases)
	case !errors.Is(err, types.ErrNotFound):
		return types.Entity{}, err
	}

	entity := types.Entity{
		ID:            uuid.NewString(),
		CanonicalName: name,
		EntityType:    entityType,
		Aliases:       dedupe(aliases, name),
		FirstSeen:     nowFunc().UTC(),
	}
	if err := g.store.InsertEntity(ctx, entity, normalized, normalizeAll(entity.Aliases)); err != nil {
		// Lost a race against a concurrent insert of the same name.
		if found, ferr := g.store.FindEntity(ctx, normalized); ferr == nil {
			return g.merge(ctx, found, name, aliases)
		}
		return types.Entity{}, err
	}
	g.logger.Debug("created entity",
		zap.String("entity_id", entity.ID),
		zap.String("name", name),
		zap.String("type", string(entityType)))
	return entity, nil
}

func (g *Graph) merge(ctx context.Context, entity types.Entity, name string, aliases []string) (types.Entity, error) {
	incoming := aliases
	if Normalize(name) != Normalize(entity.CanonicalName) {
		incoming = append([]string{name}, aliases...)
	}
	known := make(map[string]bool, len(entity.Aliases)+1)
	known[Normalize(entity.CanonicalName)] = true
	for _, a := range entity.Aliases {
		known[Normalize(a)] = true
	}
	for _, alias := range incoming {
		alias = strings.TrimSpace(alias)
		na := Normalize(alias)
		if alias == "" || known[na] {
			continue
		}
		if err := g.store.AddEntityAlias(ctx, entity.ID, alias, na); err != nil {
			return types.Entity{}, err
		}
		entity.Aliases = append(entity.Aliases, alias)
		known[na] = true
	}
	return entity, nil
}

// UpsertRelation records subject-predicate-object with the given confidence.
// An existing edge keeps the higher of the two confidences and accumulates
// provenance; confidence never decreases.
func (g *Graph) UpsertRelation(ctx context.Context, subjectID, predicate, objectID string, confidence float64, provenance string) (types.Relation, error) {
	if subjectID == "" || objectID == "" || predicate == "" {
		return types.Relation{}, fmt.Errorf("relation requires subject, predicate, and object")
	}
	if confidence < 0 || confidence > 1 {
		return types.Relation{}, fmt.Errorf("confidence %v out of range", confidence)
	}

	existing, err := g.store.GetRelation(ctx, subjectID, predicate, objectID)
	switch {
	case err == nil:
		return g.reinforce(ctx, existing, confidence, provenance)
	case !errors.Is(err, types.ErrNotFound):
		return types.Relation{}, err
	}

	now := nowFunc().UTC()
	rel := types.Relation{
		ID:         uuid.NewString(),
		SubjectID:  subjectID,
		Predicate:  predicate,
		ObjectID:   objectID,
		Confidence: confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if provenance != "" {
		rel.Provenance = []string{provenance}
	}
	if err := g.store.InsertRelation(ctx, rel); err != nil {
		if found, ferr := g.store.GetRelation(ctx, subjectID, predicate, objectID); ferr == nil {
			return g.reinforce(ctx, found, confidence, provenance)
		}
		return types.Relation{}, err
	}
	return rel, nil
}

func (g *Graph) reinforce(ctx context.Context, rel types.Relation, confidence float64, provenance string) (types.Relation, error) {
	changed := false
	if confidence > rel.Confidence {
		rel.Confidence = confidence
		changed = true
	}
	if provenance != "" && !contains(rel.Provenance, provenance) {
		rel.Provenance = append(rel.Provenance, provenance)
		changed = true
	}
	if !changed {
		return rel, nil
	}
	rel.UpdatedAt = nowFunc().UTC()
	if err := g.store.UpdateRelation(ctx, rel); err != nil {
		return types.Relation{}, err
	}
	return rel, nil
}

// RecordMention links an entity to the chunk it appeared in and bumps its
// mention count. Re-recording the same pair is a no-op.
func (g *Graph) RecordMention(ctx context.Context, entityID, chunkID string) error {
	inserted, err := g.store.InsertMention(ctx, entityID, chunkID)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	return g.store.IncrementMentionCount(ctx, entityID)
}

// Neighborhood is the result of a bounded graph walk.
type Neighborhood struct {
	EntityIDs []string
	Relations []types.Relation
}

// Neighbors walks relations outward from the seed entities up to depth hops
// (default 2, capped at 4), optionally restricted to one predicate. The
// seeds themselves are included in EntityIDs.
func (g *Graph) Neighbors(ctx context.Context, seedIDs []string, predicate string, depth int) (Neighborhood, error) {
	if depth <= 0 {
		depth = defaultDepth
	}
	if depth > maxDepth {
		depth = maxDepth
	}

	visited := make(map[string]bool)
	seenRel := make(map[string]bool)
	var hood Neighborhood

	frontier := make([]string, 0, len(seedIDs))
	for _, id := range seedIDs {
		if id == "" || visited[id] {
			continue
		}
		visited[id] = true
		hood.EntityIDs = append(hood.EntityIDs, id)
		frontier = append(frontier, id)
	}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			rels, err := g.store.RelationsTouching(ctx, id, predicate)
			if err != nil {
				return Neighborhood{}, err
			}
			for _, rel := range rels {
				if !seenRel[rel.ID] {
					seenRel[rel.ID] = true
					hood.Relations = append(hood.Relations, rel)
				}
				for _, other := range []string{rel.SubjectID, rel.ObjectID} {
					if !visited[other] {
						visited[other] = true
						hood.EntityIDs = append(hood.EntityIDs, other)
						next = append(next, other)
					}
				}
			}
		}
		frontier = next
	}
	return hood, nil
}

// Resolve looks an entity up by name or alias without creating it.
func (g *Graph) Resolve(ctx context.Context, name string) (types.Entity, error) {
	return g.store.FindEntity(ctx, Normalize(name))
}

// MentionedChunks returns the ids of chunks referencing any of the entities.
func (g *Graph) MentionedChunks(ctx context.Context, entityIDs []string) ([]string, error) {
	return g.store.ChunksMentioning(ctx, entityIDs)
}

func normalizeAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Normalize(n)
	}
	return out
}

func dedupe(aliases []string, canonical string) []string {
	seen := map[string]bool{Normalize(canonical): true}
	var out []string
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		na := Normalize(a)
		if a == "" || seen[na] {
			continue
		}
		seen[na] = true
		out = append(out, a)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
