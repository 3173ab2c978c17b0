// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunking

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	"github.com/pdiddy/brain-engine/internal/capability"
	"github.com/pdiddy/brain-engine/internal/store"
	"github.com/pdiddy/brain-engine/pkg/types"
)

// Annotator is the slice of the capability surface the pipeline consumes.
type Annotator interface {
	Summarize(ctx context.Context, text string) (capability.Annotation, error)
	DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error)
	Transcribe(ctx context.Context, data []byte, filename string) (string, error)
	ClassifySubordinate(ctx context.Context, parentHeading, childHeading, childText string) (bool, error)
}

// ObjectReader fetches an item's stored bytes.
type ObjectReader interface {
	ReadBytes(ctx context.Context, item types.Item) ([]byte, error)
}

// ChunkStore is the persistence surface the pipeline writes through.
type ChunkStore interface {
	GetItem(ctx context.Context, id string) (types.Item, error)
	ReplaceChunks(ctx context.Context, itemID string, chunks []types.Chunk) error
	AppendItemNote(ctx context.Context, id, note string) error
}

// Pipeline converts a stored item into its chunk set. Failures in one
// sub-unit (a page of a document, a span of audio) are recorded as item
// notes and do not abort the rest of the item.
type Pipeline struct {
	store    ChunkStore
	objects  ObjectReader
	ai       Annotator
	splitter *Splitter
	logger   *zap.Logger
}

func NewPipeline(st ChunkStore, objects ObjectReader, ai Annotator, cfg types.ChunkingConfig, logger *zap.Logger) (*Pipeline, error) {
	sp, err := NewSplitter(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: st, objects: objects, ai: ai, splitter: sp, logger: logger}, nil
}

// Process extracts, splits, and annotates the item's content and commits the
// resulting chunk set. It returns the committed chunks in ordinal order. An
// item tombstoned while processing was in flight fails with store.ErrItemGone
// and leaves no chunks behind.
func (p *Pipeline) Process(ctx context.Context, itemID string) ([]types.Chunk, error) {
	item, err := p.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("loading item %s: %w", itemID, err)
	}
	if item.Deleted() {
		return nil, store.ErrItemGone
	}

	sections, err := p.extract(ctx, item)
	if err != nil {
		return nil, err
	}
	sections = p.refine(ctx, sections)

	var chunks []types.Chunk
	for _, sec := range sections {
		for _, window := range p.splitter.Windows(sec.Text) {
			text := window
			if sec.Heading != "" && !strings.Contains(window, sec.Heading) {
				text = sec.Heading + "\n\n" + window
			}
			chunks = append(chunks, types.Chunk{
				ID:      uuid.NewString(),
				ItemID:  item.ID,
				Ordinal: len(chunks),
				Text:    text,
			})
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("item %s: %w: no extractable content", item.ID, types.ErrInconsistentState)
	}

	p.annotate(ctx, item.ID, chunks)

	if err := p.store.ReplaceChunks(ctx, item.ID, chunks); err != nil {
		return nil, err
	}
	p.logger.Debug("chunked item",
		zap.String("item_id", item.ID),
		zap.String("modality", string(item.Modality)),
		zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// extract turns the stored bytes into text sections according to modality.
func (p *Pipeline) extract(ctx context.Context, item types.Item) ([]Section, error) {
	data, err := p.objects.ReadBytes(ctx, item)
	if err != nil {
		return nil, err
	}

	switch item.Modality {
	case types.ModalityText:
		return p.splitter.Sections(string(data)), nil

	case types.ModalityDocument:
		return p.extractDocument(ctx, item, data)

	case types.ModalityImage:
		desc, err := p.ai.DescribeImage(ctx, data, mimeType(item.Filename))
		if err != nil {
			return nil, fmt.Errorf("describing image %s: %w", item.ID, err)
		}
		return []Section{{Text: desc}}, nil

	case types.ModalityAudio:
		transcript, err := p.ai.Transcribe(ctx, data, item.Filename)
		if err != nil {
			return nil, fmt.Errorf("transcribing %s: %w", item.ID, err)
		}
		return p.splitter.Sections(transcript), nil

	default:
		return nil, fmt.Errorf("item %s: unsupported modality %q", item.ID, item.Modality)
	}
}

// extractDocument runs OCR page by page so one unreadable page does not
// lose the rest of the document. Non-PDF documents are sent whole.
func (p *Pipeline) extractDocument(ctx context.Context, item types.Item, data []byte) ([]Section, error) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		text, err := p.ai.DescribeImage(ctx, data, mimeType(item.Filename))
		if err != nil {
			return nil, fmt.Errorf("reading document %s: %w", item.ID, err)
		}
		return p.splitter.Sections(text), nil
	}

	conf := api.LoadConfiguration()
	pageCount, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("counting pages of %s: %w", item.ID, err)
	}

	var sections []Section
	failed := 0
	for page := 1; page <= pageCount; page++ {
		var buf bytes.Buffer
		if err := api.Trim(bytes.NewReader(data), &buf, []string{strconv.Itoa(page)}, conf); err != nil {
			p.notePartialFailure(ctx, item.ID, fmt.Sprintf("page %d: extract: %v", page, err))
			failed++
			continue
		}
		text, err := p.ai.DescribeImage(ctx, buf.Bytes(), "application/pdf")
		if err != nil {
			p.notePartialFailure(ctx, item.ID, fmt.Sprintf("page %d: ocr: %v", page, err))
			failed++
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		sections = append(sections, p.splitter.Sections(text)...)
	}
	if failed == pageCount && pageCount > 0 {
		return nil, fmt.Errorf("document %s: all %d pages failed", item.ID, pageCount)
	}
	return sections, nil
}

// refine merges a section into its structural parent when the classifier
// judges it subordinate. When the capability is unavailable the structural
// split stands as-is.
func (p *Pipeline) refine(ctx context.Context, sections []Section) []Section {
	var out []Section
	for _, sec := range sections {
		if len(out) == 0 || sec.Heading == "" {
			out = append(out, sec)
			continue
		}
		parent := &out[len(out)-1]
		if parent.Heading == "" || sec.Level <= parent.Level {
			out = append(out, sec)
			continue
		}
		subordinate, err := p.ai.ClassifySubordinate(ctx, parent.Heading, sec.Heading, sec.Text)
		if err != nil {
			if !types.IsCapabilityUnavailable(err) {
				p.logger.Debug("subordinate classification failed", zap.Error(err))
			}
			out = append(out, sec)
			continue
		}
		if subordinate {
			parent.Text = parent.Text + "\n\n" + sec.Text
		} else {
			out = append(out, sec)
		}
	}
	return out
}

// annotate fills in per-chunk summaries and tags. Annotation is best-effort:
// a chunk whose summarization fails is stored without one.
func (p *Pipeline) annotate(ctx context.Context, itemID string, chunks []types.Chunk) {
	for i := range chunks {
		ann, err := p.ai.Summarize(ctx, chunks[i].Text)
		if err != nil {
			p.logger.Debug("chunk summarization failed",
				zap.String("item_id", itemID),
				zap.Int("ordinal", chunks[i].Ordinal),
				zap.Error(err))
			continue
		}
		chunks[i].Summary = ann.Summary
		chunks[i].Tags = ann.Tags
	}
}

func (p *Pipeline) notePartialFailure(ctx context.Context, itemID, note string) {
	p.logger.Warn("partial extraction failure", zap.String("item_id", itemID), zap.String("note", note))
	if err := p.store.AppendItemNote(ctx, itemID, note); err != nil {
		p.logger.Debug("recording item note failed", zap.String("item_id", itemID), zap.Error(err))
	}
}

func mimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	default:
		return "image/jpeg"
	}
}
