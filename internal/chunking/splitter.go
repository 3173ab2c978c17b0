// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package chunking turns stored content into ordered, token-bounded chunks.
// Text is split along its structure first (headings, tables, fenced code),
// then oversized pieces are windowed with a sliding token overlap so no
// chunk exceeds the configured budget.
package chunking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/pdiddy/brain-engine/pkg/types"
)

// Section is a structural slice of a document bounded by headings. Level is
// the heading depth (1-6) or 0 for preamble text that precedes any heading.
type Section struct {
	Heading string
	Level   int
	Text    string
}

// Splitter segments text by structure and enforces the token window budget.
type Splitter struct {
	enc     *tiktoken.Tiktoken
	window  int
	overlap int
}

func NewSplitter(cfg types.ChunkingConfig) (*Splitter, error) {
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %q: %w", encoding, err)
	}
	window := cfg.WindowTokens
	if window <= 0 {
		window = 512
	}
	overlap := cfg.OverlapTokens
	if overlap < 0 || overlap >= window {
		overlap = window / 8
	}
	return &Splitter{enc: enc, window: window, overlap: overlap}, nil
}

// CountTokens reports the encoded length of text.
func (sp *Splitter) CountTokens(text string) int {
	return len(sp.enc.Encode(text, nil, nil))
}

var atxHeading = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// Sections splits text on ATX and setext headings. Headings inside fenced
// code blocks are ignored. The heading line stays in its section's text.
func (sp *Splitter) Sections(text string) []Section {
	lines := strings.Split(text, "\n")
	var sections []Section
	current := Section{}
	var body []string
	inFence := false
	fenceMarker := ""

	flush := func() {
		joined := strings.TrimRight(strings.Join(body, "\n"), "\n")
		if strings.TrimSpace(joined) != "" || current.Heading != "" {
			current.Text = joined
			sections = append(sections, current)
		}
		body = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if inFence {
			body = append(body, line)
			if strings.HasPrefix(trimmed, fenceMarker) {
				inFence = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = true
			fenceMarker = trimmed[:3]
			body = append(body, line)
			continue
		}

		if m := atxHeading.FindStringSubmatch(line); m != nil {
			flush()
			current = Section{Heading: strings.TrimSpace(m[2]), Level: len(m[1])}
			body = append(body, line)
			continue
		}

		// Setext heading: a plain line underlined by a run of = or -.
		if i+1 < len(lines) && trimmed != "" && !strings.HasPrefix(trimmed, "|") {
			if lvl := setextLevel(lines[i+1]); lvl > 0 {
				flush()
				current = Section{Heading: trimmed, Level: lvl}
				body = append(body, line, lines[i+1])
				i++
				continue
			}
		}

		body = append(body, line)
	}
	flush()
	return sections
}

func setextLevel(line string) int {
	t := strings.TrimSpace(line)
	if len(t) < 2 {
		return 0
	}
	if strings.Count(t, "=") == len(t) {
		return 1
	}
	if strings.Count(t, "-") == len(t) {
		return 2
	}
	return 0
}

// Windows packs the structural blocks of text into windows that stay within
// the token budget. Tables and fenced code blocks are never split across
// windows unless a single block alone exceeds the budget, in which case it
// is sliced on token boundaries with a sliding overlap.
func (sp *Splitter) Windows(text string) []string {
	blocks := sp.blocks(text)
	var out []string
	var buf []string
	bufTokens := 0

	emit := func() {
		if len(buf) == 0 {
			return
		}
		out = append(out, strings.TrimSpace(strings.Join(buf, "\n\n")))
		buf = nil
		bufTokens = 0
	}

	for _, b := range blocks {
		n := sp.CountTokens(b)
		if n > sp.window {
			emit()
			out = append(out, sp.slide(b)...)
			continue
		}
		if bufTokens+n > sp.window {
			emit()
		}
		buf = append(buf, b)
		bufTokens += n
	}
	emit()
	return out
}

// blocks cuts text into paragraphs, keeping fenced code and table runs whole.
func (sp *Splitter) blocks(text string) []string {
	lines := strings.Split(text, "\n")
	var blocks []string
	var cur []string
	inFence := false

	flush := func() {
		b := strings.TrimRight(strings.Join(cur, "\n"), "\n")
		if strings.TrimSpace(b) != "" {
			blocks = append(blocks, b)
		}
		cur = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if inFence {
			cur = append(cur, line)
			if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
				inFence = false
				flush()
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			flush()
			inFence = true
			cur = append(cur, line)
			continue
		}
		if strings.HasPrefix(trimmed, "|") {
			flush()
			cur = append(cur, line)
			for i+1 < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i+1]), "|") {
				i++
				cur = append(cur, lines[i])
			}
			flush()
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return blocks
}

// slide slices an oversized block on raw token boundaries, stepping
// window-overlap tokens each time.
func (sp *Splitter) slide(text string) []string {
	tokens := sp.enc.Encode(text, nil, nil)
	step := sp.window - sp.overlap
	var out []string
	for start := 0; start < len(tokens); start += step {
		end := start + sp.window
		if end > len(tokens) {
			end = len(tokens)
		}
		piece := strings.TrimSpace(sp.enc.Decode(tokens[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
		if end == len(tokens) {
			break
		}
	}
	return out
}
