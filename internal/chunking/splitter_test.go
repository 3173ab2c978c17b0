// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/brain-engine/pkg/types"
)

func newTestSplitter(t *testing.T, window, overlap int) *Splitter {
	t.Helper()
	sp, err := NewSplitter(types.ChunkingConfig{WindowTokens: window, OverlapTokens: overlap})
	require.NoError(t, err)
	return sp
}

func TestSectionsSplitsOnHeadings(t *testing.T) {
	sp := newTestSplitter(t, 512, 64)
	text := "intro paragraph\n\n# First\nbody one\n\n## Nested\nbody two\n\nSecond\n------\nbody three"

	sections := sp.Sections(text)
	require.Len(t, sections, 4)

	assert.Equal(t, "", sections[0].Heading)
	assert.Equal(t, 0, sections[0].Level)
	assert.Equal(t, "intro paragraph", sections[0].Text)

	assert.Equal(t, "First", sections[1].Heading)
	assert.Equal(t, 1, sections[1].Level)
	assert.Contains(t, sections[1].Text, "body one")

	assert.Equal(t, "Nested", sections[2].Heading)
	assert.Equal(t, 2, sections[2].Level)

	assert.Equal(t, "Second", sections[3].Heading)
	assert.Equal(t, 2, sections[3].Level)
	assert.Contains(t, sections[3].Text, "body three")
}

func TestSectionsIgnoresHeadingsInsideFences(t *testing.T) {
	sp := newTestSplitter(t, 512, 64)
	text := "# Real\n```\n# not a heading\ncode line\n```\ntail"

	sections := sp.Sections(text)
	require.Len(t, sections, 1)
	assert.Equal(t, "Real", sections[0].Heading)
	assert.Contains(t, sections[0].Text, "# not a heading")
}

func TestWindowsKeepsTableWhole(t *testing.T) {
	sp := newTestSplitter(t, 512, 64)
	table := "| a | b |\n|---|---|\n| 1 | 2 |\n| 3 | 4 |"
	text := "leading paragraph\n\n" + table + "\n\ntrailing paragraph"

	windows := sp.Windows(text)
	require.NotEmpty(t, windows)
	found := false
	for _, w := range windows {
		if strings.Contains(w, "| 1 | 2 |") {
			assert.Contains(t, w, "| 3 | 4 |")
			found = true
		}
	}
	assert.True(t, found, "table rows should land in the same window")
}

func TestWindowsKeepsFencedCodeWhole(t *testing.T) {
	sp := newTestSplitter(t, 40, 8)
	code := "```go\nfunc main() {\n\tprintln(\"hi\")\n}\n```"
	text := "before\n\n" + code + "\n\nafter"

	windows := sp.Windows(text)
	for _, w := range windows {
		if strings.Contains(w, "func main") {
			assert.Contains(t, w, "```go")
			assert.Contains(t, w, "println")
		}
	}
}

func TestWindowsSlicesOversizedBlock(t *testing.T) {
	sp := newTestSplitter(t, 20, 4)
	long := strings.Repeat("alpha beta gamma delta ", 30)

	windows := sp.Windows(long)
	require.Greater(t, len(windows), 1)
	for _, w := range windows {
		assert.LessOrEqual(t, sp.CountTokens(w), 20)
	}
}

func TestWindowsPacksSmallParagraphs(t *testing.T) {
	sp := newTestSplitter(t, 512, 64)
	text := "one\n\ntwo\n\nthree"

	windows := sp.Windows(text)
	require.Len(t, windows, 1)
	assert.Contains(t, windows[0], "one")
	assert.Contains(t, windows[0], "three")
}

func TestCountTokensNonZero(t *testing.T) {
	sp := newTestSplitter(t, 512, 64)
	assert.Greater(t, sp.CountTokens("hello world"), 0)
	assert.Equal(t, 0, sp.CountTokens(""))
}
