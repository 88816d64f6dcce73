package resultproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimWhitespaceStripsHeadAndTailOnly(t *testing.T) {
	in := "\n  \nfunc A() {\n\n\treturn\n}\n\n   "
	out := TrimWhitespace(in)
	assert.Equal(t, "func A() {\n\n\treturn\n}", out)
}

func TestTrimWhitespaceNoOpWhenNoSurroundingBlankLines(t *testing.T) {
	in := "a\nb\nc"
	assert.Equal(t, in, TrimWhitespace(in))
}

func TestCoalesceMergesOverlappingRanges(t *testing.T) {
	items := []Item{
		{Path: "a.go", StartLine: 1, EndLine: 10, Text: line(1, 10), Score: 0.5},
		{Path: "a.go", StartLine: 8, EndLine: 20, Text: line(8, 20), Score: 0.9},
	}
	out := Coalesce(items)
	assert.Len(t, out, 1)
	assert.Equal(t, 1, out[0].StartLine)
	assert.Equal(t, 20, out[0].EndLine)
	assert.Equal(t, 0.9, out[0].Score)
}

func TestCoalesceMergesRangesSeparatedByOneLine(t *testing.T) {
	items := []Item{
		{Path: "a.go", StartLine: 1, EndLine: 5, Text: line(1, 5), Score: 0.5},
		{Path: "a.go", StartLine: 7, EndLine: 10, Text: line(7, 10), Score: 0.3},
	}
	out := Coalesce(items)
	assert.Len(t, out, 1)
	assert.Equal(t, 1, out[0].StartLine)
	assert.Equal(t, 10, out[0].EndLine)
}

func TestCoalesceKeepsFarApartRangesSeparate(t *testing.T) {
	items := []Item{
		{Path: "a.go", StartLine: 1, EndLine: 5, Text: line(1, 5), Score: 0.5},
		{Path: "a.go", StartLine: 20, EndLine: 25, Text: line(20, 25), Score: 0.3},
	}
	out := Coalesce(items)
	assert.Len(t, out, 2)
}

func TestCoalesceKeepsDifferentPathsSeparate(t *testing.T) {
	items := []Item{
		{Path: "a.go", StartLine: 1, EndLine: 5, Text: line(1, 5), Score: 0.5},
		{Path: "b.go", StartLine: 1, EndLine: 5, Text: line(1, 5), Score: 0.9},
	}
	out := Coalesce(items)
	assert.Len(t, out, 2)
}

func TestProcessSortsByScoreDescending(t *testing.T) {
	items := []Item{
		{Path: "a.go", StartLine: 1, EndLine: 2, Text: "x\ny", Score: 0.1},
		{Path: "b.go", StartLine: 1, EndLine: 2, Text: "x\ny", Score: 0.9},
	}
	out := Process(items)
	assert.Equal(t, "b.go", out[0].Path)
	assert.Equal(t, "a.go", out[1].Path)
}

func TestToCompactFormatsLocatorAndRoundsScore(t *testing.T) {
	items := []Item{{Path: "a.go", StartLine: 3, EndLine: 9, Text: "x", Score: 0.123456}}
	out := ToCompact(items)
	assert.Equal(t, "a.go:3-9", out[0].L)
	assert.Equal(t, 0.12, out[0].Score)
}

func TestNewCompactWrapperUsesShortKeys(t *testing.T) {
	w := NewCompactWrapper(nil, 42, "warn")
	assert.Equal(t, int64(42), w.Ms)
	assert.Equal(t, "warn", w.W)
	assert.Equal(t, 0, w.N)
}

// line generates a text block with one line for each line number
// start..end, each reading "line", so every item's text matches its range.
func line(start, end int) string {
	out := ""
	for i := start; i <= end; i++ {
		if i > start {
			out += "\n"
		}
		out += "line"
	}
	return out
}
