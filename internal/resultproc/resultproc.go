// Package resultproc implements Result Processing: the whitespace
// trimming, same-file chunk coalescing, final score-descending sort,
// and compact-output renaming spec.md §4.11 runs over hybrid search's
// fused rows before they reach a tool caller.
package resultproc

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Item is one search result carried through result processing.
type Item struct {
	Path      string
	StartLine int // 1-indexed
	EndLine   int // inclusive
	Text      string
	Score     float64
}

// TrimWhitespace strips all-whitespace lines from the head and tail of
// text, preserving internal blank lines and indentation untouched.
func TrimWhitespace(text string) string {
	lines := strings.Split(text, "\n")

	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// Process runs the full post-processing pipeline: trim, coalesce by
// path, then sort by score descending.
func Process(items []Item) []Item {
	trimmed := make([]Item, len(items))
	for i, it := range items {
		it.Text = TrimWhitespace(it.Text)
		trimmed[i] = it
	}
	coalesced := Coalesce(trimmed)
	sortByScoreDesc(coalesced)
	return coalesced
}

// Coalesce groups items by path, sorts each group by start line, and
// merges entries whose line ranges overlap or are separated by at most
// one line. A merged item's score is the max of its inputs; its text
// deduplicates the overlapping prefix/suffix lines by keying each
// source line on its absolute line number before rejoining.
func Coalesce(items []Item) []Item {
	byPath := make(map[string][]Item)
	var order []string
	for _, it := range items {
		if _, ok := byPath[it.Path]; !ok {
			order = append(order, it.Path)
		}
		byPath[it.Path] = append(byPath[it.Path], it)
	}

	var out []Item
	for _, path := range order {
		group := byPath[path]
		sort.SliceStable(group, func(i, j int) bool { return group[i].StartLine < group[j].StartLine })

		merged := group[0]
		lines := lineMap(merged)

		for _, next := range group[1:] {
			if next.StartLine-merged.EndLine <= 2 {
				for ln, text := range lineMap(next) {
					lines[ln] = text
				}
				if next.EndLine > merged.EndLine {
					merged.EndLine = next.EndLine
				}
				if next.Score > merged.Score {
					merged.Score = next.Score
				}
			} else {
				merged.Text = joinLines(lines, merged.StartLine, merged.EndLine)
				out = append(out, merged)
				merged = next
				lines = lineMap(next)
			}
		}
		merged.Text = joinLines(lines, merged.StartLine, merged.EndLine)
		out = append(out, merged)
	}
	return out
}

func lineMap(it Item) map[int]string {
	m := make(map[int]string)
	for i, line := range strings.Split(it.Text, "\n") {
		m[it.StartLine+i] = line
	}
	return m
}

func joinLines(lines map[int]string, start, end int) string {
	parts := make([]string, 0, end-start+1)
	for ln := start; ln <= end; ln++ {
		if text, ok := lines[ln]; ok {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func sortByScoreDesc(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if items[i].Path != items[j].Path {
			return items[i].Path < items[j].Path
		}
		return items[i].StartLine < items[j].StartLine
	})
}

// StandardResult is the verbose wire shape for one result.
type StandardResult struct {
	Path      string  `json:"path"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// ToStandard converts processed items into the verbose output shape.
func ToStandard(items []Item) []StandardResult {
	out := make([]StandardResult, len(items))
	for i, it := range items {
		out[i] = StandardResult{Path: it.Path, StartLine: it.StartLine, EndLine: it.EndLine, Text: it.Text, Score: it.Score}
	}
	return out
}

// CompactResult is the compact wire shape: path/startLine/endLine
// collapse into a single "l" locator field, and score rounds to two
// decimals.
type CompactResult struct {
	L     string  `json:"l"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// ToCompact converts processed items into the compact output shape.
func ToCompact(items []Item) []CompactResult {
	out := make([]CompactResult, len(items))
	for i, it := range items {
		out[i] = CompactResult{
			L:     fmt.Sprintf("%s:%d-%d", it.Path, it.StartLine, it.EndLine),
			Score: round2(it.Score),
			Text:  it.Text,
		}
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Wrapper is the standard top-level search response envelope.
type Wrapper struct {
	Results    []StandardResult `json:"results"`
	TotalCount int              `json:"totalCount"`
	DurationMs int64            `json:"durationMs"`
	Warning    string           `json:"warning,omitempty"`
}

// CompactWrapper is the same envelope with wrapper keys shortened to
// r/n/ms/w per spec.md §4.11's compact output variant.
type CompactWrapper struct {
	R  []CompactResult `json:"r"`
	N  int             `json:"n"`
	Ms int64           `json:"ms"`
	W  string          `json:"w,omitempty"`
}

// NewWrapper builds the standard envelope.
func NewWrapper(items []Item, durationMs int64, warning string) Wrapper {
	return Wrapper{Results: ToStandard(items), TotalCount: len(items), DurationMs: durationMs, Warning: warning}
}

// NewCompactWrapper builds the compact envelope.
func NewCompactWrapper(items []Item, durationMs int64, warning string) CompactWrapper {
	return CompactWrapper{R: ToCompact(items), N: len(items), Ms: durationMs, W: warning}
}
