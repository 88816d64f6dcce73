// Package filesummary implements the language-agnostic symbol and
// complexity summary get_file_summary returns. It trades the teacher's
// tree-sitter grammars (internal/chunk.SymbolExtractor, one parser per
// language) for a single regex-based heuristic scanner that works
// across any text file without a grammar registry, at the cost of
// precision on edge cases a real parser would get right.
package filesummary

import (
	"regexp"
	"strings"
)

// SymbolKind mirrors the teacher's chunk.SymbolType vocabulary.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindMethod    SymbolKind = "method"
)

// Symbol is one heuristically detected top-level declaration.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Line      int
	Signature string
	Docstring string
}

// Summary is get_file_summary's result for one file.
type Summary struct {
	Path       string
	Language   string
	LineCount  int
	Symbols    []Symbol
	Complexity int // cyclomatic-ish: 1 + count of branching keywords
}

// declPattern finds one declaration per matched group across common
// C-family, Go, Python, and JS/TS syntaxes. Group 1 is the keyword that
// decides the Kind; group 2 is the declared name.
var declPattern = regexp.MustCompile(
	`^\s*(?:export\s+|public\s+|private\s+|protected\s+|static\s+|async\s+)*` +
		`(func|class|interface|type|def|struct)\s+(?:\([^)]*\)\s*)?([A-Za-z_][A-Za-z0-9_]*)`)

// branchKeywords are counted toward Complexity, one point per
// occurrence, on top of a baseline of 1 for the whole file.
var branchKeywords = regexp.MustCompile(`\b(if|for|while|case|catch|elif|except|switch)\b`)

// Analyze scans content (the full text of a file at path) and returns
// its symbol/complexity summary. includeDocstrings controls whether
// the preceding comment block is attached to each symbol;
// includeComplexity controls whether branch keywords are counted at
// all (skipping the scan is cheaper for large files that don't need it).
func Analyze(path string, content []byte, includeComplexity, includeDocstrings bool) Summary {
	lines := strings.Split(string(content), "\n")
	s := Summary{Path: path, Language: languageFor(path), LineCount: len(lines)}

	for i, line := range lines {
		m := declPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sym := Symbol{
			Name:      m[2],
			Kind:      kindFor(m[1]),
			Line:      i + 1,
			Signature: strings.TrimSpace(line),
		}
		if includeDocstrings {
			sym.Docstring = precedingComment(lines, i)
		}
		s.Symbols = append(s.Symbols, sym)
	}

	if includeComplexity {
		s.Complexity = 1 + len(branchKeywords.FindAllString(string(content), -1))
	}

	return s
}

func kindFor(keyword string) SymbolKind {
	switch keyword {
	case "class":
		return KindClass
	case "interface":
		return KindInterface
	case "type", "struct":
		return KindType
	default:
		return KindFunction
	}
}

// precedingComment walks upward from declLine collecting contiguous
// "//", "#", or "*"-prefixed comment lines immediately above it.
func precedingComment(lines []string, declLine int) string {
	var collected []string
	for i := declLine - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			break
		}
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") ||
			strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "/*") {
			collected = append([]string{trimmed}, collected...)
			continue
		}
		break
	}
	return strings.Join(collected, "\n")
}

var extToLanguage = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".java": "java", ".rb": "ruby",
	".rs": "rust", ".c": "c", ".h": "c", ".cpp": "cpp", ".hpp": "cpp",
	".cs": "csharp", ".php": "php", ".md": "markdown",
}

func languageFor(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return "unknown"
	}
	if lang, ok := extToLanguage[strings.ToLower(path[idx:])]; ok {
		return lang
	}
	return "unknown"
}
