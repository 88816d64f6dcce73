// Package policy implements the Indexing Policy: the six-step decision
// sequence that accepts or rejects a candidate file at indexing time,
// generalized from the teacher's internal/scanner.Scanner exclusion
// rules (hardcoded denylist, user globs, gitignore, size/file caps)
// into a single pure decision function usable by both the scanner walk
// and the incremental updater's single-file path.
package policy

import (
	"path"
	"strings"

	"github.com/codesearch/engine/internal/gitignore"
	"github.com/codesearch/engine/internal/idxconfig"
	"github.com/codesearch/engine/internal/security"
)

// Category classifies why a file was rejected.
type Category string

const (
	CategoryBinary   Category = "binary"
	CategoryDenylist Category = "denylist"
	CategoryIgnored  Category = "ignored"
	CategorySize     Category = "size"
	CategoryPattern  Category = "pattern"
)

// Decision is the outcome of evaluating one candidate file.
type Decision struct {
	ShouldIndex bool
	Reason      string
	Category    Category
}

func accept() Decision { return Decision{ShouldIndex: true} }

func reject(category Category, reason string) Decision {
	return Decision{ShouldIndex: false, Reason: reason, Category: category}
}

// denylistDirs are directory-prefix segments that are always excluded,
// regardless of user configuration.
var denylistDirs = []string{"node_modules", ".git", "dist", "build"}

// denylistFilePatterns are credential-shaped filenames that are always
// excluded.
var denylistFilePatterns = []string{".env", ".env.*", "*.pem", "*.key"}

// binaryExtensions are common non-text file extensions, always excluded.
var binaryExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp",
	".mp3", ".mp4", ".mov", ".avi", ".wav", ".flac",
	".zip", ".tar", ".gz", ".bz2", ".7z", ".rar",
	".exe", ".dll", ".so", ".dylib", ".bin", ".o", ".a",
	".pdf", ".woff", ".woff2", ".ttf", ".eot",
	".pyc", ".class", ".jar",
}

// Candidate is a single file considered for indexing.
type Candidate struct {
	RelPath   string // forward-slash, relative to project root
	AbsPath   string
	SizeBytes int64
}

// Policy evaluates candidates against a Config and an optional
// gitignore matcher, tracking how many files have been accepted so far
// so it can enforce the file cap.
type Policy struct {
	cfg      *idxconfig.Config
	gi       *gitignore.Matcher // nil disables gitignore matching
	accepted int
	maxFiles int
}

// New builds a Policy from cfg. If cfg.RespectGitignore is true, gi
// should be the matcher loaded via gitignore.LoadFromProject(root);
// passing nil simply disables step 3.
func New(cfg *idxconfig.Config, gi *gitignore.Matcher) *Policy {
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = idxconfig.Default().MaxFiles
	}
	return &Policy{cfg: cfg, gi: gi, maxFiles: maxFiles}
}

// Evaluate runs the six-step decision sequence against c and, if it is
// accepted, counts it toward the file cap for subsequent calls.
func (p *Policy) Evaluate(c Candidate) Decision {
	relPath := path.Clean(filepathToSlash(c.RelPath))
	base := path.Base(relPath)

	// 1. Hardcoded denylist always blocks.
	for _, dir := range denylistDirs {
		if pathHasDirSegment(relPath, dir) {
			return reject(CategoryDenylist, "path matches hardcoded denylist directory: "+dir)
		}
	}
	for _, pattern := range denylistFilePatterns {
		if globMatch(pattern, base) {
			return reject(CategoryDenylist, "path matches hardcoded denylist pattern: "+pattern)
		}
	}
	if ext := path.Ext(base); isBinaryExtension(ext) {
		return reject(CategoryBinary, "binary file extension: "+ext)
	}

	// 2. User exclude globs block.
	for _, pattern := range p.cfg.Exclude {
		if !security.ValidatePattern(pattern) {
			continue
		}
		if globMatch(pattern, relPath) || globMatch(pattern, base) {
			return reject(CategoryPattern, "path matches user exclude pattern: "+pattern)
		}
	}

	// 3. Gitignore blocks when respectGitignore is true.
	if p.cfg.RespectGitignore && p.gi != nil {
		if p.gi.Match(relPath, false) {
			return reject(CategoryIgnored, "path matched by .gitignore")
		}
	}

	// 4. Size cap.
	maxSize, err := p.cfg.MaxFileSizeBytes()
	if err != nil {
		maxSize, _ = idxconfig.ParseSize(idxconfig.Default().MaxFileSize)
	}
	if c.SizeBytes > maxSize {
		return reject(CategorySize, "file exceeds maxFileSize cap")
	}

	// 5. User include globs must match.
	if len(p.cfg.Include) > 0 {
		matched := false
		for _, pattern := range p.cfg.Include {
			if !security.ValidatePattern(pattern) {
				continue
			}
			if globMatch(pattern, relPath) || globMatch(pattern, base) {
				matched = true
				break
			}
		}
		if !matched {
			return reject(CategoryPattern, "path does not match any user include pattern")
		}
	}

	// 6. File cap.
	if p.accepted >= p.maxFiles {
		return reject(CategorySize, "maxFiles cap reached")
	}

	p.accepted++
	return accept()
}

// Accepted reports how many candidates this Policy has accepted so far.
func (p *Policy) Accepted() int { return p.accepted }

func filepathToSlash(s string) string {
	return strings.ReplaceAll(s, "\\", "/")
}

// pathHasDirSegment reports whether relPath contains dir as a full
// path segment (not merely a substring of some other segment).
func pathHasDirSegment(relPath, dir string) bool {
	parts := strings.Split(relPath, "/")
	for _, part := range parts {
		if part == dir {
			return true
		}
	}
	return false
}

func isBinaryExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range binaryExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// globMatch matches pattern against candidate, supporting "**/" prefix
// (match at any depth) in addition to path.Match's single-level glob.
func globMatch(pattern, candidate string) bool {
	if pattern == "**/*" {
		return true
	}
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if ok, _ := path.Match(suffix, candidate); ok {
			return true
		}
		parts := strings.Split(candidate, "/")
		for i := range parts {
			sub := strings.Join(parts[i:], "/")
			if ok, _ := path.Match(suffix, sub); ok {
				return true
			}
		}
		return false
	}
	ok, _ := path.Match(pattern, candidate)
	return ok
}
