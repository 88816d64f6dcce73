// Package pathsafe implements path normalization, traversal rejection,
// symlink detection, and the project-identity hash used to name a
// project's index directory on disk.
package pathsafe

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxPathLength caps path length checks; 260 on Windows, 4096 elsewhere.
func maxPathLength() int {
	if runtime.GOOS == "windows" {
		return 260
	}
	return 4096
}

// Normalize converts backslashes to forward slashes, normalizes to NFC,
// and removes a single trailing separator (but never collapses "/" itself).
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if utf8.ValidString(p) {
		p = norm.NFC.String(p)
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// ToRelative converts an absolute path to a forward-slash path relative to
// base. Returns an error if target does not lie under base.
func ToRelative(base, target string) (string, error) {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return "", nil
	}
	if strings.HasPrefix(rel, "../") || rel == ".." {
		return "", errOutsideBase
	}
	return rel, nil
}

// ToAbsolute resolves a (possibly relative) path against base and cleans it.
func ToAbsolute(base, target string) (string, error) {
	if filepath.IsAbs(target) {
		return filepath.Clean(target), nil
	}
	return filepath.Clean(filepath.Join(base, target)), nil
}

// IsWithinDirectory reports whether child lies within (or equals) base,
// using directory-prefix semantics. Comparison is case-insensitive on
// Windows.
func IsWithinDirectory(base, child string) bool {
	base = filepath.Clean(base)
	child = filepath.Clean(child)
	if runtime.GOOS == "windows" {
		base = strings.ToLower(base)
		child = strings.ToLower(child)
	}
	if base == child {
		return true
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(base, sep) {
		base += sep
	}
	return strings.HasPrefix(child, base)
}

var errOutsideBase = &pathError{"path resolves outside base directory"}

type pathError struct{ msg string }

func (e *pathError) Error() string { return e.msg }

// SafeJoin returns filepath.Join(base, rel) iff rel is relative, contains
// no ".." segment anywhere, no drive letter, no null byte, and the
// resolved result lies within base. Any other input returns ("", false).
func SafeJoin(base, rel string) (string, bool) {
	if rel == "" {
		return filepath.Clean(base), true
	}
	if strings.ContainsRune(rel, 0) {
		return "", false
	}
	if utf8.ValidString(rel) {
		rel = norm.NFC.String(rel)
	}
	normalized := strings.ReplaceAll(rel, "\\", "/")
	if filepath.IsAbs(normalized) {
		return "", false
	}
	if hasDriveLetter(normalized) {
		return "", false
	}
	if len(normalized) > maxPathLength() {
		return "", false
	}
	for _, seg := range strings.Split(normalized, "/") {
		if seg == ".." {
			return "", false
		}
	}
	joined := filepath.Join(base, filepath.FromSlash(normalized))
	resolved := filepath.Clean(joined)
	if !IsWithinDirectory(filepath.Clean(base), resolved) {
		return "", false
	}
	return resolved, true
}

// hasDriveLetter detects a Windows-style "C:" prefix regardless of host OS,
// since the safety contract must reject it everywhere.
func hasDriveLetter(p string) bool {
	if len(p) < 2 {
		return false
	}
	c := p[0]
	return p[1] == ':' && ((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'))
}

// IsSymlink reports whether path is a symlink, using a stat variant that
// does not follow links.
func IsSymlink(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, err
	}
	return info.Mode()&os.ModeSymlink != 0, nil
}

// HashProjectPath returns the 32-hex-character project key: SHA-256 over
// a case-normalized form of the absolute path (lowercased on Windows,
// backslashes converted to forward slashes, trailing separator removed),
// truncated to 32 hex characters.
func HashProjectPath(absPath string) string {
	return hashProjectPath(absPath, 32)
}

// HashProjectPathLegacy returns the 16-hex-character legacy form of the
// same hash, recognized for backward compatibility.
func HashProjectPathLegacy(absPath string) string {
	return hashProjectPath(absPath, 16)
}

func hashProjectPath(absPath string, hexLen int) string {
	norm := strings.ReplaceAll(absPath, "\\", "/")
	if runtime.GOOS == "windows" {
		norm = strings.ToLower(norm)
	}
	if len(norm) > 1 && strings.HasSuffix(norm, "/") {
		norm = strings.TrimSuffix(norm, "/")
	}
	sum := sha256.Sum256([]byte(norm))
	full := hex.EncodeToString(sum[:])
	if hexLen > len(full) {
		hexLen = len(full)
	}
	return full[:hexLen]
}

// IndexPathForProject returns the directory that should be used for a
// project's index under indexesRoot. It prefers an existing legacy
// (16-hex) directory so previously created indexes keep working; new
// indexes are created under the 32-hex form.
func IndexPathForProject(indexesRoot, absProjectPath string) string {
	legacy := filepath.Join(indexesRoot, HashProjectPathLegacy(absProjectPath))
	if info, err := os.Stat(legacy); err == nil && info.IsDir() {
		return legacy
	}
	return filepath.Join(indexesRoot, HashProjectPath(absProjectPath))
}
