// Package chunker implements the Chunker: it splits a file's bytes into
// an ordered, overlapping sequence of line-range chunks covering the
// whole file, each carrying a stable content-addressed id. Generalized
// from the teacher's tree-sitter-free chunkByLines fallback path — this
// engine chunks every file that way rather than reserving it for
// languages an AST parser doesn't cover.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// MaxChunksPerFile caps how many chunks a single file may produce;
// exceeding it truncates the remainder and logs a warning.
const MaxChunksPerFile = 1000

// linesPerChunk and overlapLines mirror the teacher's line-based
// fallback sizing: 128 lines per chunk (about 2,560 tokens at roughly
// 4 chars/token and 80 chars/line), with a small fixed overlap so a symbol split across a
// chunk boundary still appears whole in at least one chunk.
const (
	linesPerChunk = 128
	overlapLines  = 16
)

// Chunk is an immutable retrievable unit of file content.
type Chunk struct {
	ID          string
	Path        string // relative, forward-slash
	Text        string
	StartLine   int // 1-indexed
	EndLine     int // inclusive
	ContentHash string
}

// Chunk splits content (the full bytes of the file at relPath) into an
// ordered sequence of overlapping line-range chunks. An empty or
// all-whitespace file yields no chunks.
func Chunk(relPath string, content []byte) []Chunk {
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	var chunks []Chunk

	for i := 0; i < len(lines); {
		if len(chunks) >= MaxChunksPerFile {
			slog.Warn("chunk_cap_exceeded_truncating",
				slog.String("path", relPath),
				slog.Int("cap", MaxChunksPerFile),
				slog.Int("totalLines", len(lines)))
			break
		}
		if len(chunks) == int(0.8*MaxChunksPerFile) {
			slog.Warn("chunk_count_approaching_cap",
				slog.String("path", relPath),
				slog.Int("count", len(chunks)),
				slog.Int("cap", MaxChunksPerFile))
		}

		end := i + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}

		chunkText := strings.Join(lines[i:end], "\n")
		startLine := i + 1
		endLine := end

		contentHash := sha256Hex(chunkText)
		chunks = append(chunks, Chunk{
			ID:          chunkID(relPath, startLine, contentHash),
			Path:        relPath,
			Text:        chunkText,
			StartLine:   startLine,
			EndLine:     endLine,
			ContentHash: contentHash,
		})

		i = end - overlapLines
		if i <= 0 || end >= len(lines) {
			break
		}
	}

	return chunks
}

// chunkID derives a stable id from (path, start_line, content_hash), per
// spec.md §3's "hash(path ⊕ start_line ⊕ contentHash)" chunk-id
// contract.
func chunkID(path string, startLine int, contentHash string) string {
	input := fmt.Sprintf("%s\x00%d\x00%s", path, startLine, contentHash)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// sha256Hex computes the full 64-hex SHA-256 of text.
func sha256Hex(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
