// Package atomicstore implements crash-consistent JSON persistence:
// temp-file-plus-rename writes, and size-capped loads. It is the single
// place every other store (fingerprints, metadata, config) goes through
// to touch disk, grounded on the teacher's HNSWStore.Save/Load
// temp+rename pattern generalized to arbitrary JSON payloads.
package atomicstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/codesearch/engine/internal/engineerr"
)

// DefaultMaxLoadBytes is the default cap enforced by Load before parsing.
const DefaultMaxLoadBytes = 10 * 1024 * 1024 // 10 MiB

var tmpCounter uint64

// SaveJSON writes v to path as pretty JSON ending in "\n", via a temp
// sibling file that is renamed into place. The temp suffix includes a
// monotonic counter and the process id so concurrent writers never
// collide. On any failure before rename, the temp file is removed
// best-effort.
func SaveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not create index directory", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not serialize index data", err)
	}
	data = append(data, '\n')

	n := atomic.AddUint64(&tmpCounter, 1)
	tmp := fmt.Sprintf("%s.tmp.%d.%d", path, os.Getpid(), n)

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not write index data", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return engineerr.Wrap(engineerr.IndexCorrupt, "could not finalize index data", err)
	}
	return nil
}

// LoadJSON reads path and unmarshals it into v. A missing file is
// reported via os.IsNotExist on the returned error so callers can
// tolerate it as "use defaults". Files larger than maxBytes (0 means
// DefaultMaxLoadBytes) fail with a ResourceLimit error before parsing.
func LoadJSON(path string, v any, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxLoadBytes
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() > maxBytes {
		return engineerr.Newf(engineerr.ResourceLimit,
			"index file is too large to load safely",
			"file %s is %d bytes, exceeds cap of %d bytes", path, info.Size(), maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return engineerr.Wrap(engineerr.IndexCorrupt, "index data is corrupt", err)
	}
	return nil
}

// Exists reports whether path exists (any type), without following the
// "is it a regular file" question that callers may additionally want.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DirSize sums the apparent size of every regular file under root,
// used to report an index directory's on-disk footprint. A missing
// root reports zero size rather than an error.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return 0, nil
	}
	return total, err
}
