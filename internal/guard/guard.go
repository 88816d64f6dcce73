// Package guard implements the Disk and Memory resource guards of
// spec.md §5: a pre-flight disk-space estimate plus a background
// low-disk monitor, and a heap-pressure-aware batch-size throttle for
// the embedding pipeline. Grounded on the teacher's
// internal/preflight/disk.go and internal/preflight/memory.go.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"syscall"
	"time"

	"github.com/codesearch/engine/internal/engineerr"
)

// Disk-guard constants, per spec.md §5.
const (
	baseDiskBudgetBytes   = 100 * 1024 * 1024
	perFileBudgetBytes    = 5 * 1024
	preflightSafetyMargin = 1.1
	lowDiskThresholdBytes = 50 * 1024 * 1024
	diskSampleInterval    = 5 * time.Second
)

// EstimateRequiredBytes returns the pre-flight disk budget for
// indexing fileCount files: (100MB + 5KB/file) * 1.1.
func EstimateRequiredBytes(fileCount int) int64 {
	return int64(float64(baseDiskBudgetBytes+int64(fileCount)*perFileBudgetBytes) * preflightSafetyMargin)
}

// CheckDiskSpace reports the bytes available at path and errors with
// ResourceLimit if that falls short of EstimateRequiredBytes(fileCount).
func CheckDiskSpace(path string, fileCount int) (availableBytes int64, err error) {
	available, err := availableDiskBytes(path)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.ResourceLimit, "could not determine available disk space", err)
	}
	required := EstimateRequiredBytes(fileCount)
	if available < required {
		return available, engineerr.Newf(engineerr.ResourceLimit,
			"insufficient disk space to index this project",
			"available %d bytes, required %d bytes (estimated from %d files)", available, required, fileCount)
	}
	return available, nil
}

func availableDiskBytes(path string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

// MonitorDisk samples available disk space at path every
// diskSampleInterval until ctx is done, calling abort (once) if
// available space ever drops below lowDiskThresholdBytes. Intended to
// run in its own goroutine for the duration of one indexing run.
func MonitorDisk(ctx context.Context, path string, abort func(error)) {
	ticker := time.NewTicker(diskSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			available, err := availableDiskBytes(path)
			if err != nil {
				slog.Warn("disk monitor sample failed", slog.String("error", err.Error()))
				continue
			}
			if available < lowDiskThresholdBytes {
				abort(engineerr.Newf(engineerr.DiskFull,
					"available disk space dropped below the safety threshold during indexing",
					"available %d bytes, threshold %d bytes", available, lowDiskThresholdBytes))
				return
			}
		}
	}
}

// Memory-guard constants, per spec.md §5.
const (
	// MinHeapForThrottle is the heap size below which throttling is
	// skipped entirely, so small transient spikes never slow the
	// pipeline down.
	MinHeapForThrottle = 256 * 1024 * 1024

	heapWarnThreshold  = 0.70
	heapShrinkThreshold = 0.85
)

// BatchSizer shrinks an embedding batch size in response to heap
// pressure: to half of its default at 70% of heapLimit, and to floor at
// 85%, only once total heap usage exceeds MinHeapForThrottle.
type BatchSizer struct {
	DefaultBatchSize int
	FloorBatchSize   int
	HeapLimitBytes   uint64 // the heap budget thresholds are measured against
}

// NewBatchSizer builds a BatchSizer with the given default/floor sizes
// and heap budget.
func NewBatchSizer(defaultBatchSize, floorBatchSize int, heapLimitBytes uint64) *BatchSizer {
	return &BatchSizer{DefaultBatchSize: defaultBatchSize, FloorBatchSize: floorBatchSize, HeapLimitBytes: heapLimitBytes}
}

// CurrentBatchSize reads live heap stats and returns the batch size to
// use for the next embedding call.
func (b *BatchSizer) CurrentBatchSize() int {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return b.batchSizeForHeap(stats.HeapAlloc)
}

func (b *BatchSizer) batchSizeForHeap(heapAlloc uint64) int {
	if heapAlloc < MinHeapForThrottle {
		return b.DefaultBatchSize
	}
	if b.HeapLimitBytes == 0 {
		return b.DefaultBatchSize
	}
	ratio := float64(heapAlloc) / float64(b.HeapLimitBytes)
	switch {
	case ratio >= heapShrinkThreshold:
		return b.FloorBatchSize
	case ratio >= heapWarnThreshold:
		half := b.DefaultBatchSize / 2
		if half < b.FloorBatchSize {
			return b.FloorBatchSize
		}
		return half
	default:
		return b.DefaultBatchSize
	}
}
