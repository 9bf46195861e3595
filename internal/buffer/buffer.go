// Package buffer implements the two staging-buffer shapes the ingestion
// path writes into and the flusher/leader-recovery paths drain from: a
// hash-increment shape for aggregate counters and a list-append shape for
// raw daily-event lines.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
)

// DrainResult reports the outcome of a single drain cycle.
type DrainResult struct {
	// UniqueKeys is the number of distinct composite keys (hash shape) or
	// lines (list shape) read out of the staging store.
	UniqueKeys int
	// Malformed counts composite keys/lines that failed to parse and were
	// skipped rather than aborting the whole drain.
	Malformed int
	// Applied is the processor's own return value: for aggregate families,
	// input rows accepted; for daily families, rows actually inserted.
	Applied int
}

// Suffix values used to rename a buffer key before reading it, matching the
// original's ":flushing" (threshold-triggered) and ":force_flushing"
// (forced, e.g. on shutdown or a fixed cadence) temp-key conventions.
const (
	SuffixFlushing      = ":flushing"
	SuffixForceFlushing = ":force_flushing"
)

var errBufferEmpty = errors.New("buffer: nothing to drain")

// DrainableBuffer is what the periodic flusher (and leader-recovery) drive:
// every concrete buffer type in this package implements it.
type DrainableBuffer interface {
	FlushIfReady(ctx context.Context) (DrainResult, error)
	ForceFlush(ctx context.Context) (DrainResult, error)
	ResumeDrain(ctx context.Context, staleKey string) error
}

// drain implements the shared rename -> read -> parse -> apply -> delete
// sequence. readAll fetches the renamed key's raw contents (HGETALL or
// LRANGE, depending on shape) and parses them into typed rows, returning
// the raw entry count, the rows, and the count of malformed entries it
// skipped; apply hands the parsed rows to the matching bulk processor.
func drain[Row any](
	ctx context.Context,
	client *stagingstore.Client,
	logger *slog.Logger,
	key, tempKey string,
	readAll func(ctx context.Context, tempKey string) (int, []Row, int, error),
	apply func(ctx context.Context, rows []Row) (int, error),
) (DrainResult, error) {
	exists, err := client.Exists(ctx, key)
	if err != nil {
		return DrainResult{}, fmt.Errorf("check buffer existence: %w", err)
	}

	if !exists {
		return DrainResult{}, errBufferEmpty
	}

	if err := client.Rename(ctx, key, tempKey); err != nil {
		if errors.Is(err, stagingstore.ErrNoSuchKey) {
			logger.Debug("buffer disappeared before rename, nothing to flush", "key", key)

			return DrainResult{}, errBufferEmpty
		}

		return DrainResult{}, fmt.Errorf("rename buffer for drain: %w", err)
	}

	defer func() {
		if err := client.Del(ctx, tempKey); err != nil {
			logger.Warn("failed to clean up drained buffer key", "key", tempKey, "error", err)
		}
	}()

	return resumeDrain(ctx, tempKey, readAll, apply)
}

// resumeDrain runs the read -> parse -> apply steps against an already-
// renamed key, used both by a normal drain and by leader-startup recovery of
// a key a crashed prior leader left mid-flight.
func resumeDrain[Row any](
	ctx context.Context,
	tempKey string,
	readAll func(ctx context.Context, tempKey string) (int, []Row, int, error),
	apply func(ctx context.Context, rows []Row) (int, error),
) (DrainResult, error) {
	total, rows, malformed, err := readAll(ctx, tempKey)
	if err != nil {
		return DrainResult{}, fmt.Errorf("read drained buffer: %w", err)
	}

	if len(rows) == 0 {
		return DrainResult{UniqueKeys: total, Malformed: malformed}, nil
	}

	applied, err := apply(ctx, rows)
	if err != nil {
		return DrainResult{UniqueKeys: total, Malformed: malformed}, fmt.Errorf("apply drained buffer: %w", err)
	}

	return DrainResult{UniqueKeys: total, Malformed: malformed, Applied: applied}, nil
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
