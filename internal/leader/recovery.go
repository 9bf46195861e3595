package leader

import (
	"context"
	"fmt"
	"strings"
)

// stalePatterns matches the two suffixes a buffer's drain protocol leaves
// behind mid-flight: ":flushing" for a normal FlushIfReady rename, and
// ":force_flushing" for a ForceFlush rename.
var stalePatterns = []string{"buffer:*:flushing", "buffer:*:force_flushing"}

// StagingKeyResumer resumes a drain that was interrupted mid-rename: it
// reads the renamed key directly (as if it had just performed the rename
// itself), applies the contents via the matching bulk processor, and deletes
// the key. internal/buffer's DrainableBuffer implementations satisfy this.
type StagingKeyResumer interface {
	ResumeDrain(ctx context.Context, staleKey string) error
}

// RecoverStaleStagingKeys scans for keys left behind by a crashed prior
// leader mid-drain and resumes each one via resumer before the new leader
// starts its normal flusher loops. Resolves the "what happens to a
// :flushing key when the leader that renamed it dies" open question: the
// key is treated exactly like a freshly-renamed staging key.
func (e *Election) RecoverStaleStagingKeys(ctx context.Context, resumer StagingKeyResumer) error {
	var stale []string

	for _, pattern := range stalePatterns {
		keys, err := e.client.Keys(ctx, pattern)
		if err != nil {
			return fmt.Errorf("scan stale staging keys (%s): %w", pattern, err)
		}

		stale = append(stale, keys...)
	}

	if len(stale) == 0 {
		e.logger.Info("no stale staging keys found at leader startup")

		return nil
	}

	e.logger.Warn("recovering stale staging keys left by a crashed leader", "count", len(stale), "keys", strings.Join(stale, ","))

	var firstErr error

	for _, key := range stale {
		if err := resumer.ResumeDrain(ctx, key); err != nil {
			e.logger.Error("failed to resume stale staging key", "key", key, "error", err)

			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		e.logger.Info("resumed stale staging key", "key", key)
	}

	return firstErr
}
