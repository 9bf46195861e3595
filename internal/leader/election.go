// Package leader implements single-holder advisory-lock leader election over
// the staging store. No consensus protocol beyond the lock itself.
package leader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
)

const defaultKey = "ingest:leader"

// ErrNotLeader is returned by operations that require leadership when the
// caller does not (or no longer) hold the lock.
var ErrNotLeader = errors.New("leader: this worker does not hold the lock")

var (
	// extendScript renews the lock's TTL only if the stored value still
	// matches this worker's ID, preventing a worker from renewing a lock it
	// no longer owns after an expiry/reacquire race.
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

	// releaseScript deletes the lock only if the stored value still matches
	// this worker's ID. Safe to call on a non-owned or already-expired key.
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// Election manages a single TTL-based advisory lock over one staging-store
// key.
type Election struct {
	client   *stagingstore.Client
	logger   *slog.Logger
	key      string
	ttl      time.Duration
	workerID string

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
}

// New constructs an Election for the given key (default "ingest:leader" when
// empty) with the given lock TTL. workerID is "hostname-pid-<uuid4 suffix>".
func New(client *stagingstore.Client, logger *slog.Logger, key string, ttl time.Duration) *Election {
	if key == "" {
		key = defaultKey
	}

	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8])

	return &Election{
		client:   client,
		logger:   logger,
		key:      key,
		ttl:      ttl,
		workerID: workerID,
	}
}

// WorkerID returns this election's generated worker identity.
func (e *Election) WorkerID() string { return e.workerID }

// TryAcquire attempts SET key=workerID NX EX=ttl. Returns true if this
// worker now holds the lock.
func (e *Election) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := e.client.Eval(ctx, redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX", "EX", ARGV[2]) then
	return 1
end
return 0
`), []string{e.key}, e.workerID, int(e.ttl.Seconds()))
	if err != nil {
		return false, fmt.Errorf("try acquire: %w", err)
	}

	acquired := ok.(int64) == 1
	if acquired {
		e.startHeartbeat(ctx)
	}

	return acquired, nil
}

// startHeartbeat launches a goroutine that renews the lock every ttl/3 until
// Release is called or the heartbeat fails to extend (lock lost).
func (e *Election) startHeartbeat(ctx context.Context) {
	e.stopHeartbeat = make(chan struct{})
	e.heartbeatDone = make(chan struct{})

	interval := e.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(e.heartbeatDone)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.stopHeartbeat:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				extended, err := e.client.Eval(ctx, extendScript, []string{e.key}, e.workerID, int(e.ttl.Seconds()))
				if err != nil {
					e.logger.Warn("leader heartbeat failed", "error", err)

					continue
				}

				if extended.(int64) == 0 {
					e.logger.Warn("leader heartbeat: lock no longer held by this worker")

					return
				}
			}
		}
	}()
}

// Release deletes the lock if still owned by this worker and stops the
// heartbeat goroutine. Safe to call even if the lock was never acquired.
func (e *Election) Release(ctx context.Context) error {
	if e.stopHeartbeat != nil {
		close(e.stopHeartbeat)
		<-e.heartbeatDone
	}

	_, err := e.client.Eval(ctx, releaseScript, []string{e.key}, e.workerID)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	return nil
}
