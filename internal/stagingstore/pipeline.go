package stagingstore

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Pipeline is a non-transactional batch of staging-store commands. Callers
// outside this package (the out-of-scope time-series/counter updaters
// C11 enqueues into) queue writes against it and the owner executes them in
// a single round trip, mirroring the original's `client.pipeline(transaction=False)`.
type Pipeline struct {
	pipe redis.Pipeliner
}

// NewPipeline opens a fresh non-transactional pipeline against c.
func (c *Client) NewPipeline() *Pipeline {
	return &Pipeline{pipe: c.rdb.Pipeline()}
}

// Raw exposes the underlying go-redis pipeliner for callers that need a
// command this package doesn't wrap (time-series updaters live outside the
// core and speak go-redis directly).
func (p *Pipeline) Raw() redis.Pipeliner {
	return p.pipe
}

// Exec runs every queued command and returns the first error that isn't a
// "key already exists" outcome, matching the original's per-result loop in
// process_pokemon_data: duplicate-key results are swallowed, anything else
// aborts.
func (p *Pipeline) Exec(ctx context.Context) error {
	cmds, err := p.pipe.Exec(ctx)
	if err != nil && !isKeyExistsErr(err) {
		return err
	}

	for _, cmd := range cmds {
		if cerr := cmd.Err(); cerr != nil && !isKeyExistsErr(cerr) {
			return cerr
		}
	}

	return nil
}

func isKeyExistsErr(err error) bool {
	if err == nil {
		return false
	}

	return strings.Contains(strings.ToLower(err.Error()), "key already exists")
}
