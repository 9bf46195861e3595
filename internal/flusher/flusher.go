// Package flusher runs the periodic drain loop that empties staging buffers
// into the relational store on a timer, independent of the threshold-based
// flush each buffer already does on its own hot path.
package flusher

import (
	"context"
	"log/slog"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/buffer"
)

const defaultForceEveryN = 6

// HealthChecker is the narrow slice of stagingstore.Client a Flusher needs to
// decide whether to skip a cycle.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Flusher periodically drains one staging buffer. Most cycles call
// FlushIfReady; every ForceEveryN cycles it calls ForceFlush instead. Both
// drain whatever the buffer holds, whatever its size; they differ only in
// the staging-key suffix (":flushing" or ":force_flushing") the drain uses.
type Flusher struct {
	Name        string
	Buffer      buffer.DrainableBuffer
	Health      HealthChecker
	Interval    time.Duration
	ForceEveryN int

	logger *slog.Logger
	cycle  int
}

func New(name string, buf buffer.DrainableBuffer, health HealthChecker, interval time.Duration, forceEveryN int, logger *slog.Logger) *Flusher {
	if forceEveryN <= 0 {
		forceEveryN = defaultForceEveryN
	}

	return &Flusher{
		Name:        name,
		Buffer:      buf,
		Health:      health,
		Interval:    interval,
		ForceEveryN: forceEveryN,
		logger:      logger,
	}
}

// Run blocks, draining the buffer on every Interval tick until ctx is
// cancelled, at which point it performs one final ForceFlush before
// returning.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := f.Buffer.ForceFlush(context.Background()); err != nil {
				f.logger.Error("final force flush failed", "flusher", f.Name, "error", err)
			}

			return nil
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *Flusher) tick(ctx context.Context) {
	if f.Health != nil {
		if err := f.Health.HealthCheck(ctx); err != nil {
			f.logger.Warn("staging store unhealthy, skipping flush cycle", "flusher", f.Name, "error", err)
			return
		}
	}

	f.cycle++

	var (
		result buffer.DrainResult
		err    error
	)

	if f.cycle%f.ForceEveryN == 0 {
		result, err = f.Buffer.ForceFlush(ctx)
	} else {
		result, err = f.Buffer.FlushIfReady(ctx)
	}

	if err != nil {
		f.logger.Error("flush cycle failed", "flusher", f.Name, "error", err)
		return
	}

	if result.Applied > 0 || result.Malformed > 0 {
		f.logger.Info("flush cycle complete", "flusher", f.Name,
			"unique_keys", result.UniqueKeys, "applied", result.Applied, "malformed", result.Malformed)
	}
}
