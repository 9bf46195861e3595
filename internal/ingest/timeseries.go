package ingest

import (
	"context"

	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
)

// TimeSeriesUpdater enqueues the out-of-scope time-series/counter updates
// (my_redis/queries/updates/* in the original) onto a pipeline and reports a
// per-field update summary. The real implementation — binary time series,
// weekly/hourly counters, TTH tracking — lives outside this core per
// spec.md's explicit scope boundary; Dispatch only needs the narrow
// contract of "accepts an event + a pipeline handle, returns a summary".
type TimeSeriesUpdater interface {
	UpdatePokemon(ctx context.Context, ev PokemonEvent, pipe *stagingstore.Pipeline) (map[string]any, error)
	UpdateRaid(ctx context.Context, ev RaidEvent, pipe *stagingstore.Pipeline) (map[string]any, error)
	UpdateQuest(ctx context.Context, ev QuestEvent, pipe *stagingstore.Pipeline) (map[string]any, error)
	UpdateInvasion(ctx context.Context, ev InvasionEvent, pipe *stagingstore.Pipeline) (map[string]any, error)
}

// NopTimeSeriesUpdater enqueues nothing. Used where a deployment has no
// time-series/dashboard subsystem wired up and only wants the SQL
// aggregation side of the pipeline.
type NopTimeSeriesUpdater struct{}

func (NopTimeSeriesUpdater) UpdatePokemon(context.Context, PokemonEvent, *stagingstore.Pipeline) (map[string]any, error) {
	return nil, nil
}

func (NopTimeSeriesUpdater) UpdateRaid(context.Context, RaidEvent, *stagingstore.Pipeline) (map[string]any, error) {
	return nil, nil
}

func (NopTimeSeriesUpdater) UpdateQuest(context.Context, QuestEvent, *stagingstore.Pipeline) (map[string]any, error) {
	return nil, nil
}

func (NopTimeSeriesUpdater) UpdateInvasion(context.Context, InvasionEvent, *stagingstore.Pipeline) (map[string]any, error) {
	return nil, nil
}
