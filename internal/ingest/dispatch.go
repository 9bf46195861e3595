package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hugodataanalyst/ingestpipe/internal/buffer"
	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
)

// Summary is the per-event outcome Dispatch returns, mirroring the
// original's {"status": ..., "message"/"processed_data": ...} webhook reply.
type Summary struct {
	Status  string
	Message string
}

// Dependencies are the collaborators a Dispatch call needs: a (possibly
// stale) staging-store client handle, the injected time-series updater, the
// C5 buffers gated by Config, and the aggregation-enable flags themselves.
// Any buffer left nil is treated as disabled regardless of its flag.
type Dependencies struct {
	Client         *stagingstore.Client
	TimeSeries     TimeSeriesUpdater
	IVBuffer       *buffer.IVBuffer
	ShinyBuffer    *buffer.ShinyBuffer
	RaidBuffer     *buffer.RaidBuffer
	QuestBuffer    *buffer.QuestBuffer
	InvasionBuffer *buffer.InvasionBuffer
	Config         *Config
	Logger         *slog.Logger
}

// Dispatcher is the stateless per-event entrypoint the webhook receiver
// (out of scope) calls once per filtered event. It never touches the
// relational store directly — it is append-only on the staging store, per
// §4.10.
type Dispatcher struct {
	deps Dependencies
}

// NewDispatcher builds a Dispatcher over deps.
func NewDispatcher(deps Dependencies) *Dispatcher {
	return &Dispatcher{deps: deps}
}

// ParseEvent is the per-event entrypoint grounded on
// webhook_router.py's process_single_event: it reads the event's "type",
// rejecting events that lack one, then hands off to Dispatch.
func (d *Dispatcher) ParseEvent(ctx context.Context, raw map[string]any) Summary {
	eventType, ok := raw["type"].(string)
	if !ok || eventType == "" {
		d.deps.Logger.Warn("invalid webhook format: missing type")

		return Summary{Status: "error", Message: ErrMissingType.Error()}
	}

	return Dispatch(ctx, eventType, raw, d.deps)
}

// Dispatch routes a normalized event to its own processing branch. Resolves
// open question #1: raid, quest, and invasion each get an independent
// branch — no shared elif fallthrough like the commented-out original.
func Dispatch(ctx context.Context, eventType string, raw map[string]any, deps Dependencies) Summary {
	switch eventType {
	case "pokemon":
		return dispatchPokemon(ctx, raw, deps)
	case "raid":
		return dispatchRaid(ctx, raw, deps)
	case "quest":
		return dispatchQuest(ctx, raw, deps)
	case "invasion":
		return dispatchInvasion(ctx, raw, deps)
	default:
		deps.Logger.Debug("webhook type not handled by parser", "type", eventType)

		return Summary{Status: "ignored", Message: fmt.Sprintf("webhook type %q not processed", eventType)}
	}
}

func dispatchPokemon(ctx context.Context, raw map[string]any, deps Dependencies) Summary {
	ev, err := normalizePokemon(raw)
	if err != nil {
		deps.Logger.Error("invalid pokemon event", "error", err)

		return Summary{Status: "error", Message: err.Error()}
	}

	if !buffer.ValidCoords(ev.Latitude, ev.Longitude) {
		deps.Logger.Debug("pokemon event dropped: invalid coordinates", "spawnpoint", ev.Spawnpoint)

		return Summary{Status: "ignored", Message: "invalid coordinates"}
	}

	client, err := stagingstore.EnsureClient(ctx, deps.Client, deps.Logger)
	if err != nil {
		deps.Logger.Error("staging store unavailable, dropping pokemon event", "error", err)

		return Summary{Status: "error", Message: "staging store unavailable"}
	}

	if summary := runTimeSeries(ctx, client, deps, func(pipe *stagingstore.Pipeline) error {
		_, err := deps.TimeSeries.UpdatePokemon(ctx, ev, pipe)

		return err
	}, "pokemon"); summary != nil {
		return *summary
	}

	if deps.Config.StoreSQLPokemonAggregation && deps.IVBuffer != nil {
		if err := deps.IVBuffer.IncrementEvent(ctx, ev.Spawnpoint, ev.Latitude, ev.Longitude,
			ev.PokemonID, ev.Form, ev.IV, ev.AreaID, ev.FirstSeen); err != nil {
			deps.Logger.Error("iv buffer increment failed", "error", err)

			return Summary{Status: "error", Message: err.Error()}
		}
	}

	if deps.Config.StoreSQLPokemonShiny && deps.ShinyBuffer != nil && ev.Username != nil && ev.Shiny != nil {
		shinyVal := 0
		if *ev.Shiny {
			shinyVal = 1
		}

		if err := deps.ShinyBuffer.IncrementEvent(ctx, *ev.Username, ev.PokemonID, ev.Form,
			shinyVal, ev.AreaID, ev.FirstSeen); err != nil {
			deps.Logger.Error("shiny buffer increment failed", "error", err)

			return Summary{Status: "error", Message: err.Error()}
		}
	}

	return Summary{Status: "success"}
}

func dispatchRaid(ctx context.Context, raw map[string]any, deps Dependencies) Summary {
	ev, err := normalizeRaid(raw)
	if err != nil {
		deps.Logger.Error("invalid raid event", "error", err)

		return Summary{Status: "error", Message: err.Error()}
	}

	client, err := stagingstore.EnsureClient(ctx, deps.Client, deps.Logger)
	if err != nil {
		deps.Logger.Error("staging store unavailable, dropping raid event", "error", err)

		return Summary{Status: "error", Message: "staging store unavailable"}
	}

	if summary := runTimeSeries(ctx, client, deps, func(pipe *stagingstore.Pipeline) error {
		_, err := deps.TimeSeries.UpdateRaid(ctx, ev, pipe)

		return err
	}, "raid"); summary != nil {
		return *summary
	}

	if deps.Config.StoreSQLRaidAggregation && deps.RaidBuffer != nil {
		row := buffer.RaidRow{
			Gym:             ev.Gym,
			GymName:         ev.GymName,
			Latitude:        ev.Latitude,
			Longitude:       ev.Longitude,
			RaidPokemon:     ev.RaidPokemon,
			RaidForm:        ev.RaidForm,
			RaidLevel:       ev.RaidLevel,
			RaidTeam:        ev.RaidTeam,
			RaidCostume:     ev.RaidCostume,
			RaidIsExclusive: boolToInt(ev.RaidIsExclusive),
			RaidExEligible:  boolToInt(ev.RaidExEligible),
			AreaID:          ev.AreaID,
			FirstSeen:       ev.FirstSeen.Unix(),
		}

		if err := deps.RaidBuffer.Append(ctx, row); err != nil {
			deps.Logger.Error("raid buffer append failed", "error", err)

			return Summary{Status: "error", Message: err.Error()}
		}
	}

	return Summary{Status: "success"}
}

func dispatchQuest(ctx context.Context, raw map[string]any, deps Dependencies) Summary {
	ev, err := normalizeQuest(raw)
	if err != nil {
		deps.Logger.Error("invalid quest event", "error", err)

		return Summary{Status: "error", Message: err.Error()}
	}

	client, err := stagingstore.EnsureClient(ctx, deps.Client, deps.Logger)
	if err != nil {
		deps.Logger.Error("staging store unavailable, dropping quest event", "error", err)

		return Summary{Status: "error", Message: "staging store unavailable"}
	}

	if summary := runTimeSeries(ctx, client, deps, func(pipe *stagingstore.Pipeline) error {
		_, err := deps.TimeSeries.UpdateQuest(ctx, ev, pipe)

		return err
	}, "quest"); summary != nil {
		return *summary
	}

	if deps.Config.StoreSQLQuestAggregation && deps.QuestBuffer != nil {
		row := buffer.QuestRow{
			Pokestop:       ev.Pokestop,
			PokestopName:   ev.PokestopName,
			Latitude:       ev.Latitude,
			Longitude:      ev.Longitude,
			Mode:           ev.Mode,
			TaskType:       ev.TaskType,
			AreaID:         ev.AreaID,
			FirstSeen:      ev.FirstSeen.Unix(),
			Kind:           ev.Kind,
			ItemID:         ev.ItemID,
			ItemAmount:     ev.ItemAmount,
			RewardPokeID:   ev.RewardPokeID,
			RewardPokeForm: ev.RewardPokeForm,
		}

		if err := deps.QuestBuffer.Append(ctx, row); err != nil {
			deps.Logger.Error("quest buffer append failed", "error", err)

			return Summary{Status: "error", Message: err.Error()}
		}
	}

	return Summary{Status: "success"}
}

func dispatchInvasion(ctx context.Context, raw map[string]any, deps Dependencies) Summary {
	ev, err := normalizeInvasion(raw)
	if err != nil {
		deps.Logger.Error("invalid invasion event", "error", err)

		return Summary{Status: "error", Message: err.Error()}
	}

	client, err := stagingstore.EnsureClient(ctx, deps.Client, deps.Logger)
	if err != nil {
		deps.Logger.Error("staging store unavailable, dropping invasion event", "error", err)

		return Summary{Status: "error", Message: "staging store unavailable"}
	}

	if summary := runTimeSeries(ctx, client, deps, func(pipe *stagingstore.Pipeline) error {
		_, err := deps.TimeSeries.UpdateInvasion(ctx, ev, pipe)

		return err
	}, "invasion"); summary != nil {
		return *summary
	}

	if deps.Config.StoreSQLInvasionAggregation && deps.InvasionBuffer != nil {
		row := buffer.InvasionRow{
			Pokestop:     ev.Pokestop,
			PokestopName: ev.PokestopName,
			Latitude:     ev.Latitude,
			Longitude:    ev.Longitude,
			DisplayType:  ev.DisplayType,
			Character:    ev.Character,
			Grunt:        ev.Grunt,
			Confirmed:    boolToInt(ev.Confirmed),
			AreaID:       ev.AreaID,
			FirstSeen:    ev.FirstSeen.Unix(),
		}

		if err := deps.InvasionBuffer.Append(ctx, row); err != nil {
			deps.Logger.Error("invasion buffer append failed", "error", err)

			return Summary{Status: "error", Message: err.Error()}
		}
	}

	return Summary{Status: "success"}
}

// runTimeSeries opens a pipeline, lets enqueue add its commands to it, and
// executes it tolerating ErrKeyExists — the typed form of the original's
// "key already exists" per-result string match in process_pokemon_data. A
// nil TimeSeries (no out-of-scope updater wired) skips the step entirely.
// Returns a non-nil Summary only when the caller should return early.
func runTimeSeries(
	ctx context.Context,
	client *stagingstore.Client,
	deps Dependencies,
	enqueue func(pipe *stagingstore.Pipeline) error,
	eventType string,
) *Summary {
	if deps.TimeSeries == nil {
		return nil
	}

	pipe := client.NewPipeline()

	if err := enqueue(pipe); err != nil {
		deps.Logger.Error("time-series update failed", "type", eventType, "error", err)

		s := Summary{Status: "error", Message: err.Error()}

		return &s
	}

	if err := pipe.Exec(ctx); err != nil {
		deps.Logger.Error("staging pipeline exec failed", "type", eventType, "error", err)

		s := Summary{Status: "error", Message: err.Error()}

		return &s
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
