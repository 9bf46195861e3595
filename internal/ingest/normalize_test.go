package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePokemonHappyPath(t *testing.T) {
	raw := map[string]any{
		"type":        "pokemon",
		"spawnpoint":  "abcdef",
		"latitude":    37.7749,
		"longitude":   -122.4194,
		"pokemon_id":  float64(25),
		"form":        "0",
		"iv":          float64(96),
		"area_id":     float64(3),
		"first_seen":  float64(1757462400),
		"username":    "ash",
		"shiny":       true,
	}

	ev, err := normalizePokemon(raw)
	require.NoError(t, err)

	assert.Equal(t, "abcdef", ev.Spawnpoint)
	assert.Equal(t, 25, ev.PokemonID)
	assert.Equal(t, 96, ev.IV)
	assert.Equal(t, 3, ev.AreaID)
	require.NotNil(t, ev.Username)
	assert.Equal(t, "ash", *ev.Username)
	require.NotNil(t, ev.Shiny)
	assert.True(t, *ev.Shiny)
}

func TestNormalizePokemonMissingRequiredField(t *testing.T) {
	raw := map[string]any{"latitude": 1.0}

	_, err := normalizePokemon(raw)
	require.ErrorIs(t, err, ErrMissingField)
}

func TestNormalizeRaid(t *testing.T) {
	raw := map[string]any{
		"raid_gym_id":            "gym-1",
		"raid_gym_name":          "Old Gym",
		"raid_latitude":          1.0,
		"raid_longitude":         2.0,
		"raid_pokemon":           float64(150),
		"raid_level":             float64(5),
		"raid_is_exclusive":      float64(1),
		"raid_ex_raid_eligible":  float64(0),
		"area_id":                float64(7),
		"raid_first_seen":        float64(1757462400),
	}

	ev, err := normalizeRaid(raw)
	require.NoError(t, err)

	assert.Equal(t, "gym-1", ev.Gym)
	assert.Equal(t, 150, ev.RaidPokemon)
	assert.True(t, ev.RaidIsExclusive)
	assert.False(t, ev.RaidExEligible)
}

func TestNormalizeQuestItemBranch(t *testing.T) {
	raw := map[string]any{
		"pokestop":  "stop-1",
		"area_id":   float64(1),
		"first_seen": float64(1757462400),
		"mode":      float64(0),
		"task_type": float64(1),
		"kind":      float64(0),
		"item_id":   float64(1),
		"item_amount": float64(3),
	}

	ev, err := normalizeQuest(raw)
	require.NoError(t, err)

	assert.Equal(t, 0, ev.Kind)
	assert.Equal(t, 1, ev.ItemID)
	assert.Equal(t, 3, ev.ItemAmount)
	assert.Equal(t, 0, ev.RewardPokeID)
	assert.Equal(t, "", ev.RewardPokeForm)
}

func TestNormalizeQuestPokemonBranch(t *testing.T) {
	raw := map[string]any{
		"pokestop":  "stop-1",
		"area_id":   float64(1),
		"first_seen": float64(1757462400),
		"mode":      float64(1),
		"task_type": float64(2),
		"kind":      float64(1),
		"poke_id":   float64(25),
		"poke_form": "0",
	}

	ev, err := normalizeQuest(raw)
	require.NoError(t, err)

	assert.Equal(t, 1, ev.Kind)
	assert.Equal(t, 25, ev.RewardPokeID)
	assert.Equal(t, "0", ev.RewardPokeForm)
	assert.Equal(t, 0, ev.ItemID)
}

func TestNormalizeQuestUnknownKind(t *testing.T) {
	raw := map[string]any{
		"pokestop":  "stop-1",
		"area_id":   float64(1),
		"first_seen": float64(1757462400),
		"mode":      float64(0),
		"task_type": float64(1),
		"kind":      float64(9),
	}

	_, err := normalizeQuest(raw)
	require.ErrorIs(t, err, ErrUnknownQuestKind)
}

func TestNormalizeInvasion(t *testing.T) {
	raw := map[string]any{
		"invasion_pokestop_id": "stop-2",
		"invasion_latitude":    1.0,
		"invasion_longitude":   2.0,
		"area_id":              float64(4),
		"invasion_first_seen":  float64(1757462400),
		"invasion_confirmed":   float64(1),
	}

	ev, err := normalizeInvasion(raw)
	require.NoError(t, err)

	assert.Equal(t, "stop-2", ev.Pokestop)
	assert.True(t, ev.Confirmed)
}
