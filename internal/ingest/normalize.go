package ingest

import (
	"fmt"
	"time"
)

// PokemonEvent is a normalized Pokemon sighting, grounded on the
// filtered_data shape process_pokemon_data and PokemonSQLProcessor._row_from_event
// read: spawnpoint, latitude, longitude, pokemon_id, form, iv, area_id,
// first_seen, plus the optional username/shiny pair the shiny-rate buffer
// needs.
type PokemonEvent struct {
	Spawnpoint string
	Latitude   *float64
	Longitude  *float64
	PokemonID  int
	Form       string
	IV         int
	Level      int
	AreaID     int
	AreaName   string
	FirstSeen  time.Time
	Username   *string
	Shiny      *bool
}

// RaidEvent is a normalized raid sighting, grounded on raids_processor.py's
// _row_from_event field reads (raid_gym_id, raid_latitude, ...).
type RaidEvent struct {
	Gym             string
	GymName         string
	Latitude        float64
	Longitude       float64
	RaidPokemon     int
	RaidLevel       int
	RaidForm        string
	RaidTeam        int
	RaidCostume     string
	RaidIsExclusive bool
	RaidExEligible  bool
	AreaID          int
	AreaName        string
	FirstSeen       time.Time
}

// QuestEvent is a normalized quest sighting. Kind selects which reward
// branch is populated: 0 = item reward (ItemID/ItemAmount), 1 = pokemon
// reward (RewardPokeID/RewardPokeForm); the other branch's fields stay
// zeroed, matching quests_processor.py's item/pokemon split.
type QuestEvent struct {
	Pokestop       string
	PokestopName   string
	Latitude       float64
	Longitude      float64
	Mode           int
	TaskType       int
	AreaID         int
	AreaName       string
	FirstSeen      time.Time
	Kind           int
	ItemID         int
	ItemAmount     int
	RewardPokeID   int
	RewardPokeForm string
}

// InvasionEvent is a normalized invasion sighting, grounded on
// invasions_processor.py's field reads (invasion_pokestop_id, invasion_type, ...).
type InvasionEvent struct {
	Pokestop     string
	PokestopName string
	Latitude     float64
	Longitude    float64
	DisplayType  int
	Character    int
	Grunt        int
	Confirmed    bool
	AreaID       int
	AreaName     string
	FirstSeen    time.Time
}

// normalizePokemon builds a PokemonEvent from a raw webhook payload.
func normalizePokemon(raw map[string]any) (PokemonEvent, error) {
	spawnpoint, err := fieldString(raw, "spawnpoint")
	if err != nil {
		return PokemonEvent{}, err
	}

	pokemonID, err := fieldInt(raw, "pokemon_id")
	if err != nil {
		return PokemonEvent{}, err
	}

	iv, err := fieldInt(raw, "iv")
	if err != nil {
		return PokemonEvent{}, err
	}

	areaID, err := fieldInt(raw, "area_id")
	if err != nil {
		return PokemonEvent{}, err
	}

	firstSeen, err := fieldUnixTime(raw, "first_seen")
	if err != nil {
		return PokemonEvent{}, err
	}

	return PokemonEvent{
		Spawnpoint: spawnpoint,
		Latitude:   optFloatPtr(raw, "latitude"),
		Longitude:  optFloatPtr(raw, "longitude"),
		PokemonID:  pokemonID,
		Form:       optString(raw, "form", "0"),
		IV:         iv,
		Level:      optInt(raw, "level", 0),
		AreaID:     areaID,
		AreaName:   optString(raw, "area_name", ""),
		FirstSeen:  firstSeen,
		Username:   optStringPtr(raw, "username"),
		Shiny:      optBoolPtr(raw, "shiny"),
	}, nil
}

// normalizeRaid builds a RaidEvent from a raw webhook payload.
func normalizeRaid(raw map[string]any) (RaidEvent, error) {
	gym, err := fieldString(raw, "raid_gym_id")
	if err != nil {
		return RaidEvent{}, err
	}

	lat, err := fieldFloat(raw, "raid_latitude")
	if err != nil {
		return RaidEvent{}, err
	}

	lon, err := fieldFloat(raw, "raid_longitude")
	if err != nil {
		return RaidEvent{}, err
	}

	areaID, err := fieldInt(raw, "area_id")
	if err != nil {
		return RaidEvent{}, err
	}

	firstSeen, err := fieldUnixTime(raw, "raid_first_seen")
	if err != nil {
		return RaidEvent{}, err
	}

	return RaidEvent{
		Gym:             gym,
		GymName:         optString(raw, "raid_gym_name", ""),
		Latitude:        lat,
		Longitude:       lon,
		RaidPokemon:     optInt(raw, "raid_pokemon", 0),
		RaidLevel:       optInt(raw, "raid_level", 0),
		RaidForm:        optString(raw, "raid_form", "0"),
		RaidTeam:        optInt(raw, "raid_team_id", 0),
		RaidCostume:     optString(raw, "raid_costume", "0"),
		RaidIsExclusive: optInt(raw, "raid_is_exclusive", 0) != 0,
		RaidExEligible:  optInt(raw, "raid_ex_raid_eligible", 0) != 0,
		AreaID:          areaID,
		AreaName:        optString(raw, "area_name", ""),
		FirstSeen:       firstSeen,
	}, nil
}

// normalizeQuest builds a QuestEvent from a raw webhook payload, zeroing
// whichever reward branch Kind doesn't select.
func normalizeQuest(raw map[string]any) (QuestEvent, error) {
	pokestop, err := fieldString(raw, "pokestop")
	if err != nil {
		return QuestEvent{}, err
	}

	areaID, err := fieldInt(raw, "area_id")
	if err != nil {
		return QuestEvent{}, err
	}

	firstSeen, err := fieldUnixTime(raw, "first_seen")
	if err != nil {
		return QuestEvent{}, err
	}

	mode, err := fieldInt(raw, "mode")
	if err != nil {
		return QuestEvent{}, err
	}

	taskType, err := fieldInt(raw, "task_type")
	if err != nil {
		return QuestEvent{}, err
	}

	kind, err := fieldInt(raw, "kind")
	if err != nil {
		return QuestEvent{}, err
	}

	lat := optFloatOrZero(raw, "latitude")
	lon := optFloatOrZero(raw, "longitude")

	result := QuestEvent{
		Pokestop:     pokestop,
		PokestopName: optString(raw, "pokestop_name", ""),
		Latitude:     lat,
		Longitude:    lon,
		Mode:         mode,
		TaskType:     taskType,
		AreaID:       areaID,
		AreaName:     optString(raw, "area_name", ""),
		FirstSeen:    firstSeen,
		Kind:         kind,
	}

	switch kind {
	case 0:
		result.ItemID = optInt(raw, "item_id", 0)
		result.ItemAmount = optInt(raw, "item_amount", 1)
	case 1:
		result.RewardPokeID = optInt(raw, "poke_id", 0)
		result.RewardPokeForm = optString(raw, "poke_form", "0")
	default:
		return QuestEvent{}, fmt.Errorf("%w: %d", ErrUnknownQuestKind, kind)
	}

	return result, nil
}

// normalizeInvasion builds an InvasionEvent from a raw webhook payload.
func normalizeInvasion(raw map[string]any) (InvasionEvent, error) {
	pokestop, err := fieldString(raw, "invasion_pokestop_id")
	if err != nil {
		return InvasionEvent{}, err
	}

	lat, err := fieldFloat(raw, "invasion_latitude")
	if err != nil {
		return InvasionEvent{}, err
	}

	lon, err := fieldFloat(raw, "invasion_longitude")
	if err != nil {
		return InvasionEvent{}, err
	}

	areaID, err := fieldInt(raw, "area_id")
	if err != nil {
		return InvasionEvent{}, err
	}

	firstSeen, err := fieldUnixTime(raw, "invasion_first_seen")
	if err != nil {
		return InvasionEvent{}, err
	}

	return InvasionEvent{
		Pokestop:     pokestop,
		PokestopName: optString(raw, "invasion_pokestop_name", ""),
		Latitude:     lat,
		Longitude:    lon,
		DisplayType:  optInt(raw, "invasion_type", 0),
		Character:    optInt(raw, "invasion_character", 0),
		Grunt:        optInt(raw, "invasion_grunt_type", 0),
		Confirmed:    optInt(raw, "invasion_confirmed", 0) != 0,
		AreaID:       areaID,
		AreaName:     optString(raw, "area_name", ""),
		FirstSeen:    firstSeen,
	}, nil
}

func optFloatOrZero(raw map[string]any, key string) float64 {
	if p := optFloatPtr(raw, key); p != nil {
		return *p
	}

	return 0
}
