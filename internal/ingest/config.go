package ingest

import "github.com/hugodataanalyst/ingestpipe/internal/config"

// Config gates which C5 buffers Dispatch feeds, mirroring the
// store_sql_*_aggregation / store_sql_pokemon_shiny flags the original reads
// from AppConfig before calling each buffer's increment_event.
type Config struct {
	StoreSQLPokemonAggregation  bool
	StoreSQLPokemonShiny        bool
	StoreSQLRaidAggregation     bool
	StoreSQLQuestAggregation    bool
	StoreSQLInvasionAggregation bool
}

// LoadConfig loads the aggregation-enable flags from the environment.
func LoadConfig() *Config {
	return &Config{
		StoreSQLPokemonAggregation:  config.GetEnvBool("STORE_SQL_POKEMON_AGGREGATION", true),
		StoreSQLPokemonShiny:        config.GetEnvBool("STORE_SQL_POKEMON_SHINY", true),
		StoreSQLRaidAggregation:     config.GetEnvBool("STORE_SQL_RAID_AGGREGATION", true),
		StoreSQLQuestAggregation:    config.GetEnvBool("STORE_SQL_QUEST_AGGREGATION", true),
		StoreSQLInvasionAggregation: config.GetEnvBool("STORE_SQL_INVASION_AGGREGATION", true),
	}
}
