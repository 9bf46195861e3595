package relstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Run("empty dsn", func(t *testing.T) {
		cfg := &Config{}
		require.ErrorIs(t, cfg.Validate(), ErrDatabaseURLEmpty)
	})

	t.Run("valid dsn", func(t *testing.T) {
		cfg := &Config{dsn: "user:pass@tcp(localhost:3306)/db"}
		require.NoError(t, cfg.Validate())
	})
}

func TestMaskDSN(t *testing.T) {
	cfg := &Config{dsn: "user:secret@tcp(localhost:3306)/db"}
	assert.Equal(t, "user:***@tcp(localhost:3306)/db", cfg.MaskDSN())

	cfg = &Config{dsn: ""}
	assert.Equal(t, "", cfg.MaskDSN())

	cfg = &Config{dsn: "tcp(localhost:3306)/db"}
	assert.Equal(t, "tcp(localhost:3306)/db", cfg.MaskDSN())
}
