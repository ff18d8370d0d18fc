package dbconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	cfg := Default()
	cfg.User = "app"
	cfg.Password = "p@ss/word"
	cfg.Host = "db"
	cfg.Port = 6543

	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:6543/guessmoji?sslmode=disable", cfg.DSN())
	assert.Equal(t, cfg.DSN(), cfg.ListenerDSN())

	cfg.URL = "postgres://u@pooler/guessmoji"
	cfg.ListenerURL = "postgres://u@direct/guessmoji"
	assert.Equal(t, "postgres://u@pooler/guessmoji", cfg.DSN())
	assert.Equal(t, "postgres://u@direct/guessmoji", cfg.ListenerDSN())
}

func TestApplyEnvOnlyOverridesSetVariables(t *testing.T) {
	t.Setenv("DB_NAME", "other")
	t.Setenv("DB_PORT", "not-a-port")
	t.Setenv("DB_POOL_SIZE", "3")

	cfg := Default()
	cfg.Host = "from-yaml"
	cfg.ApplyEnv()

	assert.Equal(t, "from-yaml", cfg.Host)
	assert.Equal(t, "other", cfg.Database)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, int32(3), cfg.PoolSize)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no database", func(c *Config) { c.Database = "" }},
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"no pool", func(c *Config) { c.PoolSize = 0 }},
		{"idle above open", func(c *Config) { c.MaxIdleConns = c.MaxOpenConns + 1 }},
		{"reconnect unordered", func(c *Config) { c.ListenerMaxReconnect = time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	withURL := Default()
	withURL.URL = "postgres://u@db/x"
	withURL.Host = ""
	assert.NoError(t, withURL.Validate())
}

func TestPoolConfig(t *testing.T) {
	cfg := Default()
	cfg.PoolSize = 7

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, "localhost", pc.ConnConfig.Host)
	assert.Equal(t, "guessmoji", pc.ConnConfig.Database)
}
