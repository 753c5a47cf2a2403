package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runlens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ":7070", cfg.Server.Addr)
		assert.Equal(t, "http://localhost:8080", cfg.Orchestrator.BaseURL)
		assert.Equal(t, "orchestrator", cfg.History.Driver)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
server:
  addr: ":9090"
  cors_origins: ["https://app.example.com"]
orchestrator:
  base_url: "http://runner:8080"
  user_id: "ops"
history:
  driver: sqlite
  dsn: "/tmp/runlens.db"
engine:
  aggregation_steps: ["planner"]
  fork_window: 3
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Server.Addr)
		assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
		assert.Equal(t, "http://runner:8080", cfg.Orchestrator.BaseURL)
		assert.Equal(t, "sqlite", cfg.History.Driver)
		assert.Equal(t, []string{"planner"}, cfg.Engine.AggregationSteps)
		require.NotNil(t, cfg.Engine.ForkWindow)
		assert.Equal(t, 3, *cfg.Engine.ForkWindow)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, `
orchestrator:
  base_url: "http://from-file:8080"
`)
		t.Setenv("RUNLENS_ORCHESTRATOR_URL", "http://from-env:8080")
		t.Setenv("RUNLENS_HISTORY_DRIVER", "memory")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "http://from-env:8080", cfg.Orchestrator.BaseURL)
		assert.Equal(t, "memory", cfg.History.Driver)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid yaml is an error", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [not a map"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	base := Default()

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, base.Validate())
	})

	t.Run("addr required", func(t *testing.T) {
		cfg := base
		cfg.Server.Addr = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("database drivers require a dsn", func(t *testing.T) {
		for _, driver := range []string{"sqlite", "mysql"} {
			cfg := base
			cfg.History.Driver = driver
			assert.Error(t, cfg.Validate(), driver)

			cfg.History.DSN = "somewhere"
			assert.NoError(t, cfg.Validate(), driver)
		}
	})

	t.Run("unknown driver rejected", func(t *testing.T) {
		cfg := base
		cfg.History.Driver = "postgres"
		assert.Error(t, cfg.Validate())
	})

	t.Run("orchestrator history needs a base url", func(t *testing.T) {
		cfg := base
		cfg.Orchestrator.BaseURL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative fork window rejected", func(t *testing.T) {
		cfg := base
		window := -1
		cfg.Engine.ForkWindow = &window
		assert.Error(t, cfg.Validate())
	})
}
