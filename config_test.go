package dynaform

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20, cfg.Query.DefaultPageSize)
	assert.Equal(t, 100, cfg.Query.MaxPageSize)
	assert.False(t, cfg.Events.Enabled())
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(c *Config)
		field  string
	}{
		"no connections":            {func(c *Config) { c.Database.MaxConnections = 0 }, "database.maxConnections"},
		"iam without region":        {func(c *Config) { c.Database.UseIAMAuth = true }, "database.region"},
		"zero page size":            {func(c *Config) { c.Query.DefaultPageSize = 0 }, "query.defaultPageSize"},
		"max below default":         {func(c *Config) { c.Query.MaxPageSize = 10 }, "query.maxPageSize"},
		"breaker threshold":         {func(c *Config) { c.Notification.FailureThreshold = 0 }, "notification.failureThreshold"},
		"access key without secret": {func(c *Config) { c.Events.S3AccessKey = "k" }, "events.s3AccessKey"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Database.Host, cfg.Database.Host)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynaform.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: db.internal
  maxconnections: 40
query:
  defaultpagesize: 10
events:
  s3bucket: archive
  s3region: eu-west-1
`), 0o644))

	t.Setenv("DYNAFORM_DATABASE_HOST", "override.internal")
	t.Setenv("DYNAFORM_QUERY_MAXPAGESIZE", "50")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, 40, cfg.Database.MaxConnections)
	assert.Equal(t, 10, cfg.Query.DefaultPageSize)
	assert.Equal(t, 50, cfg.Query.MaxPageSize)
	assert.True(t, cfg.Events.Enabled())
	assert.Equal(t, "events", cfg.Events.S3Prefix)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("DYNAFORM_QUERY_DEFAULTPAGESIZE", "0")
	_, err = LoadConfig("")
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
