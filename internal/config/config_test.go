package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultAppHTTPAddr, cfg.App.HTTPAddr)
	assert.Equal(t, defaultExchangeREST, cfg.Exchange.RESTBaseURL)
	assert.Equal(t, defaultExchangeTimeout, cfg.Exchange.TimeoutSeconds)
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  http_addr: ":8080"
  timezone: "Asia/Shanghai"
exchange:
  timeout_seconds: 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv(EnvExchangeKey, "k")
	t.Setenv(EnvExchangeSecret, "s")
	t.Setenv(EnvAdvisorURL, "https://llm.example/v1")
	t.Setenv(EnvAdvisorKey, "ak")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, 20, cfg.Exchange.TimeoutSeconds)
	assert.Equal(t, "k", cfg.Exchange.APIKey)
	assert.Equal(t, "s", cfg.Exchange.APISecret)
	assert.Equal(t, "https://llm.example/v1", cfg.Advisor.APIURL)
	assert.Equal(t, "ak", cfg.Advisor.APIKey)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", loc.String())
}

func TestValidateRejectsBadProxy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
exchange:
  proxy:
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLocationInvalid(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.App.Timezone = "Not/AZone"
	_, err := cfg.Location()
	assert.Error(t, err)
}
