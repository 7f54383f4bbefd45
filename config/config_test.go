package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, []string{"NSEI", "BSESN", "NSEBANK"}, cfg.Market.Symbols)
	assert.False(t, NewGuard(cfg.Backend.URL).IsConfigured())
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
http:
  port: 9090
backend:
  url: https://data.example.org
market:
  poll_interval: 2m
  min_delay: 15s
  bands:
    NSEI:
      class: index
      reference: 20000
      min: 16000
      max: 26000
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("FINEDU_BACKEND_API_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 2*time.Minute, cfg.Market.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.Market.MinDelay)
	assert.Equal(t, "secret", cfg.Backend.APIKey)
	assert.Equal(t, 20000.0, cfg.Market.Bands["NSEI"].Reference)
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "config.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Market.PollInterval)
	assert.Equal(t, 12*time.Second, cfg.Market.MinDelay)
	require.Len(t, cfg.Market.Providers, 2)
	assert.Equal(t, "^NSEI", cfg.Market.Providers[0].SymbolMap["NSEI"])
	assert.Equal(t, 500.0, cfg.Market.Bands["RELIANCE"].Min)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
}

func TestValidateRejectsInvertedBand(t *testing.T) {
	cfg := Default()
	cfg.Market.Bands = map[string]Band{"NSEI": {Min: 30000, Max: 20000}}
	assert.Error(t, cfg.Validate())
}

func TestGuard(t *testing.T) {
	cases := map[string]bool{
		"":                                  false,
		"your-project-url":                  false,
		"https://placeholder.supabase.co":   false,
		"https://<project>.example.org":     false,
		"https://YOUR_PROJECT.example.org":  false,
		"not a url":                         false,
		"ftp://data.example.org":            false,
		"https://data.example.org":          true,
		"http://127.0.0.1:8081":             true,
		"  https://data.example.org/rest  ": true,
	}
	for endpoint, want := range cases {
		assert.Equal(t, want, NewGuard(endpoint).IsConfigured(), endpoint)
	}

	var nilGuard *Guard
	assert.False(t, nilGuard.IsConfigured())
}

func TestGuardSetIsLive(t *testing.T) {
	g := NewGuard("your-project-url")
	assert.False(t, g.IsConfigured())
	g.Set("https://data.example.org")
	assert.True(t, g.IsConfigured())
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  url: your-project-url\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Config, 4)
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = Watch(ctx, path, zap.NewNop(), func(c Config) { got <- c })
	}()
	<-ready

	// The watcher needs a moment to register before the write lands.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("backend:\n  url: https://data.example.org\n"), 0o600)
		select {
		case c := <-got:
			return c.Backend.URL == "https://data.example.org"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 100*time.Millisecond)
}
