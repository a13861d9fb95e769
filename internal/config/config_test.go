package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", "app:\n  env: prod\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, defaultAppHTTPAddr, cfg.App.HTTPAddr)
	assert.Equal(t, "synthetic", cfg.Market.Source)
	assert.Equal(t, "1d", cfg.Market.DefaultInterval)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, cfg.Market.Symbols)
	assert.Equal(t, 2, cfg.Backtest.MaxConcurrent)
	assert.Equal(t, 10000.0, cfg.Portfolio.InitialBalance)
	assert.True(t, cfg.Strategy.WatchCatalog)
}

func TestLoadExplicitValues(t *testing.T) {
	content := `
app:
  http_addr: ":8080"
market:
  source: binance
  symbols: [btc, eth]
  default_interval: 4h
backtest:
  max_concurrent: 4
  initial_balance: 50000
strategy:
  watch_catalog: false
`
	path := writeConfig(t, t.TempDir(), "config.yaml", content)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, "binance", cfg.Market.Source)
	assert.Equal(t, []string{"BTC", "ETH"}, cfg.Market.Symbols)
	assert.Equal(t, "4h", cfg.Market.DefaultInterval)
	assert.Equal(t, 4, cfg.Backtest.MaxConcurrent)
	assert.Equal(t, 50000.0, cfg.Backtest.InitialBalance)
	// 显式写 false 不应被默认值改回 true。
	assert.False(t, cfg.Strategy.WatchCatalog)
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", "market:\n  source: synthetic\n  default_interval: 1h\n")
	main := writeConfig(t, dir, "config.yaml", "include:\n  - base.yaml\napp:\n  env: test\n")

	cfg, err := Load(main)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "1h", cfg.Market.DefaultInterval)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	path := writeConfig(t, dir, "bad_source.yaml", "market:\n  source: kraken\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market.source")

	path = writeConfig(t, dir, "bad_interval.yaml", "market:\n  default_interval: daily\n")
	_, err = Load(path)
	require.Error(t, err)

	_, err = Load("")
	require.Error(t, err)
}

func TestIsValidInterval(t *testing.T) {
	assert.True(t, IsValidInterval("1m"))
	assert.True(t, IsValidInterval("15m"))
	assert.True(t, IsValidInterval("1d"))
	assert.False(t, IsValidInterval(""))
	assert.False(t, IsValidInterval("daily"))
	assert.False(t, IsValidInterval("m1"))
}
