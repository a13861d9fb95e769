package config

import "strings"

// Config 是服务的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Market    MarketConfig    `toml:"market"`
	Strategy  StrategyConfig  `toml:"strategy"`
	Backtest  BacktestConfig  `toml:"backtest"`
	Portfolio PortfolioConfig `toml:"portfolio"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// MarketConfig 选择行情数据源。source 支持 binance / synthetic。
type MarketConfig struct {
	Source             string        `toml:"source"`
	Symbols            []string      `toml:"symbols"`
	DefaultInterval    string        `toml:"default_interval"`
	SyntheticBasePrice float64       `toml:"synthetic_base_price"`
	Binance            BinanceConfig `toml:"binance"`
}

type BinanceConfig struct {
	APIKey    string `toml:"api_key"`
	SecretKey string `toml:"secret_key"`
}

// StrategyConfig 指定预置策略目录与用户策略库。
type StrategyConfig struct {
	CatalogPath  string `toml:"catalog_path"`
	StorePath    string `toml:"store_path"`
	WatchCatalog bool   `toml:"watch_catalog"`
}

type BacktestConfig struct {
	DataDir        string  `toml:"data_dir"`
	MaxConcurrent  int     `toml:"max_concurrent"`
	InitialBalance float64 `toml:"initial_balance"`
	MaxPoints      int     `toml:"max_points"`
}

// PortfolioConfig 控制纸面交易账本。
type PortfolioConfig struct {
	InitialBalance float64 `toml:"initial_balance"`
}

// keySet 记录配置文件里显式出现过的键，显式设置的值不再套默认值。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}
