package config

import "strings"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9992"
	defaultAppLogPath      = "data/logs/cryptorules.log"
	defaultMarketSource    = "synthetic"
	defaultMarketInterval  = "1d"
	defaultSyntheticBase   = 40000
	defaultCatalogPath     = "configs/strategies.yaml"
	defaultStrategyStore   = "data/db/strategies.db"
	defaultBacktestDataDir = "data/backtest"
	defaultBacktestWorkers = 2
	defaultInitialBalance  = 10000
	defaultBacktestPoints  = 2000
)

var defaultSymbols = []string{"BTC", "ETH", "SOL"}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Portfolio.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.source", &m.Source, defaultMarketSource),
		stringFieldDefault("market.default_interval", &m.DefaultInterval, defaultMarketInterval),
		fieldDefault{
			key:   "market.synthetic_base_price",
			need:  func() bool { return m.SyntheticBasePrice <= 0 },
			apply: func() { m.SyntheticBasePrice = defaultSyntheticBase },
		},
	)
	m.Source = strings.ToLower(strings.TrimSpace(m.Source))
	if len(m.Symbols) == 0 {
		m.Symbols = append([]string(nil), defaultSymbols...)
	}
	for i, s := range m.Symbols {
		m.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategy.catalog_path", &s.CatalogPath, defaultCatalogPath),
		stringFieldDefault("strategy.store_path", &s.StorePath, defaultStrategyStore),
		boolFieldDefault("strategy.watch_catalog", &s.WatchCatalog, true),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("backtest.data_dir", &b.DataDir, defaultBacktestDataDir),
		fieldDefault{
			key:   "backtest.max_concurrent",
			need:  func() bool { return b.MaxConcurrent <= 0 },
			apply: func() { b.MaxConcurrent = defaultBacktestWorkers },
		},
		fieldDefault{
			key:   "backtest.initial_balance",
			need:  func() bool { return b.InitialBalance <= 0 },
			apply: func() { b.InitialBalance = defaultInitialBalance },
		},
		fieldDefault{
			key:   "backtest.max_points",
			need:  func() bool { return b.MaxPoints <= 0 },
			apply: func() { b.MaxPoints = defaultBacktestPoints },
		},
	)
}

func (p *PortfolioConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "portfolio.initial_balance",
			need:  func() bool { return p.InitialBalance <= 0 },
			apply: func() { p.InitialBalance = defaultInitialBalance },
		},
	)
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
