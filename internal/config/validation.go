package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Portfolio.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	switch m.Source {
	case "synthetic":
	case "binance":
		if strings.TrimSpace(m.Binance.APIKey) == "" != (strings.TrimSpace(m.Binance.SecretKey) == "") {
			return fmt.Errorf("market.binance requires both api_key and secret_key (or neither for public data)")
		}
	default:
		return fmt.Errorf("market.source only supports synthetic or binance, got %s", m.Source)
	}
	if !IsValidInterval(m.DefaultInterval) {
		return fmt.Errorf("market.default_interval is invalid: %s", m.DefaultInterval)
	}
	if len(m.Symbols) == 0 {
		return fmt.Errorf("market.symbols requires at least one symbol")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.MaxConcurrent < 1 {
		return fmt.Errorf("backtest.max_concurrent must be >= 1")
	}
	if b.InitialBalance <= 0 {
		return fmt.Errorf("backtest.initial_balance must be > 0")
	}
	if b.MaxPoints < 2 {
		return fmt.Errorf("backtest.max_points must be >= 2")
	}
	return nil
}

func (p *PortfolioConfig) validate() error {
	if p.InitialBalance <= 0 {
		return fmt.Errorf("portfolio.initial_balance must be > 0")
	}
	return nil
}

// IsValidInterval 简易校验：以数字开头，以 m/h/d/w 结尾
func IsValidInterval(s string) bool {
	if s == "" {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
