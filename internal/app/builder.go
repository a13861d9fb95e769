package app

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"cryptorules/internal/backtest"
	"cryptorules/internal/config"
	"cryptorules/internal/logger"
	"cryptorules/internal/market"
	"cryptorules/internal/portfolio"
	"cryptorules/internal/strategy"
	apihttp "cryptorules/internal/transport/http/api"
)

// build 手工装配全部依赖。
func build(cfg *config.Config) (*App, error) {
	source := buildMarketSource(cfg)

	catalog, err := buildCatalog(cfg.Strategy.CatalogPath)
	if err != nil {
		return nil, err
	}

	store, err := strategy.NewStore(cfg.Strategy.StorePath)
	if err != nil {
		return nil, fmt.Errorf("打开策略库失败: %w", err)
	}

	results, err := backtest.NewResultStore(cfg.Backtest.DataDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("打开回测结果库失败: %w", err)
	}

	ledger, err := portfolio.New(decimal.NewFromFloat(cfg.Portfolio.InitialBalance))
	if err != nil {
		store.Close()
		results.Close()
		return nil, err
	}

	svc := backtest.NewService(source, results, cfg.Backtest.MaxConcurrent)
	server, err := apihttp.NewServer(apihttp.Config{
		Addr:            cfg.App.HTTPAddr,
		Source:          source,
		Catalog:         catalog,
		Store:           store,
		Backtest:        svc,
		Ledger:          ledger,
		DefaultInterval: cfg.Market.DefaultInterval,
		DefaultBalance:  cfg.Backtest.InitialBalance,
		MaxPoints:       cfg.Backtest.MaxPoints,
	})
	if err != nil {
		store.Close()
		results.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		server:  server,
		catalog: catalog,
		store:   store,
		results: results,
		ledger:  ledger,
	}, nil
}

func buildMarketSource(cfg *config.Config) market.Source {
	if cfg.Market.Source == "binance" {
		logger.Infof("[app] 行情数据源: binance")
		src := market.NewBinanceSource(cfg.Market.Binance.APIKey, cfg.Market.Binance.SecretKey, "", 15*time.Second)
		return market.Guard(src, 5, 30*time.Second)
	}
	logger.Infof("[app] 行情数据源: synthetic (base=%.0f)", cfg.Market.SyntheticBasePrice)
	return market.NewSyntheticSource(cfg.Market.SyntheticBasePrice)
}

// buildCatalog 加载预置策略目录。文件不存在时只告警，预置列表为空。
func buildCatalog(path string) (*strategy.Catalog, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warnf("[app] 预置策略文件不存在: %s", path)
		return nil, nil
	}
	catalog, err := strategy.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("加载预置策略失败: %w", err)
	}
	logger.Infof("[app] 预置策略加载完成: %d 条", len(catalog.List()))
	return catalog, nil
}
