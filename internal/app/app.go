// Package app 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
package app

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"cryptorules/internal/backtest"
	"cryptorules/internal/config"
	"cryptorules/internal/logger"
	"cryptorules/internal/portfolio"
	"cryptorules/internal/strategy"
	apihttp "cryptorules/internal/transport/http/api"
)

// App 持有全部运行时依赖。
type App struct {
	cfg     *config.Config
	server  *apihttp.Server
	catalog *strategy.Catalog
	store   *strategy.Store
	results *backtest.ResultStore
	ledger  *portfolio.Portfolio
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(cfg)
}

// Run 启动 HTTP 服务与策略目录热更新，阻塞直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()
	a.printSummary()

	if a.catalog != nil && a.cfg.Strategy.WatchCatalog {
		if err := a.catalog.Watch(); err != nil {
			logger.Warnf("[app] 策略目录热更新不可用: %v", err)
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("[app] HTTP 服务监听 %s", a.cfg.App.HTTPAddr)
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

func (a *App) printSummary() {
	predefined := 0
	if a.catalog != nil {
		predefined = len(a.catalog.List())
	}
	logger.InfoBlock(fmt.Sprintf(
		"==== cryptorules 启动 ====\n环境：%s\n行情数据源：%s\n监听地址：%s\n监控币种：%s\n预置策略：%d 条\n回测并发上限：%d",
		a.cfg.App.Env,
		a.cfg.Market.Source,
		a.cfg.App.HTTPAddr,
		strings.Join(a.cfg.Market.Symbols, ", "),
		predefined,
		a.cfg.Backtest.MaxConcurrent,
	))
}

func (a *App) close() {
	if a.catalog != nil {
		_ = a.catalog.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.results != nil {
		_ = a.results.Close()
	}
}
