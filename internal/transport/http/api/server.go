// Package apihttp 暴露行情、策略、回测与纸面交易的 HTTP API。
package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cryptorules/internal/backtest"
	"cryptorules/internal/market"
	"cryptorules/internal/portfolio"
	"cryptorules/internal/strategy"
)

// Server 持有所有 API 依赖并负责 HTTP 生命周期。
type Server struct {
	addr   string
	router *gin.Engine

	source   market.Source
	catalog  *strategy.Catalog
	store    *strategy.Store
	backtest *backtest.Service
	ledger   *portfolio.Portfolio

	defaultInterval string
	defaultBalance  float64
	maxPoints       int
}

// Config 描述 Server 的依赖。
type Config struct {
	Addr            string
	Source          market.Source
	Catalog         *strategy.Catalog
	Store           *strategy.Store
	Backtest        *backtest.Service
	Ledger          *portfolio.Portfolio
	DefaultInterval string
	DefaultBalance  float64
	MaxPoints       int
}

// NewServer 构建 API Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Source == nil {
		return nil, errors.New("market source 不能为空")
	}
	if cfg.Backtest == nil {
		return nil, errors.New("backtest service 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	if cfg.DefaultInterval == "" {
		cfg.DefaultInterval = "1d"
	}
	if cfg.DefaultBalance <= 0 {
		cfg.DefaultBalance = 10000
	}
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = 2000
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:            cfg.Addr,
		router:          router,
		source:          cfg.Source,
		catalog:         cfg.Catalog,
		store:           cfg.Store,
		backtest:        cfg.Backtest,
		ledger:          cfg.Ledger,
		defaultInterval: cfg.DefaultInterval,
		defaultBalance:  cfg.DefaultBalance,
		maxPoints:       cfg.MaxPoints,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/market/:symbol", s.handleMarketPrice)
	api.GET("/historical/:symbol", s.handleHistorical)

	api.GET("/strategies/predefined", s.handlePredefinedStrategies)
	api.GET("/strategies/user", s.handleUserStrategies)
	api.POST("/strategies", s.handleCreateStrategy)
	api.DELETE("/strategies/:id", s.handleDeleteStrategy)

	api.POST("/backtest", s.handleBacktestStart)
	api.GET("/backtest/runs", s.handleRunList)
	api.GET("/backtest/runs/:id", s.handleRunDetail)
	api.GET("/backtest/runs/:id/report", s.handleRunReport)

	api.GET("/portfolio", s.handlePortfolio)
	api.POST("/trade", s.handleTrade)
}

// Handler 返回底层 http.Handler，测试时直接挂到 httptest。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
