package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"cryptorules/internal/backtest"
	"cryptorules/internal/market"
	"cryptorules/internal/portfolio"
	"cryptorules/internal/strategy"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"source": s.source.Name(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMarketPrice(c *gin.Context) {
	symbol := market.NormalizeSymbol(c.Param("symbol"))
	step, err := market.IntervalDuration(s.defaultInterval)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	end := time.Now().UnixMilli()
	series, err := s.source.Fetch(c.Request.Context(), market.FetchRequest{
		Symbol:   symbol,
		Interval: s.defaultInterval,
		Start:    end - 2*step.Milliseconds(),
		End:      end,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if len(series) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "无可用行情: " + symbol})
		return
	}
	last := series[len(series)-1]
	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"price":     last.Price,
		"volume":    last.Volume,
		"timestamp": last.Timestamp,
	})
}

func (s *Server) handleHistorical(c *gin.Context) {
	symbol := market.NormalizeSymbol(c.Param("symbol"))
	interval := c.DefaultQuery("interval", s.defaultInterval)
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days 非法"})
		return
	}
	if _, err := market.IntervalDuration(interval); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	end := time.Now().UnixMilli()
	start := end - int64(days)*86_400_000
	series, err := s.source.Fetch(c.Request.Context(), market.FetchRequest{
		Symbol:   symbol,
		Interval: interval,
		Start:    start,
		End:      end,
		Limit:    s.maxPoints,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":   symbol,
		"interval": interval,
		"points":   series,
	})
}

func (s *Server) handlePredefinedStrategies(c *gin.Context) {
	var list []strategy.Strategy
	if s.catalog != nil {
		list = s.catalog.List()
	}
	c.JSON(http.StatusOK, gin.H{"strategies": list})
}

func (s *Server) handleUserStrategies(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "策略存储未启用"})
		return
	}
	list, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": list})
}

func (s *Server) handleCreateStrategy(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "策略存储未启用"})
		return
	}
	var req strategy.Strategy
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := s.store.Create(c.Request.Context(), req)
	if err != nil {
		// 校验失败（含条件语法错误）一律按客户端错误返回。
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"strategy": created})
}

func (s *Server) handleDeleteStrategy(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "策略存储未启用"})
		return
	}
	err := s.store.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, strategy.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

type backtestRequest struct {
	StrategyID     string  `json:"strategy_id" binding:"required"`
	Symbol         string  `json:"symbol" binding:"required"`
	Interval       string  `json:"interval"`
	StartTS        int64   `json:"start_ts"`
	EndTS          int64   `json:"end_ts"`
	InitialBalance float64 `json:"initial_balance"`
	Async          bool    `json:"async"`
}

func (s *Server) handleBacktestStart(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	strat, ok := s.resolveStrategy(c, req.StrategyID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "策略不存在: " + req.StrategyID})
		return
	}
	if req.Interval == "" {
		req.Interval = s.defaultInterval
	}
	if _, err := market.IntervalDuration(req.Interval); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.InitialBalance <= 0 {
		req.InitialBalance = s.defaultBalance
	}
	if req.EndTS <= 0 {
		req.EndTS = time.Now().UnixMilli()
	}
	if req.StartTS <= 0 {
		req.StartTS = req.EndTS - 90*86_400_000
	}
	if req.StartTS >= req.EndTS {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_ts 必须早于 end_ts"})
		return
	}
	cfg := backtest.RunConfig{
		StrategyID:     strat.ID,
		Symbol:         market.NormalizeSymbol(req.Symbol),
		Interval:       req.Interval,
		StartTS:        req.StartTS,
		EndTS:          req.EndTS,
		InitialBalance: req.InitialBalance,
	}

	if req.Async {
		run, err := s.backtest.Submit(context.WithoutCancel(c.Request.Context()), strat, cfg)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"run": run})
		return
	}

	run, err := s.backtest.RunSync(c.Request.Context(), strat, cfg)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"run": run})
	case errors.Is(err, backtest.ErrInsufficientData):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, backtest.ErrProvider):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// resolveStrategy 先查预置目录，再查用户策略库。
func (s *Server) resolveStrategy(c *gin.Context, id string) (strategy.Strategy, bool) {
	if s.catalog != nil {
		if strat, ok := s.catalog.Get(id); ok {
			return strat, true
		}
	}
	if s.store != nil {
		strat, err := s.store.Get(c.Request.Context(), id)
		if err == nil {
			return strat, true
		}
	}
	return strategy.Strategy{}, false
}

func (s *Server) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.backtest.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	run, err := s.backtest.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, backtest.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunReport(c *gin.Context) {
	run, err := s.backtest.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, backtest.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run.Result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "任务尚未完成", "status": run.Status})
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := backtest.RenderReport(c.Writer, run); err != nil {
		_ = c.Error(err)
	}
}

func (s *Server) handlePortfolio(c *gin.Context) {
	if s.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "纸面账本未启用"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"portfolio": s.ledger.Snapshot(),
		"history":   s.ledger.History(),
	})
}

type tradeRequest struct {
	Symbol string  `json:"symbol" binding:"required"`
	Side   string  `json:"side" binding:"required"`
	Amount float64 `json:"amount" binding:"required"`
	Price  float64 `json:"price" binding:"required"`
}

func (s *Server) handleTrade(c *gin.Context) {
	if s.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "纸面账本未启用"})
		return
	}
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side := strings.ToLower(req.Side)
	if side != portfolio.SideBuy && side != portfolio.SideSell {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side 只支持 buy/sell"})
		return
	}
	trade, err := s.ledger.Execute(
		strings.ToUpper(req.Symbol),
		side,
		decimal.NewFromFloat(req.Amount),
		decimal.NewFromFloat(req.Price),
		time.Now().UTC(),
	)
	if err != nil {
		// 资金/持仓不足是调用方问题，不是服务故障。
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": trade, "portfolio": s.ledger.Snapshot()})
}
