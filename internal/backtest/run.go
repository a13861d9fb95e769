package backtest

import (
	"encoding/json"
	"time"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunConfig 记录一次回测的参数快照，便于重放。
type RunConfig struct {
	StrategyID     string  `json:"strategy_id"`
	Symbol         string  `json:"symbol"`
	Interval       string  `json:"interval"`
	StartTS        int64   `json:"start_ts"`
	EndTS          int64   `json:"end_ts"`
	InitialBalance float64 `json:"initial_balance"`
}

// TradeRecord 是回测产生的一笔模拟成交。
type TradeRecord struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"` // buy/sell
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	Total     float64 `json:"total"`
	Timestamp int64   `json:"timestamp"` // Unix ms
}

// EquityPoint 是资金曲线上的一个采样。
type EquityPoint struct {
	TS       int64   `json:"ts"`
	Equity   float64 `json:"equity"`
	Balance  float64 `json:"balance"`
	Drawdown float64 `json:"drawdown"` // 相对历史峰值的回撤（负百分比）
}

// Result 是一次回测的只读输出。
type Result struct {
	InitialBalance float64       `json:"initial_balance"`
	FinalBalance   float64       `json:"final_balance"`
	TotalReturnPct float64       `json:"total_return_pct"`
	TotalTrades    int           `json:"total_trades"`
	WinRate        float64       `json:"win_rate"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
	SharpeRatio    float64       `json:"sharpe_ratio"`
	Trades         []TradeRecord `json:"trades"`
	Equity         []EquityPoint `json:"equity,omitempty"`
	// RejectedSignals 统计被账本拒绝的信号次数（资金不足等，非致命）。
	RejectedSignals int `json:"rejected_signals,omitempty"`
	// SkippedSteps 统计因指标尚未就绪（变量缺失）而跳过的步数。
	SkippedSteps int `json:"skipped_steps,omitempty"`
}

// Run 表示一次回测任务及其生命周期状态。
type Run struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Config      RunConfig `json:"config"`
	Result      *Result   `json:"result,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// MarshalResult 返回 result JSON（无结果时为 nil）。
func (r Run) MarshalResult() ([]byte, error) {
	if r.Result == nil {
		return nil, nil
	}
	return json.Marshal(r.Result)
}
