package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cryptorules/internal/portfolio"
)

func equityFrom(values ...float64) []EquityPoint {
	out := make([]EquityPoint, len(values))
	for i, v := range values {
		out[i] = EquityPoint{TS: int64(i) * 86_400_000, Equity: v, Balance: v}
	}
	return out
}

func TestMaxDrawdown(t *testing.T) {
	// 峰值 10000，谷底 8500 → -15%。
	dd := maxDrawdown(equityFrom(10000, 9000, 9500, 8500, 12000))
	assert.InDelta(t, -15.0, dd, 1e-9)

	// 单调上涨从未回撤。
	assert.Equal(t, 0.0, maxDrawdown(equityFrom(100, 110, 120)))

	assert.Equal(t, 0.0, maxDrawdown(nil))
}

func TestWinRate(t *testing.T) {
	trade := func(side string, total float64) TradeRecord {
		return TradeRecord{Side: side, Total: total}
	}

	// 一赢一输 → 50%。
	rate := winRate([]TradeRecord{
		trade(portfolio.SideBuy, 100), trade(portfolio.SideSell, 110),
		trade(portfolio.SideBuy, 100), trade(portfolio.SideSell, 90),
	})
	assert.InDelta(t, 50.0, rate, 1e-9)

	// 无成对交易 → 0。
	assert.Equal(t, 0.0, winRate(nil))
	assert.Equal(t, 0.0, winRate([]TradeRecord{trade(portfolio.SideSell, 100)}))

	// 平局不算赢。
	rate = winRate([]TradeRecord{
		trade(portfolio.SideBuy, 100), trade(portfolio.SideSell, 100),
	})
	assert.Equal(t, 0.0, rate)
}

func TestSharpeRatio(t *testing.T) {
	day := 24 * time.Hour

	// 净值不动 → 零方差 → 定义为 0 而不是 NaN。
	assert.Equal(t, 0.0, sharpeRatio(equityFrom(100, 100, 100), day))

	// 少于两个点无收益率可算。
	assert.Equal(t, 0.0, sharpeRatio(equityFrom(100), day))

	// 手算样例：收益率 [0.1, -1/22]，总体标准差下 mean/std = 0.375，
	// 日线按 sqrt(365) 年化。
	got := sharpeRatio(equityFrom(100, 110, 105), day)
	assert.InDelta(t, 0.375*math.Sqrt(365), got, 1e-9)

	// interval 未知时不年化。
	got = sharpeRatio(equityFrom(100, 110, 105), 0)
	assert.InDelta(t, 0.375, got, 1e-9)
}

func TestComputeMetrics(t *testing.T) {
	equity := equityFrom(10000, 10000, 11106.38)
	result := computeMetrics(10000, 11106.38, nil, equity, 24*time.Hour)
	assert.InDelta(t, 11.0638, result.TotalReturnPct, 1e-4)
	assert.Equal(t, 10000.0, result.InitialBalance)
	assert.Equal(t, 11106.38, result.FinalBalance)
	assert.Equal(t, 0.0, result.MaxDrawdownPct)
	assert.Equal(t, 0, result.TotalTrades)
}
