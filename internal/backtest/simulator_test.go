package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptorules/internal/market"
	"cryptorules/internal/portfolio"
	"cryptorules/internal/strategy"
)

func dailySeries(prices ...float64) market.Series {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	out := make(market.Series, len(prices))
	for i, p := range prices {
		out[i] = market.PricePoint{
			Timestamp: base + int64(i)*86_400_000,
			Price:     p,
			Volume:    1000,
		}
	}
	return out
}

func buyLowSellHigh() strategy.Strategy {
	return strategy.Strategy{
		ID:            "buy-low-sell-high",
		Name:          "Buy Low Sell High",
		BuyCondition:  "price_change_24h < -5",
		SellCondition: "price_change_24h > 10",
		Risk:          strategy.RiskMedium,
	}
}

func TestSimulateEndToEnd(t *testing.T) {
	// 100 → 94 跌 6% 触发买入；94 → 104.4 涨 11.06% 触发卖出。
	series := dailySeries(100, 94, 104.4)
	result, err := Simulate(context.Background(), buyLowSellHigh(), "BTC", series, 10000)
	require.NoError(t, err)

	require.Equal(t, 2, result.TotalTrades)
	require.Len(t, result.Trades, 2)
	buy, sell := result.Trades[0], result.Trades[1]
	assert.Equal(t, portfolio.SideBuy, buy.Side)
	assert.Equal(t, 94.0, buy.Price)
	assert.Equal(t, portfolio.SideSell, sell.Side)
	assert.Equal(t, 104.4, sell.Price)
	assert.Equal(t, "trade-0001", buy.ID)
	assert.Equal(t, "trade-0002", sell.ID)

	// 全仓买入再全部卖出：10000 * 104.4 / 94。
	assert.InDelta(t, 11106.3829787234, result.FinalBalance, 0.01)
	assert.InDelta(t, 11.0638, result.TotalReturnPct, 0.001)
	assert.Equal(t, 100.0, result.WinRate)
	assert.InDelta(t, 0.0, result.MaxDrawdownPct, 1e-9)
	assert.Greater(t, result.SharpeRatio, 0.0)

	// 第 0 步还没有前一个点可比，price_change_24h 缺失，按跳过计。
	assert.Equal(t, 1, result.SkippedSteps)
	assert.Equal(t, 0, result.RejectedSignals)

	require.Len(t, result.Equity, 3)
	assert.InDelta(t, result.FinalBalance, result.Equity[2].Equity, 1e-6)
}

func TestSimulateForceClose(t *testing.T) {
	// 买入后卖出条件一直不满足，回测结束时按最后价格强制平仓。
	series := dailySeries(100, 90, 91, 92)
	result, err := Simulate(context.Background(), buyLowSellHigh(), "BTC", series, 10000)
	require.NoError(t, err)

	require.Equal(t, 2, result.TotalTrades)
	last := result.Trades[len(result.Trades)-1]
	assert.Equal(t, portfolio.SideSell, last.Side)
	assert.Equal(t, 92.0, last.Price)
	assert.Equal(t, series[3].Timestamp, last.Timestamp)
	assert.InDelta(t, 10000.0/90*92, result.FinalBalance, 0.01)
	// 强平后最后一个资金点也要落回现金口径。
	assert.InDelta(t, result.FinalBalance, result.Equity[len(result.Equity)-1].Equity, 1e-6)
}

func TestSimulateNoSignals(t *testing.T) {
	// 波动太小，什么都不触发：余额原样返回。
	series := dailySeries(100, 101, 100, 101)
	result, err := Simulate(context.Background(), buyLowSellHigh(), "BTC", series, 5000)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalTrades)
	assert.Equal(t, 5000.0, result.FinalBalance)
	assert.Equal(t, 0.0, result.TotalReturnPct)
	assert.Equal(t, 0.0, result.WinRate)
}

func TestSimulateInsufficientData(t *testing.T) {
	_, err := Simulate(context.Background(), buyLowSellHigh(), "BTC", dailySeries(100), 10000)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Simulate(context.Background(), buyLowSellHigh(), "BTC", nil, 10000)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestSimulateInvalidInput(t *testing.T) {
	_, err := Simulate(context.Background(), buyLowSellHigh(), "BTC", dailySeries(100, 94, 104.4), 0)
	require.Error(t, err)

	bad := buyLowSellHigh()
	bad.BuyCondition = "price_change_24h <"
	_, err = Simulate(context.Background(), bad, "BTC", dailySeries(100, 94, 104.4), 10000)
	require.Error(t, err, "条件语法错误必须在回放前失败")
}

func TestSimulateCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Simulate(ctx, buyLowSellHigh(), "BTC", dailySeries(100, 94, 104.4), 10000)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulateDeterministic(t *testing.T) {
	source := market.NewSyntheticSource(100)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	series, err := source.Fetch(context.Background(), market.FetchRequest{
		Symbol:   "ETH",
		Interval: "1d",
		Start:    start,
		End:      start + 199*86_400_000,
	})
	require.NoError(t, err)
	require.Len(t, series, 200)

	first, err := Simulate(context.Background(), buyLowSellHigh(), "ETH", series, 10000)
	require.NoError(t, err)
	second, err := Simulate(context.Background(), buyLowSellHigh(), "ETH", series, 10000)
	require.NoError(t, err)
	// 同一输入两次回放必须逐字段一致（含 trade ID）。
	require.Equal(t, first, second)
}
