package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptorules/internal/market"
)

func testConfig() RunConfig {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	return RunConfig{
		StrategyID:     "buy-low-sell-high",
		Symbol:         "BTC",
		Interval:       "1d",
		StartTS:        start,
		EndTS:          start + 199*86_400_000,
		InitialBalance: 10000,
	}
}

func TestResultStoreRoundtrip(t *testing.T) {
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	run := newRun(testConfig())
	require.NoError(t, store.InsertRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, got.Status)
	assert.Equal(t, run.Config, got.Config)
	assert.Nil(t, got.Result)

	require.NoError(t, store.UpdateRunStatus(ctx, run.ID, RunStatusRunning, "回测执行中"))

	result := &Result{
		InitialBalance: 10000,
		FinalBalance:   11106.38,
		TotalReturnPct: 11.0638,
		TotalTrades:    2,
		WinRate:        100,
		MaxDrawdownPct: -3.2,
		SharpeRatio:    1.7,
		Trades: []TradeRecord{
			{ID: "trade-0001", Symbol: "BTC", Side: "buy", Amount: 106.38, Price: 94, Total: 10000, Timestamp: 1704067200000},
			{ID: "trade-0002", Symbol: "BTC", Side: "sell", Amount: 106.38, Price: 104.4, Total: 11106.38, Timestamp: 1704153600000},
		},
		Equity: []EquityPoint{
			{TS: 1704067200000, Equity: 10000, Balance: 0},
			{TS: 1704153600000, Equity: 11106.38, Balance: 11106.38, Drawdown: 0},
		},
	}
	require.NoError(t, store.CompleteRun(ctx, run.ID, result))

	got, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, result, got.Result)
	assert.False(t, got.CompletedAt.IsZero())

	snapshots, err := store.RunSnapshots(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Equity, snapshots)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, store.UpdateRunStatus(ctx, "missing", RunStatusFailed, "x"), ErrRunNotFound)
}

func TestServiceRunSync(t *testing.T) {
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	svc := NewService(market.NewSyntheticSource(100), store, 2)
	run, err := svc.RunSync(context.Background(), buyLowSellHigh(), testConfig())
	require.NoError(t, err)

	assert.Equal(t, RunStatusDone, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, 10000.0, run.Result.InitialBalance)
	assert.Len(t, run.Result.Equity, 200)

	// 落盘后可重新读出。
	persisted, err := svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Result, persisted.Result)
}

func TestServiceSubmitAsync(t *testing.T) {
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	svc := NewService(market.NewSyntheticSource(100), store, 1)
	run, err := svc.Submit(context.Background(), buyLowSellHigh(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, run.Status)

	require.Eventually(t, func() bool {
		got, err := svc.Get(context.Background(), run.ID)
		return err == nil && got.Status == RunStatusDone
	}, 10*time.Second, 20*time.Millisecond)
}

func TestServiceRunSyncProviderFailure(t *testing.T) {
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	svc := NewService(market.NewSyntheticSource(100), store, 2)
	cfg := testConfig()
	cfg.Symbol = "   " // 数据源会拒绝空 symbol
	_, err = svc.RunSync(context.Background(), buyLowSellHigh(), cfg)
	assert.ErrorIs(t, err, ErrProvider)
}
