package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesValidate(t *testing.T) {
	ok := Series{
		{Timestamp: 1000, Price: 100, Volume: 10},
		{Timestamp: 2000, Price: 101, Volume: 0},
	}
	require.NoError(t, ok.Validate())

	// 时间戳必须严格递增。
	bad := Series{
		{Timestamp: 2000, Price: 100},
		{Timestamp: 2000, Price: 101},
	}
	require.Error(t, bad.Validate())

	bad = Series{{Timestamp: 1000, Price: 0}}
	require.Error(t, bad.Validate())

	bad = Series{{Timestamp: 1000, Price: 100, Volume: -1}}
	require.Error(t, bad.Validate())
}

func TestSampleInterval(t *testing.T) {
	s := Series{
		{Timestamp: 0, Price: 1},
		{Timestamp: 3_600_000, Price: 1},
		{Timestamp: 7_200_000, Price: 1},
	}
	assert.Equal(t, time.Hour, s.SampleInterval())
	assert.Equal(t, time.Duration(0), Series{{Timestamp: 0, Price: 1}}.SampleInterval())
}

func TestIntervalDuration(t *testing.T) {
	d, err := IntervalDuration("4h")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, d)

	d, err = IntervalDuration("")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	_, err = IntervalDuration("daily")
	require.Error(t, err)
}

func TestSyntheticDeterministic(t *testing.T) {
	src := NewSyntheticSource(100)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	req := FetchRequest{Symbol: "btc", Interval: "1h", Start: start, End: start + 49*3_600_000}

	first, err := src.Fetch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first, 50)
	require.NoError(t, first.Validate())

	second, err := src.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 不同 symbol 走不同随机种子。
	other, err := src.Fetch(context.Background(), FetchRequest{Symbol: "eth", Interval: "1h", Start: req.Start, End: req.End})
	require.NoError(t, err)
	assert.NotEqual(t, first[0].Price, other[0].Price)

	_, err = src.Fetch(context.Background(), FetchRequest{Symbol: " ", Interval: "1h", Start: req.Start, End: req.End})
	require.Error(t, err)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BTC", NormalizeSymbol(" btc "))
	assert.Equal(t, "BTC", NormalizeSymbol("BTC/USDT"))
	assert.Equal(t, "BTC", NormalizeSymbol("BTCUSDT"))
	assert.Equal(t, "ETH", NormalizeSymbol("eth_usdt"))
	assert.Equal(t, "", NormalizeSymbol(""))

	assert.Equal(t, "BTCUSDT", BinancePair("btc"))
	assert.Equal(t, "SOLUSDT", BinancePair("SOL/USDT"))
}

type flakySource struct {
	fail  bool
	calls int
}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) Fetch(_ context.Context, _ FetchRequest) (Series, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("exchange down")
	}
	return Series{{Timestamp: 1000, Price: 100}}, nil
}

func TestGuardedSourceBreaker(t *testing.T) {
	inner := &flakySource{fail: true}
	guarded := Guard(inner, 2, 50*time.Millisecond)
	ctx := context.Background()

	// 阈值内的失败直接透传。
	_, err := guarded.Fetch(ctx, FetchRequest{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSourceUnavailable)
	_, err = guarded.Fetch(ctx, FetchRequest{})
	require.Error(t, err)

	// 达到阈值后熔断，请求不再落到底层。
	before := inner.calls
	_, err = guarded.Fetch(ctx, FetchRequest{})
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, before, inner.calls)

	// 冷却后半开放行，一次成功即恢复。
	time.Sleep(60 * time.Millisecond)
	inner.fail = false
	_, err = guarded.Fetch(ctx, FetchRequest{})
	require.NoError(t, err)
	_, err = guarded.Fetch(ctx, FetchRequest{})
	require.NoError(t, err)
}
