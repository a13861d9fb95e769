package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptorules/internal/market"
)

func dailySeries(prices ...float64) market.Series {
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	day := (24 * time.Hour).Milliseconds()
	out := make(market.Series, 0, len(prices))
	for i, p := range prices {
		out = append(out, market.PricePoint{Timestamp: base + int64(i)*day, Price: p, Volume: 1000})
	}
	return out
}

func TestBuilderBasics(t *testing.T) {
	series := dailySeries(100, 94, 104.4)
	b := NewBuilder(series)

	env, err := b.At(0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, env["price"])
	assert.Equal(t, 1000.0, env["volume"])
	// 第一个点没有任何回看窗口。
	_, ok := env["price_change_24h"]
	assert.False(t, ok)
	_, ok = env["rsi"]
	assert.False(t, ok)

	env, err = b.At(1)
	require.NoError(t, err)
	assert.InDelta(t, -6.0, env["price_change_24h"], 1e-9)

	env, err = b.At(2)
	require.NoError(t, err)
	assert.InDelta(t, 104.4, env["price"], 1e-9)
	assert.InDelta(t, (104.4-94)/94*100, env["price_change_24h"], 1e-9)
}

func TestBuilderMovingAverages(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	b := NewBuilder(dailySeries(prices...))

	env, err := b.At(8)
	require.NoError(t, err)
	_, ok := env["ma_10"]
	assert.False(t, ok, "第 9 个点还凑不满 10 日均线")

	env, err = b.At(9)
	require.NoError(t, err)
	// 100..109 的均值。
	assert.InDelta(t, 104.5, env["ma_10"], 1e-9)

	env, err = b.At(49)
	require.NoError(t, err)
	assert.InDelta(t, 124.5, env["ma_50"], 1e-9)

	env, err = b.At(20)
	require.NoError(t, err)
	rsi, ok := env["rsi"]
	require.True(t, ok)
	// 单调上涨的序列 RSI 应接近 100。
	assert.Greater(t, rsi, 95.0)
}

func TestBuilderNoLookAhead(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + float64(i%7)*3
	}
	full := NewBuilder(dailySeries(prices...))

	// 截断未来数据后，任意第 i 步的环境必须逐值一致。
	for cut := 16; cut < 40; cut += 7 {
		truncated := NewBuilder(dailySeries(prices[:cut]...))
		for i := 0; i < cut; i++ {
			a, err := full.At(i)
			require.NoError(t, err)
			b, err := truncated.At(i)
			require.NoError(t, err)
			assert.Equal(t, b, a, "步 %d（截断于 %d）", i, cut)
		}
	}
}

func TestBuilderOutOfRange(t *testing.T) {
	b := NewBuilder(dailySeries(100, 101))
	_, err := b.At(2)
	assert.Error(t, err)
	_, err = b.At(-1)
	assert.Error(t, err)
}
