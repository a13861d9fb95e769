// Package indicator 把行情序列转换为条件表达式可引用的指标环境。
// 所有指标只依赖当前步及之前的数据，回放过程中不存在未来函数。
package indicator

import (
	"fmt"
	"time"

	"github.com/markcheno/go-talib"

	"cryptorules/internal/expr"
	"cryptorules/internal/market"
)

const (
	rsiPeriod = 14
	maShort   = 10
	maLong    = 50
)

// Builder 基于同一条行情序列为每个模拟步构建指标环境。
// 滑动窗口指标（SMA/RSI）在构建时整列预计算一次，之后按下标取值；
// talib 的实现是因果的：第 i 个值只由 closes[0..i] 决定。
type Builder struct {
	series  market.Series
	prices  []float64
	volumes []float64
	rsi     []float64
	maFast  []float64
	maSlow  []float64

	// 各时间窗口对应的下标偏移（按采样周期折算，至少为 1）。
	offset1h  int
	offset24h int
	offset7d  int
}

// NewBuilder 预计算指标列。序列可以为空或很短，此时对应指标在环境中缺失。
func NewBuilder(series market.Series) *Builder {
	b := &Builder{
		series:  series,
		prices:  series.Prices(),
		volumes: series.Volumes(),
	}
	if len(b.prices) > rsiPeriod {
		b.rsi = talib.Rsi(b.prices, rsiPeriod)
	}
	if len(b.prices) >= maShort {
		b.maFast = talib.Sma(b.prices, maShort)
	}
	if len(b.prices) >= maLong {
		b.maSlow = talib.Sma(b.prices, maLong)
	}
	step := series.SampleInterval()
	b.offset1h = stepsFor(time.Hour, step)
	b.offset24h = stepsFor(24*time.Hour, step)
	b.offset7d = stepsFor(7*24*time.Hour, step)
	return b
}

func stepsFor(window, step time.Duration) int {
	if step <= 0 {
		return 1
	}
	n := int(window / step)
	if n < 1 {
		n = 1
	}
	return n
}

// At 返回第 i 步的指标环境。窗口数据尚不足的指标不进入环境，
// 由表达式引擎在引用时报出缺失变量。
func (b *Builder) At(i int) (expr.Env, error) {
	if i < 0 || i >= len(b.series) {
		return nil, fmt.Errorf("下标越界: %d（序列长度 %d）", i, len(b.series))
	}
	env := expr.Env{
		"price":  b.prices[i],
		"volume": b.volumes[i],
	}
	if b.rsi != nil && i >= rsiPeriod {
		env["rsi"] = b.rsi[i]
	}
	if b.maFast != nil && i >= maShort-1 {
		env["ma_10"] = b.maFast[i]
	}
	if b.maSlow != nil && i >= maLong-1 {
		env["ma_50"] = b.maSlow[i]
	}
	b.addChange(env, "price_change_1h", i, b.offset1h)
	b.addChange(env, "price_change_24h", i, b.offset24h)
	b.addChange(env, "price_change_7d", i, b.offset7d)
	return env, nil
}

// addChange 写入相对 offset 步之前价格的百分比变化。
func (b *Builder) addChange(env expr.Env, name string, i, offset int) {
	j := i - offset
	if j < 0 {
		return
	}
	base := b.prices[j]
	if base <= 0 {
		return
	}
	env[name] = (b.prices[i] - base) / base * 100
}

// Names 返回全量数据下环境可能包含的指标名，用于策略校验的提示信息。
func Names() []string {
	return []string{
		"price", "volume", "rsi", "ma_10", "ma_50",
		"price_change_1h", "price_change_24h", "price_change_7d",
	}
}
