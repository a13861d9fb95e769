package backtest

import (
	"math"
	"time"

	"cryptorules/internal/portfolio"
)

// computeMetrics 汇总一次回测的绩效指标。
// 回撤按资金曲线相对历史峰值的最大跌幅计（负百分比）；
// 夏普比按步收益率均值/标准差并依采样周期年化，零方差时定义为 0。
func computeMetrics(initial, final float64, trades []TradeRecord, equity []EquityPoint, interval time.Duration) *Result {
	result := &Result{
		InitialBalance: initial,
		FinalBalance:   final,
		TotalTrades:    len(trades),
		Trades:         trades,
		Equity:         equity,
	}
	if initial > 0 {
		result.TotalReturnPct = (final - initial) / initial * 100
	}
	result.WinRate = winRate(trades)
	result.MaxDrawdownPct = maxDrawdown(equity)
	result.SharpeRatio = sharpeRatio(equity, interval)
	return result
}

// winRate 把成交按“买入 → 对应卖出”配对，卖出总额高于买入总额算赢。
func winRate(trades []TradeRecord) float64 {
	pairs, wins := 0, 0
	var openBuy *TradeRecord
	for i := range trades {
		tr := trades[i]
		switch tr.Side {
		case portfolio.SideBuy:
			openBuy = &trades[i]
		case portfolio.SideSell:
			if openBuy == nil {
				continue
			}
			pairs++
			if tr.Total > openBuy.Total {
				wins++
			}
			openBuy = nil
		}
	}
	if pairs == 0 {
		return 0
	}
	return float64(wins) / float64(pairs) * 100
}

// maxDrawdown 返回资金曲线的最大峰谷回撤（负百分比，0 表示从未回撤）。
func maxDrawdown(equity []EquityPoint) float64 {
	peak := math.Inf(-1)
	maxDD := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (p.Equity - peak) / peak * 100
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpeRatio 以步收益率序列计算，并按每年步数的平方根年化。
func sharpeRatio(equity []EquityPoint, interval time.Duration) float64 {
	if len(equity) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			return 0
		}
		returns = append(returns, equity[i].Equity/prev-1)
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	if variance == 0 {
		return 0
	}
	sharpe := mean / math.Sqrt(variance)

	if interval > 0 {
		stepsPerYear := float64(365*24*time.Hour) / float64(interval)
		if stepsPerYear > 0 {
			sharpe *= math.Sqrt(stepsPerYear)
		}
	}
	return sharpe
}
