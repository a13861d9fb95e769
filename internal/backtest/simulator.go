// Package backtest 按时间顺序回放历史行情，对策略条件逐步求值并驱动
// 模拟账本成交，最终汇总为绩效指标。
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptorules/internal/expr"
	"cryptorules/internal/indicator"
	"cryptorules/internal/logger"
	"cryptorules/internal/market"
	"cryptorules/internal/portfolio"
	"cryptorules/internal/strategy"
)

var (
	// ErrInsufficientData 序列不足两个采样点，无法回测。
	ErrInsufficientData = errors.New("历史数据不足")
	// ErrProvider 行情数据源失败。
	ErrProvider = errors.New("行情数据源失败")
)

// Simulate 对单条策略执行一次完整回测。
// 回放严格单线程按时间推进：每步的指标只依赖当前及更早的数据。
// ctx 取消在步间生效，长序列可以被合作式中断。
func Simulate(ctx context.Context, strat strategy.Strategy, symbol string, series market.Series, initialBalance float64) (*Result, error) {
	if len(series) < 2 {
		return nil, fmt.Errorf("序列只有 %d 个点: %w", len(series), ErrInsufficientData)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrProvider)
	}
	if initialBalance <= 0 {
		return nil, fmt.Errorf("初始余额必须为正: %v", initialBalance)
	}
	// 条件解析失败在回放开始前就失败，不会中途发现。
	compiled, err := strategy.Compile(strat)
	if err != nil {
		return nil, err
	}

	ledger, err := portfolio.New(decimal.NewFromFloat(initialBalance))
	if err != nil {
		return nil, err
	}
	builder := indicator.NewBuilder(series)

	state := runState{
		peakEquity: initialBalance,
	}
	equity := make([]EquityPoint, 0, len(series))

	for i, point := range series {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		env, err := builder.At(i)
		if err != nil {
			return nil, err
		}
		price := decimal.NewFromFloat(point.Price)

		// 先卖后买：持仓中先评估卖出信号，避免同一步内反复翻转仓位；
		// 仅在空仓时评估买入（单仓模型）。
		if pos, held := ledger.Position(symbol); held {
			if fired := evalSignal(compiled.Sell, env, &state); fired {
				if err := executeTrade(ledger, symbol, portfolio.SideSell, pos.Amount, price, point.Timestamp, &state); err != nil {
					return nil, err
				}
			}
		} else if fired := evalSignal(compiled.Buy, env, &state); fired {
			balance := ledger.Balance()
			if balance.IsPositive() {
				// 截断而不是四舍五入，保证 amount*price 不会因进位超出余额。
				amount, _ := balance.QuoRem(price, 16)
				if err := executeTrade(ledger, symbol, portfolio.SideBuy, amount, price, point.Timestamp, &state); err != nil {
					return nil, err
				}
			}
		}

		equity = append(equity, equityAt(ledger, symbol, point, &state))
	}

	// 收尾：仍有持仓则按最后一个价格平仓，保证结果全部落回现金。
	last := series[len(series)-1]
	if pos, held := ledger.Position(symbol); held {
		price := decimal.NewFromFloat(last.Price)
		if err := executeTrade(ledger, symbol, portfolio.SideSell, pos.Amount, price, last.Timestamp, &state); err != nil {
			return nil, err
		}
		equity[len(equity)-1] = equityAt(ledger, symbol, last, &state)
	}

	final, _ := ledger.Balance().Float64()
	history := ledger.History()
	trades := make([]TradeRecord, 0, len(history))
	for i, tr := range history {
		trades = append(trades, toRecord(tr, i))
	}
	result := computeMetrics(initialBalance, final, trades, equity, series.SampleInterval())
	result.RejectedSignals = state.rejected
	result.SkippedSteps = state.skipped
	return result, nil
}

type runState struct {
	peakEquity  float64
	maxDrawdown float64 // 负百分比
	rejected    int
	skipped     int
}

// evalSignal 求值一个条件。变量缺失或类型错误按“本步不可执行”处理：
// 记录后返回 false，回放继续。
func evalSignal(node expr.Node, env expr.Env, state *runState) bool {
	fired, err := expr.EvalBool(node, env)
	if err != nil {
		var evalErr *expr.EvalError
		if errors.As(err, &evalErr) {
			state.skipped++
			logger.Debugf("[backtest] 条件本步不可执行: %v", err)
			return false
		}
		// 非求值错误不应出现（条件已预解析），保守跳过。
		logger.Warnf("[backtest] 条件求值异常: %v", err)
		return false
	}
	return fired
}

// executeTrade 执行账本操作。业务拒绝（资金/持仓不足）记录后继续；
// 不变量破坏是程序缺陷，立刻终止整个回测。
func executeTrade(ledger *portfolio.Portfolio, symbol, side string, amount, price decimal.Decimal, ts int64, state *runState) error {
	_, err := ledger.Execute(symbol, side, amount, price, msToTime(ts))
	if err == nil {
		return nil
	}
	if errors.Is(err, portfolio.ErrInvariant) {
		return err
	}
	if errors.Is(err, portfolio.ErrInsufficientFunds) ||
		errors.Is(err, portfolio.ErrNoPosition) ||
		errors.Is(err, portfolio.ErrInsufficientHolding) {
		state.rejected++
		logger.Debugf("[backtest] 信号被账本拒绝: %v", err)
		return nil
	}
	return err
}

// equityAt 计算当前步的组合净值（现金 + 持仓按当前价估值）并更新回撤。
func equityAt(ledger *portfolio.Portfolio, symbol string, point market.PricePoint, state *runState) EquityPoint {
	balance, _ := ledger.Balance().Float64()
	equityVal := balance
	if pos, held := ledger.Position(symbol); held {
		amt, _ := pos.Amount.Float64()
		equityVal += amt * point.Price
	}
	if equityVal > state.peakEquity {
		state.peakEquity = equityVal
	}
	drawdown := 0.0
	if state.peakEquity > 0 {
		drawdown = (equityVal - state.peakEquity) / state.peakEquity * 100
	}
	if drawdown < state.maxDrawdown {
		state.maxDrawdown = drawdown
	}
	return EquityPoint{
		TS:       point.Timestamp,
		Equity:   equityVal,
		Balance:  balance,
		Drawdown: drawdown,
	}
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// toRecord 把账本成交转成回测记录。ID 用序号而不是账本的随机 UUID，
// 保证同一输入两次回测的结果逐字节一致。
func toRecord(tr portfolio.Trade, seq int) TradeRecord {
	amount, _ := tr.Amount.Float64()
	price, _ := tr.Price.Float64()
	total, _ := tr.Total.Float64()
	return TradeRecord{
		ID:        fmt.Sprintf("trade-%04d", seq+1),
		Symbol:    tr.Symbol,
		Side:      tr.Side,
		Amount:    amount,
		Price:     price,
		Total:     total,
		Timestamp: tr.Timestamp.UnixMilli(),
	}
}
