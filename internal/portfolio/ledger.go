// Package portfolio 实现模拟资金账本：现金余额、单一持仓与只追加的成交历史。
// 回测与实盘纸面交易共用同一套账本规则。
package portfolio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

var (
	// ErrInsufficientFunds 余额不足以支付买入总额。
	ErrInsufficientFunds = errors.New("余额不足")
	// ErrNoPosition 卖出时该 symbol 没有持仓。
	ErrNoPosition = errors.New("没有持仓")
	// ErrInsufficientHolding 卖出数量超过持仓数量。
	ErrInsufficientHolding = errors.New("持仓数量不足")
	// ErrInvariant 表示账本不变量被破坏，属于程序缺陷，调用方必须中止当前运行。
	ErrInvariant = errors.New("账本不变量被破坏")
)

// Trade 记录一笔已执行的模拟成交，写入历史后不再修改。
type Trade struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
	Timestamp time.Time       `json:"timestamp"`
}

// Position 表示某 symbol 的当前持仓。每个 symbol 同时至多一笔（单仓模型），
// 追加买入按加权平均合并入场价。
type Position struct {
	Symbol        string          `json:"symbol"`
	Amount        decimal.Decimal `json:"amount"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	OpenedAt      time.Time       `json:"opened_at"`
}

// Portfolio 是一个账本实例。所有变更都经过 Execute，内部用互斥锁串行化，
// 可安全地被多个纸面交易请求并发使用；回测则每次 run 独占一份。
type Portfolio struct {
	mu        sync.Mutex
	initial   decimal.Decimal
	balance   decimal.Decimal
	positions map[string]*Position
	history   []Trade
}

// State 是账本的只读快照，供 JSON 序列化。
type State struct {
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Balance        decimal.Decimal `json:"balance"`
	Positions      []Position      `json:"positions"`
	History        []Trade         `json:"history"`
}

// New 以给定初始余额创建账本。
func New(initialBalance decimal.Decimal) (*Portfolio, error) {
	if initialBalance.IsNegative() {
		return nil, fmt.Errorf("初始余额不能为负: %s", initialBalance)
	}
	return &Portfolio{
		initial:   initialBalance,
		balance:   initialBalance,
		positions: make(map[string]*Position),
	}, nil
}

// Execute 执行一笔买入/卖出。失败时账本保持原状；成功时余额、持仓、
// 历史一次性更新完毕（原子性）。返回的 Trade 已带 ID 与时间戳。
func (p *Portfolio) Execute(symbol, side string, amount, price decimal.Decimal, ts time.Time) (Trade, error) {
	if symbol == "" {
		return Trade{}, fmt.Errorf("symbol 不能为空")
	}
	if !amount.IsPositive() {
		return Trade{}, fmt.Errorf("数量必须为正: %s", amount)
	}
	if !price.IsPositive() {
		return Trade{}, fmt.Errorf("价格必须为正: %s", price)
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	total := amount.Mul(price)

	p.mu.Lock()
	defer p.mu.Unlock()

	switch side {
	case SideBuy:
		if p.balance.LessThan(total) {
			return Trade{}, fmt.Errorf("买入 %s 需要 %s，余额 %s: %w", symbol, total, p.balance, ErrInsufficientFunds)
		}
		newBalance := p.balance.Sub(total)
		if newBalance.IsNegative() {
			// 理论上不可达：余额检查已通过。走到这里说明账本实现有缺陷。
			return Trade{}, fmt.Errorf("买入后余额 %s 为负: %w", newBalance, ErrInvariant)
		}
		p.balance = newBalance
		if pos, ok := p.positions[symbol]; ok {
			// 加权平均入场价：newAvg = (oldAmt*oldAvg + amt*price) / (oldAmt+amt)
			newAmount := pos.Amount.Add(amount)
			cost := pos.Amount.Mul(pos.AvgEntryPrice).Add(total)
			pos.AvgEntryPrice = cost.Div(newAmount)
			pos.Amount = newAmount
		} else {
			p.positions[symbol] = &Position{
				Symbol:        symbol,
				Amount:        amount,
				AvgEntryPrice: price,
				OpenedAt:      ts,
			}
		}
	case SideSell:
		pos, ok := p.positions[symbol]
		if !ok {
			return Trade{}, fmt.Errorf("卖出 %s: %w", symbol, ErrNoPosition)
		}
		if amount.GreaterThan(pos.Amount) {
			return Trade{}, fmt.Errorf("卖出 %s 数量 %s 超过持仓 %s: %w", symbol, amount, pos.Amount, ErrInsufficientHolding)
		}
		p.balance = p.balance.Add(total)
		pos.Amount = pos.Amount.Sub(amount)
		if pos.Amount.IsZero() {
			delete(p.positions, symbol)
		}
	default:
		return Trade{}, fmt.Errorf("未知交易方向: %q", side)
	}

	trade := Trade{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Amount:    amount,
		Price:     price,
		Total:     total,
		Timestamp: ts,
	}
	p.history = append(p.history, trade)
	return trade, nil
}

// Balance 返回当前现金余额。
func (p *Portfolio) Balance() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance
}

// InitialBalance 返回创建时的初始余额。
func (p *Portfolio) InitialBalance() decimal.Decimal {
	return p.initial
}

// Position 返回某 symbol 的持仓副本。
func (p *Portfolio) Position(symbol string) (Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Snapshot 返回账本的一致性快照。
func (p *Portfolio) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := State{
		InitialBalance: p.initial,
		Balance:        p.balance,
		Positions:      make([]Position, 0, len(p.positions)),
		History:        make([]Trade, len(p.history)),
	}
	for _, pos := range p.positions {
		st.Positions = append(st.Positions, *pos)
	}
	copy(st.History, p.history)
	return st
}

// History 返回成交历史副本（按执行顺序）。
func (p *Portfolio) History() []Trade {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Trade, len(p.history))
	copy(out, p.history)
	return out
}
