// Package strategy 定义交易策略模型：一对买入/卖出条件加风险等级。
// 策略创建后不可变，条件字符串惰性解析并按策略 ID 缓存 AST。
package strategy

import (
	"fmt"
	"strings"
	"sync"

	"cryptorules/internal/expr"
)

// RiskLevel 风险等级。
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ParseRiskLevel 归一化风险等级输入，未知值返回错误。
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RiskLow, nil
	case "medium", "":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	default:
		return "", fmt.Errorf("未知风险等级: %q", s)
	}
}

// Strategy 是一条用户或预置的交易策略。
type Strategy struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	Description   string    `json:"description" yaml:"description"`
	BuyCondition  string    `json:"buy_condition" yaml:"buy_condition"`
	SellCondition string    `json:"sell_condition" yaml:"sell_condition"`
	Risk          RiskLevel `json:"risk" yaml:"risk"`
	Category      string    `json:"category" yaml:"category"`
}

// Compiled 是一条策略的两棵条件 AST。
type Compiled struct {
	Buy  expr.Node
	Sell expr.Node
}

// Validate 在策略入库/使用前解析两个条件。解析失败是致命错误：
// 永远解析不过的策略直接拒绝，而不是运行中途悄悄跳过。
func (s Strategy) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("策略名称不能为空")
	}
	if _, err := expr.Parse(s.BuyCondition); err != nil {
		return fmt.Errorf("买入条件无效: %w", err)
	}
	if _, err := expr.Parse(s.SellCondition); err != nil {
		return fmt.Errorf("卖出条件无效: %w", err)
	}
	if _, err := ParseRiskLevel(string(s.Risk)); err != nil {
		return err
	}
	return nil
}

// astCache 按策略 ID 缓存编译结果。策略本身不可变，但预置清单可以热更新，
// 因此键里带上条件文本，换条件即重新解析。
var astCache sync.Map // cacheKey → *Compiled

func cacheKey(s Strategy) string {
	return s.ID + "\x00" + s.BuyCondition + "\x00" + s.SellCondition
}

// Compile 返回策略的条件 AST，同一策略只解析一次。
func Compile(s Strategy) (*Compiled, error) {
	if s.ID != "" {
		if cached, ok := astCache.Load(cacheKey(s)); ok {
			return cached.(*Compiled), nil
		}
	}
	buy, err := expr.Parse(s.BuyCondition)
	if err != nil {
		return nil, fmt.Errorf("买入条件无效: %w", err)
	}
	sell, err := expr.Parse(s.SellCondition)
	if err != nil {
		return nil, fmt.Errorf("卖出条件无效: %w", err)
	}
	compiled := &Compiled{Buy: buy, Sell: sell}
	if s.ID != "" {
		astCache.Store(cacheKey(s), compiled)
	}
	return compiled, nil
}
