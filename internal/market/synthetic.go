package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"
)

// SyntheticSource 生成确定性的模拟行情，用于未配置交易所时的本地演示与测试。
// 同一 symbol + 区间多次请求返回完全一致的序列。
type SyntheticSource struct {
	basePrice float64
}

func NewSyntheticSource(basePrice float64) *SyntheticSource {
	if basePrice <= 0 {
		basePrice = 40000
	}
	return &SyntheticSource{basePrice: basePrice}
}

func (s *SyntheticSource) Name() string { return "synthetic" }

// Fetch 以 symbol 哈希为随机种子做随机游走，保证可重现。
func (s *SyntheticSource) Fetch(_ context.Context, req FetchRequest) (Series, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	step, err := IntervalDuration(req.Interval)
	if err != nil {
		return nil, err
	}
	start, end := req.Start, req.End
	if end <= 0 {
		end = time.Now().UnixMilli()
	}
	if start <= 0 || start > end {
		return nil, fmt.Errorf("start/end 非法")
	}
	stepMs := step.Milliseconds()
	// 对齐到周期网格，使同一区间的请求落在相同的采样点上。
	start -= start % stepMs
	end -= end % stepMs
	count := int((end-start)/stepMs) + 1
	if req.Limit > 0 && count > req.Limit {
		count = req.Limit
	}
	if count <= 0 {
		return nil, ErrEmptySeries
	}

	h := fnv.New64a()
	h.Write([]byte(symbol))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	price := s.basePrice * (0.5 + rng.Float64())
	out := make(Series, 0, count)
	for i := 0; i < count; i++ {
		drift := (rng.Float64() - 0.5) * 0.04
		price *= 1 + drift
		if price < 1 {
			price = 1
		}
		out = append(out, PricePoint{
			Timestamp: start + int64(i)*stepMs,
			Price:     price,
			Volume:    rng.Float64() * 1_000_000,
		})
	}
	return out, nil
}

// IntervalDuration 把周期字符串（1m/5m/…/1w）解析为 Duration，空串按 1d 处理。
func IntervalDuration(interval string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d", "":
		return 24 * time.Hour, nil
	case "1w":
		return 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("不支持的周期: %s", interval)
	}
}
