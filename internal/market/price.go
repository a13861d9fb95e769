package market

import (
	"fmt"
	"sort"
	"time"
)

// PricePoint 表示某一时刻的行情采样。
type PricePoint struct {
	Timestamp int64   `json:"timestamp"` // Unix ms
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
}

// Series 是按时间戳严格递增排列的行情序列。
type Series []PricePoint

// Validate 校验序列的基本约束：时间戳严格递增、价格为正、成交量非负。
func (s Series) Validate() error {
	for i, p := range s {
		if p.Price <= 0 {
			return fmt.Errorf("第 %d 个采样价格非法: %v", i, p.Price)
		}
		if p.Volume < 0 {
			return fmt.Errorf("第 %d 个采样成交量非法: %v", i, p.Volume)
		}
		if i > 0 && p.Timestamp <= s[i-1].Timestamp {
			return fmt.Errorf("第 %d 个采样时间戳未递增: %d <= %d", i, p.Timestamp, s[i-1].Timestamp)
		}
	}
	return nil
}

// Prices 返回价格列（供指标计算复用的 arena）。
func (s Series) Prices() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Price
	}
	return out
}

// Volumes 返回成交量列。
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Volume
	}
	return out
}

// SampleInterval 估计序列的采样周期（相邻时间戳差值的中位数）。
// 序列不足两个点时返回 0。
func (s Series) SampleInterval() time.Duration {
	if len(s) < 2 {
		return 0
	}
	gaps := make([]int64, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		gaps = append(gaps, s[i].Timestamp-s[i-1].Timestamp)
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return time.Duration(gaps[len(gaps)/2]) * time.Millisecond
}
