package market

import (
	"context"
	"errors"
)

// ErrEmptySeries 表示数据源在请求区间内没有任何采样。
var ErrEmptySeries = errors.New("行情序列为空")

// FetchRequest 描述一次历史行情请求。
type FetchRequest struct {
	Symbol   string
	Interval string
	Start    int64 // Unix ms
	End      int64 // Unix ms（0 表示到最新）
	Limit    int
}

// Source 统一不同行情数据源的拉取行为。
type Source interface {
	Fetch(ctx context.Context, req FetchRequest) (Series, error)
	Name() string
}
