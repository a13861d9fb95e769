package market

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
)

const maxKlineLimit = 1000

// BinanceSource 基于 go-binance SDK 的现货 K 线数据源。
// 只读行情，不涉及任何下单接口。
type BinanceSource struct {
	client *binance.Client
}

// NewBinanceSource 构建数据源；K 线是公开接口，密钥可以为空。
func NewBinanceSource(apiKey, secretKey, baseURL string, timeout time.Duration) *BinanceSource {
	client := binance.NewClient(apiKey, secretKey)
	if base := strings.TrimSpace(baseURL); base != "" {
		client.BaseURL = base
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceSource{client: client}
}

func (b *BinanceSource) Name() string { return "binance" }

// Fetch 拉取 [Start, End] 区间的 K 线，取收盘价作为采样价格。
func (b *BinanceSource) Fetch(ctx context.Context, req FetchRequest) (Series, error) {
	symbol := BinancePair(req.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if interval == "" {
		return nil, fmt.Errorf("interval 不能为空")
	}
	limit := req.Limit
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	svc := b.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
	if req.Start > 0 {
		svc = svc.StartTime(req.Start)
	}
	if req.End > 0 {
		svc = svc.EndTime(req.End)
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance 拉取失败: %w", err)
	}
	out := make(Series, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		price := parseFloat(kl.Close)
		if price <= 0 {
			continue
		}
		out = append(out, PricePoint{
			Timestamp: kl.CloseTime,
			Price:     price,
			Volume:    parseFloat(kl.Volume),
		})
	}
	if len(out) == 0 {
		return nil, ErrEmptySeries
	}
	return out, nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
