package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptorules/internal/logger"
)

// ErrSourceUnavailable 数据源熔断中，请求被直接拒绝。
var ErrSourceUnavailable = errors.New("行情数据源熔断中")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "CLOSED"
	case breakerOpen:
		return "OPEN"
	case breakerHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// GuardedSource 给外部数据源加熔断：连续失败超过阈值后短路一段时间，
// 避免回测任务反复打挂掉的交易所接口。
type GuardedSource struct {
	inner Source

	mu          sync.Mutex
	state       breakerState
	failures    int
	threshold   int
	cooldown    time.Duration
	lastFailure time.Time
}

// Guard 包装一个数据源。threshold<=0 或 cooldown<=0 时用保守默认值。
func Guard(inner Source, threshold int, cooldown time.Duration) *GuardedSource {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &GuardedSource{
		inner:     inner,
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (g *GuardedSource) Name() string { return g.inner.Name() }

func (g *GuardedSource) Fetch(ctx context.Context, req FetchRequest) (Series, error) {
	if !g.allow() {
		return nil, fmt.Errorf("%s: %w", g.inner.Name(), ErrSourceUnavailable)
	}
	series, err := g.inner.Fetch(ctx, req)
	if err != nil {
		// 调用方取消不算数据源故障。
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			g.recordFailure()
		}
		return nil, err
	}
	g.recordSuccess()
	return series, nil
}

func (g *GuardedSource) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case breakerOpen:
		if time.Since(g.lastFailure) > g.cooldown {
			g.transition(breakerHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (g *GuardedSource) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == breakerHalfOpen {
		g.transition(breakerClosed)
	}
	g.failures = 0
}

func (g *GuardedSource) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	g.lastFailure = time.Now()
	switch g.state {
	case breakerClosed:
		if g.failures >= g.threshold {
			g.transition(breakerOpen)
		}
	case breakerHalfOpen:
		g.transition(breakerOpen)
	}
}

func (g *GuardedSource) transition(to breakerState) {
	from := g.state
	g.state = to
	logger.Warnf("[market] %s 熔断状态 %s -> %s (failures=%d/%d)",
		g.inner.Name(), from, to, g.failures, g.threshold)
}
