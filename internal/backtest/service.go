package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cryptorules/internal/logger"
	"cryptorules/internal/market"
	"cryptorules/internal/strategy"
)

// Service 负责回测任务的生命周期：提交、并发限流、执行与结果落盘。
type Service struct {
	source market.Source
	store  *ResultStore
	sem    chan struct{}
}

// NewService 创建回测服务。maxConcurrent 限制同时执行的回测数量。
func NewService(source market.Source, store *ResultStore, maxConcurrent int) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Service{
		source: source,
		store:  store,
		sem:    make(chan struct{}, maxConcurrent),
	}
}

// RunSync 同步执行一次回测并返回结果，同时落盘为一条 done/failed 记录。
func (s *Service) RunSync(ctx context.Context, strat strategy.Strategy, cfg RunConfig) (Run, error) {
	run := newRun(cfg)
	if err := s.store.InsertRun(ctx, run); err != nil {
		return Run{}, err
	}
	result, err := s.execute(ctx, strat, cfg)
	if err != nil {
		s.markFailed(run.ID, err)
		return Run{}, err
	}
	if err := s.store.CompleteRun(ctx, run.ID, result); err != nil {
		return Run{}, err
	}
	return s.store.GetRun(ctx, run.ID)
}

// Submit 异步提交一次回测，立即返回 pending 状态的任务。
// ctx 控制后台执行的生命周期（通常传应用级 ctx 而非请求 ctx）。
func (s *Service) Submit(ctx context.Context, strat strategy.Strategy, cfg RunConfig) (Run, error) {
	run := newRun(cfg)
	if err := s.store.InsertRun(ctx, run); err != nil {
		return Run{}, err
	}
	go s.runAsync(ctx, run.ID, strat, cfg)
	return run, nil
}

func (s *Service) runAsync(ctx context.Context, id string, strat strategy.Strategy, cfg RunConfig) {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		s.markFailed(id, ctx.Err())
		return
	}

	if err := s.store.UpdateRunStatus(ctx, id, RunStatusRunning, "回测执行中"); err != nil {
		logger.Errorf("[backtest] 更新任务状态失败 id=%s: %v", id, err)
		return
	}
	started := time.Now()
	result, err := s.execute(ctx, strat, cfg)
	if err != nil {
		s.markFailed(id, err)
		return
	}
	if err := s.store.CompleteRun(context.WithoutCancel(ctx), id, result); err != nil {
		logger.Errorf("[backtest] 结果落盘失败 id=%s: %v", id, err)
		return
	}
	logger.Infof("[backtest] 任务完成 id=%s strategy=%s symbol=%s 耗时=%s 收益=%.2f%%",
		id, cfg.StrategyID, cfg.Symbol, time.Since(started).Round(time.Millisecond), result.TotalReturnPct)
}

// execute 拉取行情并驱动模拟器。数据源错误统一包装为 ErrProvider。
func (s *Service) execute(ctx context.Context, strat strategy.Strategy, cfg RunConfig) (*Result, error) {
	series, err := s.source.Fetch(ctx, market.FetchRequest{
		Symbol:   cfg.Symbol,
		Interval: cfg.Interval,
		Start:    cfg.StartTS,
		End:      cfg.EndTS,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", s.source.Name(), err, ErrProvider)
	}
	return Simulate(ctx, strat, cfg.Symbol, series, cfg.InitialBalance)
}

func (s *Service) markFailed(id string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.UpdateRunStatus(ctx, id, RunStatusFailed, cause.Error()); err != nil {
		logger.Errorf("[backtest] 记录失败状态出错 id=%s: %v", id, err)
	}
}

// Get 查询任务。
func (s *Service) Get(ctx context.Context, id string) (Run, error) {
	return s.store.GetRun(ctx, id)
}

// List 返回最近的任务。
func (s *Service) List(ctx context.Context, limit int) ([]Run, error) {
	return s.store.ListRuns(ctx, limit)
}

func newRun(cfg RunConfig) Run {
	now := time.Now().UTC()
	return Run{
		ID:        uuid.NewString(),
		Status:    RunStatusPending,
		Message:   "排队等待执行",
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
