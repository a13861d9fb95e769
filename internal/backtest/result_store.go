package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound 按 ID 未找到回测任务。
var ErrRunNotFound = errors.New("回测任务不存在")

// ResultStore 管理 backtest_runs/trades/snapshots 三张表。
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewResultStore 在 root 下打开（或创建）runs.db。
func NewResultStore(root string) (*ResultStore, error) {
	if root == "" {
		return nil, fmt.Errorf("result store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

// Close 关闭底层数据库。
func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			strategy_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			status TEXT NOT NULL,
			interval TEXT NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			initial_balance REAL NOT NULL,
			final_balance REAL NOT NULL DEFAULT 0,
			return_pct REAL NOT NULL DEFAULT 0,
			win_rate REAL NOT NULL DEFAULT 0,
			max_drawdown REAL NOT NULL DEFAULT 0,
			sharpe REAL NOT NULL DEFAULT 0,
			trades INTEGER NOT NULL DEFAULT 0,
			config_json TEXT NOT NULL,
			result_json TEXT,
			message TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			trade_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			amount REAL NOT NULL,
			price REAL NOT NULL,
			total REAL NOT NULL,
			ts INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			equity REAL NOT NULL,
			balance REAL NOT NULL,
			drawdown REAL NOT NULL,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON backtest_trades(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_run ON backtest_snapshots(run_id, ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun 写入一条 run 记录。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs
			(id, strategy_id, symbol, status, interval, start_ts, end_ts, initial_balance,
			config_json, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Config.StrategyID, run.Config.Symbol, run.Status, run.Config.Interval,
		run.Config.StartTS, run.Config.EndTS, run.Config.InitialBalance,
		string(cfgJSON), run.Message, now, now)
	return err
}

// UpdateRunStatus 更新任务状态与进度消息。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE backtest_runs SET status = ?, message = ?, updated_at = ? WHERE id = ?`,
		status, message, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// CompleteRun 落盘最终结果（含成交与资金曲线），状态置为 done。
func (s *ResultStore) CompleteRun(ctx context.Context, id string, result *Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	res, err := tx.ExecContext(ctx, `
		UPDATE backtest_runs SET
			status = ?, message = ?, final_balance = ?, return_pct = ?, win_rate = ?,
			max_drawdown = ?, sharpe = ?, trades = ?, result_json = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ?`,
		RunStatusDone, "完成", result.FinalBalance, result.TotalReturnPct, result.WinRate,
		result.MaxDrawdownPct, result.SharpeRatio, result.TotalTrades, string(resultJSON),
		now, now, id)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := checkAffected(res); err != nil {
		tx.Rollback()
		return err
	}
	for _, tr := range result.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_trades (run_id, trade_id, symbol, side, amount, price, total, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, tr.ID, tr.Symbol, tr.Side, tr.Amount, tr.Price, tr.Total, tr.Timestamp); err != nil {
			tx.Rollback()
			return err
		}
	}
	for _, p := range result.Equity {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_snapshots (run_id, ts, equity, balance, drawdown)
			VALUES (?, ?, ?, ?, ?)`,
			id, p.TS, p.Equity, p.Balance, p.Drawdown); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetRun 读取单个任务（含已落盘的结果）。
func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, message, config_json, result_json, created_at, updated_at, completed_at
		FROM backtest_runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns 按创建时间倒序返回最近的任务。
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, message, config_json, result_json, created_at, updated_at, completed_at
		FROM backtest_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// RunSnapshots 返回某任务的资金曲线。
func (s *ResultStore) RunSnapshots(ctx context.Context, runID string) ([]EquityPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, equity, balance, drawdown FROM backtest_snapshots
		WHERE run_id = ? ORDER BY ts ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EquityPoint
	for rows.Next() {
		var p EquityPoint
		if err := rows.Scan(&p.TS, &p.Equity, &p.Balance, &p.Drawdown); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run         Run
		cfgJSON     string
		resultJSON  sql.NullString
		createdAt   int64
		updatedAt   int64
		completedAt sql.NullInt64
	)
	err := row.Scan(&run.ID, &run.Status, &run.Message, &cfgJSON, &resultJSON,
		&createdAt, &updatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(cfgJSON), &run.Config); err != nil {
		return Run{}, fmt.Errorf("config_json 损坏: %w", err)
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return Run{}, fmt.Errorf("result_json 损坏: %w", err)
		}
		run.Result = &result
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	run.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if completedAt.Valid {
		run.CompletedAt = time.UnixMilli(completedAt.Int64).UTC()
	}
	return run, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}
