package strategy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// ErrNotFound 表示按 ID 未找到策略。
var ErrNotFound = errors.New("策略不存在")

// strategyModel 是用户策略的 Gorm 持久化模型。
type strategyModel struct {
	ID            string `gorm:"primaryKey;size:64"`
	Name          string `gorm:"size:128;not null"`
	Description   string `gorm:"size:512"`
	BuyCondition  string `gorm:"size:512;not null"`
	SellCondition string `gorm:"size:512;not null"`
	Risk          string `gorm:"size:16;not null"`
	Category      string `gorm:"size:64"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (strategyModel) TableName() string { return "strategies" }

// Store 用 Gorm + SQLite 保存用户自建策略。
type Store struct {
	db *gorm.DB
}

// NewStore 打开（或创建）策略库并完成迁移。
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("策略库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&strategyModel{}); err != nil {
		return nil, fmt.Errorf("策略库迁移失败: %w", err)
	}
	return &Store{db: db}, nil
}

// Create 校验并保存一条新策略，返回带 ID 的副本。
func (s *Store) Create(ctx context.Context, st Strategy) (Strategy, error) {
	if err := st.Validate(); err != nil {
		return Strategy{}, err
	}
	risk, err := ParseRiskLevel(string(st.Risk))
	if err != nil {
		return Strategy{}, err
	}
	st.Risk = risk
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Category == "" {
		st.Category = "Custom"
	}
	model := strategyModel{
		ID:            st.ID,
		Name:          st.Name,
		Description:   st.Description,
		BuyCondition:  st.BuyCondition,
		SellCondition: st.SellCondition,
		Risk:          string(st.Risk),
		Category:      st.Category,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return Strategy{}, fmt.Errorf("保存策略失败: %w", err)
	}
	return st, nil
}

// Get 按 ID 查找用户策略。
func (s *Store) Get(ctx context.Context, id string) (Strategy, error) {
	var model strategyModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Strategy{}, ErrNotFound
	}
	if err != nil {
		return Strategy{}, err
	}
	return model.toStrategy(), nil
}

// List 返回全部用户策略（按创建时间倒序）。
func (s *Store) List(ctx context.Context) ([]Strategy, error) {
	var models []strategyModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Strategy, 0, len(models))
	for _, m := range models {
		out = append(out, m.toStrategy())
	}
	return out, nil
}

// Delete 删除一条用户策略。
func (s *Store) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&strategyModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (m strategyModel) toStrategy() Strategy {
	return Strategy{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		BuyCondition:  m.BuyCondition,
		SellCondition: m.SellCondition,
		Risk:          RiskLevel(m.Risk),
		Category:      m.Category,
	}
}
