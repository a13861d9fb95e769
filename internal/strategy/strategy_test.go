package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	ok := Strategy{
		Name:          "RSI Oversold",
		BuyCondition:  "rsi < 30",
		SellCondition: "rsi > 70",
		Risk:          RiskLow,
	}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.BuyCondition = "rsi <"
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "买入条件")

	bad = ok
	bad.SellCondition = "rsi >> 70"
	require.Error(t, bad.Validate())

	bad = ok
	bad.Risk = "insane"
	require.Error(t, bad.Validate())

	bad = ok
	bad.Name = "  "
	require.Error(t, bad.Validate())
}

func TestCompileCachesByID(t *testing.T) {
	s := Strategy{
		ID:            "test-cache-1",
		Name:          "t",
		BuyCondition:  "price_change_24h < -5",
		SellCondition: "price_change_24h > 10",
		Risk:          RiskMedium,
	}
	first, err := Compile(s)
	require.NoError(t, err)
	second, err := Compile(s)
	require.NoError(t, err)
	assert.Same(t, first, second, "同一策略应复用缓存的 AST")

	// 条件变化（热更新场景）必须重新解析。
	changed := s
	changed.BuyCondition = "rsi < 30"
	third, err := Compile(changed)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestCatalogLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies.yaml")
	content := `strategies:
  - id: buy-low-sell-high
    name: Buy Low Sell High
    description: Buy when price drops 5%, sell when it rises 10%
    buy_condition: "price_change_24h < -5"
    sell_condition: "price_change_24h > 10"
    risk: medium
    category: Momentum
  - id: rsi-oversold
    name: RSI Oversold
    buy_condition: "rsi < 30"
    sell_condition: "rsi > 70"
    risk: low
    category: Technical
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, catalog.List(), 2)

	s, ok := catalog.Get("rsi-oversold")
	require.True(t, ok)
	assert.Equal(t, "RSI Oversold", s.Name)

	_, ok = catalog.Get("missing")
	assert.False(t, ok)
}

func TestCatalogRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies.yaml")
	content := `strategies:
  - id: broken
    name: Broken
    buy_condition: "rsi <"
    sell_condition: "rsi > 70"
    risk: low
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	_, err := LoadCatalog(path)
	require.Error(t, err, "解析不过的策略必须整体拒绝")
}

func TestStoreCRUD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	created, err := store.Create(ctx, Strategy{
		Name:          "MA Crossover",
		Description:   "Buy when MA(10) crosses above MA(50)",
		BuyCondition:  "ma_10 > ma_50",
		SellCondition: "ma_10 < ma_50",
		Risk:          RiskMedium,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "Custom", created.Category)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, created.ID))
	assert.ErrorIs(t, store.Delete(ctx, created.ID), ErrNotFound)

	// 语法错误的策略拒绝入库。
	_, err = store.Create(ctx, Strategy{
		Name:          "bad",
		BuyCondition:  "ma_10 >",
		SellCondition: "ma_10 < ma_50",
		Risk:          RiskLow,
	})
	require.Error(t, err)
}
