package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendinha/internal/cache"
	"vendinha/internal/domain"
	"vendinha/internal/store"
	"vendinha/internal/store/memory"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBuildTotalsAndBuckets(t *testing.T) {
	now := time.Date(2024, time.May, 20, 12, 0, 0, 0, time.UTC)
	products := []domain.Product{
		{Name: "Cabo", Quantity: 10, Cost: money("2")},
		{Name: "Fone", Quantity: 1, Cost: money("30")},
	}
	sales := []domain.Sale{
		{Date: now.Add(-time.Hour), Product: "Cabo", Quantity: 2, TotalValue: money("20"), TotalCost: money("4"), Profit: money("16"), Status: domain.SaleStatusPaid},
		{
			Date: now.AddDate(0, 0, -1), TotalValue: money("60"), TotalCost: money("30"), Profit: money("30"), Status: domain.SaleStatusPending,
			Items: []domain.SaleItem{{Product: "Fone", Quantity: 1}},
			Installments: []domain.Installment{
				{Number: 1, Value: money("30"), DueDate: now.AddDate(0, 0, -2), Status: domain.InstallmentPending},
				{Number: 2, Value: money("30"), DueDate: now.AddDate(0, 1, 0), Status: domain.InstallmentPending},
			},
		},
		{Date: now.AddDate(-2, 0, 0), Product: "Cabo", Quantity: 1, TotalValue: money("10"), TotalCost: money("2"), Profit: money("8"), Status: domain.SaleStatusPaid},
	}

	summary := Build(products, sales, now, 3)

	assert.Equal(t, 3, summary.SalesCount)
	assert.Equal(t, 4, summary.ItemsSold)
	assert.True(t, summary.TotalValue.Equal(money("90")))
	assert.True(t, summary.TotalProfit.Equal(money("54")))
	assert.True(t, summary.PendingAmount.Equal(money("60")))
	assert.True(t, summary.OverdueAmount.Equal(money("30")))
	assert.True(t, summary.StockValue.Equal(money("50")))
	assert.Equal(t, []string{"Fone"}, summary.LowStock)

	require.Len(t, summary.Daily, 2)
	assert.Equal(t, "2024-05-19", summary.Daily[0].Period)
	assert.Equal(t, "2024-05-20", summary.Daily[1].Period)
	require.Len(t, summary.Monthly, 1)
	assert.Equal(t, 2, summary.Monthly[0].Sales)
}

func TestSummaryUsesCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New())
	require.NoError(t, store.Set(ctx, s, store.KeyProducts, []domain.Product{{Name: "Cabo", Quantity: 10}}))
	b := NewBuilder(s, cache.NewMemorySummaryCache(), time.Minute)

	first, err := b.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ProductCount)

	require.NoError(t, store.Set(ctx, s, store.KeyProducts, []domain.Product{{Name: "Cabo", Quantity: 10}, {Name: "Fone", Quantity: 1}}))
	cached, err := b.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.ProductCount)

	b.Invalidate(ctx)
	fresh, err := b.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.ProductCount)
	assert.Equal(t, []string{"Fone"}, fresh.LowStock)
}
