package migrate

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendinha/internal/domain"
	"vendinha/internal/store"
	"vendinha/internal/store/memory"
)

func TestRunUpgradesLegacyData(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New())
	day := time.Date(2023, time.November, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Set(ctx, s, store.KeySales, []domain.Sale{
		{Date: day, Product: "Cabo", Quantity: 1, TotalValue: decimal.NewFromInt(30), PaymentMethod: "crediario"},
		{Date: day, Product: "Fone", Quantity: 1, TotalValue: decimal.NewFromInt(10), PaymentMethod: "pix", Status: domain.SaleStatusPaid},
	}))
	require.NoError(t, store.Set(ctx, s, store.KeyCustomers, []domain.Customer{{Name: "Ana"}}))

	result, err := Run(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 0, result.From)
	assert.Equal(t, Current(), result.To)
	assert.Equal(t, []int{1, 2, 3}, result.Applied)

	sales, err := store.Get(ctx, s, store.KeySales, []domain.Sale(nil))
	require.NoError(t, err)
	assert.Len(t, sales[0].Installments, 3)
	assert.Equal(t, domain.SaleStatusPending, sales[0].Status)
	assert.NotEmpty(t, sales[0].ID)
	assert.NotEmpty(t, sales[1].ID)

	customers, err := store.Get(ctx, s, store.KeyCustomers, []domain.Customer(nil))
	require.NoError(t, err)
	assert.NotEmpty(t, customers[0].ID)

	settings, err := store.Get(ctx, s, store.KeySettings, domain.Settings{})
	require.NoError(t, err)
	assert.Equal(t, Current(), settings.SchemaVersion)
}

func TestRunIsNoopWhenCurrent(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New())
	require.NoError(t, store.Set(ctx, s, store.KeySettings, domain.Settings{SchemaVersion: Current(), StoreName: "Loja"}))

	result, err := Run(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, result.Applied)

	settings, err := store.Get(ctx, s, store.KeySettings, domain.Settings{})
	require.NoError(t, err)
	assert.Equal(t, "Loja", settings.StoreName)
}

func TestRunRejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New())
	require.NoError(t, store.Set(ctx, s, store.KeySettings, domain.Settings{SchemaVersion: Current() + 1}))

	_, err := Run(ctx, s)
	assert.Error(t, err)
}
