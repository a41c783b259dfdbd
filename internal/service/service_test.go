package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendinha/internal/cache"
	"vendinha/internal/domain"
	"vendinha/internal/replication"
	"vendinha/internal/seed"
	"vendinha/internal/store"
	"vendinha/internal/store/memory"
)

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func newTestService(t *testing.T) (*Service, *replication.Recorder) {
	t.Helper()
	recorder := &replication.Recorder{}
	svc := New(store.New(memory.New()), Options{
		Dispatcher:   recorder,
		SummaryCache: cache.NewMemorySummaryCache(),
	})
	require.NoError(t, svc.Bootstrap(context.Background(), seed.Bundled{}))
	return svc, recorder
}

func TestBootstrapSeedsAndMigrates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	products, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, len(seed.DefaultCatalog()))

	settings, err := svc.GetSettings(ctx)
	require.NoError(t, err)
	assert.Positive(t, settings.SchemaVersion)

	require.NoError(t, svc.Bootstrap(ctx, seed.Bundled{}))
	products, err = svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, len(seed.DefaultCatalog()))
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{Name: "Tripé", Quantity: 1})
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	cashier := WithActor(context.Background(), domain.Actor{Username: "kasir", Role: domain.RoleCashier})
	_, err = svc.CreateProduct(cashier, domain.ProductCreateRequest{Name: "Tripé", Quantity: 1})
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	p, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{Name: "Tripé", Quantity: 1, Cost: decimal.NewFromInt(20), UnitPrice: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.Equal(t, "Tripé", p.Name)
}

func TestSaleFlowUpdatesCustomerAndDashboard(t *testing.T) {
	svc, recorder := newTestService(t)
	ctx := adminCtx()

	customer, err := svc.CreateCustomer(ctx, domain.Customer{Name: "Ana", Phone: "11 99999-0000"})
	require.NoError(t, err)

	before, err := svc.Dashboard(ctx)
	require.NoError(t, err)

	resp, err := svc.RecordSale(ctx, domain.SaleRequest{
		Product:       "Fone Bluetooth",
		Quantity:      1,
		CustomerName:  "ana",
		CustomerPhone: "11999990000",
		PaymentMethod: "parcelado",
		Installments:  3,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.NewQuantity)
	assert.Equal(t, 7, *resp.NewQuantity)
	assert.Len(t, resp.Sale.Installments, 3)

	got, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalPurchases)
	assert.Equal(t, "119.9", got.PendingAmount.String())

	after, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.SalesCount+1, after.SalesCount)

	sale, err := svc.RecordPayment(ctx, resp.Sale.ID, 1, domain.PaymentRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusPartial, sale.Status)

	got, err = svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, got.PendingAmount.Equal(sale.Installments[1].Value.Add(sale.Installments[2].Value)))

	var sawAppend bool
	for _, p := range recorder.Pushes() {
		if p.Entity == replication.EntitySales && p.Mode == replication.ModeAppend {
			sawAppend = true
		}
	}
	assert.True(t, sawAppend)
}

func TestRecordMultiSaleThroughService(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.RecordSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{Product: "Capinha Silicone", Quantity: 2},
			{Product: "Película de Vidro", Quantity: 1, UnitPrice: money("10")},
		},
	})
	require.NoError(t, err)
	assert.True(t, resp.Sale.IsMulti())
	assert.True(t, resp.Sale.TotalValue.Equal(decimal.RequireFromString("49.8")))
	assert.Len(t, resp.UpdatedProducts, 2)

	_, err = svc.RecordSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{Product: "Capinha Silicone", Quantity: 1},
			{Product: "Power Bank 10000mAh", Quantity: 100},
		},
	})
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))

	products, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	for _, p := range products {
		if p.Name == "Capinha Silicone" {
			assert.Equal(t, 28, p.Quantity)
		}
	}
}

func TestRecordSaleValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RecordSale(context.Background(), domain.SaleRequest{Quantity: 1})
	assert.True(t, domain.IsValidation(err))

	_, err = svc.RecordSale(context.Background(), domain.SaleRequest{Product: "Cabo USB-C 1m", Quantity: 1, Status: "lost"})
	assert.True(t, domain.IsValidation(err))
}

func TestExportImportRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	_, err := svc.RecordSale(ctx, domain.SaleRequest{Product: "Cabo USB-C 1m", Quantity: 2, CustomerName: "Ana"})
	require.NoError(t, err)

	for _, entity := range []string{"products", "customers", "sales"} {
		var buf bytes.Buffer
		require.NoError(t, svc.Export(ctx, entity, &buf))

		result, err := svc.Import(ctx, entity, &buf)
		require.NoError(t, err, entity)
		assert.Equal(t, entity, result.Entity)
	}

	sales, err := svc.ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.True(t, sales[0].TotalValue.Equal(decimal.RequireFromString("49.8")))
}

func TestImportIsAllOrNothing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	_, err := svc.Import(ctx, "products", strings.NewReader("name,quantity,cost,unitPrice,photo\nA,1,1,1,\nB,x,1,1,\n"))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 3, verr.Line)

	products, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, len(seed.DefaultCatalog()))

	_, err = svc.Import(context.Background(), "products", strings.NewReader("name,quantity\nA,1\n"))
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = svc.Import(ctx, "widgets", strings.NewReader(""))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpcomingPayments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	fixed := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	date := fixed.AddDate(0, -1, 3)
	_, err := svc.RecordSale(ctx, domain.SaleRequest{Product: "Cabo USB-C 1m", Quantity: 1, PaymentMethod: "installments", Installments: 2, Date: &date})
	require.NoError(t, err)

	report, err := svc.UpcomingPayments(ctx)
	require.NoError(t, err)
	require.Len(t, report.Upcoming, 1)
	assert.Equal(t, 3, report.Upcoming[0].DaysUntilDue)
	assert.Empty(t, report.Overdue)
}

func TestUpdateSettings(t *testing.T) {
	svc, recorder := newTestService(t)
	name := "Loja da Ana"
	threshold := 10

	settings, err := svc.UpdateSettings(adminCtx(), domain.SettingsUpdateRequest{StoreName: &name, LowStockThreshold: &threshold, Values: map[string]string{"currency": "BRL"}})
	require.NoError(t, err)
	assert.Equal(t, name, settings.StoreName)
	assert.Equal(t, "BRL", settings.Values["currency"])
	assert.Positive(t, settings.SchemaVersion)

	summary, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Carregador Turbo 20W", "Fone Bluetooth", "Power Bank 10000mAh"}, summary.LowStock)

	pushes := recorder.Pushes()
	assert.Equal(t, replication.EntitySettings, pushes[len(pushes)-1].Entity)
}
