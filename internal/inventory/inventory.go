// Package inventory records sales against the product catalog. Stock checks
// and decrements happen inside the products key's queue, so two sales can
// never both spend the same unit.
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"vendinha/internal/domain"
	"vendinha/internal/installment"
	"vendinha/internal/replication"
	"vendinha/internal/store"
	"vendinha/internal/xid"
)

// PurchaseRecorder is told about every sale that names a customer.
type PurchaseRecorder interface {
	RecordPurchase(ctx context.Context, sale domain.Sale) error
}

// SaleMeta carries everything about a sale that is not a product line.
// Non-nil totals override the computed ones verbatim.
type SaleMeta struct {
	Date          time.Time
	CustomerName  string
	CustomerPhone string
	PaymentMethod string
	Installments  int
	Status        domain.SaleStatus

	UnitPrice  *decimal.Decimal
	TotalValue *decimal.Decimal
	TotalCost  *decimal.Decimal
	Profit     *decimal.Decimal
}

type Item struct {
	Product   string
	Quantity  int
	UnitPrice *decimal.Decimal
}

type SaleResult struct {
	NewQuantity int
	Sale        domain.Sale
}

type MultiSaleResult struct {
	UpdatedProducts []domain.Product
	Sale            domain.Sale
}

type Engine struct {
	store      *store.Store
	dispatcher replication.Dispatcher
	customers  PurchaseRecorder
	now        func() time.Time
}

func NewEngine(s *store.Store, dispatcher replication.Dispatcher, customers PurchaseRecorder) *Engine {
	if dispatcher == nil {
		dispatcher = replication.Discard{}
	}
	return &Engine{
		store:      s,
		dispatcher: dispatcher,
		customers:  customers,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return store.Get(ctx, e.store, store.KeyProducts, []domain.Product{})
}

func (e *Engine) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return store.Get(ctx, e.store, store.KeySales, []domain.Sale{})
}

func (e *Engine) GetProduct(ctx context.Context, name string) (domain.Product, error) {
	products, err := e.ListProducts(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if i := productIndex(products, name); i >= 0 {
		return products[i], nil
	}
	return domain.Product{}, fmt.Errorf("product %q: %w", name, domain.ErrNotFound)
}

// RecordSale sells quantity units of one product.
func (e *Engine) RecordSale(ctx context.Context, productName string, quantity int, meta SaleMeta) (SaleResult, error) {
	if quantity <= 0 {
		return SaleResult{}, domain.Invalid("quantity", "must be positive")
	}

	var sold domain.Product
	products, err := store.Mutate(ctx, e.store, store.KeyProducts, []domain.Product{}, func(products []domain.Product) ([]domain.Product, error) {
		i := productIndex(products, productName)
		if i < 0 {
			return nil, fmt.Errorf("product %q: %w", productName, domain.ErrNotFound)
		}
		if quantity > products[i].Quantity {
			return nil, &domain.InsufficientStockError{Product: products[i].Name, Requested: quantity, Available: products[i].Quantity}
		}
		products[i].Quantity -= quantity
		sold = products[i]
		return products, nil
	})
	if err != nil {
		return SaleResult{}, err
	}

	unitPrice := sold.UnitPrice
	if meta.UnitPrice != nil {
		unitPrice = *meta.UnitPrice
	}
	q := decimal.NewFromInt(int64(quantity))
	sale := domain.Sale{
		Product:    sold.Name,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		TotalValue: domain.RoundMoney(unitPrice.Mul(q)),
		TotalCost:  domain.RoundMoney(sold.Cost.Mul(q)),
	}
	sale.Profit = sale.TotalValue.Sub(sale.TotalCost)

	sale, err = e.finishSale(ctx, sale, meta, map[string]int{sold.Name: quantity})
	if err != nil {
		return SaleResult{}, err
	}

	e.afterSale(ctx, sale, products)
	return SaleResult{NewQuantity: sold.Quantity, Sale: sale}, nil
}

// RecordMultiSale sells a basket. Every line is checked before any stock
// moves; lines naming the same product are checked against their combined
// quantity.
func (e *Engine) RecordMultiSale(ctx context.Context, items []Item, meta SaleMeta) (MultiSaleResult, error) {
	if len(items) == 0 {
		return MultiSaleResult{}, domain.Invalid("items", "basket is empty")
	}
	requested := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return MultiSaleResult{}, domain.Invalid("quantity", fmt.Sprintf("must be positive for %q", item.Product))
		}
		requested[normalizeName(item.Product)] += item.Quantity
	}

	var (
		lines   []domain.SaleItem
		touched []domain.Product
	)
	products, err := store.Mutate(ctx, e.store, store.KeyProducts, []domain.Product{}, func(products []domain.Product) ([]domain.Product, error) {
		lines = lines[:0]
		touched = touched[:0]

		for _, item := range items {
			i := productIndex(products, item.Product)
			if i < 0 {
				return nil, fmt.Errorf("product %q: %w", item.Product, domain.ErrNotFound)
			}
			if want := requested[normalizeName(item.Product)]; want > products[i].Quantity {
				return nil, &domain.InsufficientStockError{Product: products[i].Name, Requested: want, Available: products[i].Quantity}
			}
		}

		seen := make(map[int]bool, len(items))
		for _, item := range items {
			i := productIndex(products, item.Product)
			p := &products[i]
			p.Quantity -= item.Quantity

			unitPrice := p.UnitPrice
			if item.UnitPrice != nil {
				unitPrice = *item.UnitPrice
			}
			q := decimal.NewFromInt(int64(item.Quantity))
			line := domain.SaleItem{
				Product:    p.Name,
				Quantity:   item.Quantity,
				UnitPrice:  unitPrice,
				TotalValue: domain.RoundMoney(unitPrice.Mul(q)),
				TotalCost:  domain.RoundMoney(p.Cost.Mul(q)),
			}
			line.Profit = line.TotalValue.Sub(line.TotalCost)
			lines = append(lines, line)
			seen[i] = true
		}
		for i := range products {
			if seen[i] {
				touched = append(touched, products[i])
			}
		}
		return products, nil
	})
	if err != nil {
		return MultiSaleResult{}, err
	}

	sale := domain.Sale{
		Items:      lines,
		TotalValue: decimal.Zero,
		TotalCost:  decimal.Zero,
		Profit:     decimal.Zero,
	}
	sold := make(map[string]int, len(lines))
	for _, line := range lines {
		sale.TotalValue = sale.TotalValue.Add(line.TotalValue)
		sale.TotalCost = sale.TotalCost.Add(line.TotalCost)
		sale.Profit = sale.Profit.Add(line.Profit)
		sold[line.Product] += line.Quantity
	}

	sale, err = e.finishSale(ctx, sale, meta, sold)
	if err != nil {
		return MultiSaleResult{}, err
	}

	e.afterSale(ctx, sale, products)
	return MultiSaleResult{UpdatedProducts: touched, Sale: sale}, nil
}

// finishSale applies meta and overrides, attaches an installment plan when
// the payment method bills in installments, and prepends the sale to the log. If the
// log cannot be written the stock taken for it is put back.
func (e *Engine) finishSale(ctx context.Context, sale domain.Sale, meta SaleMeta, sold map[string]int) (domain.Sale, error) {
	sale.ID = xid.New("sale")
	sale.Date = meta.Date
	if sale.Date.IsZero() {
		sale.Date = e.now()
	}
	sale.CustomerName = strings.TrimSpace(meta.CustomerName)
	sale.CustomerPhone = strings.TrimSpace(meta.CustomerPhone)
	sale.PaymentMethod = meta.PaymentMethod

	if meta.TotalValue != nil {
		sale.TotalValue = *meta.TotalValue
	}
	if meta.TotalCost != nil {
		sale.TotalCost = *meta.TotalCost
	}
	if meta.Profit != nil {
		sale.Profit = *meta.Profit
	}

	var err error
	switch {
	case domain.IsInstallmentMethod(meta.PaymentMethod):
		// Without a count the sale gets the same plan a legacy backfill
		// would give it, so migration never rewrites it later.
		n := meta.Installments
		if n <= 0 {
			n = installment.LegacyPlanSize
		}
		sale.Installments, err = installment.GeneratePlan(sale.TotalValue, n, sale.Date)
		if err != nil {
			e.restock(ctx, sold)
			return domain.Sale{}, err
		}
		sale.Status = domain.SaleStatusPending
	case meta.Status != "":
		sale.Status = meta.Status
	default:
		sale.Status = domain.SaleStatusPaid
	}

	_, err = store.MutateThen(ctx, e.store, store.KeySales, []domain.Sale{}, func(sales []domain.Sale) ([]domain.Sale, error) {
		return append([]domain.Sale{sale}, sales...), nil
	}, func([]domain.Sale) {
		e.recordPurchase(ctx, sale)
	})
	if err != nil {
		e.restock(ctx, sold)
		return domain.Sale{}, fmt.Errorf("record sale: %w", err)
	}
	return sale, nil
}

func (e *Engine) restock(ctx context.Context, sold map[string]int) {
	_, err := store.Mutate(context.WithoutCancel(ctx), e.store, store.KeyProducts, []domain.Product{}, func(products []domain.Product) ([]domain.Product, error) {
		for name, quantity := range sold {
			if i := productIndex(products, name); i >= 0 {
				products[i].Quantity += quantity
			}
		}
		return products, nil
	})
	if err != nil {
		log.Error().Err(err).Str("component", "inventory").Msg("failed to restore stock after aborted sale")
	}
}

// recordPurchase runs inside the sales key so a concurrent customer
// recalculation sees the appended sale and its fold together.
func (e *Engine) recordPurchase(ctx context.Context, sale domain.Sale) {
	if e.customers == nil || !sale.HasCustomer() {
		return
	}
	if err := e.customers.RecordPurchase(ctx, sale); err != nil {
		log.Warn().Err(err).Str("component", "inventory").Str("sale_id", sale.ID).Msg("customer update failed")
	}
}

// afterSale runs the best-effort follow-ups of a recorded sale.
func (e *Engine) afterSale(ctx context.Context, sale domain.Sale, products []domain.Product) {
	e.dispatcher.Push(replication.EntitySales, replication.ModeAppend, []domain.Sale{sale})
	e.dispatcher.Push(replication.EntityProducts, replication.ModeOverwrite, products)

	log.Info().
		Str("component", "inventory").
		Str("sale_id", sale.ID).
		Int("items", sale.ItemCount()).
		Str("total", sale.TotalValue.StringFixed(domain.MoneyPlaces)).
		Msg("sale recorded")
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func productIndex(products []domain.Product, name string) int {
	key := normalizeName(name)
	for i := range products {
		if normalizeName(products[i].Name) == key {
			return i
		}
	}
	return -1
}
