// Package dashboard derives the summary read model from products and sales.
package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"vendinha/internal/cache"
	"vendinha/internal/domain"
	"vendinha/internal/installment"
	"vendinha/internal/store"
)

const (
	summaryKey = "dashboard:summary"

	DailyWindow   = 30
	MonthlyWindow = 12

	DefaultLowStockThreshold = 3
)

type Builder struct {
	store *store.Store
	cache cache.SummaryCache
	ttl   time.Duration
	now   func() time.Time
}

func NewBuilder(s *store.Store, summaryCache cache.SummaryCache, ttl time.Duration) *Builder {
	if summaryCache == nil {
		summaryCache = cache.NoopSummaryCache{}
	}
	return &Builder{
		store: s,
		cache: summaryCache,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Summary returns the cached summary or builds and caches a fresh one.
// Cache failures are logged and the summary is computed directly.
func (b *Builder) Summary(ctx context.Context) (domain.DashboardSummary, error) {
	if cached, ok, err := b.cache.Get(ctx, summaryKey); err != nil {
		log.Warn().Err(err).Str("component", "dashboard").Msg("summary cache read failed")
	} else if ok {
		return *cached, nil
	}

	products, err := store.Get(ctx, b.store, store.KeyProducts, []domain.Product{})
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	sales, err := store.Get(ctx, b.store, store.KeySales, []domain.Sale{})
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	settings, err := store.Get(ctx, b.store, store.KeySettings, domain.Settings{})
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	threshold := settings.LowStockThreshold
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	summary := Build(products, sales, b.now(), threshold)

	if err := b.cache.Set(ctx, summaryKey, &summary, b.ttl); err != nil {
		log.Warn().Err(err).Str("component", "dashboard").Msg("summary cache write failed")
	}
	return summary, nil
}

// Invalidate drops the cached summary after a write.
func (b *Builder) Invalidate(ctx context.Context) {
	if err := b.cache.Delete(ctx, summaryKey); err != nil {
		log.Warn().Err(err).Str("component", "dashboard").Msg("summary cache invalidation failed")
	}
}

// Build computes the summary at now. Products at or below lowStock units are
// listed as low stock.
func Build(products []domain.Product, sales []domain.Sale, now time.Time, lowStock int) domain.DashboardSummary {
	summary := domain.DashboardSummary{
		GeneratedAt:   now,
		TotalValue:    decimal.Zero,
		TotalCost:     decimal.Zero,
		TotalProfit:   decimal.Zero,
		PendingAmount: decimal.Zero,
		OverdueAmount: decimal.Zero,
		StockValue:    decimal.Zero,
		LowStock:      []string{},
		ProductCount:  len(products),
	}

	for _, p := range products {
		summary.StockValue = summary.StockValue.Add(p.Cost.Mul(decimal.NewFromInt(int64(p.Quantity))))
		if p.Quantity <= lowStock {
			summary.LowStock = append(summary.LowStock, p.Name)
		}
	}
	sort.Strings(summary.LowStock)

	firstDay := startOfDay(now).AddDate(0, 0, -(DailyWindow - 1))
	firstMonth := startOfMonth(now).AddDate(0, -(MonthlyWindow - 1), 0)
	daily := make(map[string]*domain.DashboardBucket)
	monthly := make(map[string]*domain.DashboardBucket)

	for _, sale := range sales {
		summary.SalesCount++
		summary.ItemsSold += sale.ItemCount()
		summary.TotalValue = summary.TotalValue.Add(sale.TotalValue)
		summary.TotalCost = summary.TotalCost.Add(sale.TotalCost)
		summary.TotalProfit = summary.TotalProfit.Add(sale.Profit)
		summary.PendingAmount = summary.PendingAmount.Add(installment.Outstanding(sale))
		summary.OverdueAmount = summary.OverdueAmount.Add(installment.OverdueAmount(sale, now))

		date := sale.Date.In(now.Location())
		if !date.Before(firstDay) {
			addTo(daily, date.Format("2006-01-02"), sale)
		}
		if !date.Before(firstMonth) {
			addTo(monthly, date.Format("2006-01"), sale)
		}
	}

	summary.Daily = sortedBuckets(daily)
	summary.Monthly = sortedBuckets(monthly)
	return summary
}

func addTo(buckets map[string]*domain.DashboardBucket, period string, sale domain.Sale) {
	b, ok := buckets[period]
	if !ok {
		b = &domain.DashboardBucket{Period: period, Value: decimal.Zero, Cost: decimal.Zero, Profit: decimal.Zero}
		buckets[period] = b
	}
	b.Sales++
	b.Value = b.Value.Add(sale.TotalValue)
	b.Cost = b.Cost.Add(sale.TotalCost)
	b.Profit = b.Profit.Add(sale.Profit)
}

func sortedBuckets(buckets map[string]*domain.DashboardBucket) []domain.DashboardBucket {
	out := make([]domain.DashboardBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
