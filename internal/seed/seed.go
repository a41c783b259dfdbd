// Package seed fills an empty catalog on first start, either from the
// bundled default list or from a remote JSON document.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"vendinha/internal/domain"
	"vendinha/internal/store"
)

// Source yields the products an empty catalog starts with.
type Source interface {
	Products(ctx context.Context) ([]domain.Product, error)
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DefaultCatalog is the bundled starter catalog.
func DefaultCatalog() []domain.Product {
	return []domain.Product{
		{Name: "Cabo USB-C 1m", Quantity: 20, Cost: price("8.50"), UnitPrice: price("24.90")},
		{Name: "Carregador Turbo 20W", Quantity: 10, Cost: price("32.00"), UnitPrice: price("79.90")},
		{Name: "Fone Bluetooth", Quantity: 8, Cost: price("45.00"), UnitPrice: price("119.90")},
		{Name: "Capinha Silicone", Quantity: 30, Cost: price("4.20"), UnitPrice: price("19.90")},
		{Name: "Película de Vidro", Quantity: 40, Cost: price("2.10"), UnitPrice: price("14.90")},
		{Name: "Power Bank 10000mAh", Quantity: 6, Cost: price("58.00"), UnitPrice: price("139.90")},
		{Name: "Suporte Veicular", Quantity: 12, Cost: price("11.00"), UnitPrice: price("34.90")},
		{Name: "Cartão de Memória 64GB", Quantity: 15, Cost: price("22.00"), UnitPrice: price("54.90")},
	}
}

// Bundled serves DefaultCatalog.
type Bundled struct{}

func (Bundled) Products(context.Context) ([]domain.Product, error) {
	return DefaultCatalog(), nil
}

// Remote downloads a JSON array of products.
type Remote struct {
	client *resty.Client
	url    string
}

func NewRemote(url string, timeout time.Duration) *Remote {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Remote{client: client, url: url}
}

func (r *Remote) Products(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	resp, err := r.client.R().
		SetContext(ctx).
		SetResult(&products).
		Get(r.url)
	if err != nil {
		return nil, fmt.Errorf("fetch seed catalog: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch seed catalog: unexpected status %d", resp.StatusCode())
	}
	for i, p := range products {
		if err := domain.Validate(p); err != nil {
			return nil, fmt.Errorf("seed product %d: %w", i+1, err)
		}
	}
	return products, nil
}

// Fallback tries Primary and falls back to Secondary when it fails.
type Fallback struct {
	Primary   Source
	Secondary Source
}

func (f Fallback) Products(ctx context.Context) ([]domain.Product, error) {
	products, err := f.Primary.Products(ctx)
	if err == nil {
		return products, nil
	}
	log.Warn().Err(err).Str("component", "seed").Msg("primary seed source failed, using fallback")
	products, fallbackErr := f.Secondary.Products(ctx)
	if fallbackErr != nil {
		return nil, errors.Join(err, fallbackErr)
	}
	return products, nil
}

// IfEmpty writes the source's products when the catalog has none and
// reports how many were written. A populated catalog is never touched.
func IfEmpty(ctx context.Context, s *store.Store, source Source) (int, error) {
	current, err := store.Get(ctx, s, store.KeyProducts, []domain.Product{})
	if err != nil {
		return 0, err
	}
	if len(current) > 0 {
		return 0, nil
	}

	products, err := source.Products(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	_, err = store.Mutate(ctx, s, store.KeyProducts, []domain.Product{}, func(existing []domain.Product) ([]domain.Product, error) {
		if len(existing) > 0 {
			return existing, nil
		}
		written = len(products)
		return products, nil
	})
	if err != nil {
		return 0, err
	}
	if written > 0 {
		log.Info().Str("component", "seed").Int("products", written).Msg("catalog seeded")
	}
	return written, nil
}
