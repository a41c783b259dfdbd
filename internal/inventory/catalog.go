package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"vendinha/internal/domain"
	"vendinha/internal/replication"
	"vendinha/internal/store"
)

// ProductPatch lists the editable fields of a product; nil fields are kept.
type ProductPatch struct {
	Quantity  *int
	Cost      *decimal.Decimal
	UnitPrice *decimal.Decimal
	Photo     *string
}

func (e *Engine) AddProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := domain.Validate(p); err != nil {
		return domain.Product{}, err
	}

	products, err := store.Mutate(ctx, e.store, store.KeyProducts, []domain.Product{}, func(products []domain.Product) ([]domain.Product, error) {
		if productIndex(products, p.Name) >= 0 {
			return nil, domain.Invalid("name", fmt.Sprintf("product %q already exists", p.Name))
		}
		return append(products, p), nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	e.dispatcher.Push(replication.EntityProducts, replication.ModeOverwrite, products)
	return p, nil
}

func (e *Engine) UpdateProduct(ctx context.Context, name string, patch ProductPatch) (domain.Product, error) {
	var updated domain.Product
	products, err := store.Mutate(ctx, e.store, store.KeyProducts, []domain.Product{}, func(products []domain.Product) ([]domain.Product, error) {
		i := productIndex(products, name)
		if i < 0 {
			return nil, fmt.Errorf("product %q: %w", name, domain.ErrNotFound)
		}
		p := products[i]
		if patch.Quantity != nil {
			p.Quantity = *patch.Quantity
		}
		if patch.Cost != nil {
			p.Cost = *patch.Cost
		}
		if patch.UnitPrice != nil {
			p.UnitPrice = *patch.UnitPrice
		}
		if patch.Photo != nil {
			p.Photo = *patch.Photo
		}
		if err := domain.Validate(p); err != nil {
			return nil, err
		}
		products[i] = p
		updated = p
		return products, nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	e.dispatcher.Push(replication.EntityProducts, replication.ModeOverwrite, products)
	return updated, nil
}

func (e *Engine) RemoveProduct(ctx context.Context, name string) error {
	products, err := store.Mutate(ctx, e.store, store.KeyProducts, []domain.Product{}, func(products []domain.Product) ([]domain.Product, error) {
		i := productIndex(products, name)
		if i < 0 {
			return nil, fmt.Errorf("product %q: %w", name, domain.ErrNotFound)
		}
		return append(products[:i], products[i+1:]...), nil
	})
	if err != nil {
		return err
	}

	e.dispatcher.Push(replication.EntityProducts, replication.ModeOverwrite, products)
	return nil
}

// ReplaceProducts swaps the whole catalog, as an import does.
func (e *Engine) ReplaceProducts(ctx context.Context, products []domain.Product) error {
	seen := make(map[string]bool, len(products))
	for i, p := range products {
		if err := domain.Validate(p); err != nil {
			return fmt.Errorf("product %d: %w", i+1, err)
		}
		key := normalizeName(p.Name)
		if seen[key] {
			return domain.Invalid("name", fmt.Sprintf("duplicate product %q", p.Name))
		}
		seen[key] = true
	}
	if err := store.Set(ctx, e.store, store.KeyProducts, products); err != nil {
		return err
	}
	e.dispatcher.Push(replication.EntityProducts, replication.ModeOverwrite, products)
	return nil
}

// ReplaceSales swaps the whole sales log. Stock is not touched.
func (e *Engine) ReplaceSales(ctx context.Context, sales []domain.Sale) error {
	if err := store.Set(ctx, e.store, store.KeySales, sales); err != nil {
		return err
	}
	e.dispatcher.Push(replication.EntitySales, replication.ModeOverwrite, sales)
	return nil
}
