package service

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"vendinha/internal/csvcodec"
	"vendinha/internal/domain"
	"vendinha/internal/installment"
	"vendinha/internal/xid"
)

// Export writes one collection as CSV.
func (s *Service) Export(ctx context.Context, entity string, w io.Writer) error {
	switch entity {
	case "products":
		products, err := s.inventory.ListProducts(ctx)
		if err != nil {
			return err
		}
		return csvcodec.EncodeProducts(w, products)
	case "customers":
		customers, err := s.customers.List(ctx)
		if err != nil {
			return err
		}
		return csvcodec.EncodeCustomers(w, customers)
	case "sales":
		sales, err := s.inventory.ListSales(ctx)
		if err != nil {
			return err
		}
		return csvcodec.EncodeSales(w, sales)
	default:
		return fmt.Errorf("export %q: %w", entity, domain.ErrNotFound)
	}
}

// Import replaces one collection with the CSV in r. Nothing is written unless
// every row decodes.
func (s *Service) Import(ctx context.Context, entity string, r io.Reader) (domain.ImportResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ImportResult{}, err
	}

	result := domain.ImportResult{Entity: entity}
	switch entity {
	case "products":
		products, err := csvcodec.DecodeProducts(r)
		if err != nil {
			return result, err
		}
		if err := s.inventory.ReplaceProducts(ctx, products); err != nil {
			return result, err
		}
		result.Count = len(products)

	case "customers":
		customers, err := csvcodec.DecodeCustomers(r)
		if err != nil {
			return result, err
		}
		if _, err := s.customers.Replace(ctx, customers); err != nil {
			return result, err
		}
		result.Count = len(customers)

	case "sales":
		sales, err := csvcodec.DecodeSales(r)
		if err != nil {
			return result, err
		}
		for i := range sales {
			if sales[i].ID == "" {
				sales[i].ID = xid.New("sale")
			}
		}
		if _, err := installment.BackfillLegacyPlans(sales); err != nil {
			return result, err
		}
		if err := s.inventory.ReplaceSales(ctx, sales); err != nil {
			return result, err
		}
		if _, err := s.customers.RecalculateAll(ctx); err != nil {
			log.Warn().Err(err).Str("component", "service").Msg("customer recalculation after import failed")
		}
		result.Count = len(sales)

	default:
		return result, fmt.Errorf("import %q: %w", entity, domain.ErrNotFound)
	}

	s.dashboard.Invalidate(ctx)
	log.Info().Str("component", "service").Str("entity", entity).Int("rows", result.Count).Msg("collection imported")
	return result, nil
}
