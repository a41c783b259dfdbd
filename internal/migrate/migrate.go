// Package migrate upgrades persisted collections to the current schema.
// settings.schemaVersion records the last applied step; every step is safe
// to run again.
package migrate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"vendinha/internal/domain"
	"vendinha/internal/installment"
	"vendinha/internal/store"
	"vendinha/internal/xid"
)

type Step struct {
	Version     int
	Description string
	Apply       func(ctx context.Context, s *store.Store) error
}

// Steps is the upgrade chain in version order.
var Steps = []Step{
	{Version: 1, Description: "backfill installment plans on legacy sales", Apply: backfillPlans},
	{Version: 2, Description: "assign ids to sales", Apply: assignSaleIDs},
	{Version: 3, Description: "assign ids to customers", Apply: assignCustomerIDs},
}

func Current() int {
	return Steps[len(Steps)-1].Version
}

type Result struct {
	From    int
	To      int
	Applied []int
}

// Run applies every step newer than the stored schema version.
func Run(ctx context.Context, s *store.Store) (Result, error) {
	settings, err := store.Get(ctx, s, store.KeySettings, domain.Settings{})
	if err != nil {
		return Result{}, err
	}
	result := Result{From: settings.SchemaVersion, To: settings.SchemaVersion}
	if settings.SchemaVersion > Current() {
		return result, fmt.Errorf("schema version %d is newer than supported %d", settings.SchemaVersion, Current())
	}

	for _, step := range Steps {
		if step.Version <= settings.SchemaVersion {
			continue
		}
		if err := step.Apply(ctx, s); err != nil {
			return result, fmt.Errorf("migration %d (%s): %w", step.Version, step.Description, err)
		}
		version := step.Version
		if _, err := store.Mutate(ctx, s, store.KeySettings, domain.Settings{}, func(current domain.Settings) (domain.Settings, error) {
			current.SchemaVersion = version
			return current, nil
		}); err != nil {
			return result, err
		}
		result.To = version
		result.Applied = append(result.Applied, version)
		log.Info().Str("component", "migrate").Int("version", version).Str("step", step.Description).Msg("migration applied")
	}
	return result, nil
}

func backfillPlans(ctx context.Context, s *store.Store) error {
	_, err := store.Mutate(ctx, s, store.KeySales, []domain.Sale{}, func(sales []domain.Sale) ([]domain.Sale, error) {
		_, err := installment.BackfillLegacyPlans(sales)
		return sales, err
	})
	return err
}

func assignSaleIDs(ctx context.Context, s *store.Store) error {
	_, err := store.Mutate(ctx, s, store.KeySales, []domain.Sale{}, func(sales []domain.Sale) ([]domain.Sale, error) {
		for i := range sales {
			if sales[i].ID == "" {
				sales[i].ID = xid.New("sale")
			}
		}
		return sales, nil
	})
	return err
}

func assignCustomerIDs(ctx context.Context, s *store.Store) error {
	_, err := store.Mutate(ctx, s, store.KeyCustomers, []domain.Customer{}, func(customers []domain.Customer) ([]domain.Customer, error) {
		for i := range customers {
			if customers[i].ID == "" {
				customers[i].ID = xid.New("cust")
			}
		}
		return customers, nil
	})
	return err
}
