package installment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"vendinha/internal/domain"
	"vendinha/internal/replication"
	"vendinha/internal/store"
)

type Manager struct {
	store      *store.Store
	dispatcher replication.Dispatcher
	now        func() time.Time
}

func NewManager(s *store.Store, dispatcher replication.Dispatcher) *Manager {
	if dispatcher == nil {
		dispatcher = replication.Discard{}
	}
	return &Manager{
		store:      s,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// MigrateLegacySales backfills plans for installment-billed sales that were
// recorded before plans existed. Running it again changes nothing.
func (m *Manager) MigrateLegacySales(ctx context.Context) (int, error) {
	changed := 0
	sales, err := store.Mutate(ctx, m.store, store.KeySales, []domain.Sale(nil), func(sales []domain.Sale) ([]domain.Sale, error) {
		var err error
		changed, err = BackfillLegacyPlans(sales)
		return sales, err
	})
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		log.Info().Str("component", "installment").Int("sales", changed).Msg("backfilled legacy installment plans")
		m.dispatcher.Push(replication.EntitySales, replication.ModeOverwrite, sales)
	}
	return changed, nil
}

// BackfillLegacyPlans rewrites sales in place and reports how many changed.
// A sale billed in installments without a plan gets LegacyPlanSize monthly
// installments from its sale date and status pending; one with a plan but no
// status gets the status its plan implies.
func BackfillLegacyPlans(sales []domain.Sale) (int, error) {
	changed := 0
	for i := range sales {
		sale := &sales[i]
		if !domain.IsInstallmentMethod(sale.PaymentMethod) {
			continue
		}

		switch {
		case len(sale.Installments) == 0:
			plan, err := GeneratePlan(sale.TotalValue, LegacyPlanSize, sale.Date)
			if err != nil {
				return changed, fmt.Errorf("backfill sale %s: %w", sale.ID, err)
			}
			sale.Status = domain.SaleStatusPending
			sale.Installments = plan
			changed++
		case sale.Status == "":
			sale.Status = SaleStatusFor(sale.Installments)
			changed++
		}
	}
	return changed, nil
}

// RecordPayment marks installment number of the sale as paid at paidAt and
// re-derives the sale status.
func (m *Manager) RecordPayment(ctx context.Context, saleID string, number int, paidAt time.Time) (domain.Sale, error) {
	if paidAt.IsZero() {
		paidAt = m.now()
	}

	var updated domain.Sale
	sales, err := store.Mutate(ctx, m.store, store.KeySales, []domain.Sale(nil), func(sales []domain.Sale) ([]domain.Sale, error) {
		for i := range sales {
			if sales[i].ID != saleID {
				continue
			}
			for k := range sales[i].Installments {
				inst := &sales[i].Installments[k]
				if inst.Number != number {
					continue
				}
				if inst.Status == domain.InstallmentPaid {
					return nil, domain.Invalid("installment", fmt.Sprintf("installment %d already paid", number))
				}
				inst.Status = domain.InstallmentPaid
				inst.PaidDate = &paidAt
				sales[i].Status = SaleStatusFor(sales[i].Installments)
				updated = sales[i]
				return sales, nil
			}
			return nil, fmt.Errorf("installment %d of sale %s: %w", number, saleID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("sale %s: %w", saleID, domain.ErrNotFound)
	})
	if err != nil {
		return domain.Sale{}, err
	}

	m.dispatcher.Push(replication.EntitySales, replication.ModeOverwrite, sales)
	return updated, nil
}
