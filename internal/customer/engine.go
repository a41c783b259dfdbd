// Package customer keeps customer aggregates in step with the sales log.
// Aggregates are updated incrementally as sales are recorded and can always
// be rebuilt from scratch by RecalculateAll.
package customer

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

type Engine struct {
	store      *store.Store
	dispatcher replication.Dispatcher
	now        func() time.Time
}

func NewEngine(s *store.Store, dispatcher replication.Dispatcher) *Engine {
	if dispatcher == nil {
		dispatcher = replication.Discard{}
	}
	return &Engine{
		store:      s,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) List(ctx context.Context) ([]domain.Customer, error) {
	customers, err := store.Get(ctx, e.store, store.KeyCustomers, []domain.Customer{})
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (e *Engine) Get(ctx context.Context, id string) (domain.Customer, error) {
	customers, err := e.List(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	for _, c := range customers {
		if c.ID == id {
			return c, nil
		}
	}
	return domain.Customer{}, fmt.Errorf("customer %s: %w", id, domain.ErrNotFound)
}

func (e *Engine) FindByIdentity(ctx context.Context, name, phone string) (domain.Customer, error) {
	customers, err := e.List(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	if i := indexOf(customers, Identity{Name: name, Phone: phone}); i >= 0 {
		return customers[i], nil
	}
	return domain.Customer{}, fmt.Errorf("customer %q: %w", name, domain.ErrNotFound)
}

// Create adds a customer and folds in any sales already made under its
// identity.
func (e *Engine) Create(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	if err := domain.Validate(c); err != nil {
		return domain.Customer{}, err
	}
	c.ID = xid.New("cust")
	c.ResetStats()

	_, err := store.Mutate(ctx, e.store, store.KeyCustomers, []domain.Customer{}, func(customers []domain.Customer) ([]domain.Customer, error) {
		if indexOf(customers, IdentityOf(c)) >= 0 {
			return nil, domain.Invalid("name", "customer with this name and phone already exists")
		}
		return append(customers, c), nil
	})
	if err != nil {
		return domain.Customer{}, err
	}

	if _, err := e.RecalculateAll(ctx); err != nil {
		return domain.Customer{}, err
	}
	return e.Get(ctx, c.ID)
}

// Update replaces the contact fields of an existing customer. Identity edits
// change which sales match, so aggregates are rebuilt afterwards.
func (e *Engine) Update(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	if err := domain.Validate(c); err != nil {
		return domain.Customer{}, err
	}

	_, err := store.Mutate(ctx, e.store, store.KeyCustomers, []domain.Customer{}, func(customers []domain.Customer) ([]domain.Customer, error) {
		found := -1
		for i := range customers {
			if customers[i].ID == c.ID {
				found = i
				continue
			}
			if IdentityOf(customers[i]).Matches(IdentityOf(c)) {
				return nil, domain.Invalid("name", "customer with this name and phone already exists")
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("customer %s: %w", c.ID, domain.ErrNotFound)
		}
		current := &customers[found]
		current.Name = c.Name
		current.Phone = c.Phone
		current.Email = c.Email
		current.Address = c.Address
		current.Notes = c.Notes
		return customers, nil
	})
	if err != nil {
		return domain.Customer{}, err
	}

	if _, err := e.RecalculateAll(ctx); err != nil {
		return domain.Customer{}, err
	}
	return e.Get(ctx, c.ID)
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	customers, err := store.Mutate(ctx, e.store, store.KeyCustomers, []domain.Customer{}, func(customers []domain.Customer) ([]domain.Customer, error) {
		for i := range customers {
			if customers[i].ID == id {
				return append(customers[:i], customers[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("customer %s: %w", id, domain.ErrNotFound)
	})
	if err != nil {
		return err
	}
	e.dispatcher.Push(replication.EntityCustomers, replication.ModeOverwrite, customers)
	return nil
}

// UpdateStats applies one purchase to the customer with the given id.
func (e *Engine) UpdateStats(ctx context.Context, customerID string, purchaseValue decimal.Decimal, isPaid bool) (domain.Customer, error) {
	now := e.now()
	var updated domain.Customer
	customers, err := store.Mutate(ctx, e.store, store.KeyCustomers, []domain.Customer{}, func(customers []domain.Customer) ([]domain.Customer, error) {
		for i := range customers {
			if customers[i].ID != customerID {
				continue
			}
			c := &customers[i]
			c.TotalPurchases++
			c.TotalValue = domain.RoundMoney(c.TotalValue.Add(purchaseValue))
			if !isPaid {
				c.PendingAmount = domain.RoundMoney(c.PendingAmount.Add(purchaseValue))
			}
			c.LastPurchase = &now
			updated = *c
			return customers, nil
		}
		return nil, fmt.Errorf("customer %s: %w", customerID, domain.ErrNotFound)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	e.dispatcher.Push(replication.EntityCustomers, replication.ModeOverwrite, customers)
	return updated, nil
}

// RecordPurchase folds one new sale into the matching customer. Sales without
// identity, or whose identity matches nobody, are ignored the same way
// RecalculateAll ignores them. Callers run it while still holding the sales
// key after appending sale, which keeps it ordered with RecalculateAll.
func (e *Engine) RecordPurchase(ctx context.Context, sale domain.Sale) error {
	id := SaleIdentity(sale)
	if id.Empty() {
		return nil
	}

	matched := false
	customers, err := store.Mutate(ctx, e.store, store.KeyCustomers, []domain.Customer{}, func(customers []domain.Customer) ([]domain.Customer, error) {
		i := indexOf(customers, id)
		if i < 0 {
			return customers, nil
		}
		matched = true
		fold(&customers[i], sale)
		return customers, nil
	})
	if err != nil {
		return err
	}
	if !matched {
		log.Debug().Str("component", "customer").Str("customer", sale.CustomerName).Msg("sale matches no customer")
		return nil
	}
	e.dispatcher.Push(replication.EntityCustomers, replication.ModeOverwrite, customers)
	return nil
}

// RecalculateAll rebuilds every customer's aggregates from the sales log.
// The sales key is held for the whole rebuild so a sale cannot be appended
// between the read and the customer write. Running it twice in a row gives
// the same result.
func (e *Engine) RecalculateAll(ctx context.Context) ([]domain.Customer, error) {
	var (
		customers []domain.Customer
		count     int
	)
	err := store.View(ctx, e.store, store.KeySales, []domain.Sale{}, func(sales []domain.Sale) error {
		count = len(sales)
		var err error
		customers, err = store.Mutate(ctx, e.store, store.KeyCustomers, []domain.Customer{}, func(customers []domain.Customer) ([]domain.Customer, error) {
			Recalculate(customers, sales)
			return customers, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("component", "customer").Int("customers", len(customers)).Int("sales", count).Msg("customer aggregates recalculated")
	e.dispatcher.Push(replication.EntityCustomers, replication.ModeOverwrite, customers)
	return customers, nil
}

// Recalculate resets customers in place and folds every matching sale.
func Recalculate(customers []domain.Customer, sales []domain.Sale) {
	for i := range customers {
		customers[i].ResetStats()
	}
	for _, sale := range sales {
		id := SaleIdentity(sale)
		if id.Empty() {
			continue
		}
		if i := indexOf(customers, id); i >= 0 {
			fold(&customers[i], sale)
		}
	}
}

func fold(c *domain.Customer, sale domain.Sale) {
	c.TotalPurchases++
	c.TotalValue = domain.RoundMoney(c.TotalValue.Add(sale.TotalValue))
	c.PendingAmount = domain.RoundMoney(c.PendingAmount.Add(installment.Outstanding(sale)))
	if c.LastPurchase == nil || sale.Date.After(*c.LastPurchase) {
		date := sale.Date
		c.LastPurchase = &date
	}
}

// Replace swaps the whole customer list, as an import does, and rebuilds
// aggregates from the sales log.
func (e *Engine) Replace(ctx context.Context, customers []domain.Customer) ([]domain.Customer, error) {
	for i := range customers {
		if err := domain.Validate(customers[i]); err != nil {
			return nil, fmt.Errorf("customer %d: %w", i+1, err)
		}
		if customers[i].ID == "" {
			customers[i].ID = xid.New("cust")
		}
	}
	if err := store.Set(ctx, e.store, store.KeyCustomers, customers); err != nil {
		return nil, err
	}
	return e.RecalculateAll(ctx)
}
