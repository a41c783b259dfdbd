// Package service is the application facade the HTTP layer talks to. It
// wires the engines together and runs the follow-ups each write needs.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"vendinha/internal/cache"
	"vendinha/internal/customer"
	"vendinha/internal/dashboard"
	"vendinha/internal/domain"
	"vendinha/internal/installment"
	"vendinha/internal/inventory"
	"vendinha/internal/migrate"
	"vendinha/internal/reminder"
	"vendinha/internal/replication"
	"vendinha/internal/seed"
	"vendinha/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required: %w", domain.ErrForbidden)
	}
	return nil
}

type Options struct {
	Dispatcher      replication.Dispatcher
	SummaryCache    cache.SummaryCache
	SummaryTTL      time.Duration
	Notifier        reminder.Notifier
	ReminderOptions reminder.Options
}

type Service struct {
	store        *store.Store
	dispatcher   replication.Dispatcher
	inventory    *inventory.Engine
	installments *installment.Manager
	customers    *customer.Engine
	reminders    *reminder.Scheduler
	dashboard    *dashboard.Builder
	now          func() time.Time
}

func New(s *store.Store, opts Options) *Service {
	if opts.Dispatcher == nil {
		opts.Dispatcher = replication.Discard{}
	}
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = time.Minute
	}

	customers := customer.NewEngine(s, opts.Dispatcher)
	return &Service{
		store:        s,
		dispatcher:   opts.Dispatcher,
		inventory:    inventory.NewEngine(s, opts.Dispatcher, customers),
		installments: installment.NewManager(s, opts.Dispatcher),
		customers:    customers,
		reminders:    reminder.NewScheduler(s, opts.Notifier, opts.ReminderOptions),
		dashboard:    dashboard.NewBuilder(s, opts.SummaryCache, opts.SummaryTTL),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Bootstrap brings persisted data to the current schema, seeds an empty
// catalog and rebuilds customer aggregates.
func (s *Service) Bootstrap(ctx context.Context, source seed.Source) error {
	result, err := migrate.Run(ctx, s.store)
	if err != nil {
		return err
	}
	if len(result.Applied) > 0 {
		log.Info().Str("component", "service").Int("from", result.From).Int("to", result.To).Msg("schema upgraded")
	}

	if source != nil {
		if _, err := seed.IfEmpty(ctx, s.store, source); err != nil {
			log.Warn().Err(err).Str("component", "service").Msg("catalog seed failed")
		}
	}

	if _, err := s.customers.RecalculateAll(ctx); err != nil {
		return fmt.Errorf("recalculate customers: %w", err)
	}
	return nil
}

func (s *Service) Reminders() *reminder.Scheduler {
	return s.reminders
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.inventory.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := domain.Validate(req); err != nil {
		return domain.Product{}, err
	}

	product, err := s.inventory.AddProduct(ctx, domain.Product{
		Name:      req.Name,
		Quantity:  req.Quantity,
		Cost:      domain.RoundMoney(req.Cost),
		UnitPrice: domain.RoundMoney(req.UnitPrice),
		Photo:     req.Photo,
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.dashboard.Invalidate(ctx)
	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, name string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product, err := s.inventory.UpdateProduct(ctx, name, inventory.ProductPatch{
		Quantity:  req.Quantity,
		Cost:      req.Cost,
		UnitPrice: req.UnitPrice,
		Photo:     req.Photo,
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.dashboard.Invalidate(ctx)
	return product, nil
}

func (s *Service) DeleteProduct(ctx context.Context, name string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.inventory.RemoveProduct(ctx, name); err != nil {
		return err
	}
	s.dashboard.Invalidate(ctx)
	return nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.inventory.ListSales(ctx)
}

// RecordSale records a single sale, or a basket when the request has items.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	if err := domain.Validate(req); err != nil {
		return domain.SaleResponse{}, err
	}

	meta := inventory.SaleMeta{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		PaymentMethod: req.PaymentMethod,
		Installments:  req.Installments,
		Status:        req.Status,
		UnitPrice:     req.UnitPrice,
		TotalValue:    req.TotalValue,
		TotalCost:     req.TotalCost,
		Profit:        req.Profit,
	}
	if req.Date != nil {
		meta.Date = req.Date.UTC()
	}

	var resp domain.SaleResponse
	if len(req.Items) > 0 {
		items := make([]inventory.Item, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, inventory.Item{Product: item.Product, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
		}
		res, err := s.inventory.RecordMultiSale(ctx, items, meta)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		resp = domain.SaleResponse{Sale: res.Sale, UpdatedProducts: res.UpdatedProducts}
	} else {
		if req.Product == "" {
			return domain.SaleResponse{}, domain.Invalid("product", "is required")
		}
		res, err := s.inventory.RecordSale(ctx, req.Product, req.Quantity, meta)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		newQuantity := res.NewQuantity
		resp = domain.SaleResponse{Sale: res.Sale, NewQuantity: &newQuantity}
	}

	s.dashboard.Invalidate(ctx)
	return resp, nil
}

// RecordPayment settles one installment and refreshes customer aggregates.
func (s *Service) RecordPayment(ctx context.Context, saleID string, number int, req domain.PaymentRequest) (domain.Sale, error) {
	paidAt := s.now()
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}

	sale, err := s.installments.RecordPayment(ctx, saleID, number, paidAt)
	if err != nil {
		return domain.Sale{}, err
	}
	if _, err := s.customers.RecalculateAll(ctx); err != nil {
		log.Warn().Err(err).Str("component", "service").Str("sale_id", saleID).Msg("customer recalculation after payment failed")
	}
	s.dashboard.Invalidate(ctx)
	return sale, nil
}

func (s *Service) MigrateLegacySales(ctx context.Context) (int, error) {
	if err := requireAdmin(ctx); err != nil {
		return 0, err
	}
	changed, err := s.installments.MigrateLegacySales(ctx)
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		if _, err := s.customers.RecalculateAll(ctx); err != nil {
			log.Warn().Err(err).Str("component", "service").Msg("customer recalculation after migration failed")
		}
		s.dashboard.Invalidate(ctx)
	}
	return changed, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.customers.List(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	return s.customers.Get(ctx, id)
}

func (s *Service) CreateCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	return s.customers.Create(ctx, c)
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, c domain.Customer) (domain.Customer, error) {
	c.ID = id
	return s.customers.Update(ctx, c)
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.customers.Delete(ctx, id)
}

func (s *Service) RecalculateCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.customers.RecalculateAll(ctx)
}

func (s *Service) UpcomingPayments(ctx context.Context) (reminder.Report, error) {
	return s.reminders.CheckUpcomingPayments(ctx, s.now())
}

func (s *Service) ScheduleReminders(ctx context.Context) ([]reminder.Reminder, error) {
	return s.reminders.SchedulePaymentReminders(ctx, s.now())
}

func (s *Service) Dashboard(ctx context.Context) (domain.DashboardSummary, error) {
	return s.dashboard.Summary(ctx)
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	return store.Get(ctx, s.store, store.KeySettings, domain.Settings{})
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Settings{}, err
	}
	if err := domain.Validate(req); err != nil {
		return domain.Settings{}, err
	}

	settings, err := store.Mutate(ctx, s.store, store.KeySettings, domain.Settings{}, func(current domain.Settings) (domain.Settings, error) {
		if req.StoreName != nil {
			current.StoreName = *req.StoreName
		}
		if req.LowStockThreshold != nil {
			current.LowStockThreshold = *req.LowStockThreshold
		}
		if req.Values != nil {
			if current.Values == nil {
				current.Values = make(map[string]string, len(req.Values))
			}
			for k, v := range req.Values {
				current.Values[k] = v
			}
		}
		return current, nil
	})
	if err != nil {
		return domain.Settings{}, err
	}

	s.dispatcher.Push(replication.EntitySettings, replication.ModeOverwrite, settings)
	s.dashboard.Invalidate(ctx)
	return settings, nil
}
