// Package reminder decides when customers should be reminded about
// installments. Delivery belongs to a Notifier; this package only picks the
// moments and hands each reminder over once.
package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"vendinha/internal/domain"
	"vendinha/internal/installment"
	"vendinha/internal/store"
)

// UpcomingWindow is how many days ahead an installment counts as upcoming.
const UpcomingWindow = 7

// Offsets are the days before the due date at which reminders fire. The
// negative offset fires the day after.
var Offsets = []int{7, 3, 1, 0, -1}

type Urgency string

const (
	UrgencyUpcoming Urgency = "upcoming"
	UrgencyDueToday Urgency = "due_today"
	UrgencyOverdue  Urgency = "overdue"
)

type Payment struct {
	SaleID        string          `json:"saleId"`
	CustomerName  string          `json:"customerName"`
	CustomerPhone string          `json:"customerPhone,omitempty"`
	Number        int             `json:"number"`
	Value         decimal.Decimal `json:"value"`
	DueDate       time.Time       `json:"dueDate"`
	DaysUntilDue  int             `json:"daysUntilDue,omitempty"`
	DaysOverdue   int             `json:"daysOverdue,omitempty"`
}

type Report struct {
	Upcoming []Payment `json:"upcoming"`
	Overdue  []Payment `json:"overdue"`
}

type Reminder struct {
	ID           string          `json:"id"`
	SaleID       string          `json:"saleId"`
	Number       int             `json:"number"`
	CustomerName string          `json:"customerName"`
	Value        decimal.Decimal `json:"value"`
	DueDate      time.Time       `json:"dueDate"`
	At           time.Time       `json:"at"`
	OffsetDays   int             `json:"offsetDays"`
	Urgency      Urgency         `json:"urgency"`
}

// Notifier delivers a reminder at r.At.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier only logs what it is handed.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, r Reminder) error {
	log.Info().
		Str("component", "reminder").
		Str("reminder_id", r.ID).
		Str("customer", r.CustomerName).
		Str("urgency", string(r.Urgency)).
		Time("at", r.At).
		Msg("payment reminder scheduled")
	return nil
}

type Options struct {
	// Hour and Minute set the time of day reminders fire. Default 09:00.
	Hour     int
	Minute   int
	Location *time.Location
}

type Scheduler struct {
	store    *store.Store
	notifier Notifier
	hour     int
	minute   int
	loc      *time.Location

	mu   sync.Mutex
	sent map[string]time.Time
}

func NewScheduler(s *store.Store, notifier Notifier, opts Options) *Scheduler {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Hour == 0 && opts.Minute == 0 {
		opts.Hour = 9
	}
	return &Scheduler{
		store:    s,
		notifier: notifier,
		hour:     opts.Hour,
		minute:   opts.Minute,
		loc:      opts.Location,
		sent:     make(map[string]time.Time),
	}
}

// CheckUpcomingPayments classifies unpaid installments due within
// UpcomingWindow days as upcoming and those already past due as overdue.
func (s *Scheduler) CheckUpcomingPayments(ctx context.Context, now time.Time) (Report, error) {
	sales, err := store.Get(ctx, s.store, store.KeySales, []domain.Sale{})
	if err != nil {
		return Report{}, err
	}
	return Classify(sales, now), nil
}

func Classify(sales []domain.Sale, now time.Time) Report {
	report := Report{Upcoming: []Payment{}, Overdue: []Payment{}}
	for _, sale := range sales {
		for _, inst := range sale.Installments {
			if !installment.Unpaid(inst) {
				continue
			}
			p := paymentOf(sale, inst)
			days := installment.DaysUntilDue(inst, now)
			switch {
			case days < 0:
				p.DaysOverdue = -days
				report.Overdue = append(report.Overdue, p)
			case days <= UpcomingWindow:
				p.DaysUntilDue = days
				report.Upcoming = append(report.Upcoming, p)
			}
		}
	}
	byDue := func(list []Payment) {
		sort.SliceStable(list, func(i, j int) bool { return list[i].DueDate.Before(list[j].DueDate) })
	}
	byDue(report.Upcoming)
	byDue(report.Overdue)
	return report
}

// Plan lists every reminder for unpaid installments whose firing time is
// still after now.
func (s *Scheduler) Plan(sales []domain.Sale, now time.Time) []Reminder {
	var out []Reminder
	for _, sale := range sales {
		for _, inst := range sale.Installments {
			if !installment.Unpaid(inst) {
				continue
			}
			for _, offset := range Offsets {
				at := s.fireTime(inst.DueDate, offset)
				if !at.After(now) {
					continue
				}
				out = append(out, Reminder{
					ID:           fmt.Sprintf("%s:%d:%d", saleKey(sale), inst.Number, offset),
					SaleID:       sale.ID,
					Number:       inst.Number,
					CustomerName: sale.CustomerName,
					Value:        inst.Value,
					DueDate:      inst.DueDate,
					At:           at,
					OffsetDays:   offset,
					Urgency:      urgencyFor(offset),
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// SchedulePaymentReminders hands every new future reminder to the notifier.
// Reminders handed over earlier are skipped; a notifier failure is logged and
// the reminder is offered again on the next call.
func (s *Scheduler) SchedulePaymentReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	sales, err := store.Get(ctx, s.store, store.KeySales, []domain.Sale{})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, at := range s.sent {
		if !at.After(now) {
			delete(s.sent, id)
		}
	}

	var handed []Reminder
	for _, r := range s.Plan(sales, now) {
		if _, ok := s.sent[r.ID]; ok {
			continue
		}
		if err := s.notifier.Notify(ctx, r); err != nil {
			log.Warn().Err(err).Str("component", "reminder").Str("reminder_id", r.ID).Msg("notifier rejected reminder")
			continue
		}
		s.sent[r.ID] = r.At
		handed = append(handed, r)
	}
	return handed, nil
}

// Run schedules reminders immediately and then on every tick until ctx ends.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	log.Info().Str("component", "reminder").Dur("interval", interval).Msg("reminder scheduler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if handed, err := s.SchedulePaymentReminders(ctx, time.Now()); err != nil {
			log.Error().Err(err).Str("component", "reminder").Msg("reminder pass failed")
		} else if len(handed) > 0 {
			log.Info().Str("component", "reminder").Int("count", len(handed)).Msg("reminders handed to notifier")
		}

		select {
		case <-ctx.Done():
			log.Info().Str("component", "reminder").Msg("reminder scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) fireTime(due time.Time, offset int) time.Time {
	day := due.In(s.loc).AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), s.hour, s.minute, 0, 0, s.loc)
}

func urgencyFor(offset int) Urgency {
	switch {
	case offset > 0:
		return UrgencyUpcoming
	case offset == 0:
		return UrgencyDueToday
	default:
		return UrgencyOverdue
	}
}

func paymentOf(sale domain.Sale, inst domain.Installment) Payment {
	return Payment{
		SaleID:        sale.ID,
		CustomerName:  sale.CustomerName,
		CustomerPhone: sale.CustomerPhone,
		Number:        inst.Number,
		Value:         inst.Value,
		DueDate:       inst.DueDate,
	}
}

func saleKey(sale domain.Sale) string {
	if sale.ID != "" {
		return sale.ID
	}
	return sale.Date.UTC().Format(time.RFC3339Nano)
}
