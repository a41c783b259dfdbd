package installment

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"vendinha/internal/domain"
	"vendinha/internal/xid"
)

// LegacyPlanSize is the number of installments backfilled for legacy sales.
const LegacyPlanSize = 3

// GeneratePlan splits total into n monthly installments. Every installment but
// the last gets total/n truncated to cents; the last absorbs the remainder so
// the plan sums exactly to total. Installment k is due k months after start.
func GeneratePlan(total decimal.Decimal, n int, start time.Time) ([]domain.Installment, error) {
	if n < 1 {
		return nil, domain.Invalid("installments", "must be at least 1")
	}
	if total.IsNegative() {
		return nil, domain.Invalid("totalValue", "must not be negative")
	}

	total = domain.RoundMoney(total)
	base := total.Div(decimal.NewFromInt(int64(n))).Truncate(domain.MoneyPlaces)

	plan := make([]domain.Installment, 0, n)
	allocated := decimal.Zero
	for k := 1; k <= n; k++ {
		value := base
		if k == n {
			value = total.Sub(allocated)
		}
		allocated = allocated.Add(value)
		plan = append(plan, domain.Installment{
			ID:      xid.New("inst"),
			Number:  k,
			Value:   value,
			DueDate: AddMonths(start, k),
			Status:  domain.InstallmentPending,
		})
	}
	return plan, nil
}

// AddMonths moves t by months calendar months, clamping the day to the end of
// the target month (Jan 31 + 1 month is Feb 28/29, not Mar 3).
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func Unpaid(inst domain.Installment) bool {
	return inst.Status != domain.InstallmentPaid
}

// EffectiveStatus is the status as read at now. Overdue is never stored: an
// unpaid installment past its due date reads as overdue.
func EffectiveStatus(inst domain.Installment, now time.Time) domain.InstallmentStatus {
	if !Unpaid(inst) {
		return domain.InstallmentPaid
	}
	if inst.DueDate.Before(now) {
		return domain.InstallmentOverdue
	}
	return domain.InstallmentPending
}

func IsOverdue(inst domain.Installment, now time.Time) bool {
	return EffectiveStatus(inst, now) == domain.InstallmentOverdue
}

// DaysUntilDue is ceil((due-now)/24h). Negative values mean overdue.
func DaysUntilDue(inst domain.Installment, now time.Time) int {
	days := inst.DueDate.Sub(now).Hours() / 24
	return int(math.Ceil(days))
}

// Outstanding is what the customer still owes on sale: the unpaid installment
// values when a plan exists, the full value when the sale is pending without
// a plan, and zero otherwise.
func Outstanding(sale domain.Sale) decimal.Decimal {
	if len(sale.Installments) > 0 {
		owed := decimal.Zero
		for _, inst := range sale.Installments {
			if Unpaid(inst) {
				owed = owed.Add(inst.Value)
			}
		}
		return owed
	}
	if sale.Status == domain.SaleStatusPending {
		return sale.TotalValue
	}
	return decimal.Zero
}

// OverdueAmount sums unpaid installments already past due at now.
func OverdueAmount(sale domain.Sale, now time.Time) decimal.Decimal {
	owed := decimal.Zero
	for _, inst := range sale.Installments {
		if IsOverdue(inst, now) {
			owed = owed.Add(inst.Value)
		}
	}
	return owed
}

// SaleStatusFor derives a sale's status from its plan.
func SaleStatusFor(plan []domain.Installment) domain.SaleStatus {
	paid := 0
	for _, inst := range plan {
		if !Unpaid(inst) {
			paid++
		}
	}
	switch {
	case len(plan) > 0 && paid == len(plan):
		return domain.SaleStatusPaid
	case paid > 0:
		return domain.SaleStatusPartial
	default:
		return domain.SaleStatusPending
	}
}
