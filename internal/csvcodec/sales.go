package csvcodec

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"vendinha/internal/domain"
)

// EncodeSales writes one row per single sale and one row per item of a
// basket. Basket rows repeat the sale-level columns, including the sale's
// own totals (saleTotalValue, saleTotalCost, saleProfit), so totals that were
// overridden when the sale was recorded come back unchanged.
func EncodeSales(w io.Writer, sales []domain.Sale) error {
	var records [][]string
	for _, s := range sales {
		plan, err := encodePlan(s.Installments)
		if err != nil {
			return fmt.Errorf("encode installments of sale %s: %w", s.ID, err)
		}
		tail := []string{s.CustomerName, s.CustomerPhone, s.PaymentMethod, string(s.Status), plan}

		if !s.IsMulti() {
			head := []string{
				rowSingle, s.ID, formatTime(s.Date), s.Product, strconv.Itoa(s.Quantity),
				decimalField(s.UnitPrice), decimalField(s.TotalValue), decimalField(s.TotalCost), decimalField(s.Profit), "",
			}
			records = append(records, append(append(head, tail...), "", ""))
			continue
		}
		for _, item := range s.Items {
			head := []string{
				rowMulti, s.ID, formatTime(s.Date), item.Product, strconv.Itoa(item.Quantity),
				decimalField(item.UnitPrice), decimalField(item.TotalValue), decimalField(item.TotalCost), decimalField(item.Profit),
				decimalField(s.Profit),
			}
			record := append(head, tail...)
			record = append(record, decimalField(s.TotalValue), decimalField(s.TotalCost))
			records = append(records, record)
		}
	}
	return writeAll(w, SaleHeader, records)
}

func encodePlan(plan []domain.Installment) (string, error) {
	if len(plan) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeSales rebuilds the sales log. Consecutive basket rows with the same
// id, date and customer name form one sale. When the rows carry the sale's
// own totals those are kept as recorded, even if they differ from the item
// sum. Files without them get totals resummed from the items, and the profit
// must then match saleProfit within a cent per item.
func DecodeSales(r io.Reader) ([]domain.Sale, error) {
	rows, err := readRows(r, []string{"dateISO", "product", "totalValue"})
	if err != nil {
		return nil, err
	}

	var (
		sales []domain.Sale
		group *basket
	)
	flush := func() error {
		if group == nil {
			return nil
		}
		sale, err := group.sale()
		if err != nil {
			return err
		}
		sales = append(sales, sale)
		group = nil
		return nil
	}

	for _, row := range rows {
		kind := row.get("type")
		if kind == "" {
			kind = rowSingle
		}

		switch kind {
		case rowSingle:
			if err := flush(); err != nil {
				return nil, err
			}
			sale, err := decodeSaleHeader(row)
			if err != nil {
				return nil, err
			}
			item, err := decodeItem(row)
			if err != nil {
				return nil, err
			}
			sale.Product = item.Product
			sale.Quantity = item.Quantity
			sale.UnitPrice = item.UnitPrice
			sale.TotalValue = item.TotalValue
			sale.TotalCost = item.TotalCost
			sale.Profit = item.Profit
			sales = append(sales, sale)

		case rowMulti:
			head, err := decodeSaleHeader(row)
			if err != nil {
				return nil, err
			}
			item, err := decodeItem(row)
			if err != nil {
				return nil, err
			}
			totals, err := decodeSaleTotals(row)
			if err != nil {
				return nil, err
			}

			if group != nil && !group.accepts(head) {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			if group == nil {
				group = &basket{line: row.line, head: head, totals: totals}
			} else if !group.totals.equal(totals) {
				return nil, row.invalid("saleTotalValue", "sale totals differ from the basket's first row")
			}
			if len(group.head.Installments) == 0 && len(head.Installments) > 0 {
				group.head.Installments = head.Installments
			}
			group.items = append(group.items, item)

		default:
			return nil, row.invalid("type", fmt.Sprintf("unknown row type %q", kind))
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if sales == nil {
		sales = []domain.Sale{}
	}
	return sales, nil
}

// saleTotals are the sale-level columns of a basket row.
type saleTotals struct {
	value, cost, profit          decimal.Decimal
	hasValue, hasCost, hasProfit bool
}

func decodeSaleTotals(row row) (saleTotals, error) {
	var (
		t   saleTotals
		err error
	)
	if t.value, err = row.decimal("saleTotalValue"); err != nil {
		return t, err
	}
	if t.cost, err = row.decimal("saleTotalCost"); err != nil {
		return t, err
	}
	if t.profit, err = row.decimal("saleProfit"); err != nil {
		return t, err
	}
	t.hasValue = row.get("saleTotalValue") != ""
	t.hasCost = row.get("saleTotalCost") != ""
	t.hasProfit = row.get("saleProfit") != ""
	return t, nil
}

func (t saleTotals) equal(o saleTotals) bool {
	return t.hasValue == o.hasValue && t.hasCost == o.hasCost && t.hasProfit == o.hasProfit &&
		t.value.Equal(o.value) && t.cost.Equal(o.cost) && t.profit.Equal(o.profit)
}

type basket struct {
	line   int
	head   domain.Sale
	items  []domain.SaleItem
	totals saleTotals
}

func (b *basket) accepts(head domain.Sale) bool {
	return b.head.ID == head.ID &&
		b.head.Date.Equal(head.Date) &&
		b.head.CustomerName == head.CustomerName
}

func (b *basket) sale() (domain.Sale, error) {
	sale := b.head
	sale.Items = b.items
	sale.TotalValue = decimal.Zero
	sale.TotalCost = decimal.Zero
	sale.Profit = decimal.Zero
	for _, item := range b.items {
		sale.TotalValue = sale.TotalValue.Add(item.TotalValue)
		sale.TotalCost = sale.TotalCost.Add(item.TotalCost)
		sale.Profit = sale.Profit.Add(item.Profit)
	}

	// Sale-level totals present: they are what was recorded, overrides
	// included.
	if b.totals.hasValue || b.totals.hasCost {
		if b.totals.hasValue {
			sale.TotalValue = b.totals.value
		}
		if b.totals.hasCost {
			sale.TotalCost = b.totals.cost
		}
		if b.totals.hasProfit {
			sale.Profit = b.totals.profit
		}
		return sale, nil
	}
	if !b.totals.hasProfit {
		return sale, nil
	}

	tolerance := domain.MoneyTolerance(len(b.items))
	if sale.Profit.Sub(b.totals.profit).Abs().GreaterThan(tolerance) {
		return domain.Sale{}, &domain.ValidationError{
			Line:   b.line,
			Field:  "saleProfit",
			Reason: fmt.Sprintf("items sum to profit %s but sale records %s", sale.Profit, b.totals.profit),
		}
	}
	sale.Profit = b.totals.profit
	return sale, nil
}

func decodeSaleHeader(row row) (domain.Sale, error) {
	var sale domain.Sale
	sale.ID = row.get("id")

	raw, err := row.required("dateISO")
	if err != nil {
		return sale, err
	}
	date, err := row.time("dateISO")
	if err != nil {
		return sale, err
	}
	if date == nil {
		return sale, row.invalid("dateISO", fmt.Sprintf("%q is not a date", raw))
	}
	sale.Date = *date

	sale.CustomerName = row.raw("customerName")
	sale.CustomerPhone = row.raw("customerPhone")
	sale.PaymentMethod = row.get("paymentMethod")

	switch status := domain.SaleStatus(row.get("status")); status {
	case "", domain.SaleStatusPaid, domain.SaleStatusPending, domain.SaleStatusPartial:
		sale.Status = status
	default:
		return sale, row.invalid("status", fmt.Sprintf("unknown status %q", status))
	}

	if plan := row.get("installments"); plan != "" {
		if err := json.Unmarshal([]byte(plan), &sale.Installments); err != nil {
			return sale, row.invalid("installments", "malformed installment plan: "+err.Error())
		}
	}
	return sale, nil
}

func decodeItem(row row) (domain.SaleItem, error) {
	var (
		item domain.SaleItem
		err  error
	)
	if item.Product, err = row.required("product"); err != nil {
		return item, err
	}
	if item.Quantity, err = row.int("quantity"); err != nil {
		return item, err
	}
	if item.Quantity < 0 {
		return item, row.invalid("quantity", "must not be negative")
	}
	if item.UnitPrice, err = row.decimal("unitPrice"); err != nil {
		return item, err
	}
	if item.TotalValue, err = row.decimal("totalValue"); err != nil {
		return item, err
	}
	if item.TotalCost, err = row.decimal("totalCost"); err != nil {
		return item, err
	}
	if item.Profit, err = row.decimal("profit"); err != nil {
		return item, err
	}
	return item, nil
}
