package csvcodec

import (
	"io"
	"strconv"

	"vendinha/internal/domain"
)

func EncodeCustomers(w io.Writer, customers []domain.Customer) error {
	records := make([][]string, 0, len(customers))
	for _, c := range customers {
		lastPurchase := ""
		if c.LastPurchase != nil {
			lastPurchase = formatTime(*c.LastPurchase)
		}
		records = append(records, []string{
			c.ID,
			c.Name,
			c.Phone,
			c.Email,
			c.Address,
			c.Notes,
			strconv.Itoa(c.TotalPurchases),
			decimalField(c.TotalValue),
			decimalField(c.PendingAmount),
			lastPurchase,
		})
	}
	return writeAll(w, CustomerHeader, records)
}

func DecodeCustomers(r io.Reader) ([]domain.Customer, error) {
	rows, err := readRows(r, []string{"name"})
	if err != nil {
		return nil, err
	}

	customers := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		var (
			c   domain.Customer
			err error
		)
		c.ID = row.get("id")
		if c.Name, err = row.required("name"); err != nil {
			return nil, err
		}
		c.Phone = row.raw("phone")
		c.Email = row.raw("email")
		c.Address = row.raw("address")
		c.Notes = row.raw("notes")
		if c.TotalPurchases, err = row.int("totalPurchases"); err != nil {
			return nil, err
		}
		if c.TotalValue, err = row.decimal("totalValue"); err != nil {
			return nil, err
		}
		if c.PendingAmount, err = row.decimal("pendingAmount"); err != nil {
			return nil, err
		}
		if c.LastPurchase, err = row.time("lastPurchase"); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, nil
}
