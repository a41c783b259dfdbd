package csvcodec

import (
	"io"
	"strconv"

	"vendinha/internal/domain"
)

func EncodeProducts(w io.Writer, products []domain.Product) error {
	records := make([][]string, 0, len(products))
	for _, p := range products {
		records = append(records, []string{
			p.Name,
			strconv.Itoa(p.Quantity),
			decimalField(p.Cost),
			decimalField(p.UnitPrice),
			p.Photo,
		})
	}
	return writeAll(w, ProductHeader, records)
}

func DecodeProducts(r io.Reader) ([]domain.Product, error) {
	rows, err := readRows(r, []string{"name", "quantity"})
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		var (
			p   domain.Product
			err error
		)
		if p.Name, err = row.required("name"); err != nil {
			return nil, err
		}
		if p.Quantity, err = row.int("quantity"); err != nil {
			return nil, err
		}
		if p.Quantity < 0 {
			return nil, row.invalid("quantity", "must not be negative")
		}
		if p.Cost, err = row.decimal("cost"); err != nil {
			return nil, err
		}
		if p.UnitPrice, err = row.decimal("unitPrice"); err != nil {
			return nil, err
		}
		if p.Cost.IsNegative() {
			return nil, row.invalid("cost", "must not be negative")
		}
		if p.UnitPrice.IsNegative() {
			return nil, row.invalid("unitPrice", "must not be negative")
		}
		p.Photo = row.raw("photo")
		products = append(products, p)
	}
	return products, nil
}
