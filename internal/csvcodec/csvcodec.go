// Package csvcodec converts collections to and from CSV for import and
// export. Decoding is all-or-nothing: the first malformed row aborts with a
// ValidationError naming its line.
package csvcodec

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vendinha/internal/domain"
)

var (
	ProductHeader  = []string{"name", "quantity", "cost", "unitPrice", "photo"}
	CustomerHeader = []string{"id", "name", "phone", "email", "address", "notes", "totalPurchases", "totalValue", "pendingAmount", "lastPurchase"}
	SaleHeader     = []string{"type", "id", "dateISO", "product", "quantity", "unitPrice", "totalValue", "totalCost", "profit", "saleProfit", "customerName", "customerPhone", "paymentMethod", "status", "installments", "saleTotalValue", "saleTotalCost"}
)

const (
	rowSingle = "single"
	rowMulti  = "multi"
)

type row struct {
	line   int
	fields []string
	index  map[string]int
}

func (r row) get(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// raw returns the field without trimming, for free text that must survive a
// round trip untouched.
func (r row) raw(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

func (r row) invalid(col, reason string) error {
	return &domain.ValidationError{Line: r.line, Field: col, Reason: reason}
}

func (r row) required(col string) (string, error) {
	v := r.raw(col)
	if strings.TrimSpace(v) == "" {
		return "", r.invalid(col, "is required")
	}
	return v, nil
}

func (r row) int(col string) (int, error) {
	v := r.get(col)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, r.invalid(col, fmt.Sprintf("%q is not an integer", v))
	}
	return n, nil
}

func (r row) decimal(col string) (decimal.Decimal, error) {
	v := r.get(col)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, r.invalid(col, fmt.Sprintf("%q is not a number", v))
	}
	return d, nil
}

func (r row) time(col string) (*time.Time, error) {
	v := r.get(col)
	if v == "" {
		return nil, nil
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, r.invalid(col, fmt.Sprintf("%q is not a date", v))
	}
	return &t, nil
}

func parseTime(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", v)
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// readRows reads the header and every record. Columns are located by header
// name; columns in required must be present.
func readRows(r io.Reader, required []string) ([]row, error) {
	reader := newRecordReader(r)

	header, _, err := reader.read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.ValidationError{Line: 1, Reason: "missing header"}
	}
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, &domain.ValidationError{Line: 1, Field: col, Reason: "missing column"}
		}
	}

	var rows []row
	for {
		fields, line, err := reader.read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(fields) > len(header) {
			return nil, &domain.ValidationError{Line: line, Reason: fmt.Sprintf("expected at most %d fields, got %d", len(header), len(fields))}
		}
		rows = append(rows, row{line: line, fields: fields, index: index})
	}
	return rows, nil
}

func writeAll(w io.Writer, header []string, records [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return writer.Error()
}

func decimalField(d decimal.Decimal) string {
	return d.String()
}
