package csvcodec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendinha/internal/domain"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestProductsRoundTrip(t *testing.T) {
	in := []domain.Product{
		{Name: "Cabo", Quantity: 5, Cost: money("10"), UnitPrice: money("25")},
		{Name: `Fone "Pro", preto`, Quantity: 0, Cost: money("30.5"), UnitPrice: money("59.90"), Photo: "https://img/fone.png"},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeProducts(&buf, in))
	out, err := DecodeProducts(&buf)
	require.NoError(t, err)

	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].Name, out[i].Name)
		assert.Equal(t, in[i].Quantity, out[i].Quantity)
		assert.True(t, in[i].Cost.Equal(out[i].Cost))
		assert.True(t, in[i].UnitPrice.Equal(out[i].UnitPrice))
		assert.Equal(t, in[i].Photo, out[i].Photo)
	}
}

func TestCustomersRoundTrip(t *testing.T) {
	last := time.Date(2024, time.March, 3, 14, 30, 0, 0, time.UTC)
	in := []domain.Customer{
		{ID: "cust-1", Name: "Ana, a Souza", Phone: "(11) 99999-0000", Email: "ana@example.com", Address: "Rua A, 10\nApto 2", Notes: `diz "oi"`, TotalPurchases: 3, TotalValue: money("180"), PendingAmount: money("100"), LastPurchase: &last},
		{ID: "cust-2", Name: "Bruno", TotalValue: money("0"), PendingAmount: money("0")},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeCustomers(&buf, in))
	out, err := DecodeCustomers(&buf)
	require.NoError(t, err)

	require.Len(t, out, 2)
	for i := range in {
		assert.Equal(t, in[i].ID, out[i].ID)
		assert.Equal(t, in[i].Name, out[i].Name)
		assert.Equal(t, in[i].Phone, out[i].Phone)
		assert.Equal(t, in[i].Email, out[i].Email)
		assert.Equal(t, in[i].Address, out[i].Address)
		assert.Equal(t, in[i].Notes, out[i].Notes)
		assert.Equal(t, in[i].TotalPurchases, out[i].TotalPurchases)
		assert.True(t, in[i].TotalValue.Equal(out[i].TotalValue))
		assert.True(t, in[i].PendingAmount.Equal(out[i].PendingAmount))
	}
	require.NotNil(t, out[0].LastPurchase)
	assert.True(t, last.Equal(*out[0].LastPurchase))
	assert.Nil(t, out[1].LastPurchase)
}

func TestMultiSaleRoundTrip(t *testing.T) {
	day := time.Date(2024, time.April, 2, 10, 0, 0, 0, time.UTC)
	sale := domain.Sale{
		ID:   "sale-1",
		Date: day,
		Items: []domain.SaleItem{
			{Product: "A", Quantity: 1, UnitPrice: money("10"), TotalValue: money("10"), TotalCost: money("4"), Profit: money("6")},
			{Product: "B", Quantity: 2, UnitPrice: money("10"), TotalValue: money("20"), TotalCost: money("8"), Profit: money("12")},
		},
		TotalValue:   money("30"),
		TotalCost:    money("12"),
		Profit:       money("18"),
		CustomerName: "Ana",
		Status:       domain.SaleStatusPaid,
	}
	single := domain.Sale{
		ID: "sale-0", Date: day.Add(-time.Hour), Product: "C", Quantity: 1, UnitPrice: money("5"),
		TotalValue: money("5"), TotalCost: money("2"), Profit: money("3"), Status: domain.SaleStatusPaid,
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeSales(&buf, []domain.Sale{sale, single}))
	out, err := DecodeSales(&buf)
	require.NoError(t, err)

	require.Len(t, out, 2)
	require.True(t, out[0].IsMulti())
	assert.Len(t, out[0].Items, 2)
	assert.True(t, out[0].TotalValue.Equal(money("30")))
	assert.True(t, out[0].Profit.Equal(money("18")))
	assert.Equal(t, "Ana", out[0].CustomerName)
	assert.True(t, day.Equal(out[0].Date))

	assert.False(t, out[1].IsMulti())
	assert.Equal(t, "C", out[1].Product)
	assert.True(t, out[1].TotalValue.Equal(money("5")))
}

func TestMultiSaleWithoutSaleColumnsSumsItems(t *testing.T) {
	csv := strings.Join([]string{
		"type,id,dateISO,product,quantity,unitPrice,totalValue,totalCost,profit",
		"multi,s1,2024-04-02T10:00:00Z,A,1,10,10,4,6",
		"multi,s1,2024-04-02T10:00:00Z,B,2,10,20,8,12",
	}, "\n")

	out, err := DecodeSales(strings.NewReader(csv))
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.True(t, out[0].TotalValue.Equal(money("30")))
	assert.True(t, out[0].TotalCost.Equal(money("12")))
	assert.True(t, out[0].Profit.Equal(money("18")))
}

func TestMultiSaleOverriddenTotalsRoundTrip(t *testing.T) {
	day := time.Date(2024, time.April, 2, 10, 0, 0, 0, time.UTC)
	in := domain.Sale{
		ID:   "sale-1",
		Date: day,
		Items: []domain.SaleItem{
			{Product: "A", Quantity: 1, UnitPrice: money("10"), TotalValue: money("10"), TotalCost: money("4"), Profit: money("6")},
			{Product: "B", Quantity: 2, UnitPrice: money("10"), TotalValue: money("20"), TotalCost: money("8"), Profit: money("12")},
		},
		// Manual discount recorded at the till.
		TotalValue: money("25"),
		TotalCost:  money("12"),
		Profit:     money("13"),
		Status:     domain.SaleStatusPaid,
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeSales(&buf, []domain.Sale{in}))
	out, err := DecodeSales(&buf)
	require.NoError(t, err)

	require.Len(t, out, 1)
	require.Len(t, out[0].Items, 2)
	assert.True(t, out[0].TotalValue.Equal(money("25")))
	assert.True(t, out[0].TotalCost.Equal(money("12")))
	assert.True(t, out[0].Profit.Equal(money("13")))
}

func TestDecodeSalesRejectsDisagreeingBasketRows(t *testing.T) {
	csv := strings.Join([]string{
		strings.Join(SaleHeader, ","),
		"multi,s1,2024-04-02T10:00:00Z,A,1,10,10,4,6,13,Ana,,,paid,,25,12",
		"multi,s1,2024-04-02T10:00:00Z,B,2,10,20,8,12,13,Ana,,,paid,,26,12",
	}, "\n")

	_, err := DecodeSales(strings.NewReader(csv))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 3, verr.Line)
}

func TestSalesInstallmentsTravelAsJSON(t *testing.T) {
	day := time.Date(2024, time.April, 2, 10, 0, 0, 0, time.UTC)
	in := domain.Sale{
		ID: "sale-1", Date: day, Product: "C", Quantity: 1, TotalValue: money("90"), PaymentMethod: "installments",
		Installments: []domain.Installment{{ID: "i1", Number: 1, Value: money("90"), DueDate: day.AddDate(0, 1, 0), Status: domain.InstallmentPending}},
		Status:       domain.SaleStatusPending,
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeSales(&buf, []domain.Sale{in}))
	out, err := DecodeSales(&buf)
	require.NoError(t, err)

	require.Len(t, out[0].Installments, 1)
	assert.Equal(t, "i1", out[0].Installments[0].ID)
	assert.True(t, out[0].Installments[0].Value.Equal(money("90")))
	assert.Equal(t, domain.SaleStatusPending, out[0].Status)
}

func TestDecodeSalesRejectsProfitMismatch(t *testing.T) {
	csv := strings.Join([]string{
		strings.Join(SaleHeader, ","),
		"multi,s1,2024-04-02T10:00:00Z,A,1,10,10,4,6,50,Ana,,,paid,",
		"multi,s1,2024-04-02T10:00:00Z,B,1,10,10,4,6,50,Ana,,,paid,",
	}, "\r\n")

	_, err := DecodeSales(strings.NewReader(csv))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "saleProfit", verr.Field)
	assert.Equal(t, 2, verr.Line)
}

func TestDecodeSalesToleratesCentDrift(t *testing.T) {
	csv := strings.Join([]string{
		strings.Join(SaleHeader, ","),
		"multi,s1,2024-04-02T10:00:00Z,A,1,10,10,4,6,12.02,Ana,,,paid,",
		"multi,s1,2024-04-02T10:00:00Z,B,1,10,10,4,6,12.02,Ana,,,paid,",
	}, "\n")

	out, err := DecodeSales(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Profit.Equal(money("12.02")))
}

func TestDecodeGroupsOnlyConsecutiveRows(t *testing.T) {
	csv := strings.Join([]string{
		strings.Join(SaleHeader, ","),
		"multi,,2024-04-02T10:00:00Z,A,1,10,10,4,6,,Ana,,,paid,",
		"multi,,2024-04-02T10:00:00Z,B,1,10,10,4,6,,Bia,,,paid,",
		"single,,2024-04-02T09:00:00Z,C,1,5,5,2,3,,,,,paid,",
		"multi,,2024-04-02T10:00:00Z,D,1,10,10,4,6,,Bia,,,paid,",
	}, "\n")

	out, err := DecodeSales(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Len(t, out[0].Items, 1)
	assert.Len(t, out[1].Items, 1)
	assert.False(t, out[2].IsMulti())
	assert.Len(t, out[3].Items, 1)
}

func TestMalformedRowsReportLine(t *testing.T) {
	cases := []struct {
		name  string
		input string
		line  int
		field string
	}{
		{"bad quantity", "name,quantity,cost,unitPrice,photo\nCabo,5,10,25,\nFone,abc,1,2,\n", 3, "quantity"},
		{"negative quantity", "name,quantity,cost,unitPrice,photo\nCabo,-1,10,25,\n", 2, "quantity"},
		{"missing name", "name,quantity,cost,unitPrice,photo\n,1,10,25,\n", 2, "name"},
		{"bad price", "name,quantity,cost,unitPrice,photo\nCabo,1,10,dez,\n", 2, "unitPrice"},
		{"missing column", "name,cost\nCabo,1\n", 1, "quantity"},
		{"too many fields", "name,quantity,cost,unitPrice,photo\nCabo,1,1,1,,extra\n", 2, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeProducts(strings.NewReader(tc.input))
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.line, verr.Line)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestDecodeUnterminatedQuote(t *testing.T) {
	_, err := DecodeProducts(strings.NewReader("name,quantity\n\"Cabo,1\n"))
	assert.True(t, domain.IsValidation(err))
}

func TestDecodeAcceptsCRLFAndBOM(t *testing.T) {
	out, err := DecodeProducts(strings.NewReader("\ufeffname,quantity,cost,unitPrice,photo\r\nCabo,5,10,25,\r\n"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 5, out[0].Quantity)
}

func TestDecodeEmptyInput(t *testing.T) {
	_, err := DecodeProducts(strings.NewReader(""))
	assert.True(t, domain.IsValidation(err))
}

func TestQuotedCRLFSurvivesRoundTrip(t *testing.T) {
	in := []domain.Customer{{ID: "cust-1", Name: "Ana", Address: "Rua A\r\nApto 2", Notes: "linha1\r\nlinha2\rfim", TotalValue: money("0"), PendingAmount: money("0")}}

	var buf bytes.Buffer
	require.NoError(t, EncodeCustomers(&buf, in))
	out, err := DecodeCustomers(&buf)
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, in[0].Address, out[0].Address)
	assert.Equal(t, in[0].Notes, out[0].Notes)

	products := []domain.Product{{Name: "Kit\r\nduplo", Quantity: 1, Cost: money("1"), UnitPrice: money("2")}}
	buf.Reset()
	require.NoError(t, EncodeProducts(&buf, products))
	decoded, err := DecodeProducts(&buf)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, products[0].Name, decoded[0].Name)
}

func TestDecodeReportsLineAfterMultilineField(t *testing.T) {
	input := "name,quantity,cost,unitPrice,photo\n\"Kit\r\nduplo\",1,1,2,\nFone,x,1,2,\n"
	_, err := DecodeProducts(strings.NewReader(input))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 4, verr.Line)
	assert.Equal(t, "quantity", verr.Field)
}

func TestDecodeRejectsStrayQuote(t *testing.T) {
	_, err := DecodeProducts(strings.NewReader("name,quantity\nCa\"bo,1\n"))
	assert.True(t, domain.IsValidation(err))

	_, err = DecodeProducts(strings.NewReader("name,quantity\n\"Cabo\"x,1\n"))
	assert.True(t, domain.IsValidation(err))
}
