package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	Name      string          `json:"name" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
	Cost      decimal.Decimal `json:"cost" validate:"gte=0"`
	UnitPrice decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	Photo     string          `json:"photo,omitempty"`
}

type SaleItem struct {
	Product    string          `json:"product"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	TotalValue decimal.Decimal `json:"totalValue"`
	TotalCost  decimal.Decimal `json:"totalCost"`
	Profit     decimal.Decimal `json:"profit"`
}

// Sale is either a single-product sale or a basket. A non-nil Items slice marks
// a basket; single sales carry Product, Quantity and UnitPrice instead.
type Sale struct {
	ID            string          `json:"id,omitempty"`
	Date          time.Time       `json:"dateISO"`
	Product       string          `json:"product,omitempty"`
	Quantity      int             `json:"quantity,omitempty"`
	UnitPrice     decimal.Decimal `json:"unitPrice,omitzero"`
	Items         []SaleItem      `json:"items,omitempty"`
	TotalValue    decimal.Decimal `json:"totalValue"`
	TotalCost     decimal.Decimal `json:"totalCost"`
	Profit        decimal.Decimal `json:"profit"`
	CustomerName  string          `json:"customerName,omitempty"`
	CustomerPhone string          `json:"customerPhone,omitempty"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	Installments  []Installment   `json:"installments,omitempty"`
	Status        SaleStatus      `json:"status,omitempty"`
}

func (s Sale) IsMulti() bool {
	return s.Items != nil
}

func (s Sale) HasCustomer() bool {
	return strings.TrimSpace(s.CustomerName) != "" || strings.TrimSpace(s.CustomerPhone) != ""
}

// ItemCount is the number of units sold across the sale.
func (s Sale) ItemCount() int {
	if !s.IsMulti() {
		return s.Quantity
	}
	count := 0
	for _, item := range s.Items {
		count += item.Quantity
	}
	return count
}

type Installment struct {
	ID       string            `json:"id"`
	Number   int               `json:"number"`
	Value    decimal.Decimal   `json:"value"`
	DueDate  time.Time         `json:"dueDate"`
	PaidDate *time.Time        `json:"paidDate,omitempty"`
	Status   InstallmentStatus `json:"status"`
}

type Customer struct {
	ID             string          `json:"id"`
	Name           string          `json:"name" validate:"required"`
	Phone          string          `json:"phone"`
	Email          string          `json:"email,omitempty" validate:"omitempty,email"`
	Address        string          `json:"address,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	TotalPurchases int             `json:"totalPurchases"`
	TotalValue     decimal.Decimal `json:"totalValue"`
	PendingAmount  decimal.Decimal `json:"pendingAmount"`
	LastPurchase   *time.Time      `json:"lastPurchase,omitempty"`
}

// ResetStats zeroes every derived field.
func (c *Customer) ResetStats() {
	c.TotalPurchases = 0
	c.TotalValue = decimal.Zero
	c.PendingAmount = decimal.Zero
	c.LastPurchase = nil
}

type Settings struct {
	SchemaVersion     int               `json:"schemaVersion"`
	StoreName         string            `json:"storeName,omitempty"`
	LowStockThreshold int               `json:"lowStockThreshold,omitempty"`
	Values            map[string]string `json:"values,omitempty"`
}

type DashboardBucket struct {
	Period string          `json:"period"`
	Sales  int             `json:"sales"`
	Value  decimal.Decimal `json:"value"`
	Cost   decimal.Decimal `json:"cost"`
	Profit decimal.Decimal `json:"profit"`
}

type DashboardSummary struct {
	GeneratedAt   time.Time         `json:"generatedAt"`
	SalesCount    int               `json:"salesCount"`
	ItemsSold     int               `json:"itemsSold"`
	TotalValue    decimal.Decimal   `json:"totalValue"`
	TotalCost     decimal.Decimal   `json:"totalCost"`
	TotalProfit   decimal.Decimal   `json:"totalProfit"`
	PendingAmount decimal.Decimal   `json:"pendingAmount"`
	OverdueAmount decimal.Decimal   `json:"overdueAmount"`
	ProductCount  int               `json:"productCount"`
	StockValue    decimal.Decimal   `json:"stockValue"`
	LowStock      []string          `json:"lowStock"`
	Daily         []DashboardBucket `json:"daily"`
	Monthly       []DashboardBucket `json:"monthly"`
}

type SaleStatus string

const (
	SaleStatusPaid    SaleStatus = "paid"
	SaleStatusPending SaleStatus = "pending"
	SaleStatusPartial SaleStatus = "partial"
)

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

// IsInstallmentMethod reports whether a payment method bills in installments.
// Legacy records use several spellings.
func IsInstallmentMethod(method string) bool {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "installments", "installment", "parcelado", "parcelas", "crediario", "crediário", "carne", "carnê":
		return true
	default:
		return false
	}
}
