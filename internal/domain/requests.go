package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type ProductCreateRequest struct {
	Name      string          `json:"name" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
	Cost      decimal.Decimal `json:"cost" validate:"gte=0"`
	UnitPrice decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	Photo     string          `json:"photo"`
}

type ProductUpdateRequest struct {
	Quantity  *int             `json:"quantity"`
	Cost      *decimal.Decimal `json:"cost"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
	Photo     *string          `json:"photo"`
}

type SaleItemRequest struct {
	Product   string           `json:"product" validate:"required"`
	Quantity  int              `json:"quantity" validate:"gt=0"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
}

// SaleRequest records a single-product sale, or a basket when Items is set.
// Non-nil totals override the computed ones.
type SaleRequest struct {
	Product       string            `json:"product"`
	Quantity      int               `json:"quantity"`
	Items         []SaleItemRequest `json:"items" validate:"dive"`
	Date          *time.Time        `json:"dateISO"`
	CustomerName  string            `json:"customerName"`
	CustomerPhone string            `json:"customerPhone"`
	PaymentMethod string            `json:"paymentMethod"`
	Installments  int               `json:"installments" validate:"gte=0,lte=48"`
	Status        SaleStatus        `json:"status" validate:"omitempty,oneof=paid pending partial"`
	UnitPrice     *decimal.Decimal  `json:"unitPrice"`
	TotalValue    *decimal.Decimal  `json:"totalValue"`
	TotalCost     *decimal.Decimal  `json:"totalCost"`
	Profit        *decimal.Decimal  `json:"profit"`
}

type SaleResponse struct {
	Sale            Sale      `json:"sale"`
	NewQuantity     *int      `json:"newQuantity,omitempty"`
	UpdatedProducts []Product `json:"updatedProducts,omitempty"`
}

type PaymentRequest struct {
	PaidAt *time.Time `json:"paidAt"`
}

type ImportResult struct {
	Entity string `json:"entity"`
	Count  int    `json:"count"`
}

type SettingsUpdateRequest struct {
	StoreName         *string           `json:"storeName"`
	LowStockThreshold *int              `json:"lowStockThreshold" validate:"omitempty,gte=0"`
	Values            map[string]string `json:"values"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}
