package domain

import "github.com/shopspring/decimal"

// MoneyPlaces is the currency precision used for every computed amount.
const MoneyPlaces = 2

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MoneyTolerance is the largest difference treated as rounding noise when
// comparing an aggregate against the sum of n rounded parts.
func MoneyTolerance(parts int) decimal.Decimal {
	if parts < 1 {
		parts = 1
	}
	return decimal.New(int64(parts), -MoneyPlaces)
}
