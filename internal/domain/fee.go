package domain

import (
	"github.com/shopspring/decimal"
)

// ServiceFeeRate is the share of each payout charged to the project on top of the amount.
var ServiceFeeRate = decimal.RequireFromString("0.02")

// Fee returns the service fee for amount in sats, rounded up to the next whole sat.
func Fee(amount int64) int64 {
	return decimal.NewFromInt(amount).Mul(ServiceFeeRate).Ceil().IntPart()
}

// TotalCost returns amount plus its service fee.
func TotalCost(amount int64) int64 {
	return amount + Fee(amount)
}
