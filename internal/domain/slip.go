package domain

import "github.com/shopspring/decimal"

// SlipDetails are the payment fields read off a photographed slip or typed by the user.
// Amount is in naira and is zero when the slip did not show one.
type SlipDetails struct {
	AccountNumber string
	AccountName   string
	BankName      string
	Amount        decimal.Decimal
}

// HasAmount reports whether a positive amount was captured.
func (s SlipDetails) HasAmount() bool {
	return s.Amount.IsPositive()
}
