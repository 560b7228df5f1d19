package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var (
	koboPerNaira = decimal.NewFromInt(100)
	// AffiliateBonusRate is the share of a referred user's payment credited to the referrer.
	AffiliateBonusRate = decimal.RequireFromString("0.005")
)

// ParseAmount reads a naira amount typed by a person or returned by the vision model.
// It tolerates currency markers, thousands separators and surrounding spaces.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	for _, marker := range []string{"₦", "NGN", "ngn", "Ngn"} {
		cleaned = strings.TrimPrefix(cleaned, marker)
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// ToKobo converts naira to kobo, rounding half away from zero.
func ToKobo(naira decimal.Decimal) int64 {
	return naira.Mul(koboPerNaira).Round(0).IntPart()
}

// FromKobo converts kobo to naira.
func FromKobo(kobo int64) decimal.Decimal {
	return decimal.New(kobo, -2)
}

// AffiliateBonus is 0.5% of amount, rounded to the nearest kobo.
func AffiliateBonus(amountKobo int64) int64 {
	if amountKobo <= 0 {
		return 0
	}
	return decimal.NewFromInt(amountKobo).Mul(AffiliateBonusRate).Round(0).IntPart()
}

// FormatNaira renders kobo as "₦10,000.00".
func FormatNaira(kobo int64) string {
	sign := ""
	if kobo < 0 {
		sign = "-"
		kobo = -kobo
	}
	fixed := FromKobo(kobo).StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return sign + "₦" + b.String() + "." + frac
}
