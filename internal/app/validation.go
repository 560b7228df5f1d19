package app

import "strings"

// ValidEmail applies the loose check the bot has always used: an @ and a dot.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	return strings.Contains(email, "@") && strings.Contains(email, ".")
}

// NormalizePhone keeps only digits and requires at least ten of them.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	phone := b.String()
	return phone, len(phone) >= 10
}

// NormalizeAccountNumber strips separators from a typed account number and requires ten digits.
func NormalizeAccountNumber(raw string) (string, bool) {
	digits, _ := NormalizePhone(raw)
	return digits, len(digits) == 10
}
