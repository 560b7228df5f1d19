package domain

import "time"

// Bank is a row in the local copy of the gateway's bank list.
type Bank struct {
	ID                     int64     `json:"id"`
	Name                   string    `json:"name"`
	Code                   string    `json:"code"`
	Slug                   string    `json:"slug"`
	Country                string    `json:"country"`
	Currency               string    `json:"currency"`
	Type                   string    `json:"type"`
	SupportsTransfer       bool      `json:"supports_transfer"`
	SupportsVirtualAccount bool      `json:"supports_virtual_account"`
	// Position is the bank's index in the gateway list; MatchBank depends on it.
	Position               int       `json:"position"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// PopularBankSlugs is the short list shown by the /banks command.
var PopularBankSlugs = []string{
	"access-bank",
	"first-bank",
	"gtbank",
	"zenith-bank",
	"uba",
	"fidelity-bank",
	"polaris-bank",
}
