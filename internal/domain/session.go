package domain

import "time"

// Step tags where a user is inside a multi-turn conversation.
type Step string

const (
	StepAwaitingRegistration        Step = "awaiting_registration"
	StepAwaitingEmail               Step = "awaiting_email"
	StepAwaitingFirstName           Step = "awaiting_first_name"
	StepAwaitingPhone               Step = "awaiting_phone"
	StepAwaitingPaymentMethod       Step = "awaiting_payment_method"
	StepAwaitingPaymentScan         Step = "awaiting_payment_scan"
	StepAwaitingManualDetails       Step = "awaiting_manual_details"
	StepAwaitingPaymentAmount       Step = "awaiting_payment_amount"
	StepAwaitingPaymentConfirmation Step = "awaiting_payment_confirmation"
)

// PaymentDraft holds the recipient and amount collected before the user confirms.
type PaymentDraft struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
	AmountKobo    int64  `json:"amount_kobo"`
}

// Session is the per-identity conversation state.
type Session struct {
	TelegramID int64         `json:"telegram_id"`
	Step       Step          `json:"step"`
	ReferredBy string        `json:"referred_by,omitempty"`
	Email      string        `json:"email,omitempty"`
	FirstName  string        `json:"first_name,omitempty"`
	UserID     int64         `json:"user_id,omitempty"`
	Payment    *PaymentDraft `json:"payment,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
