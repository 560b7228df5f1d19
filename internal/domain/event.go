package domain

import (
	"encoding/json"
	"time"
)

// Routing keys for events published on the candicepay exchange.
const (
	EventUserRegistered   = "user.registered"
	EventPaymentInitiated = "payment.initiated"
	EventDepositReceived  = "deposit.received"
)

// UserRegisteredEvent is published after a registration commits.
type UserRegisteredEvent struct {
	EventID       string    `json:"event_id"`
	UserID        int64     `json:"user_id"`
	TelegramID    int64     `json:"telegram_id"`
	AffiliateCode string    `json:"affiliate_code"`
	ReferrerID    *int64    `json:"referrer_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PaymentInitiatedEvent is published once a transfer has been accepted by the gateway.
type PaymentInitiatedEvent struct {
	EventID          string            `json:"event_id"`
	UserID           int64             `json:"user_id"`
	Reference        string            `json:"reference"`
	GatewayReference string            `json:"paystack_reference"`
	Amount           int64             `json:"amount"`
	AffiliateBonus   int64             `json:"affiliate_bonus"`
	Status           TransactionStatus `json:"status"`
	Persisted        bool              `json:"persisted"`
	OccurredAt       time.Time         `json:"occurred_at"`
}

// DepositReceivedEvent is published when an inbound transfer credits a wallet.
type DepositReceivedEvent struct {
	EventID    string    `json:"event_id"`
	UserID     int64     `json:"user_id"`
	Reference  string    `json:"reference"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// GatewayEvent is the envelope Paystack posts to the webhook.
type GatewayEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChargeEventData is the subset of a charge.success payload the service reads.
type ChargeEventData struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	Channel   string `json:"channel"`
	Customer  struct {
		CustomerCode string `json:"customer_code"`
		Email        string `json:"email"`
	} `json:"customer"`
	Authorization struct {
		SenderName          string `json:"sender_name"`
		SenderBank          string `json:"sender_bank"`
		SenderAccountNumber string `json:"sender_bank_account_number"`
		ReceiverAccount     string `json:"receiver_bank_account_number"`
	} `json:"authorization"`
}

// TransferEventData is the subset of transfer.* payloads the service reads.
type TransferEventData struct {
	ID           int64  `json:"id"`
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Amount       int64  `json:"amount"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
}
