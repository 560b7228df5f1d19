package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidTransaction = errors.New("invalid transaction")

// TransactionType enumerates the kinds of funds movement recorded in the ledger.
type TransactionType string

const (
	TransactionTypePayment    TransactionType = "payment"
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

// ParseTransactionType accepts the canonical lower-case names only.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(raw))); t {
	case TransactionTypePayment, TransactionTypeDeposit, TransactionTypeWithdrawal:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, raw)
	}
}

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// ParseTransactionStatus accepts the canonical lower-case names only.
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	switch s := TransactionStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case TransactionStatusPending, TransactionStatusSuccess, TransactionStatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransaction, raw)
	}
}

// Terminal reports whether no further status transition is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusFailed
}

// Transaction maps to the `transactions` table. Rows are never deleted; only Status
// moves, and only out of pending.
type Transaction struct {
	ID               int64             `json:"id"`
	UserID           int64             `json:"user_id"`
	Type             TransactionType   `json:"type"`
	Amount           int64             `json:"amount"`     // in kobo
	Fee              int64             `json:"fee"`        // in kobo
	NetAmount        int64             `json:"net_amount"` // in kobo
	RecipientName    string            `json:"recipient_name,omitempty"`
	RecipientAccount string            `json:"recipient_account,omitempty"`
	RecipientBank    string            `json:"recipient_bank,omitempty"`
	SenderName       string            `json:"sender_name,omitempty"`
	SenderAccount    string            `json:"sender_account,omitempty"`
	SenderBank       string            `json:"sender_bank,omitempty"`
	Reference        string            `json:"reference"`
	GatewayReference *string           `json:"paystack_reference,omitempty"`
	Status           TransactionStatus `json:"status"`
	Description      string            `json:"description,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	AffiliateBonus   int64             `json:"affiliate_bonus"` // in kobo
	AffiliateUserID  *int64            `json:"affiliate_user_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// NewTransaction validates a transaction record before it reaches the store.
// Status defaults to pending and NetAmount is derived from Amount and Fee.
func NewTransaction(t Transaction) (*Transaction, error) {
	if _, err := ParseTransactionType(string(t.Type)); err != nil {
		return nil, err
	}
	if t.Status == "" {
		t.Status = TransactionStatusPending
	}
	if _, err := ParseTransactionStatus(string(t.Status)); err != nil {
		return nil, err
	}
	if t.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidTransaction)
	}
	if t.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}
	if t.Fee < 0 || t.Fee > t.Amount {
		return nil, fmt.Errorf("%w: fee out of range", ErrInvalidTransaction)
	}
	if strings.TrimSpace(t.Reference) == "" {
		return nil, fmt.Errorf("%w: missing reference", ErrInvalidTransaction)
	}
	if t.AffiliateBonus < 0 {
		return nil, fmt.Errorf("%w: negative affiliate bonus", ErrInvalidTransaction)
	}
	if t.AffiliateBonus > 0 && t.AffiliateUserID == nil {
		return nil, fmt.Errorf("%w: affiliate bonus without beneficiary", ErrInvalidTransaction)
	}
	t.NetAmount = t.Amount - t.Fee
	return &t, nil
}

// TransactionWithUser is the admin listing row: a transaction plus its owner's name and email.
type TransactionWithUser struct {
	Transaction
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
}
