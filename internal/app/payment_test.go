package app

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/candicepay/bot-service/internal/domain"
)

var referencePattern = regexp.MustCompile(`^CANDICE-\d+-[0-9A-F]{8}$`)

func paymentUsers() []domain.User {
	referrerCode := "CANDICEAAAAAA"
	return []domain.User{
		{ID: 1, TelegramID: 1001, Email: "ref@example.com", FirstName: "Ref", AffiliateCode: referrerCode, WalletBalance: 0},
		{ID: 2, TelegramID: 1002, Email: "payer@example.com", FirstName: "Payer", AffiliateCode: "CANDICEBBBBBB", ReferredBy: &referrerCode, WalletBalance: 2000000},
	}
}

func validPayment() PaymentInput {
	return PaymentInput{
		UserID:        2,
		RecipientName: "Ada",
		AccountNumber: "0123456789",
		BankName:      "access",
		AmountKobo:    1000000,
	}
}

func TestProcessPayment_DebitsPayerAndCreditsReferrer(t *testing.T) {
	h := newTestHarness(paymentUsers()...)

	result, err := h.service.ProcessPayment(context.Background(), validPayment())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if got := h.repo.balance(2); got != 1000000 {
		t.Fatalf("expected payer balance 1000000, got %d", got)
	}
	referrer := h.repo.user(1)
	if referrer.WalletBalance != 5000 || referrer.TotalEarnings != 5000 {
		t.Fatalf("expected referrer bonus 5000, got wallet=%d earnings=%d", referrer.WalletBalance, referrer.TotalEarnings)
	}

	txn := result.Transaction
	if txn.Status != domain.TransactionStatusPending {
		t.Fatalf("expected pending transaction, got %s", txn.Status)
	}
	if txn.AffiliateBonus != 5000 {
		t.Fatalf("expected affiliate bonus 5000, got %d", txn.AffiliateBonus)
	}
	if !referencePattern.MatchString(txn.Reference) {
		t.Fatalf("unexpected reference format %q", txn.Reference)
	}
	if txn.GatewayReference == nil || *txn.GatewayReference != "TRF_"+txn.Reference {
		t.Fatalf("expected gateway reference to be the transfer code, got %v", txn.GatewayReference)
	}
	if txn.RecipientName != "ADA OBI" {
		t.Fatalf("expected resolved account name to win, got %q", txn.RecipientName)
	}
	if txn.RecipientBank != "Access Bank" {
		t.Fatalf("expected matched bank name, got %q", txn.RecipientBank)
	}
	if txn.Description != defaultPaymentDescription {
		t.Fatalf("expected default description, got %q", txn.Description)
	}

	if len(h.gateway.transferCalls) != 1 {
		t.Fatalf("expected one transfer call, got %d", len(h.gateway.transferCalls))
	}
	call := h.gateway.transferCalls[0]
	if call.Amount != 1000000 || call.Reference != txn.Reference || call.Reason != transferReason {
		t.Fatalf("unexpected transfer request %+v", call)
	}

	if len(h.notifier.receipts) != 1 {
		t.Fatalf("expected a receipt email, got %d", len(h.notifier.receipts))
	}
	keys := h.publisher.routingKeys()
	if len(keys) != 1 || keys[0] != domain.EventPaymentInitiated {
		t.Fatalf("expected payment.initiated event, got %v", keys)
	}
}

func TestProcessPayment_NoReferrerNoBonus(t *testing.T) {
	h := newTestHarness(domain.User{ID: 5, TelegramID: 5005, FirstName: "Solo", WalletBalance: 500000})

	in := validPayment()
	in.UserID = 5
	in.AmountKobo = 200000
	result, err := h.service.ProcessPayment(context.Background(), in)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.Transaction.AffiliateBonus != 0 || result.Transaction.AffiliateUserID != nil {
		t.Fatalf("expected no bonus, got %d", result.Transaction.AffiliateBonus)
	}
	if got := h.repo.balance(5); got != 300000 {
		t.Fatalf("expected balance 300000, got %d", got)
	}
}

func TestProcessPayment_FailuresLeaveWalletUntouched(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(h *testHarness, in *PaymentInput)
		wantKind      ErrorKind
		wantTransfers int
	}{
		{
			name:     "unknown bank",
			setup:    func(h *testHarness, in *PaymentInput) { in.BankName = "Moniepoint" },
			wantKind: KindBankNotFound,
		},
		{
			name:     "account resolution",
			setup:    func(h *testHarness, in *PaymentInput) { h.gateway.resolveFail = true },
			wantKind: KindAccountResolutionFailed,
		},
		{
			name:     "recipient creation",
			setup:    func(h *testHarness, in *PaymentInput) { h.gateway.recipientFail = true },
			wantKind: KindRecipientCreationFailed,
		},
		{
			name:          "transfer rejected",
			setup:         func(h *testHarness, in *PaymentInput) { h.gateway.transferFail = true },
			wantKind:      KindTransferInitiationFailed,
			wantTransfers: 1,
		},
		{
			name:          "transfer transport error",
			setup:         func(h *testHarness, in *PaymentInput) { h.gateway.transferErr = errGatewayDown },
			wantKind:      KindTransferInitiationFailed,
			wantTransfers: 1,
		},
		{
			name:     "insufficient funds",
			setup:    func(h *testHarness, in *PaymentInput) { in.AmountKobo = 2000001 },
			wantKind: KindInsufficientFunds,
		},
		{
			name:     "zero amount",
			setup:    func(h *testHarness, in *PaymentInput) { in.AmountKobo = 0 },
			wantKind: KindInvalidAmount,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHarness(paymentUsers()...)
			in := validPayment()
			tc.setup(h, &in)

			_, err := h.service.ProcessPayment(context.Background(), in)
			var paymentErr *PaymentError
			if !errors.As(err, &paymentErr) {
				t.Fatalf("expected PaymentError, got %v", err)
			}
			if paymentErr.Kind != tc.wantKind {
				t.Fatalf("expected kind %s, got %s", tc.wantKind, paymentErr.Kind)
			}
			if got := h.repo.balance(2); got != 2000000 {
				t.Fatalf("expected balance unchanged at 2000000, got %d", got)
			}
			if got := h.repo.balance(1); got != 0 {
				t.Fatalf("expected referrer balance unchanged, got %d", got)
			}
			if h.repo.transactionCount() != 0 {
				t.Fatalf("expected no transaction rows, got %d", h.repo.transactionCount())
			}
			if len(h.gateway.transferCalls) != tc.wantTransfers {
				t.Fatalf("expected %d transfer calls, got %d", tc.wantTransfers, len(h.gateway.transferCalls))
			}
			if len(h.publisher.routingKeys()) != 0 {
				t.Fatalf("expected no events, got %v", h.publisher.routingKeys())
			}
		})
	}
}

func TestProcessPayment_PersistenceFailureAfterTransfer(t *testing.T) {
	h := newTestHarness(paymentUsers()...)
	h.repo.completeErr = errors.New("connection reset")

	result, err := h.service.ProcessPayment(context.Background(), validPayment())
	var paymentErr *PaymentError
	if !errors.As(err, &paymentErr) || paymentErr.Kind != KindPersistenceFailed {
		t.Fatalf("expected PersistenceFailed, got %v", err)
	}
	if result == nil || result.TransferCode == "" {
		t.Fatal("expected the accepted transfer to be reported alongside the error")
	}
	// The transfer went out, so the reservation is kept.
	if got := h.repo.balance(2); got != 1000000 {
		t.Fatalf("expected reserved balance 1000000, got %d", got)
	}
	keys := h.publisher.routingKeys()
	if len(keys) != 1 || keys[0] != domain.EventPaymentInitiated {
		t.Fatalf("expected payment.initiated event, got %v", keys)
	}
	event := h.publisher.events[0].body.(domain.PaymentInitiatedEvent)
	if event.Persisted {
		t.Fatal("expected event to flag the missing ledger row")
	}
}

func TestProcessPayment_UnknownPayer(t *testing.T) {
	h := newTestHarness()
	_, err := h.service.ProcessPayment(context.Background(), validPayment())
	var paymentErr *PaymentError
	if !errors.As(err, &paymentErr) || paymentErr.Kind != KindUserNotRegistered {
		t.Fatalf("expected UserNotRegistered, got %v", err)
	}
}
