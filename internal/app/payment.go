package app

import (
	"context"
	"errors"
	"strings"

	"github.com/candicepay/bot-service/internal/domain"
	"github.com/candicepay/bot-service/internal/store"
	"github.com/candicepay/bot-service/pkg/logger"
	"github.com/candicepay/bot-service/pkg/mailer"
	"go.uber.org/zap"
)

const (
	transferReason            = "Payment via CandicePay"
	defaultPaymentDescription = "Smart image payment"
)

// PaymentInput describes one outbound payment. AmountKobo is the gross amount.
type PaymentInput struct {
	UserID        int64
	RecipientName string
	AccountNumber string
	BankName      string
	AmountKobo    int64
	Description   string
}

// PaymentResult reports a transfer the gateway accepted.
type PaymentResult struct {
	Transaction  *domain.Transaction
	Bank         domain.Bank
	ResolvedName string
	TransferCode string
}

// ProcessPayment runs the payment flow: match bank, resolve account, create recipient,
// reserve funds, initiate transfer, then record the transaction and affiliate bonus.
// Failures before the transfer leave the wallet untouched and write no transaction.
func (s *Service) ProcessPayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	if in.AmountKobo <= 0 {
		return nil, paymentFailure(KindInvalidAmount, "amount must be positive", nil)
	}

	payer, err := s.repo.FindUserByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, paymentFailure(KindUserNotRegistered, "", err)
		}
		return nil, paymentFailure(KindPersistenceFailed, "load payer", err)
	}
	if payer.WalletBalance < in.AmountKobo {
		return nil, paymentFailure(KindInsufficientFunds, "", store.ErrInsufficientFunds)
	}

	reference := NewReference(s.now())
	log := s.logger.With(
		zap.Int64("telegram_id", payer.TelegramID),
		zap.String("reference", reference),
	)

	// 1. Bank lookup.
	banks, err := s.Banks(ctx)
	if err != nil {
		return nil, paymentFailure(KindGatewayUnavailable, "bank list", err)
	}
	bank, ok := MatchBank(banks, in.BankName)
	if !ok {
		return nil, paymentFailure(KindBankNotFound, in.BankName, nil)
	}

	// 2. Account resolution.
	resolveResp, err := s.gateway.ResolveAccount(ctx, in.AccountNumber, bank.Code)
	if err != nil {
		return nil, paymentFailure(KindAccountResolutionFailed, "", err)
	}
	if !resolveResp.Status {
		return nil, paymentFailure(KindAccountResolutionFailed, resolveResp.Message, nil)
	}
	recipientName := strings.TrimSpace(resolveResp.Data.AccountName)
	if recipientName == "" {
		recipientName = strings.TrimSpace(in.RecipientName)
	}

	// 3. Transfer recipient.
	recipientResp, err := s.gateway.CreateTransferRecipient(ctx, recipientName, in.AccountNumber, bank.Code)
	if err != nil {
		return nil, paymentFailure(KindRecipientCreationFailed, "", err)
	}
	if !recipientResp.Status || recipientResp.Data.RecipientCode == "" {
		return nil, paymentFailure(KindRecipientCreationFailed, recipientResp.Message, nil)
	}
	recipientCode := recipientResp.Data.RecipientCode

	// 4. Reserve locally before money moves.
	if err := s.repo.ReserveFunds(ctx, payer.ID, in.AmountKobo); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return nil, paymentFailure(KindInsufficientFunds, "", err)
		}
		return nil, paymentFailure(KindPersistenceFailed, "reserve funds", err)
	}

	// 5. Transfer.
	transferResp, err := s.gateway.InitiateTransfer(ctx, recipientCode, in.AmountKobo, transferReason, reference)
	if err != nil || !transferResp.Status {
		s.release(ctx, log, payer.ID, in.AmountKobo)
		if err != nil {
			return nil, paymentFailure(KindTransferInitiationFailed, "", err)
		}
		return nil, paymentFailure(KindTransferInitiationFailed, transferResp.Message, nil)
	}
	transfer := transferResp.Data
	gatewayReference := transfer.TransferCode
	if gatewayReference == "" {
		gatewayReference = transfer.Reference
	}

	// 6. Ledger row and affiliate bonus.
	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = defaultPaymentDescription
	}
	draft := domain.Transaction{
		UserID:           payer.ID,
		Type:             domain.TransactionTypePayment,
		Amount:           in.AmountKobo,
		RecipientName:    recipientName,
		RecipientAccount: in.AccountNumber,
		RecipientBank:    bank.Name,
		SenderName:       payer.DisplayName(),
		SenderAccount:    payer.AccountNumber,
		SenderBank:       payer.BankName,
		Reference:        reference,
		Status:           domain.TransactionStatusPending,
		Description:      description,
		Metadata: map[string]string{
			"bank_code":      bank.Code,
			"recipient_code": recipientCode,
			"transfer_code":  transfer.TransferCode,
			"gateway_status": transfer.Status,
		},
	}
	if gatewayReference != "" {
		draft.GatewayReference = &gatewayReference
	}
	if referrer := s.bonusBeneficiary(ctx, log, payer); referrer != nil {
		draft.AffiliateBonus = domain.AffiliateBonus(in.AmountKobo)
		draft.AffiliateUserID = &referrer.ID
	}

	result := &PaymentResult{Bank: bank, ResolvedName: recipientName, TransferCode: transfer.TransferCode}

	txn, err := domain.NewTransaction(draft)
	if err == nil {
		err = s.repo.CompletePayment(ctx, txn)
	}
	if err != nil {
		// Money has left the gateway; the reservation stands but there is no ledger row.
		log.Error("payment persisted no transaction after gateway accepted transfer",
			zap.String("transfer_code", transfer.TransferCode),
			zap.Int64("amount", in.AmountKobo),
			logger.Masked("account_number", in.AccountNumber),
			zap.Error(err),
		)
		s.publishPaymentInitiated(ctx, &draft, false)
		result.Transaction = &draft
		return result, paymentFailure(KindPersistenceFailed, "record transaction", err)
	}
	result.Transaction = txn

	// 7. Receipt and event.
	s.sendReceipt(ctx, log, payer, txn)
	s.publishPaymentInitiated(ctx, txn, true)

	log.Info("payment submitted",
		zap.Int64("amount", txn.Amount),
		zap.Int64("affiliate_bonus", txn.AffiliateBonus),
		zap.String("transfer_code", transfer.TransferCode),
	)
	return result, nil
}

func (s *Service) release(ctx context.Context, log *zap.Logger, userID, amount int64) {
	// The caller's context may already be cancelled; the refund must still land.
	if err := s.repo.ReleaseFunds(context.WithoutCancel(ctx), userID, amount); err != nil {
		log.Error("failed to release reserved funds", zap.Int64("user_id", userID), zap.Int64("amount", amount), zap.Error(err))
	}
}

// bonusBeneficiary returns the payer's referrer, or nil when there is none to credit.
func (s *Service) bonusBeneficiary(ctx context.Context, log *zap.Logger, payer *domain.User) *domain.User {
	if payer.ReferredBy == nil || strings.TrimSpace(*payer.ReferredBy) == "" {
		return nil
	}
	referrer, err := s.repo.FindUserByAffiliateCode(ctx, *payer.ReferredBy)
	if err != nil {
		log.Warn("referrer lookup failed; no affiliate bonus", zap.String("affiliate_code", *payer.ReferredBy), zap.Error(err))
		return nil
	}
	if referrer.ID == payer.ID {
		return nil
	}
	return referrer
}

func (s *Service) sendReceipt(ctx context.Context, log *zap.Logger, payer *domain.User, txn *domain.Transaction) {
	if s.notifier == nil || payer.Email == "" {
		return
	}
	receipt := mailer.Receipt{
		FirstName:        payer.FirstName,
		Reference:        txn.Reference,
		RecipientName:    txn.RecipientName,
		RecipientAccount: txn.RecipientAccount,
		RecipientBank:    txn.RecipientBank,
		AmountKobo:       txn.Amount,
		Status:           txn.Status,
		CreatedAt:        txn.CreatedAt,
	}
	if err := s.notifier.SendTransactionReceipt(ctx, payer.Email, receipt); err != nil {
		log.Warn("receipt email failed", zap.Error(err))
	}
}

func (s *Service) publishPaymentInitiated(ctx context.Context, txn *domain.Transaction, persisted bool) {
	gatewayReference := ""
	if txn.GatewayReference != nil {
		gatewayReference = *txn.GatewayReference
	}
	s.publish(ctx, domain.EventPaymentInitiated, domain.PaymentInitiatedEvent{
		EventID:          newEventID(),
		UserID:           txn.UserID,
		Reference:        txn.Reference,
		GatewayReference: gatewayReference,
		Amount:           txn.Amount,
		AffiliateBonus:   txn.AffiliateBonus,
		Status:           txn.Status,
		Persisted:        persisted,
		OccurredAt:       s.now().UTC(),
	})
}
