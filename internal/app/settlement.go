package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/candicepay/bot-service/internal/domain"
	"github.com/candicepay/bot-service/internal/store"
	"go.uber.org/zap"
)

// Gateway event names the service acts on.
const (
	GatewayEventChargeSuccess    = "charge.success"
	GatewayEventTransferSuccess  = "transfer.success"
	GatewayEventTransferFailed   = "transfer.failed"
	GatewayEventTransferReversed = "transfer.reversed"
)

// GatewayRoutingKey is the routing key a gateway event is published under.
func GatewayRoutingKey(event string) string {
	return "paystack." + event
}

// GatewayEventBindings lists the routing keys the settlement consumer binds.
func GatewayEventBindings() []string {
	return []string{
		GatewayRoutingKey(GatewayEventChargeSuccess),
		GatewayRoutingKey(GatewayEventTransferSuccess),
		GatewayRoutingKey(GatewayEventTransferFailed),
		GatewayRoutingKey(GatewayEventTransferReversed),
	}
}

const (
	pendingReconcileAge   = 10 * time.Minute
	pendingReconcileBatch = 50
)

// HandleGatewayMessage is the queue handler for a gateway event body. Malformed
// bodies are acknowledged and dropped; transient failures ask for redelivery.
func (s *Service) HandleGatewayMessage(ctx context.Context, body []byte) bool {
	var event domain.GatewayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Error("dropping malformed gateway event", zap.Error(err))
		return true
	}
	if err := s.HandleGatewayEvent(ctx, event); err != nil {
		s.logger.Error("gateway event processing failed",
			zap.String("event", event.Event),
			zap.String("reference", eventReference(event)),
			zap.Error(err),
		)
		return false
	}
	return true
}

// eventReference pulls the gateway reference out of an event for logging.
func eventReference(event domain.GatewayEvent) string {
	var data struct {
		Reference string `json:"reference"`
	}
	_ = json.Unmarshal(event.Data, &data)
	return data.Reference
}

// HandleGatewayEvent settles one webhook event. Replaying an event is a no-op.
func (s *Service) HandleGatewayEvent(ctx context.Context, event domain.GatewayEvent) error {
	switch event.Event {
	case GatewayEventChargeSuccess:
		var data domain.ChargeEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			s.logger.Warn("charge event has unreadable data", zap.Error(err))
			return nil
		}
		return s.creditDeposit(ctx, data)
	case GatewayEventTransferSuccess, GatewayEventTransferFailed, GatewayEventTransferReversed:
		var data domain.TransferEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			s.logger.Warn("transfer event has unreadable data", zap.String("event", event.Event), zap.Error(err))
			return nil
		}
		status := domain.TransactionStatusSuccess
		if event.Event != GatewayEventTransferSuccess {
			status = domain.TransactionStatusFailed
		}
		reason := data.Reason
		if status == domain.TransactionStatusFailed && reason == "" {
			reason = strings.TrimPrefix(event.Event, "transfer.")
		}
		return s.settleTransfer(ctx, status, reason, data.Reference, data.TransferCode)
	default:
		s.logger.Debug("ignoring gateway event", zap.String("event", event.Event))
		return nil
	}
}

// creditDeposit re-verifies an inbound charge with the gateway before crediting it.
func (s *Service) creditDeposit(ctx context.Context, data domain.ChargeEventData) error {
	if data.Reference == "" {
		s.logger.Warn("charge event without reference")
		return nil
	}
	log := s.logger.With(zap.String("reference", data.Reference))

	verified, err := s.gateway.VerifyTransaction(ctx, data.Reference)
	if err != nil {
		return fmt.Errorf("verify charge %s: %w", data.Reference, err)
	}
	if !verified.Status || !strings.EqualFold(verified.Data.Status, "success") {
		log.Warn("charge did not verify; not crediting", zap.String("gateway_status", verified.Data.Status), zap.String("message", verified.Message))
		return nil
	}
	if verified.Data.Amount <= 0 {
		log.Warn("verified charge has no amount")
		return nil
	}

	customerCode := verified.Data.Customer.CustomerCode
	if customerCode == "" {
		customerCode = data.Customer.CustomerCode
	}
	user, err := s.repo.FindUserByCustomerCode(ctx, customerCode)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Warn("charge for unknown customer", zap.String("customer_code", customerCode))
			return nil
		}
		return fmt.Errorf("load deposit owner: %w", err)
	}

	reference := verified.Data.Reference
	if reference == "" {
		reference = data.Reference
	}
	txn, err := domain.NewTransaction(domain.Transaction{
		UserID:           user.ID,
		Type:             domain.TransactionTypeDeposit,
		Amount:           verified.Data.Amount,
		SenderName:       data.Authorization.SenderName,
		SenderAccount:    data.Authorization.SenderAccountNumber,
		SenderBank:       data.Authorization.SenderBank,
		RecipientName:    user.DisplayName(),
		RecipientAccount: user.AccountNumber,
		RecipientBank:    user.BankName,
		Reference:        reference,
		GatewayReference: &reference,
		Status:           domain.TransactionStatusSuccess,
		Description:      "Wallet funding",
		Metadata:         map[string]string{"channel": verified.Data.Channel},
	})
	if err != nil {
		log.Warn("deposit rejected", zap.Error(err))
		return nil
	}

	credited, err := s.repo.RecordDeposit(ctx, txn)
	if err != nil {
		return fmt.Errorf("record deposit: %w", err)
	}
	if !credited {
		log.Info("deposit already recorded")
		return nil
	}

	s.publish(ctx, domain.EventDepositReceived, domain.DepositReceivedEvent{
		EventID:    newEventID(),
		UserID:     user.ID,
		Reference:  reference,
		Amount:     txn.Amount,
		OccurredAt: s.now().UTC(),
	})
	s.notifyChat(ctx, user.TelegramID, fmt.Sprintf("💰 Deposit received: %s has been added to your wallet.", domain.FormatNaira(txn.Amount)))
	log.Info("deposit credited", zap.Int64("user_id", user.ID), zap.Int64("amount", txn.Amount))
	return nil
}

// settleTransfer moves a pending payment to its final status. The first reference
// that matches a stored transaction wins.
func (s *Service) settleTransfer(ctx context.Context, status domain.TransactionStatus, reason string, references ...string) error {
	var (
		txn *domain.Transaction
		err error
	)
	for _, ref := range references {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		txn, err = s.repo.FindTransactionByReference(ctx, ref)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrTransactionNotFound) {
			return fmt.Errorf("find transaction %s: %w", ref, err)
		}
	}
	if txn == nil {
		s.logger.Warn("transfer event for unknown transaction", zap.Strings("references", references))
		return nil
	}
	return s.applyTransferStatus(ctx, txn, status, reason)
}

func (s *Service) applyTransferStatus(ctx context.Context, txn *domain.Transaction, status domain.TransactionStatus, reason string) error {
	log := s.logger.With(zap.String("reference", txn.Reference))
	if txn.Status.Terminal() || status == domain.TransactionStatusPending {
		return nil
	}

	changed, err := s.repo.UpdateTransactionStatus(ctx, txn.ID, status, reason)
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", txn.ID, err)
	}
	if !changed {
		return nil
	}
	log.Info("transfer settled", zap.String("status", string(status)), zap.String("reason", reason))

	if status != domain.TransactionStatusFailed || txn.Type != domain.TransactionTypePayment {
		return nil
	}
	payer, err := s.repo.FindUserByID(ctx, txn.UserID)
	if err != nil {
		log.Warn("failed-transfer notification skipped", zap.Error(err))
		return nil
	}
	s.notifyChat(ctx, payer.TelegramID, fmt.Sprintf(
		"⚠️ Your payment of %s to %s did not go through. The amount has been returned to your wallet.\nReference: %s",
		domain.FormatNaira(txn.Amount), txn.RecipientName, txn.Reference,
	))
	return nil
}

// TransferStatus maps a gateway transfer status onto the ledger's statuses.
func TransferStatus(gatewayStatus string) domain.TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(gatewayStatus)) {
	case "success":
		return domain.TransactionStatusSuccess
	case "failed", "reversed", "rejected", "abandoned":
		return domain.TransactionStatusFailed
	default:
		return domain.TransactionStatusPending
	}
}

// ReconcilePendingPayments asks the gateway about payments that have been pending
// for a while and settles the ones it has a final answer for. It returns how many
// transactions changed status.
func (s *Service) ReconcilePendingPayments(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPendingTransactions(ctx, s.now().Add(-pendingReconcileAge), pendingReconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending transactions: %w", err)
	}

	settled := 0
	for i := range pending {
		txn := &pending[i]
		resp, err := s.gateway.VerifyTransfer(ctx, txn.Reference)
		if err != nil {
			s.logger.Warn("verify transfer failed", zap.String("reference", txn.Reference), zap.Error(err))
			continue
		}
		if !resp.Status {
			s.logger.Warn("gateway has no answer for transfer", zap.String("reference", txn.Reference), zap.String("message", resp.Message))
			continue
		}
		status := TransferStatus(resp.Data.Status)
		if status == domain.TransactionStatusPending {
			continue
		}
		if err := s.applyTransferStatus(ctx, txn, status, resp.Data.Reason); err != nil {
			s.logger.Error("reconcile settlement failed", zap.String("reference", txn.Reference), zap.Error(err))
			continue
		}
		settled++
	}
	return settled, nil
}

// CheckGatewayBalance logs the gateway's available balance. It is a startup probe
// of the secret key; failure is reported but not fatal.
func (s *Service) CheckGatewayBalance(ctx context.Context) error {
	resp, err := s.gateway.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	if err := resp.Err("get balance"); err != nil {
		return err
	}
	for _, balance := range resp.Data {
		s.logger.Info("gateway balance", zap.String("currency", balance.Currency), zap.String("available", domain.FormatNaira(balance.Balance)))
	}
	return nil
}
