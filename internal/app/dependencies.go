package app

import (
	"context"

	"github.com/candicepay/bot-service/pkg/mailer"
	"github.com/candicepay/bot-service/pkg/paystack"
)

// Gateway is the subset of the Paystack client the service calls.
type Gateway interface {
	CreateCustomer(ctx context.Context, req paystack.CreateCustomerRequest) (*paystack.Response[paystack.Customer], error)
	CreateDedicatedAccount(ctx context.Context, customerCode, preferredBank string) (*paystack.Response[paystack.DedicatedAccount], error)
	ListBanks(ctx context.Context, country string) (*paystack.Response[[]paystack.Bank], error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*paystack.Response[paystack.ResolvedAccount], error)
	CreateTransferRecipient(ctx context.Context, name, accountNumber, bankCode string) (*paystack.Response[paystack.TransferRecipient], error)
	InitiateTransfer(ctx context.Context, recipientCode string, amountKobo int64, reason, reference string) (*paystack.Response[paystack.Transfer], error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Response[paystack.Transaction], error)
	VerifyTransfer(ctx context.Context, reference string) (*paystack.Response[paystack.Transfer], error)
	GetBalance(ctx context.Context) (*paystack.Response[[]paystack.Balance], error)
}

// Notifier sends transactional email.
type Notifier interface {
	SendTransactionReceipt(ctx context.Context, to string, receipt mailer.Receipt) error
	SendWelcome(ctx context.Context, to string, welcome mailer.Welcome) error
}

// ChatNotifier pushes an unsolicited message to a user's chat.
type ChatNotifier interface {
	NotifyUser(ctx context.Context, telegramID int64, text string) error
}
