package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/candicepay/bot-service/internal/domain"
	"github.com/candicepay/bot-service/internal/store"
	"github.com/candicepay/bot-service/pkg/mailer"
	"github.com/candicepay/bot-service/pkg/paystack"
	"go.uber.org/zap"
)

// memRepo is an in-memory Repository covering the methods the service calls.
type memRepo struct {
	store.Repository

	mu           sync.Mutex
	users        map[int64]*domain.User
	accounts     []domain.VirtualAccount
	referrals    []domain.Referral
	transactions []*domain.Transaction
	banks        []domain.Bank
	nextUserID   int64
	nextTxnID    int64

	createErr           error
	affiliateCollisions int
	completeErr         error
	upserts     int
}

func newMemRepo(users ...domain.User) *memRepo {
	repo := &memRepo{users: make(map[int64]*domain.User)}
	for i := range users {
		u := users[i]
		if u.ID == 0 {
			repo.nextUserID++
			u.ID = repo.nextUserID
		} else if u.ID > repo.nextUserID {
			repo.nextUserID = u.ID
		}
		repo.users[u.ID] = &u
	}
	return repo
}

func (r *memRepo) findUser(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (r *memRepo) FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return r.findUser(func(u *domain.User) bool { return u.TelegramID == telegramID })
}

func (r *memRepo) FindUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	return r.findUser(func(u *domain.User) bool { return u.ID == userID })
}

func (r *memRepo) FindUserByAffiliateCode(ctx context.Context, code string) (*domain.User, error) {
	return r.findUser(func(u *domain.User) bool { return u.AffiliateCode == code })
}

func (r *memRepo) FindUserByCustomerCode(ctx context.Context, customerCode string) (*domain.User, error) {
	return r.findUser(func(u *domain.User) bool { return u.CustomerCode == customerCode })
}

func (r *memRepo) CreateUserWithAccount(ctx context.Context, user *domain.User, account *domain.VirtualAccount, referral *domain.Referral) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.affiliateCollisions > 0 {
		r.affiliateCollisions--
		return fmt.Errorf("insert user: %w", store.ErrAffiliateCodeTaken)
	}
	for _, u := range r.users {
		if u.TelegramID == user.TelegramID || u.Email == user.Email {
			return fmt.Errorf("create user: %w", store.ErrDuplicate)
		}
	}
	r.nextUserID++
	user.ID = r.nextUserID
	cp := *user
	r.users[user.ID] = &cp

	account.UserID = user.ID
	r.accounts = append(r.accounts, *account)
	if referral != nil {
		referral.ReferredID = user.ID
		r.referrals = append(r.referrals, *referral)
	}
	return nil
}

func (r *memRepo) ReserveFunds(ctx context.Context, userID int64, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	if u.WalletBalance < amount {
		return store.ErrInsufficientFunds
	}
	u.WalletBalance -= amount
	return nil
}

func (r *memRepo) ReleaseFunds(ctx context.Context, userID int64, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	u.WalletBalance += amount
	return nil
}

func (r *memRepo) CompletePayment(ctx context.Context, txn *domain.Transaction) error {
	if r.completeErr != nil {
		return r.completeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextTxnID++
	txn.ID = r.nextTxnID
	txn.CreatedAt = time.Now()
	cp := *txn
	r.transactions = append(r.transactions, &cp)
	if txn.AffiliateUserID != nil && txn.AffiliateBonus > 0 {
		referrer := r.users[*txn.AffiliateUserID]
		referrer.WalletBalance += txn.AffiliateBonus
		referrer.TotalEarnings += txn.AffiliateBonus
		for i := range r.referrals {
			if r.referrals[i].ReferrerID == referrer.ID && r.referrals[i].ReferredID == txn.UserID {
				r.referrals[i].Earnings += txn.AffiliateBonus
			}
		}
	}
	return nil
}

func (r *memRepo) RecordDeposit(ctx context.Context, txn *domain.Transaction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.transactions {
		if existing.Reference == txn.Reference {
			return false, nil
		}
	}
	u, ok := r.users[txn.UserID]
	if !ok {
		return false, store.ErrUserNotFound
	}
	r.nextTxnID++
	txn.ID = r.nextTxnID
	cp := *txn
	r.transactions = append(r.transactions, &cp)
	u.WalletBalance += txn.NetAmount
	return true, nil
}

func (r *memRepo) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txn := range r.transactions {
		if txn.Reference == reference || (txn.GatewayReference != nil && *txn.GatewayReference == reference) {
			cp := *txn
			return &cp, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (r *memRepo) UpdateTransactionStatus(ctx context.Context, transactionID int64, status domain.TransactionStatus, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txn := range r.transactions {
		if txn.ID != transactionID {
			continue
		}
		if txn.Status != domain.TransactionStatusPending {
			return false, nil
		}
		txn.Status = status
		if status == domain.TransactionStatusFailed && txn.Type == domain.TransactionTypePayment {
			r.users[txn.UserID].WalletBalance += txn.Amount
			if txn.AffiliateUserID != nil && txn.AffiliateBonus > 0 {
				referrer := r.users[*txn.AffiliateUserID]
				clawback := txn.AffiliateBonus
				if referrer.WalletBalance < clawback {
					clawback = referrer.WalletBalance
				}
				referrer.WalletBalance -= clawback
				referrer.TotalEarnings -= txn.AffiliateBonus
			}
		}
		return true, nil
	}
	return false, store.ErrTransactionNotFound
}

func (r *memRepo) ListPendingTransactions(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []domain.Transaction
	for _, txn := range r.transactions {
		if txn.Status == domain.TransactionStatusPending && txn.Type == domain.TransactionTypePayment && txn.CreatedAt.Before(olderThan) {
			pending = append(pending, *txn)
		}
	}
	return pending, nil
}

func (r *memRepo) UpsertBanks(ctx context.Context, banks []domain.Bank) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	r.banks = append([]domain.Bank(nil), banks...)
	return nil
}

func (r *memRepo) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	banks := append([]domain.Bank(nil), r.banks...)
	// Same ordering as the banks query.
	sort.SliceStable(banks, func(i, j int) bool {
		if banks[i].Position != banks[j].Position {
			return banks[i].Position < banks[j].Position
		}
		return banks[i].Name < banks[j].Name
	})
	return banks, nil
}

func (r *memRepo) balance(userID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[userID].WalletBalance
}

func (r *memRepo) user(userID int64) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.users[userID]
}

func (r *memRepo) transactionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transactions)
}

// fakeGateway answers like Paystack does; each *Fail flag flips one call to status=false.
type fakeGateway struct {
	mu sync.Mutex

	banks        []paystack.Bank
	resolvedName string

	customerFail  bool
	accountFail   bool
	resolveFail   bool
	recipientFail bool
	transferFail  bool
	transferErr   error
	verifyErr     error

	charge    paystack.Transaction
	transfers map[string]paystack.Transfer

	listBankCalls int
	transferCalls []paystack.TransferRequest
}

var errGatewayDown = errors.New("connection refused")

func okResponse[T any](data T) *paystack.Response[T] {
	return &paystack.Response[T]{Status: true, Message: "ok", Data: data}
}

func failResponse[T any](message string) *paystack.Response[T] {
	return &paystack.Response[T]{Status: false, Message: message}
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, req paystack.CreateCustomerRequest) (*paystack.Response[paystack.Customer], error) {
	if g.customerFail {
		return failResponse[paystack.Customer]("Invalid email"), nil
	}
	return okResponse(paystack.Customer{ID: 1, CustomerCode: "CUS_" + req.FirstName, Email: req.Email}), nil
}

func (g *fakeGateway) CreateDedicatedAccount(ctx context.Context, customerCode, preferredBank string) (*paystack.Response[paystack.DedicatedAccount], error) {
	if g.accountFail {
		return failResponse[paystack.DedicatedAccount]("Dedicated NUBAN not available"), nil
	}
	return okResponse(paystack.DedicatedAccount{
		AccountName:   "CANDICEPAY/ADA",
		AccountNumber: "9930000001",
		Currency:      "NGN",
		Assigned:      true,
		Bank:          paystack.AccountBank{Name: "Wema Bank", Slug: preferredBank},
	}), nil
}

func (g *fakeGateway) ListBanks(ctx context.Context, country string) (*paystack.Response[[]paystack.Bank], error) {
	g.mu.Lock()
	g.listBankCalls++
	g.mu.Unlock()
	return okResponse(g.banks), nil
}

func (g *fakeGateway) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*paystack.Response[paystack.ResolvedAccount], error) {
	if g.resolveFail {
		return failResponse[paystack.ResolvedAccount]("Could not resolve account name"), nil
	}
	return okResponse(paystack.ResolvedAccount{AccountNumber: accountNumber, AccountName: g.resolvedName}), nil
}

func (g *fakeGateway) CreateTransferRecipient(ctx context.Context, name, accountNumber, bankCode string) (*paystack.Response[paystack.TransferRecipient], error) {
	if g.recipientFail {
		return failResponse[paystack.TransferRecipient]("Invalid bank code"), nil
	}
	return okResponse(paystack.TransferRecipient{RecipientCode: "RCP_" + accountNumber, Name: name}), nil
}

func (g *fakeGateway) InitiateTransfer(ctx context.Context, recipientCode string, amountKobo int64, reason, reference string) (*paystack.Response[paystack.Transfer], error) {
	g.mu.Lock()
	g.transferCalls = append(g.transferCalls, paystack.TransferRequest{Source: "balance", Amount: amountKobo, Recipient: recipientCode, Reason: reason, Reference: reference})
	g.mu.Unlock()
	if g.transferErr != nil {
		return nil, g.transferErr
	}
	if g.transferFail {
		return failResponse[paystack.Transfer]("Your balance is not enough to fulfil this request"), nil
	}
	return okResponse(paystack.Transfer{Reference: reference, TransferCode: "TRF_" + reference, Amount: amountKobo, Status: "pending"}), nil
}

func (g *fakeGateway) VerifyTransaction(ctx context.Context, reference string) (*paystack.Response[paystack.Transaction], error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if g.charge.Reference != reference {
		return failResponse[paystack.Transaction]("Transaction reference not found"), nil
	}
	return okResponse(g.charge), nil
}

func (g *fakeGateway) VerifyTransfer(ctx context.Context, reference string) (*paystack.Response[paystack.Transfer], error) {
	transfer, found := g.transfers[reference]
	if !found {
		return failResponse[paystack.Transfer]("Transfer not found"), nil
	}
	return okResponse(transfer), nil
}

func (g *fakeGateway) GetBalance(ctx context.Context) (*paystack.Response[[]paystack.Balance], error) {
	return okResponse([]paystack.Balance{{Currency: "NGN", Balance: 5000000}}), nil
}

type recordedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type publisherStub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *publisherStub) Close() {}

func (p *publisherStub) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.routingKey)
	}
	return keys
}

type notifierStub struct {
	receipts []mailer.Receipt
	welcomes []mailer.Welcome
	err      error
}

func (n *notifierStub) SendTransactionReceipt(ctx context.Context, to string, receipt mailer.Receipt) error {
	n.receipts = append(n.receipts, receipt)
	return n.err
}

func (n *notifierStub) SendWelcome(ctx context.Context, to string, welcome mailer.Welcome) error {
	n.welcomes = append(n.welcomes, welcome)
	return n.err
}

type chatStub struct {
	mu       sync.Mutex
	messages map[int64][]string
}

func (c *chatStub) NotifyUser(ctx context.Context, telegramID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.messages == nil {
		c.messages = make(map[int64][]string)
	}
	c.messages[telegramID] = append(c.messages[telegramID], text)
	return nil
}

func testBanks() []domain.Bank {
	return []domain.Bank{
		{Name: "Access Bank", Code: "044", Slug: "access-bank", Position: 0},
		{Name: "First Bank of Nigeria", Code: "011", Slug: "first-bank", Position: 1},
		{Name: "Guaranty Trust Bank", Code: "058", Slug: "gtbank", Position: 2},
		{Name: "Zenith Bank", Code: "057", Slug: "zenith-bank", Position: 3},
	}
}

type testHarness struct {
	service   *Service
	repo      *memRepo
	gateway   *fakeGateway
	publisher *publisherStub
	notifier  *notifierStub
	chat      *chatStub
}

func newTestHarness(users ...domain.User) *testHarness {
	repo := newMemRepo(users...)
	repo.banks = testBanks()
	gateway := &fakeGateway{resolvedName: "ADA OBI", transfers: map[string]paystack.Transfer{}}
	publisher := &publisherStub{}
	notifier := &notifierStub{}
	chat := &chatStub{}

	service := NewService(repo, gateway, notifier, publisher, zap.NewNop(), "wema-bank")
	service.SetChatNotifier(chat)
	return &testHarness{service: service, repo: repo, gateway: gateway, publisher: publisher, notifier: notifier, chat: chat}
}
