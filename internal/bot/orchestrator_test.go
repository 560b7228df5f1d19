package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/candicepay/bot-service/internal/app"
	"github.com/candicepay/bot-service/internal/domain"
	"github.com/candicepay/bot-service/internal/store"
	"github.com/candicepay/bot-service/pkg/vision"
	"github.com/shopspring/decimal"
)

type messengerStub struct {
	mu       sync.Mutex
	sent     []OutgoingMessage
	answered []string
}

func (m *messengerStub) Send(ctx context.Context, msg OutgoingMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *messengerStub) AnswerCallback(ctx context.Context, callbackID, text string) error {
	m.answered = append(m.answered, callbackID)
	return nil
}

func (m *messengerStub) FileURL(ctx context.Context, fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

func (m *messengerStub) Username() string { return "CandicePayBot" }

func (m *messengerStub) last() OutgoingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return OutgoingMessage{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *messengerStub) sentTo(chatID int64) []OutgoingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OutgoingMessage
	for _, msg := range m.sent {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

type serviceStub struct {
	registrations []app.RegistrationInput
	registerErr   error
	referrer      *domain.User

	payments     []app.PaymentInput
	paymentErr   error
	paymentPanic bool
}

func (s *serviceStub) Register(ctx context.Context, in app.RegistrationInput) (*app.RegistrationResult, error) {
	s.registrations = append(s.registrations, in)
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &app.RegistrationResult{
		User:     &domain.User{ID: 10, TelegramID: in.TelegramID, FirstName: in.FirstName, AffiliateCode: "CANDICE123ABC"},
		Account:  &domain.VirtualAccount{AccountNumber: "9930000001", AccountName: "CANDICEPAY/" + in.FirstName, BankName: "Wema Bank"},
		Referrer: s.referrer,
	}, nil
}

func (s *serviceStub) ProcessPayment(ctx context.Context, in app.PaymentInput) (*app.PaymentResult, error) {
	s.payments = append(s.payments, in)
	if s.paymentPanic {
		panic("boom")
	}
	if s.paymentErr != nil {
		return nil, s.paymentErr
	}
	return &app.PaymentResult{
		Transaction:  &domain.Transaction{Amount: in.AmountKobo, Reference: "CANDICE-1700000000-ABCDEF01", Status: domain.TransactionStatusPending},
		Bank:         domain.Bank{Name: "Access Bank", Code: "044"},
		ResolvedName: "ADA OBI",
		TransferCode: "TRF_1",
	}, nil
}

func (s *serviceStub) Banks(ctx context.Context) ([]domain.Bank, error) {
	return []domain.Bank{{Name: "Access Bank", Slug: "access-bank"}, {Name: "Kuda", Slug: "kuda"}, {Name: "Zenith Bank", Slug: "zenith-bank"}}, nil
}

func (s *serviceStub) PopularBanks(ctx context.Context) ([]domain.Bank, error) {
	return []domain.Bank{{Name: "Access Bank", Slug: "access-bank"}, {Name: "Zenith Bank", Slug: "zenith-bank"}}, nil
}

type directoryStub struct {
	users map[int64]*domain.User
}

func (d *directoryStub) FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	if u, ok := d.users[telegramID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, store.ErrUserNotFound
}

func (d *directoryStub) RecentTransactions(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error) {
	return []domain.Transaction{
		{Type: domain.TransactionTypeDeposit, Amount: 500000, Status: domain.TransactionStatusSuccess},
		{Type: domain.TransactionTypePayment, Amount: 100000, Status: domain.TransactionStatusPending},
	}, nil
}

func (d *directoryStub) AffiliateStats(ctx context.Context, userID int64) (*domain.AffiliateStats, error) {
	return &domain.AffiliateStats{Referrals: 3, TotalEarnings: 15000}, nil
}

func (d *directoryStub) Stats(ctx context.Context, now time.Time) (*domain.Stats, error) {
	return &domain.Stats{Users: 4, Transactions: 9, TotalVolume: 12345600}, nil
}

type extractorStub struct {
	details domain.SlipDetails
	err     error
}

func (e *extractorStub) ExtractSlip(ctx context.Context, imageURL string) (domain.SlipDetails, error) {
	return e.details, e.err
}

type limiterStub struct {
	counts map[string]int
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[subject]++
	return l.counts[subject], 30, nil
}

const (
	payerID = int64(2002)
	adminID = int64(7967638943)
)

type botHarness struct {
	orchestrator *Orchestrator
	messenger    *messengerStub
	sessions     *app.MemorySessionStore
	service      *serviceStub
	directory    *directoryStub
	extractor    *extractorStub
}

func newBotHarness(users ...domain.User) *botHarness {
	directory := &directoryStub{users: make(map[int64]*domain.User)}
	for i := range users {
		u := users[i]
		directory.users[u.TelegramID] = &u
	}
	h := &botHarness{
		messenger: &messengerStub{},
		sessions:  app.NewMemorySessionStore(30 * time.Minute),
		service:   &serviceStub{},
		directory: directory,
		extractor: &extractorStub{},
	}
	h.orchestrator = NewOrchestrator(h.messenger, h.sessions, h.service, h.directory, h.extractor, nil,
		Config{AdminTelegramIDs: []int64{adminID}, DashboardURL: "https://pay.example/"}, nil)
	return h
}

func (h *botHarness) text(id int64, text string) {
	h.orchestrator.HandleUpdate(context.Background(), Update{TelegramID: id, ChatID: id, Text: text})
}

func (h *botHarness) command(id int64, command, args string) {
	h.orchestrator.HandleUpdate(context.Background(), Update{TelegramID: id, ChatID: id, Command: command, Args: args})
}

func (h *botHarness) callback(id int64, data string) {
	h.orchestrator.HandleUpdate(context.Background(), Update{TelegramID: id, ChatID: id, CallbackID: "cb-" + data, CallbackData: data, MessageID: 77})
}

func (h *botHarness) step(t *testing.T, id int64) domain.Step {
	t.Helper()
	session, err := h.sessions.Get(context.Background(), id)
	if errors.Is(err, app.ErrSessionNotFound) {
		return ""
	}
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return session.Step
}

func payer(balance int64) domain.User {
	return domain.User{ID: 2, TelegramID: payerID, FirstName: "Payer", AccountNumber: "9930000002", BankName: "Wema Bank", WalletBalance: balance, Status: domain.UserStatusActive}
}

func TestRegistrationConversation(t *testing.T) {
	h := newBotHarness()
	h.service.referrer = &domain.User{ID: 1, TelegramID: 1001, AffiliateCode: "CANDICEAAAAAA"}
	const id = int64(5005)

	h.command(id, "start", "CANDICEAAAAAA")
	if got := h.step(t, id); got != domain.StepAwaitingRegistration {
		t.Fatalf("expected awaiting_registration, got %q", got)
	}
	if last := h.messenger.last(); !strings.Contains(last.Text, "Welcome to CandicePay") || len(last.Keyboard) == 0 {
		t.Fatalf("expected guest welcome with keyboard, got %+v", last)
	}

	h.text(id, buttonRegister)
	if got := h.step(t, id); got != domain.StepAwaitingEmail {
		t.Fatalf("expected awaiting_email, got %q", got)
	}

	h.text(id, "not-an-email")
	if got := h.step(t, id); got != domain.StepAwaitingEmail {
		t.Fatalf("expected invalid email to keep the step, got %q", got)
	}
	if last := h.messenger.last(); last.Text != "Please enter a valid email address:" {
		t.Fatalf("expected email re-prompt, got %q", last.Text)
	}

	h.text(id, "ada@example.com")
	h.text(id, "Ada")
	if got := h.step(t, id); got != domain.StepAwaitingPhone {
		t.Fatalf("expected awaiting_phone, got %q", got)
	}

	h.text(id, "0803")
	if got := h.step(t, id); got != domain.StepAwaitingPhone {
		t.Fatalf("expected short phone to keep the step, got %q", got)
	}

	h.text(id, "0803 123 4567")
	if len(h.service.registrations) != 1 {
		t.Fatalf("expected one registration call, got %d", len(h.service.registrations))
	}
	in := h.service.registrations[0]
	if in.Email != "ada@example.com" || in.FirstName != "Ada" || in.ReferralCode != "CANDICEAAAAAA" || in.TelegramID != id {
		t.Fatalf("unexpected registration input %+v", in)
	}
	if got := h.step(t, id); got != "" {
		t.Fatalf("expected session to end after registration, got %q", got)
	}

	mine := h.messenger.sentTo(id)
	if !strings.Contains(mine[len(mine)-1].Text, "Registration Successful") {
		t.Fatalf("expected success message, got %q", mine[len(mine)-1].Text)
	}
	notices := h.messenger.sentTo(1001)
	if len(notices) != 1 || !strings.Contains(notices[0].Text, "Ada just joined") {
		t.Fatalf("expected referrer notification, got %+v", notices)
	}
}

func TestRegistrationConversation_UpstreamFailureEndsSession(t *testing.T) {
	h := newBotHarness()
	h.service.registerErr = &app.RegistrationError{Kind: app.KindVirtualAccountFailed}
	const id = int64(5006)

	h.command(id, "register", "")
	h.text(id, "ada@example.com")
	h.text(id, "Ada")
	h.text(id, "08031234567")

	if got := h.step(t, id); got != "" {
		t.Fatalf("expected session to be deleted, got %q", got)
	}
	if last := h.messenger.last(); last.Text != "❌ Registration failed. Please try again with /register" {
		t.Fatalf("unexpected failure text %q", last.Text)
	}
}

func TestStart_RegisteredUserGetsWelcomeBack(t *testing.T) {
	h := newBotHarness(payer(150000))
	h.command(payerID, "start", "")

	last := h.messenger.last()
	if !strings.Contains(last.Text, "Welcome back, Payer") || !strings.Contains(last.Text, "₦1,500.00") {
		t.Fatalf("unexpected welcome back text %q", last.Text)
	}
	if h.step(t, payerID) != "" {
		t.Fatal("expected no session for a registered user")
	}
}

func TestManualPaymentConversation(t *testing.T) {
	h := newBotHarness(payer(2000000))

	h.text(payerID, buttonMakePayment)
	if got := h.step(t, payerID); got != domain.StepAwaitingPaymentMethod {
		t.Fatalf("expected awaiting_payment_method, got %q", got)
	}
	if last := h.messenger.last(); len(last.Inline) != 1 || last.Inline[0][1].Data != callbackManual {
		t.Fatalf("expected payment method buttons, got %+v", last.Inline)
	}

	h.callback(payerID, callbackManual)
	if got := h.step(t, payerID); got != domain.StepAwaitingManualDetails {
		t.Fatalf("expected awaiting_manual_details, got %q", got)
	}
	if last := h.messenger.last(); last.EditMessageID != 77 {
		t.Fatalf("expected the method message to be edited, got %+v", last)
	}

	h.text(payerID, "12345, Access")
	if got := h.step(t, payerID); got != domain.StepAwaitingManualDetails {
		t.Fatalf("expected malformed details to keep the step, got %q", got)
	}

	h.text(payerID, "0123456789, Access Bank, Ada Obi")
	if got := h.step(t, payerID); got != domain.StepAwaitingPaymentAmount {
		t.Fatalf("expected awaiting_payment_amount, got %q", got)
	}

	h.text(payerID, "50,000")
	if got := h.step(t, payerID); got != domain.StepAwaitingPaymentAmount {
		t.Fatalf("expected an amount above balance to keep the step, got %q", got)
	}

	h.text(payerID, "₦5,000.50")
	if got := h.step(t, payerID); got != domain.StepAwaitingPaymentConfirmation {
		t.Fatalf("expected awaiting_payment_confirmation, got %q", got)
	}
	last := h.messenger.last()
	if len(last.Inline) != 1 || last.Inline[0][0].Data != callbackConfirm {
		t.Fatalf("expected confirm buttons, got %+v", last.Inline)
	}
	if strings.Contains(last.Inline[0][0].Data, "5000") {
		t.Fatal("amount must not travel in callback data")
	}

	h.callback(payerID, callbackConfirm)
	if len(h.service.payments) != 1 {
		t.Fatalf("expected one payment, got %d", len(h.service.payments))
	}
	p := h.service.payments[0]
	if p.UserID != 2 || p.AmountKobo != 500050 || p.AccountNumber != "0123456789" || p.BankName != "Access Bank" || p.RecipientName != "Ada Obi" {
		t.Fatalf("unexpected payment input %+v", p)
	}
	if !strings.Contains(h.messenger.last().Text, "Payment Initiated") {
		t.Fatalf("expected initiated text, got %q", h.messenger.last().Text)
	}
	if got := h.step(t, payerID); got != "" {
		t.Fatalf("expected session to end, got %q", got)
	}

	h.callback(payerID, callbackConfirm)
	if len(h.service.payments) != 1 {
		t.Fatal("expected a repeated confirm to be ignored")
	}
	if !strings.Contains(h.messenger.last().Text, "Payment details not found") {
		t.Fatalf("unexpected repeated confirm reply %q", h.messenger.last().Text)
	}
}

func TestScanPaymentConversation(t *testing.T) {
	h := newBotHarness(payer(2000000))
	h.extractor.details = domain.SlipDetails{AccountNumber: "0123456789", AccountName: "Ada Obi", BankName: "Zenith", Amount: decimal.RequireFromString("2500")}

	h.command(payerID, "pay", "")
	h.callback(payerID, callbackScan)
	if got := h.step(t, payerID); got != domain.StepAwaitingPaymentScan {
		t.Fatalf("expected awaiting_payment_scan, got %q", got)
	}

	h.orchestrator.HandleUpdate(context.Background(), Update{TelegramID: payerID, ChatID: payerID, PhotoFileID: "photo-1"})
	if got := h.step(t, payerID); got != domain.StepAwaitingPaymentConfirmation {
		t.Fatalf("expected awaiting_payment_confirmation, got %q", got)
	}
	session, _ := h.sessions.Get(context.Background(), payerID)
	if session.Payment.AmountKobo != 250000 || session.Payment.BankName != "Zenith" {
		t.Fatalf("unexpected draft %+v", session.Payment)
	}
}

func TestScanPaymentConversation_ExtractionFailureKeepsSession(t *testing.T) {
	h := newBotHarness(payer(2000000))
	h.extractor.err = vision.ErrExtractionFailed

	h.command(payerID, "pay", "")
	h.callback(payerID, callbackScan)
	h.orchestrator.HandleUpdate(context.Background(), Update{TelegramID: payerID, ChatID: payerID, PhotoFileID: "photo-1"})

	if got := h.step(t, payerID); got != domain.StepAwaitingPaymentScan {
		t.Fatalf("expected to stay at awaiting_payment_scan, got %q", got)
	}
	if h.messenger.last().Text != extractionFailedText {
		t.Fatalf("unexpected reply %q", h.messenger.last().Text)
	}
}

func TestScanPaymentConversation_TransportFailureEndsSession(t *testing.T) {
	h := newBotHarness(payer(2000000))
	h.extractor.err = errors.New("vision request: 502 bad gateway")

	h.command(payerID, "pay", "")
	h.callback(payerID, callbackScan)
	h.orchestrator.HandleUpdate(context.Background(), Update{TelegramID: payerID, ChatID: payerID, PhotoFileID: "photo-1"})

	if got := h.step(t, payerID); got != "" {
		t.Fatalf("expected session to end, got %q", got)
	}
	if text := h.messenger.last().Text; text == extractionFailedText || !strings.Contains(text, "Error processing image") {
		t.Fatalf("unexpected reply %q", text)
	}
}

func TestHandleUpdate_RecoversFromPanic(t *testing.T) {
	h := newBotHarness(payer(2000000))
	h.service.paymentPanic = true

	h.command(payerID, "pay", "")
	h.callback(payerID, callbackManual)
	h.text(payerID, "0123456789, Access Bank, Ada Obi, 1000")
	if got := h.step(t, payerID); got != domain.StepAwaitingPaymentConfirmation {
		t.Fatalf("expected awaiting_payment_confirmation, got %q", got)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("expected HandleUpdate to recover, got panic %v", r)
			}
		}()
		h.callback(payerID, callbackConfirm)
	}()

	if h.messenger.last().Text != genericFailureText {
		t.Fatalf("expected generic failure reply, got %q", h.messenger.last().Text)
	}
	if got := h.step(t, payerID); got != "" {
		t.Fatalf("expected session to end, got %q", got)
	}

	h.service.paymentPanic = false
	h.command(payerID, "balance", "")
	if !strings.Contains(h.messenger.last().Text, "Balance") {
		t.Fatalf("expected the bot to keep serving, got %q", h.messenger.last().Text)
	}
}

func TestScanPaymentConversation_NoAmountAsksForOne(t *testing.T) {
	h := newBotHarness(payer(2000000))
	h.extractor.details = domain.SlipDetails{AccountNumber: "0123456789", AccountName: "Ada Obi", BankName: "Zenith"}

	h.command(payerID, "pay", "")
	h.callback(payerID, callbackScan)
	h.orchestrator.HandleUpdate(context.Background(), Update{TelegramID: payerID, ChatID: payerID, PhotoFileID: "photo-1"})

	if got := h.step(t, payerID); got != domain.StepAwaitingPaymentAmount {
		t.Fatalf("expected awaiting_payment_amount, got %q", got)
	}
	if !strings.Contains(h.messenger.last().Text, "Please enter the amount to send") {
		t.Fatalf("unexpected reply %q", h.messenger.last().Text)
	}
}

func TestPaymentFailureIsReported(t *testing.T) {
	h := newBotHarness(payer(2000000))
	h.service.paymentErr = &app.PaymentError{Kind: app.KindBankNotFound, Message: "Moniepoint"}

	h.command(payerID, "pay", "")
	h.callback(payerID, callbackManual)
	h.text(payerID, "0123456789, Moniepoint, Ada Obi, 1000")
	h.callback(payerID, callbackConfirm)

	if !strings.Contains(h.messenger.last().Text, "Bank not found") {
		t.Fatalf("expected bank-not-found text, got %q", h.messenger.last().Text)
	}
	if got := h.step(t, payerID); got != "" {
		t.Fatalf("expected session to end, got %q", got)
	}
}

func TestPay_RequiresRegistrationAndBalance(t *testing.T) {
	h := newBotHarness(payer(0))

	h.command(9999, "pay", "")
	if !strings.Contains(h.messenger.last().Text, "Please register first") {
		t.Fatalf("unexpected reply %q", h.messenger.last().Text)
	}

	h.command(payerID, "pay", "")
	if !strings.Contains(h.messenger.last().Text, "Insufficient balance") {
		t.Fatalf("unexpected reply %q", h.messenger.last().Text)
	}
	if h.step(t, payerID) != "" {
		t.Fatal("expected no payment session without balance")
	}
}

func TestCancelEndsSession(t *testing.T) {
	h := newBotHarness(payer(2000000))
	h.command(payerID, "pay", "")
	h.command(payerID, "cancel", "")
	if h.step(t, payerID) != "" {
		t.Fatal("expected /cancel to delete the session")
	}

	h.command(payerID, "pay", "")
	h.callback(payerID, callbackCancel)
	if h.step(t, payerID) != "" {
		t.Fatal("expected cancel_payment to delete the session")
	}
	if h.messenger.last().Text != "❌ Payment cancelled." {
		t.Fatalf("unexpected reply %q", h.messenger.last().Text)
	}
}

func TestInformationalCommands(t *testing.T) {
	user := payer(750000)
	user.AffiliateCode = "CANDICE0B0B0B"
	user.TotalEarnings = 15000
	h := newBotHarness(user)

	h.text(payerID, buttonCheckBalance)
	if text := h.messenger.last().Text; !strings.Contains(text, "₦7,500.00") || !strings.Contains(text, "+₦5,000.00 - success") {
		t.Fatalf("unexpected balance text %q", text)
	}

	h.command(payerID, "affiliate", "")
	if text := h.messenger.last().Text; !strings.Contains(text, "https://t.me/CandicePayBot?start=CANDICE0B0B0B") || !strings.Contains(text, "*Total Referrals:* 3") {
		t.Fatalf("unexpected affiliate text %q", text)
	}

	h.command(payerID, "banks", "")
	if text := h.messenger.last().Text; !strings.Contains(text, "• Zenith Bank") || !strings.Contains(text, "*Total Supported Banks:* 3") {
		t.Fatalf("unexpected banks text %q", text)
	}

	h.command(9999, "balance", "")
	if h.messenger.last().Text != registerFirstText {
		t.Fatalf("expected register prompt, got %q", h.messenger.last().Text)
	}
}

func TestAdminCommand(t *testing.T) {
	h := newBotHarness()

	h.command(payerID, "admin", "")
	if h.messenger.last().Text != "❌ Access denied." {
		t.Fatalf("expected access denied, got %q", h.messenger.last().Text)
	}

	h.command(adminID, "admin", "")
	last := h.messenger.last()
	if !strings.Contains(last.Text, "*Users:* 4") || !strings.Contains(last.Text, "₦123,456.00") {
		t.Fatalf("unexpected admin text %q", last.Text)
	}
	if len(last.Inline) != 1 || last.Inline[0][0].URL != "https://pay.example/admin" {
		t.Fatalf("expected dashboard URL button, got %+v", last.Inline)
	}
}

func TestRateLimit(t *testing.T) {
	h := newBotHarness(payer(100))
	h.orchestrator.limiter = &limiterStub{}
	h.orchestrator.config.RateLimitPerMinute = 2

	for i := 0; i < 4; i++ {
		h.command(payerID, "balance", "")
	}

	msgs := h.messenger.sentTo(payerID)
	if len(msgs) != 3 {
		t.Fatalf("expected two replies and one throttle notice, got %d", len(msgs))
	}
	if !strings.Contains(msgs[2].Text, "Too many requests") || !strings.Contains(msgs[2].Text, "30 seconds") {
		t.Fatalf("unexpected throttle notice %q", msgs[2].Text)
	}
}
