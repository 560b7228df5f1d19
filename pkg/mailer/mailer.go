/**
 * @description
 * Transactional email: payment receipts and welcome messages, rendered from
 * embedded HTML templates and delivered over implicit-TLS SMTP.
 *
 * @dependencies
 * - github.com/wneessen/go-mail: message building and SMTP delivery.
 * - html/template: escaping of user-supplied fields in the body.
 */

package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/candicepay/bot-service/internal/domain"
	"github.com/wneessen/go-mail"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Receipt describes one payment for the receipt email.
type Receipt struct {
	FirstName        string
	Reference        string
	RecipientName    string
	RecipientAccount string
	RecipientBank    string
	AmountKobo       int64
	Status           domain.TransactionStatus
	CreatedAt        time.Time
}

// Welcome carries the new user's account details.
type Welcome struct {
	FirstName     string
	AccountNumber string
	AccountName   string
	BankName      string
	AffiliateCode string
}

// Config holds SMTP settings.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// SMTPMailer sends mail through an authenticated relay.
type SMTPMailer struct {
	cfg Config
}

// NewSMTPMailer validates cfg and returns a mailer.
func NewSMTPMailer(cfg Config) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("smtp host and from address are required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 465
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FromName == "" {
		cfg.FromName = "CandicePay"
	}
	return &SMTPMailer{cfg: cfg}, nil
}

// SendTransactionReceipt emails a receipt for a payment.
func (m *SMTPMailer) SendTransactionReceipt(ctx context.Context, to string, receipt Receipt) error {
	subject, body, err := RenderReceipt(receipt)
	if err != nil {
		return err
	}
	return m.send(ctx, to, subject, body)
}

// SendWelcome emails a newly registered user their account details.
func (m *SMTPMailer) SendWelcome(ctx context.Context, to string, welcome Welcome) error {
	subject, body, err := RenderWelcome(welcome)
	if err != nil {
		return err
	}
	return m.send(ctx, to, subject, body)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.FromEmail); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithSSL(),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// RenderReceipt returns the subject and HTML body of a receipt.
func RenderReceipt(receipt Receipt) (string, string, error) {
	statusTitle := titleCase(string(receipt.Status))
	data := map[string]string{
		"FirstName":        receipt.FirstName,
		"Reference":        receipt.Reference,
		"RecipientName":    receipt.RecipientName,
		"RecipientAccount": receipt.RecipientAccount,
		"RecipientBank":    receipt.RecipientBank,
		"Amount":           domain.FormatNaira(receipt.AmountKobo),
		"Status":           string(receipt.Status),
		"StatusTitle":      statusTitle,
		"Date":             receipt.CreatedAt.Format("2006-01-02 15:04"),
	}
	body, err := render("receipt.html", data)
	if err != nil {
		return "", "", err
	}
	return "CandicePay - Transaction " + statusTitle, body, nil
}

// RenderWelcome returns the subject and HTML body of the welcome email.
func RenderWelcome(welcome Welcome) (string, string, error) {
	body, err := render("welcome.html", welcome)
	if err != nil {
		return "", "", err
	}
	return "Welcome to CandicePay!", body, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

// Disabled drops every message. It is used when SMTP is not configured.
type Disabled struct{}

func (Disabled) SendTransactionReceipt(context.Context, string, Receipt) error { return nil }

func (Disabled) SendWelcome(context.Context, string, Welcome) error { return nil }
