/**
 * @description
 * Client for the Paystack REST API. Every call attaches the secret key as a
 * bearer token and returns the parsed envelope as-is; interpreting `status`
 * stays with the caller. Nothing is retried here.
 *
 * @dependencies
 * - net/http, encoding/json: transport and payload encoding.
 */

package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.paystack.co"

// Client is a client for the Paystack API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Paystack API client with the given request timeout.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateCustomer registers a customer that dedicated accounts can be issued to.
func (c *Client) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Response[Customer], error) {
	var out Response[Customer]
	if err := c.do(ctx, http.MethodPost, "/customer", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDedicatedAccount issues a virtual account for customerCode at preferredBank.
func (c *Client) CreateDedicatedAccount(ctx context.Context, customerCode, preferredBank string) (*Response[DedicatedAccount], error) {
	body := map[string]string{
		"customer":       customerCode,
		"preferred_bank": preferredBank,
	}
	var out Response[DedicatedAccount]
	if err := c.do(ctx, http.MethodPost, "/dedicated_account", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBanks lists the banks Paystack supports in country.
func (c *Client) ListBanks(ctx context.Context, country string) (*Response[[]Bank], error) {
	query := url.Values{}
	query.Set("country", country)
	query.Set("perPage", "100")
	var out Response[[]Bank]
	if err := c.do(ctx, http.MethodGet, "/bank?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveAccount looks up the registered name of accountNumber at bankCode.
func (c *Client) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*Response[ResolvedAccount], error) {
	query := url.Values{}
	query.Set("account_number", accountNumber)
	query.Set("bank_code", bankCode)
	var out Response[ResolvedAccount]
	if err := c.do(ctx, http.MethodGet, "/bank/resolve?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTransferRecipient registers a NUBAN recipient in NGN.
func (c *Client) CreateTransferRecipient(ctx context.Context, name, accountNumber, bankCode string) (*Response[TransferRecipient], error) {
	req := TransferRecipientRequest{
		Type:          "nuban",
		Name:          name,
		AccountNumber: accountNumber,
		BankCode:      bankCode,
		Currency:      "NGN",
	}
	var out Response[TransferRecipient]
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiateTransfer sends amountKobo from the balance to recipientCode. The reference
// is forwarded so Paystack rejects a duplicate submission of the same transfer.
func (c *Client) InitiateTransfer(ctx context.Context, recipientCode string, amountKobo int64, reason, reference string) (*Response[Transfer], error) {
	req := TransferRequest{
		Source:    "balance",
		Amount:    amountKobo,
		Recipient: recipientCode,
		Reason:    reason,
		Reference: reference,
	}
	var out Response[Transfer]
	if err := c.do(ctx, http.MethodPost, "/transfer", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction fetches the authoritative state of an inbound charge.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Response[Transaction], error) {
	var out Response[Transaction]
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransfer fetches the authoritative state of an outbound transfer.
func (c *Client) VerifyTransfer(ctx context.Context, reference string) (*Response[Transfer], error) {
	var out Response[Transfer]
	if err := c.do(ctx, http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalance returns the integration balance per currency.
func (c *Client) GetBalance(ctx context.Context) (*Response[[]Balance], error) {
	var out Response[[]Balance]
	if err := c.do(ctx, http.MethodGet, "/balance", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do executes one request. Non-2xx responses are still decoded, because Paystack
// reports failures through the envelope; only transport or decode failures are errors.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, target interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
