/**
 * @description
 * Reads bank details off a photographed payment slip. The image URL and a fixed
 * instruction are sent to an OpenAI-compatible chat endpoint (DeepSeek), and the
 * first brace-delimited JSON object in the reply is parsed into SlipDetails.
 *
 * @dependencies
 * - github.com/sashabaranov/go-openai: chat completion client.
 * - github.com/shopspring/decimal: amount parsing.
 */

package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/candicepay/bot-service/internal/domain"
	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.deepseek.com/v1"
	DefaultModel   = "deepseek-chat"

	extractionPrompt = "Extract bank details from this image. Return JSON with: account_number, account_name, bank_name, amount. If not clear, return null values."
	maxTokens        = 500
)

// ErrExtractionFailed means the model reply held no usable bank details.
var ErrExtractionFailed = errors.New("extraction failed")

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Client extracts slip details through a hosted multimodal model.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a client for the given OpenAI-compatible endpoint.
func NewClient(apiKey, baseURL, model string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}
}

// ExtractSlip asks the model for the bank details shown at imageURL.
// Transport failures are returned wrapped; unusable replies return ErrExtractionFailed.
func (c *Client) ExtractSlip(ctx context.Context, imageURL string) (domain.SlipDetails, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: extractionPrompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageURL}},
				},
			},
		},
	})
	if err != nil {
		return domain.SlipDetails{}, fmt.Errorf("vision request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.SlipDetails{}, fmt.Errorf("%w: empty reply", ErrExtractionFailed)
	}
	return ParseReply(resp.Choices[0].Message.Content)
}

type slipPayload struct {
	AccountNumber *string         `json:"account_number"`
	AccountName   *string         `json:"account_name"`
	BankName      *string         `json:"bank_name"`
	Amount        json.RawMessage `json:"amount"`
}

// ParseReply pulls SlipDetails out of free-text model output.
func ParseReply(content string) (domain.SlipDetails, error) {
	match := jsonObjectPattern.FindString(content)
	if match == "" {
		return domain.SlipDetails{}, fmt.Errorf("%w: no json object in reply", ErrExtractionFailed)
	}

	var payload slipPayload
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		return domain.SlipDetails{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	details := domain.SlipDetails{
		AccountNumber: digitsOnly(deref(payload.AccountNumber)),
		AccountName:   strings.TrimSpace(deref(payload.AccountName)),
		BankName:      strings.TrimSpace(deref(payload.BankName)),
		Amount:        parseAmount(payload.Amount),
	}
	if details.AccountNumber == "" || details.BankName == "" {
		return domain.SlipDetails{}, fmt.Errorf("%w: account number or bank name missing", ErrExtractionFailed)
	}
	return details, nil
}

// parseAmount accepts a JSON number or a numeric string; anything else is zero.
func parseAmount(raw json.RawMessage) decimal.Decimal {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return decimal.Zero
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		text = asString
	}
	amount, err := domain.ParseAmount(text)
	if err != nil || amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
