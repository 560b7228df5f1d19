package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantErr    bool
		wantNumber string
		wantBank   string
		wantAmount string
	}{
		{
			name:       "json wrapped in prose",
			content:    "Here are the details:\n```json\n{\"account_number\": \"0123456789\", \"account_name\": \"Ada Obi\", \"bank_name\": \"Zenith Bank\", \"amount\": 10000}\n```",
			wantNumber: "0123456789",
			wantBank:   "Zenith Bank",
			wantAmount: "10000",
		},
		{
			name:       "string amount with separators",
			content:    `{"account_number": "012 345 6789", "account_name": null, "bank_name": "GTBank", "amount": "2,500.50"}`,
			wantNumber: "0123456789",
			wantBank:   "GTBank",
			wantAmount: "2500.5",
		},
		{
			name:       "null amount",
			content:    `{"account_number": "0123456789", "account_name": "A", "bank_name": "UBA", "amount": null}`,
			wantNumber: "0123456789",
			wantBank:   "UBA",
			wantAmount: "0",
		},
		{name: "no json", content: "I cannot read this image.", wantErr: true},
		{name: "broken json", content: `{"account_number": "0123`, wantErr: true},
		{name: "null account number", content: `{"account_number": null, "bank_name": "UBA"}`, wantErr: true},
		{name: "missing bank name", content: `{"account_number": "0123456789"}`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseReply(tc.content)
			if tc.wantErr {
				if !errors.Is(err, ErrExtractionFailed) {
					t.Fatalf("expected ErrExtractionFailed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.AccountNumber != tc.wantNumber || got.BankName != tc.wantBank {
				t.Fatalf("unexpected details: %+v", got)
			}
			if !got.Amount.Equal(decimal.RequireFromString(tc.wantAmount)) {
				t.Fatalf("expected amount %s, got %s", tc.wantAmount, got.Amount)
			}
		})
	}
}

func TestExtractSlip_SendsImageAndPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Content []struct {
					Type     string `json:"type"`
					Text     string `json:"text"`
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if body.Model != "deepseek-chat" || body.MaxTokens != 500 {
			t.Fatalf("unexpected model or max tokens: %s %d", body.Model, body.MaxTokens)
		}
		if len(body.Messages) != 1 || len(body.Messages[0].Content) != 2 {
			t.Fatalf("expected one message with two parts, got %+v", body.Messages)
		}
		if body.Messages[0].Content[1].ImageURL.URL != "https://files.example/slip.jpg" {
			t.Fatalf("unexpected image url %q", body.Messages[0].Content[1].ImageURL.URL)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"account_number\":\"0123456789\",\"account_name\":\"Ada Obi\",\"bank_name\":\"Access Bank\",\"amount\":\"5000\"}"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewClient("key", server.URL, "", 5*time.Second)
	details, err := client.ExtractSlip(context.Background(), "https://files.example/slip.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.AccountName != "Ada Obi" || details.BankName != "Access Bank" {
		t.Fatalf("unexpected details: %+v", details)
	}
	if !details.Amount.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected amount 5000, got %s", details.Amount)
	}
}

func TestExtractSlip_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"authentication_error"}}`))
	}))
	defer server.Close()

	client := NewClient("bad", server.URL, "", 5*time.Second)
	_, err := client.ExtractSlip(context.Background(), "https://files.example/slip.jpg")
	if err == nil {
		t.Fatal("expected an upstream error")
	}
	if errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected a transport error distinct from ErrExtractionFailed, got %v", err)
	}
}

func TestExtractSlip_BadGatewayIsNotAnExtractionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	client := NewClient("key", server.URL, "", 5*time.Second)
	_, err := client.ExtractSlip(context.Background(), "https://files.example/slip.jpg")
	if err == nil || errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected a transport error, got %v", err)
	}
}

func TestExtractSlip_EmptyReplyIsExtractionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	client := NewClient("key", server.URL, "", 5*time.Second)
	if _, err := client.ExtractSlip(context.Background(), "https://files.example/slip.jpg"); !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}
