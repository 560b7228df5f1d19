package paystack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInitiateTransfer_SendsKoboAndReference(t *testing.T) {
	var got TransferRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transfer" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test" {
			t.Fatalf("expected bearer auth, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"status":true,"message":"Transfer has been queued","data":{"reference":"CANDICE-1-AB","transfer_code":"TRF_1","status":"pending","amount":1000000}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", 5*time.Second)
	resp, err := client.InitiateTransfer(context.Background(), "RCP_1", 1000000, "Payment via CandicePay", "CANDICE-1-AB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Err("transfer") != nil {
		t.Fatalf("expected success envelope, got %v", resp.Err("transfer"))
	}
	if got.Source != "balance" || got.Amount != 1000000 || got.Recipient != "RCP_1" || got.Reference != "CANDICE-1-AB" {
		t.Fatalf("unexpected transfer body: %+v", got)
	}
	if resp.Data.TransferCode != "TRF_1" {
		t.Fatalf("expected transfer code TRF_1, got %q", resp.Data.TransferCode)
	}
}

func TestResolveAccount_FailureEnvelopeIsNotATransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bank/resolve" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("account_number") != "0123456789" || r.URL.Query().Get("bank_code") != "057" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"status":false,"message":"Could not resolve account name"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", 5*time.Second)
	resp, err := client.ResolveAccount(context.Background(), "0123456789", "057")
	if err != nil {
		t.Fatalf("expected parsed envelope, got error %v", err)
	}
	if resp.Status {
		t.Fatalf("expected status=false")
	}
	if resp.Err("resolve") == nil || resp.Err("resolve").Error() != "paystack resolve: Could not resolve account name" {
		t.Fatalf("unexpected envelope error: %v", resp.Err("resolve"))
	}
}

func TestListBanks_UnparseableBodyIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", 5*time.Second)
	if _, err := client.ListBanks(context.Background(), "nigeria"); err == nil {
		t.Fatalf("expected decode error for non-json body")
	}
}

func TestDo_RespectsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, "sk_test", 50*time.Millisecond)
	if _, err := client.GetBalance(context.Background()); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"charge.success"}`)
	signature := Sign("sk_test", body)

	if !VerifySignature("sk_test", body, signature) {
		t.Fatalf("expected signature to verify")
	}
	if VerifySignature("sk_other", body, signature) {
		t.Fatalf("expected signature with wrong key to fail")
	}
	if VerifySignature("sk_test", []byte(`{"event":"transfer.success"}`), signature) {
		t.Fatalf("expected tampered body to fail")
	}
	if VerifySignature("sk_test", body, "") {
		t.Fatalf("expected missing signature to fail")
	}
}
