package paystack

import "fmt"

// Response is the envelope every Paystack endpoint returns.
type Response[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Err converts an unsuccessful envelope into an error carrying the gateway message.
func (r *Response[T]) Err(op string) error {
	if r == nil {
		return &Error{Op: op, Message: "empty response"}
	}
	if r.Status {
		return nil
	}
	return &Error{Op: op, Message: r.Message}
}

// Error is a gateway call that came back with status=false.
type Error struct {
	Op      string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("paystack %s: %s", e.Op, e.Message)
}

// CreateCustomerRequest is the body of POST /customer.
type CreateCustomerRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Customer is the data of a customer response.
type Customer struct {
	ID           int64  `json:"id"`
	CustomerCode string `json:"customer_code"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

// AccountBank names the bank behind a dedicated account.
type AccountBank struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// DedicatedAccount is the data of a dedicated_account response.
type DedicatedAccount struct {
	ID            int64       `json:"id"`
	AccountName   string      `json:"account_name"`
	AccountNumber string      `json:"account_number"`
	Assigned      bool        `json:"assigned"`
	Currency      string      `json:"currency"`
	Active        bool        `json:"active"`
	Bank          AccountBank `json:"bank"`
}

// Bank is one entry of GET /bank.
type Bank struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Code        string `json:"code"`
	Country     string `json:"country"`
	Currency    string `json:"currency"`
	Type        string `json:"type"`
	Active      bool   `json:"active"`
	PayWithBank bool   `json:"pay_with_bank"`
}

// ResolvedAccount is the data of GET /bank/resolve.
type ResolvedAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankID        int64  `json:"bank_id"`
}

// TransferRecipientRequest is the body of POST /transferrecipient.
type TransferRecipientRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

// TransferRecipient is the data of a transferrecipient response.
type TransferRecipient struct {
	ID            int64  `json:"id"`
	RecipientCode string `json:"recipient_code"`
	Name          string `json:"name"`
}

// TransferRequest is the body of POST /transfer. Amount is in kobo.
type TransferRequest struct {
	Source    string `json:"source"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
	Reference string `json:"reference,omitempty"`
}

// Transfer is the data of transfer initiation and verification responses.
type Transfer struct {
	ID           int64  `json:"id"`
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Amount       int64  `json:"amount"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
}

// Transaction is the data of GET /transaction/verify/:reference.
type Transaction struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	Channel   string `json:"channel"`
	Currency  string `json:"currency"`
	Customer  struct {
		CustomerCode string `json:"customer_code"`
		Email        string `json:"email"`
	} `json:"customer"`
}

// Balance is one currency entry of GET /balance.
type Balance struct {
	Currency string `json:"currency"`
	Balance  int64  `json:"balance"`
}
