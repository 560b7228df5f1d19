package app

import "fmt"

// ErrorKind classifies a failed operation so one presentation layer can word it for users.
type ErrorKind string

const (
	KindInvalidInput             ErrorKind = "invalid_input"
	KindInvalidAmount            ErrorKind = "invalid_amount"
	KindBankNotFound             ErrorKind = "bank_not_found"
	KindAccountResolutionFailed  ErrorKind = "account_resolution_failed"
	KindRecipientCreationFailed  ErrorKind = "recipient_creation_failed"
	KindTransferInitiationFailed ErrorKind = "transfer_initiation_failed"
	KindInsufficientFunds        ErrorKind = "insufficient_funds"
	KindGatewayUnavailable       ErrorKind = "gateway_unavailable"
	KindPersistenceFailed        ErrorKind = "persistence_failed"
	KindUserNotRegistered        ErrorKind = "user_not_registered"

	KindAlreadyRegistered      ErrorKind = "already_registered"
	KindDuplicateDetails       ErrorKind = "duplicate_details"
	KindCustomerCreationFailed ErrorKind = "customer_creation_failed"
	KindVirtualAccountFailed   ErrorKind = "virtual_account_failed"
)

// PaymentError is returned by ProcessPayment. Message carries gateway text when there is some.
type PaymentError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("payment %s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("payment %s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("payment %s: %s", e.Kind, e.Message)
	default:
		return fmt.Sprintf("payment %s", e.Kind)
	}
}

func (e *PaymentError) Unwrap() error { return e.Err }

// RegistrationError is returned by Register.
type RegistrationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *RegistrationError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("registration %s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("registration %s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("registration %s: %s", e.Kind, e.Message)
	default:
		return fmt.Sprintf("registration %s", e.Kind)
	}
}

func (e *RegistrationError) Unwrap() error { return e.Err }

func paymentFailure(kind ErrorKind, message string, err error) *PaymentError {
	return &PaymentError{Kind: kind, Message: message, Err: err}
}

func registrationFailure(kind ErrorKind, message string, err error) *RegistrationError {
	return &RegistrationError{Kind: kind, Message: message, Err: err}
}
