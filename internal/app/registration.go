package app

import (
	"context"
	"errors"
	"strings"

	"github.com/candicepay/bot-service/internal/domain"
	"github.com/candicepay/bot-service/internal/store"
	"github.com/candicepay/bot-service/pkg/logger"
	"github.com/candicepay/bot-service/pkg/mailer"
	"github.com/candicepay/bot-service/pkg/paystack"
	"go.uber.org/zap"
)

// RegistrationInput is what the conversation collected from a new user.
type RegistrationInput struct {
	TelegramID   int64
	Email        string
	FirstName    string
	LastName     string
	Phone        string
	ReferralCode string
}

// RegistrationResult is the committed user, their virtual account and, when a valid
// referral code was given, the referrer.
type RegistrationResult struct {
	User     *domain.User
	Account  *domain.VirtualAccount
	Referrer *domain.User
}

// Register creates the gateway customer and dedicated account, then stores the user,
// the account and the referral in one database transaction.
func (s *Service) Register(ctx context.Context, in RegistrationInput) (*RegistrationResult, error) {
	log := s.logger.With(zap.Int64("telegram_id", in.TelegramID))

	email := strings.TrimSpace(in.Email)
	firstName := strings.TrimSpace(in.FirstName)
	phone, phoneOK := NormalizePhone(in.Phone)
	if in.TelegramID == 0 || !ValidEmail(email) || firstName == "" || !phoneOK {
		return nil, registrationFailure(KindInvalidInput, "email, first name and phone are required", nil)
	}

	if _, err := s.repo.FindUserByTelegramID(ctx, in.TelegramID); err == nil {
		return nil, registrationFailure(KindAlreadyRegistered, "", nil)
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, registrationFailure(KindPersistenceFailed, "lookup user", err)
	}

	referrer := s.resolveReferrer(ctx, in.ReferralCode, log)

	affiliateCode, err := NewAffiliateCode()
	if err != nil {
		return nil, registrationFailure(KindPersistenceFailed, "", err)
	}

	customerResp, err := s.gateway.CreateCustomer(ctx, paystack.CreateCustomerRequest{
		Email:     email,
		FirstName: firstName,
		LastName:  strings.TrimSpace(in.LastName),
		Phone:     phone,
	})
	if err != nil {
		return nil, registrationFailure(KindGatewayUnavailable, "create customer", err)
	}
	if !customerResp.Status || customerResp.Data.CustomerCode == "" {
		return nil, registrationFailure(KindCustomerCreationFailed, customerResp.Message, nil)
	}
	customerCode := customerResp.Data.CustomerCode

	accountResp, err := s.gateway.CreateDedicatedAccount(ctx, customerCode, s.preferredBank)
	if err != nil {
		return nil, registrationFailure(KindGatewayUnavailable, "create dedicated account", err)
	}
	if !accountResp.Status || accountResp.Data.AccountNumber == "" {
		return nil, registrationFailure(KindVirtualAccountFailed, accountResp.Message, nil)
	}
	dedicated := accountResp.Data

	user := &domain.User{
		TelegramID:    in.TelegramID,
		Email:         email,
		FirstName:     firstName,
		LastName:      strings.TrimSpace(in.LastName),
		Phone:         phone,
		AccountNumber: dedicated.AccountNumber,
		BankName:      dedicated.Bank.Name,
		BankCode:      dedicated.Bank.Slug,
		CustomerCode:  customerCode,
		AffiliateCode: affiliateCode,
		Status:        domain.UserStatusActive,
	}
	account := &domain.VirtualAccount{
		AccountNumber: dedicated.AccountNumber,
		AccountName:   dedicated.AccountName,
		BankName:      dedicated.Bank.Name,
		BankCode:      dedicated.Bank.Slug,
		CustomerCode:  customerCode,
		Currency:      dedicated.Currency,
		Assigned:      dedicated.Assigned,
	}
	var referral *domain.Referral
	if referrer != nil {
		user.ReferredBy = &referrer.AffiliateCode
		referral = &domain.Referral{ReferrerID: referrer.ID, AffiliateCode: referrer.AffiliateCode}
	}

	err = s.repo.CreateUserWithAccount(ctx, user, account, referral)
	if errors.Is(err, store.ErrAffiliateCodeTaken) {
		// One retry with a fresh code; a second collision is treated as a storage failure.
		log.Warn("affiliate code collision; regenerating", zap.String("affiliate_code", user.AffiliateCode))
		if user.AffiliateCode, err = NewAffiliateCode(); err == nil {
			err = s.repo.CreateUserWithAccount(ctx, user, account, referral)
		}
	}
	if err != nil {
		// The gateway customer and account already exist; keep their identifiers in the log.
		log.Error("registration persistence failed after gateway provisioning",
			zap.String("customer_code", customerCode),
			logger.Masked("account_number", dedicated.AccountNumber),
			zap.Error(err),
		)
		if errors.Is(err, store.ErrDuplicate) {
			return nil, registrationFailure(KindDuplicateDetails, "", err)
		}
		return nil, registrationFailure(KindPersistenceFailed, "", err)
	}

	if s.notifier != nil {
		welcome := mailer.Welcome{
			FirstName:     user.FirstName,
			AccountNumber: account.AccountNumber,
			AccountName:   account.AccountName,
			BankName:      account.BankName,
			AffiliateCode: user.AffiliateCode,
		}
		if err := s.notifier.SendWelcome(ctx, user.Email, welcome); err != nil {
			log.Warn("welcome email failed", zap.Error(err))
		}
	}

	event := domain.UserRegisteredEvent{
		EventID:       newEventID(),
		UserID:        user.ID,
		TelegramID:    user.TelegramID,
		AffiliateCode: user.AffiliateCode,
		OccurredAt:    s.now().UTC(),
	}
	if referrer != nil {
		event.ReferrerID = &referrer.ID
	}
	s.publish(ctx, domain.EventUserRegistered, event)

	log.Info("user registered", zap.Int64("user_id", user.ID), zap.Bool("referred", referrer != nil))
	return &RegistrationResult{User: user, Account: account, Referrer: referrer}, nil
}

// resolveReferrer looks up a referral code. Unknown or unreadable codes are ignored.
func (s *Service) resolveReferrer(ctx context.Context, code string, log *zap.Logger) *domain.User {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	referrer, err := s.repo.FindUserByAffiliateCode(ctx, code)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			log.Warn("referral lookup failed; registering without referrer", zap.String("affiliate_code", code), zap.Error(err))
		}
		return nil
	}
	return referrer
}
