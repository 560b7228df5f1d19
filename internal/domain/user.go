/**
 * @description
 * Core records for people known to the bot: the registered user, the dedicated
 * virtual account issued for them, and the referral that links them to an affiliate.
 *
 * @notes
 * - Monetary fields are int64 kobo. Conversion to naira happens only at the edges.
 */

package domain

import "time"

// UserStatus is the lifecycle flag on a user row.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// User maps to the `users` table. TelegramID is the external chat identity.
type User struct {
	ID            int64      `json:"id"`
	TelegramID    int64      `json:"telegram_id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Phone         string     `json:"phone"`
	AccountNumber string     `json:"account_number"`
	BankName      string     `json:"bank_name"`
	BankCode      string     `json:"bank_code"`
	CustomerCode  string     `json:"customer_code"`
	AffiliateCode string     `json:"affiliate_code"`
	ReferredBy    *string    `json:"referred_by,omitempty"`
	WalletBalance int64      `json:"wallet_balance"` // in kobo
	TotalEarnings int64      `json:"total_earnings"` // in kobo
	Status        UserStatus `json:"status"`
	KYCVerified   bool       `json:"kyc_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DisplayName joins first and last name, skipping blanks.
func (u *User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	if u.FirstName == "" {
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}

// VirtualAccount is the dedicated receiving account issued by the gateway, one per user.
type VirtualAccount struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	AccountNumber string    `json:"account_number"`
	AccountName   string    `json:"account_name"`
	BankName      string    `json:"bank_name"`
	BankCode      string    `json:"bank_code"`
	CustomerCode  string    `json:"customer_code"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	Assigned      bool      `json:"assigned"`
	CreatedAt     time.Time `json:"created_at"`
}

// Referral links a referrer to exactly one referred user.
type Referral struct {
	ID            int64     `json:"id"`
	ReferrerID    int64     `json:"referrer_id"`
	ReferredID    int64     `json:"referred_id"`
	AffiliateCode string    `json:"affiliate_code"`
	Earnings      int64     `json:"earnings"` // in kobo
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// AffiliateStats summarizes a user's affiliate performance.
type AffiliateStats struct {
	AffiliateCode string `json:"affiliate_code"`
	Referrals     int64  `json:"referrals"`
	TotalEarnings int64  `json:"total_earnings"`
}
