/**
 * @description
 * The `Repository` interface is the contract between the bot, the admin API and
 * PostgreSQL. Business code depends on this interface only, which keeps the
 * payment and registration flows testable with in-memory stubs.
 *
 * @dependencies
 * - internal/domain: the records read and written here.
 */

package store

import (
	"context"
	"time"

	"github.com/candicepay/bot-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Users
	FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	FindUserByID(ctx context.Context, userID int64) (*domain.User, error)
	FindUserByAffiliateCode(ctx context.Context, code string) (*domain.User, error)
	FindUserByCustomerCode(ctx context.Context, customerCode string) (*domain.User, error)
	CreateUserWithAccount(ctx context.Context, user *domain.User, account *domain.VirtualAccount, referral *domain.Referral) error
	AffiliateStats(ctx context.Context, userID int64) (*domain.AffiliateStats, error)
	CountActiveUsers(ctx context.Context) (int64, error)
	ActiveUserTelegramIDs(ctx context.Context) ([]int64, error)

	// Wallet
	ReserveFunds(ctx context.Context, userID int64, amount int64) error
	ReleaseFunds(ctx context.Context, userID int64, amount int64) error

	// Transactions
	CompletePayment(ctx context.Context, tx *domain.Transaction) error
	RecordDeposit(ctx context.Context, tx *domain.Transaction) (bool, error)
	FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, transactionID int64, status domain.TransactionStatus, reason string) (bool, error)
	ListPendingTransactions(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error)
	RecentTransactions(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error)

	// Banks
	UpsertBanks(ctx context.Context, banks []domain.Bank) error
	ListBanks(ctx context.Context) ([]domain.Bank, error)

	// Admin dashboard
	Stats(ctx context.Context, now time.Time) (*domain.Stats, error)
	ListUsers(ctx context.Context, query UserQuery) ([]domain.User, Pagination, error)
	ListTransactions(ctx context.Context, query TransactionQuery) ([]domain.TransactionWithUser, Pagination, error)
	FindAdminByUsername(ctx context.Context, username string) (*domain.AdminUser, error)
	EnsureAdmin(ctx context.Context, admin *domain.AdminUser) (bool, error)
	TouchAdminLogin(ctx context.Context, adminID int64, at time.Time) error
}

// UserQuery filters the admin user listing. Search matches email, first name or account number.
type UserQuery struct {
	Page   int
	Limit  int
	Search string
}

// TransactionQuery filters the admin transaction listing. Zero values mean no filter.
type TransactionQuery struct {
	Page   int
	Limit  int
	Type   domain.TransactionType
	Status domain.TransactionStatus
}
