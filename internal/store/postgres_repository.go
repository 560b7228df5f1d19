/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. Every operation that
 * touches more than one row runs inside a single database transaction, and wallet
 * debits lock the user row with `SELECT ... FOR UPDATE`.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: driver, pool, batches and error codes.
 * - internal/domain: the records mapped to and from rows.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/candicepay/bot-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAdminNotFound       = errors.New("admin not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicate           = errors.New("duplicate record")
	// ErrAffiliateCodeTaken is a collision on the generated affiliate code, not a duplicate user.
	ErrAffiliateCodeTaken = errors.New("affiliate code taken")
)

const (
	uniqueViolation         = "23505"
	affiliateCodeConstraint = "users_affiliate_code_key"
)

const userColumns = `id, telegram_id, email, first_name, last_name, phone, account_number, bank_name, bank_code,
	customer_code, affiliate_code, referred_by, wallet_balance, total_earnings, status, kyc_verified, created_at, updated_at`

var transactionColumnNames = []string{
	"id", "user_id", "type", "amount", "fee", "net_amount", "recipient_name", "recipient_account", "recipient_bank",
	"sender_name", "sender_account", "sender_bank", "reference", "paystack_reference", "status", "description", "metadata",
	"affiliate_bonus", "affiliate_user_id", "created_at", "updated_at",
}

var transactionColumns = strings.Join(transactionColumnNames, ", ")

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) findUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE " + where
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// FindUserByTelegramID retrieves the user registered for a chat identity.
func (r *PostgresRepository) FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return r.findUser(ctx, "telegram_id = $1", telegramID)
}

// FindUserByID retrieves a user by primary key.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	return r.findUser(ctx, "id = $1", userID)
}

// FindUserByAffiliateCode resolves a referral code, case-insensitively.
func (r *PostgresRepository) FindUserByAffiliateCode(ctx context.Context, code string) (*domain.User, error) {
	return r.findUser(ctx, "upper(affiliate_code) = upper(btrim($1))", code)
}

// FindUserByCustomerCode maps a gateway customer back to its user.
func (r *PostgresRepository) FindUserByCustomerCode(ctx context.Context, customerCode string) (*domain.User, error) {
	return r.findUser(ctx, "customer_code = $1", customerCode)
}

// CreateUserWithAccount inserts the user, their virtual account and, when present,
// the referral row in one transaction. IDs and timestamps are written back.
func (r *PostgresRepository) CreateUserWithAccount(ctx context.Context, user *domain.User, account *domain.VirtualAccount, referral *domain.Referral) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO users (
			telegram_id, email, first_name, last_name, phone, account_number, bank_name, bank_code,
			customer_code, affiliate_code, referred_by, status, kyc_verified
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, wallet_balance, total_earnings, created_at, updated_at
	`,
		user.TelegramID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Phone,
		nullableString(user.AccountNumber),
		user.BankName,
		user.BankCode,
		nullableString(user.CustomerCode),
		user.AffiliateCode,
		user.ReferredBy,
		string(user.Status),
		user.KYCVerified,
	).Scan(&user.ID, &user.WalletBalance, &user.TotalEarnings, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return mapWriteError("insert user", err)
	}

	account.UserID = user.ID
	if account.Currency == "" {
		account.Currency = "NGN"
	}
	if account.Status == "" {
		account.Status = "active"
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO virtual_accounts (
			user_id, account_number, account_name, bank_name, bank_code, customer_code, currency, status, assigned
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`,
		account.UserID,
		account.AccountNumber,
		account.AccountName,
		account.BankName,
		account.BankCode,
		account.CustomerCode,
		account.Currency,
		account.Status,
		account.Assigned,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return mapWriteError("insert virtual account", err)
	}

	if referral != nil {
		referral.ReferredID = user.ID
		if referral.Status == "" {
			referral.Status = "active"
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO referrals (referrer_id, referred_id, affiliate_code, status)
			VALUES ($1, $2, $3, $4)
			RETURNING id, earnings, created_at
		`, referral.ReferrerID, referral.ReferredID, referral.AffiliateCode, referral.Status).
			Scan(&referral.ID, &referral.Earnings, &referral.CreatedAt)
		if err != nil {
			return mapWriteError("insert referral", err)
		}
	}

	return tx.Commit(ctx)
}

// AffiliateStats returns the referral count and accumulated referral earnings for a user.
func (r *PostgresRepository) AffiliateStats(ctx context.Context, userID int64) (*domain.AffiliateStats, error) {
	var stats domain.AffiliateStats
	err := r.db.QueryRow(ctx, `
		SELECT u.affiliate_code,
			(SELECT COUNT(*) FROM referrals WHERE referrer_id = u.id),
			(SELECT COALESCE(SUM(earnings), 0) FROM referrals WHERE referrer_id = u.id)
		FROM users u
		WHERE u.id = $1
	`, userID).Scan(&stats.AffiliateCode, &stats.Referrals, &stats.TotalEarnings)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &stats, nil
}

// CountActiveUsers counts users whose status is active.
func (r *PostgresRepository) CountActiveUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE status = $1", string(domain.UserStatusActive)).Scan(&count)
	return count, err
}

// ActiveUserTelegramIDs lists the chat identities of every active user.
func (r *PostgresRepository) ActiveUserTelegramIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, "SELECT telegram_id FROM users WHERE status = $1 ORDER BY id", string(domain.UserStatusActive))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ReserveFunds debits a user's wallet ahead of an outbound transfer.
// The balance is left untouched when it cannot cover the amount.
func (r *PostgresRepository) ReserveFunds(ctx context.Context, userID int64, amount int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var balance int64
	// Use FOR UPDATE to lock the row, preventing race conditions.
	err = tx.QueryRow(ctx, "SELECT wallet_balance FROM users WHERE id = $1 FOR UPDATE", userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	if balance < amount {
		return ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx, "UPDATE users SET wallet_balance = wallet_balance - $1, updated_at = NOW() WHERE id = $2", amount, userID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ReleaseFunds credits a previously reserved amount back to the wallet.
func (r *PostgresRepository) ReleaseFunds(ctx context.Context, userID int64, amount int64) error {
	tag, err := r.db.Exec(ctx, "UPDATE users SET wallet_balance = wallet_balance + $1, updated_at = NOW() WHERE id = $2", amount, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CompletePayment records a submitted payment and credits the affiliate bonus
// to the referrer's wallet, total earnings and referral ledger atomically.
func (r *PostgresRepository) CompletePayment(ctx context.Context, txn *domain.Transaction) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertTransaction(ctx, tx, txn); err != nil {
		return err
	}

	if txn.AffiliateUserID != nil && txn.AffiliateBonus > 0 {
		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET wallet_balance = wallet_balance + $1, total_earnings = total_earnings + $1, updated_at = NOW()
			WHERE id = $2
		`, txn.AffiliateBonus, *txn.AffiliateUserID)
		if err != nil {
			return fmt.Errorf("credit affiliate bonus: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		_, err = tx.Exec(ctx, `
			UPDATE referrals SET earnings = earnings + $1
			WHERE referrer_id = $2 AND referred_id = $3
		`, txn.AffiliateBonus, *txn.AffiliateUserID, txn.UserID)
		if err != nil {
			return fmt.Errorf("update referral earnings: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// RecordDeposit credits an inbound transfer. It returns false without changing
// anything when a transaction with the same reference was already recorded.
func (r *PostgresRepository) RecordDeposit(ctx context.Context, txn *domain.Transaction) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	metadata, err := encodeMetadata(txn.Metadata)
	if err != nil {
		return false, err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (
			user_id, type, amount, fee, net_amount, sender_name, sender_account, sender_bank,
			reference, paystack_reference, status, description, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at
	`,
		txn.UserID,
		string(txn.Type),
		txn.Amount,
		txn.Fee,
		txn.NetAmount,
		txn.SenderName,
		txn.SenderAccount,
		txn.SenderBank,
		txn.Reference,
		txn.GatewayReference,
		string(txn.Status),
		txn.Description,
		metadata,
	).Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	tag, err := tx.Exec(ctx, "UPDATE users SET wallet_balance = wallet_balance + $1, updated_at = NOW() WHERE id = $2", txn.NetAmount, txn.UserID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// FindTransactionByReference matches either the local reference or the gateway's.
func (r *PostgresRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE reference = $1 OR paystack_reference = $1 LIMIT 1"
	txn, err := scanTransaction(r.db.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

// UpdateTransactionStatus moves a pending transaction to status. A failed payment
// refunds the payer and claws back any affiliate bonus in the same transaction.
// It reports false when the transaction had already left pending.
func (r *PostgresRepository) UpdateTransactionStatus(ctx context.Context, transactionID int64, status domain.TransactionStatus, reason string) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var (
		userID          int64
		txnType         string
		amount          int64
		bonus           int64
		affiliateUserID *int64
	)
	err = tx.QueryRow(ctx, `
		UPDATE transactions
		SET status = $2,
			updated_at = NOW(),
			metadata = CASE WHEN $3::text = '' THEN metadata ELSE metadata || jsonb_build_object('failure_reason', $3::text) END
		WHERE id = $1 AND status = 'pending'
		RETURNING user_id, type, amount, affiliate_bonus, affiliate_user_id
	`, transactionID, string(status), strings.TrimSpace(reason)).Scan(&userID, &txnType, &amount, &bonus, &affiliateUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if existsErr := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)", transactionID).Scan(&exists); existsErr != nil {
				return false, existsErr
			}
			if !exists {
				return false, ErrTransactionNotFound
			}
			return false, nil
		}
		return false, err
	}

	if status == domain.TransactionStatusFailed && domain.TransactionType(txnType) == domain.TransactionTypePayment {
		if _, err := tx.Exec(ctx, "UPDATE users SET wallet_balance = wallet_balance + $1, updated_at = NOW() WHERE id = $2", amount, userID); err != nil {
			return false, fmt.Errorf("refund payer: %w", err)
		}
		if affiliateUserID != nil && bonus > 0 {
			_, err := tx.Exec(ctx, `
				UPDATE users
				SET wallet_balance = wallet_balance - LEAST(wallet_balance, $1),
					total_earnings = GREATEST(total_earnings - $1, 0),
					updated_at = NOW()
				WHERE id = $2
			`, bonus, *affiliateUserID)
			if err != nil {
				return false, fmt.Errorf("reverse affiliate bonus: %w", err)
			}
			_, err = tx.Exec(ctx, `
				UPDATE referrals SET earnings = GREATEST(earnings - $1, 0)
				WHERE referrer_id = $2 AND referred_id = $3
			`, bonus, *affiliateUserID, userID)
			if err != nil {
				return false, fmt.Errorf("reverse referral earnings: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ListPendingTransactions returns payments still pending that were created before olderThan.
func (r *PostgresRepository) ListPendingTransactions(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	query := "SELECT " + transactionColumns + ` FROM transactions
		WHERE status = 'pending' AND type = 'payment' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// RecentTransactions returns a user's latest transactions, newest first.
func (r *PostgresRepository) RecentTransactions(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2"
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// UpsertBanks replaces bank metadata keyed by bank code.
func (r *PostgresRepository) UpsertBanks(ctx context.Context, banks []domain.Bank) error {
	if len(banks) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, bank := range banks {
		batch.Queue(`
			INSERT INTO banks (name, code, slug, country, currency, type, supports_transfer, supports_virtual_account, position, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			ON CONFLICT (code) DO UPDATE SET
				name = EXCLUDED.name,
				slug = EXCLUDED.slug,
				country = EXCLUDED.country,
				currency = EXCLUDED.currency,
				type = EXCLUDED.type,
				supports_transfer = EXCLUDED.supports_transfer,
				supports_virtual_account = EXCLUDED.supports_virtual_account,
				position = EXCLUDED.position,
				updated_at = NOW()
		`, bank.Name, bank.Code, bank.Slug, bank.Country, bank.Currency, bank.Type, bank.SupportsTransfer, bank.SupportsVirtualAccount, bank.Position)
	}

	results := tx.SendBatch(ctx, batch)
	for range banks {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upsert bank: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListBanks returns the cached bank list ordered by name.
func (r *PostgresRepository) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, code, slug, country, currency, type, supports_transfer, supports_virtual_account, position, updated_at
		FROM banks
		ORDER BY position, name
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Bank, error) {
		var bank domain.Bank
		err := row.Scan(
			&bank.ID,
			&bank.Name,
			&bank.Code,
			&bank.Slug,
			&bank.Country,
			&bank.Currency,
			&bank.Type,
			&bank.SupportsTransfer,
			&bank.SupportsVirtualAccount,
			&bank.Position,
			&bank.UpdatedAt,
		)
		return bank, err
	})
}

// Stats aggregates dashboard counters. Today starts at midnight in now's location.
func (r *PostgresRepository) Stats(ctx context.Context, now time.Time) (*domain.Stats, error) {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var stats domain.Stats
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&stats.Users); err != nil {
		return nil, err
	}
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(amount) FILTER (WHERE created_at >= $1), 0)
		FROM transactions
	`, startOfDay).Scan(&stats.Transactions, &stats.TotalVolume, &stats.TodayVolume)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListUsers pages through users, newest first.
func (r *PostgresRepository) ListUsers(ctx context.Context, q UserQuery) ([]domain.User, Pagination, error) {
	where := ""
	args := []any{}
	if search := strings.TrimSpace(q.Search); search != "" {
		where = " WHERE email ILIKE $1 OR first_name ILIKE $1 OR account_number ILIKE $1"
		args = append(args, "%"+search+"%")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, Pagination{}, err
	}
	page := NewPagination(q.Page, q.Limit, total)

	query := fmt.Sprintf("SELECT %s FROM users%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		userColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, Pagination{}, err
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.User, error) {
		user, err := scanUser(row)
		if err != nil {
			return domain.User{}, err
		}
		return *user, nil
	})
	if err != nil {
		return nil, Pagination{}, err
	}
	return users, page, nil
}

// ListTransactions pages through transactions joined with their owner, newest first.
func (r *PostgresRepository) ListTransactions(ctx context.Context, q TransactionQuery) ([]domain.TransactionWithUser, Pagination, error) {
	var (
		conditions []string
		args       []any
	)
	if q.Type != "" {
		args = append(args, string(q.Type))
		conditions = append(conditions, fmt.Sprintf("t.type = $%d", len(args)))
	}
	if q.Status != "" {
		args = append(args, string(q.Status))
		conditions = append(conditions, fmt.Sprintf("t.status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM transactions t"+where, args...).Scan(&total); err != nil {
		return nil, Pagination{}, err
	}
	page := NewPagination(q.Page, q.Limit, total)

	columns := "t." + strings.Join(transactionColumnNames, ", t.")
	query := fmt.Sprintf(`SELECT %s, u.first_name, u.last_name, u.email
		FROM transactions t
		LEFT JOIN users u ON u.id = t.user_id%s
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $%d OFFSET $%d`, columns, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, Pagination{}, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TransactionWithUser, error) {
		var item domain.TransactionWithUser
		dest := append(transactionDest(&item.Transaction), &item.FirstName, &item.LastName, &item.Email)
		if err := row.Scan(dest...); err != nil {
			return item, err
		}
		return item, decodeTransactionExtras(&item.Transaction)
	})
	if err != nil {
		return nil, Pagination{}, err
	}
	return items, page, nil
}

// FindAdminByUsername loads operator credentials.
func (r *PostgresRepository) FindAdminByUsername(ctx context.Context, username string) (*domain.AdminUser, error) {
	var admin domain.AdminUser
	err := r.db.QueryRow(ctx, `
		SELECT id, username, password_hash, email, role, last_login, created_at
		FROM admin_users
		WHERE username = $1
	`, strings.TrimSpace(username)).Scan(
		&admin.ID,
		&admin.Username,
		&admin.PasswordHash,
		&admin.Email,
		&admin.Role,
		&admin.LastLogin,
		&admin.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, err
	}
	return &admin, nil
}

// EnsureAdmin inserts the admin unless the username already exists. It reports whether a row was created.
func (r *PostgresRepository) EnsureAdmin(ctx context.Context, admin *domain.AdminUser) (bool, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO admin_users (username, password_hash, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO NOTHING
		RETURNING id, created_at
	`, admin.Username, admin.PasswordHash, admin.Email, admin.Role).Scan(&admin.ID, &admin.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// TouchAdminLogin records a successful sign-in.
func (r *PostgresRepository) TouchAdminLogin(ctx context.Context, adminID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, "UPDATE admin_users SET last_login = $1 WHERE id = $2", at, adminID)
	return err
}

func insertTransaction(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	metadata, err := encodeMetadata(txn.Metadata)
	if err != nil {
		return err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (
			user_id, type, amount, fee, net_amount, recipient_name, recipient_account, recipient_bank,
			sender_name, sender_account, sender_bank, reference, paystack_reference, status, description,
			metadata, affiliate_bonus, affiliate_user_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16::jsonb, $17, $18)
		RETURNING id, created_at, updated_at
	`,
		txn.UserID,
		string(txn.Type),
		txn.Amount,
		txn.Fee,
		txn.NetAmount,
		txn.RecipientName,
		txn.RecipientAccount,
		txn.RecipientBank,
		txn.SenderName,
		txn.SenderAccount,
		txn.SenderBank,
		txn.Reference,
		txn.GatewayReference,
		string(txn.Status),
		txn.Description,
		metadata,
		txn.AffiliateBonus,
		txn.AffiliateUserID,
	).Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return mapWriteError("insert transaction", err)
	}
	return nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user          domain.User
		accountNumber *string
		customerCode  *string
		status        string
	)
	err := row.Scan(
		&user.ID,
		&user.TelegramID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&accountNumber,
		&user.BankName,
		&user.BankCode,
		&customerCode,
		&user.AffiliateCode,
		&user.ReferredBy,
		&user.WalletBalance,
		&user.TotalEarnings,
		&status,
		&user.KYCVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.AccountNumber = optionalString(accountNumber)
	user.CustomerCode = optionalString(customerCode)
	user.Status = domain.UserStatus(status)
	return &user, nil
}

// transactionDest returns scan targets in transactionColumnNames order.
func transactionDest(txn *domain.Transaction) []any {
	return []any{
		&txn.ID,
		&txn.UserID,
		&txn.Type,
		&txn.Amount,
		&txn.Fee,
		&txn.NetAmount,
		&txn.RecipientName,
		&txn.RecipientAccount,
		&txn.RecipientBank,
		&txn.SenderName,
		&txn.SenderAccount,
		&txn.SenderBank,
		&txn.Reference,
		&txn.GatewayReference,
		&txn.Status,
		&txn.Description,
		&txn.Metadata,
		&txn.AffiliateBonus,
		&txn.AffiliateUserID,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	}
}

// decodeTransactionExtras rejects rows whose enum columns hold unknown values.
func decodeTransactionExtras(txn *domain.Transaction) error {
	if _, err := domain.ParseTransactionType(string(txn.Type)); err != nil {
		return err
	}
	if _, err := domain.ParseTransactionStatus(string(txn.Status)); err != nil {
		return err
	}
	return nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var txn domain.Transaction
	if err := row.Scan(transactionDest(&txn)...); err != nil {
		return nil, err
	}
	if err := decodeTransactionExtras(&txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Transaction, error) {
		txn, err := scanTransaction(row)
		if err != nil {
			return domain.Transaction{}, err
		}
		return *txn, nil
	})
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(raw), nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == affiliateCodeConstraint {
			return fmt.Errorf("%s: %w", op, ErrAffiliateCodeTaken)
		}
		return fmt.Errorf("%s: %w: %s", op, ErrDuplicate, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullableString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func optionalString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
