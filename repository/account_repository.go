package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"banker/database"
	"banker/models"

	"github.com/jackc/pgx/v5"
)

// AccountRepository implements the AccountRepository interface
type AccountRepository struct {
	q       queryable
	guildID int64
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB, guildID int64) *AccountRepository {
	return &AccountRepository{q: db.Pool, guildID: guildID}
}

// newAccountRepository creates a new account repository with a transaction and guild scope
func newAccountRepository(tx queryable, guildID int64) *AccountRepository {
	return &AccountRepository{
		q:       tx,
		guildID: guildID,
	}
}

// GetByDiscordID retrieves an account by discord ID in the current guild
func (r *AccountRepository) GetByDiscordID(ctx context.Context, discordID int64) (*models.Account, error) {
	query := `
		SELECT discord_id, guild_id, balance, weekly_withdraw_amount,
		       first_withdraw_at, custom_withdraw_limit, created_at, updated_at
		FROM accounts
		WHERE discord_id = $1 AND guild_id = $2
	`

	var account models.Account
	err := r.q.QueryRow(ctx, query, discordID, r.guildID).Scan(
		&account.DiscordID,
		&account.GuildID,
		&account.Balance,
		&account.WeeklyWithdrawAmount,
		&account.FirstWithdrawAt,
		&account.CustomWithdrawLimit,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d in guild %d: %w", discordID, r.guildID, err)
	}

	return &account, nil
}

// Create creates a new account with the initial balance
func (r *AccountRepository) Create(ctx context.Context, discordID int64, initialBalance int64) (*models.Account, error) {
	query := `
		INSERT INTO accounts (discord_id, guild_id, balance)
		VALUES ($1, $2, $3)
		RETURNING discord_id, guild_id, balance, weekly_withdraw_amount,
		          first_withdraw_at, custom_withdraw_limit, created_at, updated_at
	`

	var account models.Account
	err := r.q.QueryRow(ctx, query, discordID, r.guildID, initialBalance).Scan(
		&account.DiscordID,
		&account.GuildID,
		&account.Balance,
		&account.WeeklyWithdrawAmount,
		&account.FirstWithdrawAt,
		&account.CustomWithdrawLimit,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create account %d in guild %d: %w", discordID, r.guildID, err)
	}

	return &account, nil
}

// AdjustBalance applies a signed delta to an account's balance as a single
// conditional update and returns the new balance. When requireNonNegative is
// set, the update is filtered on the balance staying >= 0, so a concurrent
// caller can never drive the balance negative; the losing caller gets
// models.ErrInsufficientFunds instead of a silent retry.
func (r *AccountRepository) AdjustBalance(ctx context.Context, discordID int64, delta int64, requireNonNegative bool) (int64, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE discord_id = $2 AND guild_id = $3
	`
	if requireNonNegative {
		query += ` AND balance + $1 >= 0`
	}
	query += ` RETURNING balance`

	var newBalance int64
	err := r.q.QueryRow(ctx, query, delta, discordID, r.guildID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		// The filter excluded the row: either the account is missing or the
		// debit would overdraw it.
		account, lookupErr := r.GetByDiscordID(ctx, discordID)
		if lookupErr != nil {
			return 0, lookupErr
		}
		if account == nil {
			return 0, models.ErrAccountNotFound
		}
		return 0, models.ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("failed to adjust balance for account %d in guild %d: %w", discordID, r.guildID, err)
	}

	return newBalance, nil
}

// ResetWithdrawWindowIfExpired zeroes the rolling withdrawal window when the
// first withdrawal happened at or before the cutoff. The check lives in the
// WHERE clause so two concurrent resets collapse into one.
func (r *AccountRepository) ResetWithdrawWindowIfExpired(ctx context.Context, discordID int64, cutoff time.Time) error {
	query := `
		UPDATE accounts
		SET weekly_withdraw_amount = 0, first_withdraw_at = NULL, updated_at = NOW()
		WHERE discord_id = $1 AND guild_id = $2
		  AND first_withdraw_at IS NOT NULL AND first_withdraw_at <= $3
	`

	if _, err := r.q.Exec(ctx, query, discordID, r.guildID, cutoff); err != nil {
		return fmt.Errorf("failed to reset withdraw window for account %d in guild %d: %w", discordID, r.guildID, err)
	}
	return nil
}

// RecordWithdrawal increments the account's weekly usage and stamps the
// window start on first use
func (r *AccountRepository) RecordWithdrawal(ctx context.Context, discordID int64, amount int64, now time.Time) error {
	query := `
		UPDATE accounts
		SET weekly_withdraw_amount = weekly_withdraw_amount + $1,
		    first_withdraw_at = COALESCE(first_withdraw_at, $2),
		    updated_at = NOW()
		WHERE discord_id = $3 AND guild_id = $4
	`

	result, err := r.q.Exec(ctx, query, amount, now, discordID, r.guildID)
	if err != nil {
		return fmt.Errorf("failed to record withdrawal for account %d in guild %d: %w", discordID, r.guildID, err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

// SetCustomWithdrawLimit sets the signed bonus/penalty applied on top of the
// base per-user weekly cap
func (r *AccountRepository) SetCustomWithdrawLimit(ctx context.Context, discordID int64, limit int64) error {
	query := `
		UPDATE accounts
		SET custom_withdraw_limit = $1, updated_at = NOW()
		WHERE discord_id = $2 AND guild_id = $3
	`

	result, err := r.q.Exec(ctx, query, limit, discordID, r.guildID)
	if err != nil {
		return fmt.Errorf("failed to set custom withdraw limit for account %d in guild %d: %w", discordID, r.guildID, err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}
