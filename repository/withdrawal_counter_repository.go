package repository

import (
	"context"
	"fmt"
	"time"

	"banker/database"
	"banker/models"
)

// WithdrawalCounterRepository implements the WithdrawalCounterRepository interface
type WithdrawalCounterRepository struct {
	q       queryable
	guildID int64
}

// NewWithdrawalCounterRepository creates a new withdrawal counter repository
func NewWithdrawalCounterRepository(db *database.DB, guildID int64) *WithdrawalCounterRepository {
	return &WithdrawalCounterRepository{q: db.Pool, guildID: guildID}
}

// newWithdrawalCounterRepository creates a new withdrawal counter repository with a transaction and guild scope
func newWithdrawalCounterRepository(tx queryable, guildID int64) *WithdrawalCounterRepository {
	return &WithdrawalCounterRepository{
		q:       tx,
		guildID: guildID,
	}
}

// GetOrCreate returns the guild's counter, inserting a fresh one on first use
func (r *WithdrawalCounterRepository) GetOrCreate(ctx context.Context) (*models.WithdrawalCounter, error) {
	query := `
		INSERT INTO withdrawal_counters (guild_id)
		VALUES ($1)
		ON CONFLICT (guild_id) DO UPDATE SET guild_id = EXCLUDED.guild_id
		RETURNING guild_id, total_withdrawn_this_week, week_start_at,
		          temporary_limit_increase, updated_at
	`

	var counter models.WithdrawalCounter
	err := r.q.QueryRow(ctx, query, r.guildID).Scan(
		&counter.GuildID,
		&counter.TotalWithdrawnThisWeek,
		&counter.WeekStartAt,
		&counter.TemporaryLimitIncrease,
		&counter.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal counter for guild %d: %w", r.guildID, err)
	}

	return &counter, nil
}

// ResetIfExpired starts a fresh week when the current one began at or before
// the cutoff. The temporary limit increase does not survive the reset.
func (r *WithdrawalCounterRepository) ResetIfExpired(ctx context.Context, cutoff time.Time, now time.Time) error {
	query := `
		UPDATE withdrawal_counters
		SET total_withdrawn_this_week = 0, week_start_at = $1,
		    temporary_limit_increase = 0, updated_at = NOW()
		WHERE guild_id = $2 AND week_start_at <= $3
	`

	if _, err := r.q.Exec(ctx, query, now, r.guildID, cutoff); err != nil {
		return fmt.Errorf("failed to reset withdrawal counter for guild %d: %w", r.guildID, err)
	}
	return nil
}

// RecordWithdrawal adds to the guild-wide usage for the current week
func (r *WithdrawalCounterRepository) RecordWithdrawal(ctx context.Context, amount int64) error {
	query := `
		UPDATE withdrawal_counters
		SET total_withdrawn_this_week = total_withdrawn_this_week + $1, updated_at = NOW()
		WHERE guild_id = $2
	`

	result, err := r.q.Exec(ctx, query, amount, r.guildID)
	if err != nil {
		return fmt.Errorf("failed to record guild withdrawal for guild %d: %w", r.guildID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal counter for guild %d not found", r.guildID)
	}
	return nil
}

// SetTemporaryLimitIncrease sets the temporary bump on the guild-wide cap
func (r *WithdrawalCounterRepository) SetTemporaryLimitIncrease(ctx context.Context, increase int64) error {
	query := `
		INSERT INTO withdrawal_counters (guild_id, temporary_limit_increase)
		VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE
		SET temporary_limit_increase = EXCLUDED.temporary_limit_increase, updated_at = NOW()
	`

	if _, err := r.q.Exec(ctx, query, r.guildID, increase); err != nil {
		return fmt.Errorf("failed to set temporary limit increase for guild %d: %w", r.guildID, err)
	}
	return nil
}
