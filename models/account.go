package models

import (
	"time"
)

// Account represents a user's balance within a guild
type Account struct {
	DiscordID            int64      `db:"discord_id"`
	GuildID              int64      `db:"guild_id"`
	Balance              int64      `db:"balance"`
	WeeklyWithdrawAmount int64      `db:"weekly_withdraw_amount"`
	FirstWithdrawAt      *time.Time `db:"first_withdraw_at"`
	CustomWithdrawLimit  int64      `db:"custom_withdraw_limit"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// HasSufficientBalance checks if the account can cover an amount
func (a *Account) HasSufficientBalance(amount int64) bool {
	return a.Balance >= amount
}

// WithdrawWindowExpired reports whether the rolling withdrawal window has
// elapsed relative to now. An account that never withdrew has no window.
func (a *Account) WithdrawWindowExpired(now time.Time, window time.Duration) bool {
	if a.FirstWithdrawAt == nil {
		return false
	}
	return now.Sub(*a.FirstWithdrawAt) >= window
}

// TransferResult represents the outcome of a completed transfer
type TransferResult struct {
	Amount         int64
	FromDiscordID  int64
	ToDiscordID    int64
	NewFromBalance int64
	NewToBalance   int64
}

// AdjustResult represents the outcome of a balance adjustment
type AdjustResult struct {
	DiscordID  int64
	Delta      int64
	NewBalance int64
}
