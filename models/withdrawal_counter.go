package models

import (
	"time"
)

// WithdrawalCounter tracks guild-wide withdrawal usage over a rolling window
type WithdrawalCounter struct {
	GuildID                int64     `db:"guild_id"`
	TotalWithdrawnThisWeek int64     `db:"total_withdrawn_this_week"`
	WeekStartAt            time.Time `db:"week_start_at"`
	TemporaryLimitIncrease int64     `db:"temporary_limit_increase"`
	UpdatedAt              time.Time `db:"updated_at"`
}

// WindowExpired reports whether the counter's rolling window has elapsed
func (c *WithdrawalCounter) WindowExpired(now time.Time, window time.Duration) bool {
	return now.Sub(c.WeekStartAt) >= window
}

// LimitScope identifies which withdrawal quota a check ran against
type LimitScope string

const (
	LimitScopeUser   LimitScope = "user"
	LimitScopeGlobal LimitScope = "global"
)

// WithdrawalCheck represents the outcome of a quota check
type WithdrawalCheck struct {
	Allowed   bool
	Scope     LimitScope
	Remaining int64
}
