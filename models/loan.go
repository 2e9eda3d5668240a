package models

import (
	"time"

	"github.com/google/uuid"
)

// LoanStatus represents the status of a loan contract
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "pending"
	LoanStatusActive    LoanStatus = "active"
	LoanStatusOverdue   LoanStatus = "overdue"
	LoanStatusPaid      LoanStatus = "paid"
	LoanStatusDefaulted LoanStatus = "defaulted"
)

// Loan represents a time-bound obligation from borrower to lender
type Loan struct {
	ID                uuid.UUID  `db:"id"`
	GuildID           int64      `db:"guild_id"`
	LenderDiscordID   int64      `db:"lender_discord_id"`
	BorrowerDiscordID int64      `db:"borrower_discord_id"`
	LoanAmount        int64      `db:"loan_amount"`
	PaybackAmount     int64      `db:"payback_amount"`
	DurationMs        int64      `db:"duration_ms"`
	Status            LoanStatus `db:"status"`
	AmountPaid        int64      `db:"amount_paid"`
	CreatedAt         time.Time  `db:"created_at"`
	AcceptedAt        *time.Time `db:"accepted_at"`
	DueAt             *time.Time `db:"due_at"`
	SettledAt         *time.Time `db:"settled_at"`
}

// Remaining returns the amount still owed on the loan
func (l *Loan) Remaining() int64 {
	return l.PaybackAmount - l.AmountPaid
}

// IsParticipant checks if a user is involved in the loan
func (l *Loan) IsParticipant(discordID int64) bool {
	return l.LenderDiscordID == discordID || l.BorrowerDiscordID == discordID
}

// IsOutstanding reports whether the loan still carries an obligation
func (l *Loan) IsOutstanding() bool {
	return l.Status == LoanStatusActive || l.Status == LoanStatusOverdue
}

// IsTerminal reports whether the loan can no longer change state
func (l *Loan) IsTerminal() bool {
	return l.Status == LoanStatusPaid || l.Status == LoanStatusDefaulted
}

// IsHighInterest reports whether the payback exceeds twice the principal.
// Acceptance of such a loan requires an explicit confirmation from the
// borrower before the state machine is touched.
func (l *Loan) IsHighInterest() bool {
	return l.PaybackAmount > 2*l.LoanAmount
}

// IsDue reports whether the loan's due date has elapsed
func (l *Loan) IsDue(now time.Time) bool {
	return l.DueAt != nil && !l.DueAt.After(now)
}

// Duration returns the loan's term as a time.Duration
func (l *Loan) Duration() time.Duration {
	return time.Duration(l.DurationMs) * time.Millisecond
}

// RepayResult represents the outcome of a repayment
type RepayResult struct {
	Loan       *Loan
	AmountPaid int64
	Remaining  int64
	PaidOff    bool
}
