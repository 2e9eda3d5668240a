package service

import (
	"context"
	"time"

	"banker/events"
	"banker/models"

	"github.com/google/uuid"
)

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	// GetByDiscordID retrieves an account by discord ID, nil when absent
	GetByDiscordID(ctx context.Context, discordID int64) (*models.Account, error)

	// Create creates a new account with the initial balance
	Create(ctx context.Context, discordID int64, initialBalance int64) (*models.Account, error)

	// AdjustBalance applies a signed delta as a single conditional update and
	// returns the new balance
	AdjustBalance(ctx context.Context, discordID int64, delta int64, requireNonNegative bool) (int64, error)

	// ResetWithdrawWindowIfExpired zeroes the rolling window when it has elapsed
	ResetWithdrawWindowIfExpired(ctx context.Context, discordID int64, cutoff time.Time) error

	// RecordWithdrawal increments weekly usage, stamping the window start on first use
	RecordWithdrawal(ctx context.Context, discordID int64, amount int64, now time.Time) error

	// SetCustomWithdrawLimit sets the per-account bonus/penalty on the weekly cap
	SetCustomWithdrawLimit(ctx context.Context, discordID int64, limit int64) error
}

// LoanRepository defines the interface for loan data access
type LoanRepository interface {
	// Create creates a new loan in pending status
	Create(ctx context.Context, loan *models.Loan) error

	// GetByID retrieves a loan by its ID, nil when absent
	GetByID(ctx context.Context, id uuid.UUID) (*models.Loan, error)

	// GetByUser returns all loans where the user is lender or borrower
	GetByUser(ctx context.Context, discordID int64) ([]*models.Loan, error)

	// GetRepayableByBorrower returns due active/overdue loans, earliest due first
	GetRepayableByBorrower(ctx context.Context, borrowerID int64, now time.Time) ([]*models.Loan, error)

	// GetActive returns all active loans in the guild
	GetActive(ctx context.Context) ([]*models.Loan, error)

	// GetActivePastDue returns active loans whose due date has elapsed
	GetActivePastDue(ctx context.Context, now time.Time) ([]*models.Loan, error)

	// GetOverdueWithFutureDue returns overdue loans whose due date is still ahead
	GetOverdueWithFutureDue(ctx context.Context, now time.Time) ([]*models.Loan, error)

	// GetPendingBefore returns pending offers created at or before the cutoff
	GetPendingBefore(ctx context.Context, cutoff time.Time) ([]*models.Loan, error)

	// HasPendingOfferBetween reports whether a pending offer already exists
	HasPendingOfferBetween(ctx context.Context, lenderID, borrowerID int64) (bool, error)

	// Activate transitions pending to active; false when the loan was not pending
	Activate(ctx context.Context, id uuid.UUID, acceptedAt, dueAt time.Time) (bool, error)

	// MarkOverdue flips active to overdue; false when not applicable (stale timer)
	MarkOverdue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// Reactivate demotes a wrongly-overdue loan back to active
	Reactivate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// ApplyPayment bumps amount_paid, settling the loan when it hits payback
	ApplyPayment(ctx context.Context, id uuid.UUID, amount int64) (*models.Loan, error)

	// Delete removes a loan (expired offers and paid-loan housekeeping only)
	Delete(ctx context.Context, id uuid.UUID) error

	// DeletePaidBefore removes paid loans that settled before the cutoff
	DeletePaidBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// GetGuildsWithLoans returns guild IDs that currently hold any loans
	GetGuildsWithLoans(ctx context.Context) ([]int64, error)
}

// WithdrawalCounterRepository defines the interface for the guild-wide withdrawal counter
type WithdrawalCounterRepository interface {
	// GetOrCreate returns the guild's counter, inserting one on first use
	GetOrCreate(ctx context.Context) (*models.WithdrawalCounter, error)

	// ResetIfExpired starts a fresh week when the current one has elapsed
	ResetIfExpired(ctx context.Context, cutoff time.Time, now time.Time) error

	// RecordWithdrawal adds to the guild-wide usage for the current week
	RecordWithdrawal(ctx context.Context, amount int64) error

	// SetTemporaryLimitIncrease sets the temporary bump on the guild-wide cap
	SetTemporaryLimitIncrease(ctx context.Context, increase int64) error
}

// BalanceHistoryRepository defines the interface for balance history tracking
type BalanceHistoryRepository interface {
	// Record creates a new balance history entry
	Record(ctx context.Context, history *models.BalanceHistory) error

	// GetByUser returns balance history for a specific user
	GetByUser(ctx context.Context, discordID int64, limit int) ([]*models.BalanceHistory, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	AccountRepository() AccountRepository
	LoanRepository() LoanRepository
	WithdrawalCounterRepository() WithdrawalCounterRepository
	BalanceHistoryRepository() BalanceHistoryRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	// CreateForGuild creates a new UnitOfWork instance scoped to a specific guild
	CreateForGuild(guildID int64) UnitOfWork
}

// AccountService defines the interface for account operations
type AccountService interface {
	// GetOrCreateAccount retrieves an account or creates it lazily with the
	// starting balance
	GetOrCreateAccount(ctx context.Context, guildID, discordID int64) (*models.Account, error)
}

// LedgerService defines the interface for balance mutation primitives
type LedgerService interface {
	// AdjustBalance applies a signed delta to one account
	AdjustBalance(ctx context.Context, guildID, discordID int64, delta int64, opts AdjustOptions) (*models.AdjustResult, error)

	// Transfer moves amount between two accounts, failing closed on
	// insufficient funds
	Transfer(ctx context.Context, guildID, fromDiscordID, toDiscordID int64, amount int64) (*models.TransferResult, error)
}

// AdjustOptions controls how a balance adjustment is applied
type AdjustOptions struct {
	// RequireNonNegative makes a debit fail with ErrInsufficientFunds instead
	// of overdrawing the account
	RequireNonNegative bool

	TransactionType models.TransactionType
	Metadata        map[string]any
}

// WithdrawalService defines the interface for the rolling withdrawal quota
type WithdrawalService interface {
	// CanWithdraw checks the per-user then guild-wide quota for an amount
	CanWithdraw(ctx context.Context, guildID, discordID int64, amount int64) (*models.WithdrawalCheck, error)

	// Withdraw checks quota, debits the balance, and commits usage in one
	// transaction
	Withdraw(ctx context.Context, guildID, discordID int64, amount int64) (*models.AdjustResult, error)

	// GrantWithdrawBonus sets an account's custom limit adjustment
	GrantWithdrawBonus(ctx context.Context, guildID, discordID int64, bonus int64) error

	// RaiseGlobalLimit sets the guild counter's temporary limit increase
	RaiseGlobalLimit(ctx context.Context, guildID int64, increase int64) error
}

// LoanService defines the interface for the loan state machine
type LoanService interface {
	// OfferLoan creates a pending loan offer from lender to borrower
	OfferLoan(ctx context.Context, guildID, lenderID, borrowerID int64, amount, payback int64, duration time.Duration) (*models.Loan, error)

	// AcceptLoan moves a pending loan to active, transferring the principal.
	// High-interest loans require confirmed=true.
	AcceptLoan(ctx context.Context, guildID int64, loanID uuid.UUID, borrowerID int64, confirmed bool) (*models.Loan, error)

	// RepayLoan applies a repayment from borrower to lender
	RepayLoan(ctx context.Context, guildID int64, loanID uuid.UUID, borrowerID int64, amount int64) (*models.RepayResult, error)

	// CancelLoanOffer lets the lender withdraw a pending offer
	CancelLoanOffer(ctx context.Context, guildID int64, loanID uuid.UUID, lenderID int64) error

	// ListLoans returns all loans a user participates in
	ListLoans(ctx context.Context, guildID, discordID int64) ([]*models.Loan, error)

	// MarkOverdue flips an active past-due loan to overdue; a no-op when the
	// due date is still ahead
	MarkOverdue(ctx context.Context, guildID int64, loanID uuid.UUID) (bool, error)
}

// DeadlineRegistrar receives loans that gained a due date so a timer can be
// armed for them
type DeadlineRegistrar interface {
	Register(loan *models.Loan)
}

// AutoRepaySweeper drains a borrower's available balance across outstanding loans
type AutoRepaySweeper interface {
	// SweepBorrower runs one repayment sweep; concurrent triggers for the
	// same borrower are no-ops while a sweep is in flight
	SweepBorrower(ctx context.Context, guildID, borrowerID int64)
}
