package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"banker/database"
	"banker/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const loanColumns = `
	id, guild_id, lender_discord_id, borrower_discord_id, loan_amount,
	payback_amount, duration_ms, status, amount_paid, created_at, accepted_at, due_at, settled_at`

// LoanRepository implements the LoanRepository interface
type LoanRepository struct {
	q       queryable
	guildID int64
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *database.DB, guildID int64) *LoanRepository {
	return &LoanRepository{q: db.Pool, guildID: guildID}
}

// newLoanRepository creates a new loan repository with a transaction and guild scope
func newLoanRepository(tx queryable, guildID int64) *LoanRepository {
	return &LoanRepository{
		q:       tx,
		guildID: guildID,
	}
}

func scanLoan(row pgx.Row) (*models.Loan, error) {
	var loan models.Loan
	err := row.Scan(
		&loan.ID,
		&loan.GuildID,
		&loan.LenderDiscordID,
		&loan.BorrowerDiscordID,
		&loan.LoanAmount,
		&loan.PaybackAmount,
		&loan.DurationMs,
		&loan.Status,
		&loan.AmountPaid,
		&loan.CreatedAt,
		&loan.AcceptedAt,
		&loan.DueAt,
		&loan.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *LoanRepository) queryLoans(ctx context.Context, query string, args ...any) ([]*models.Loan, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, loan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loans: %w", err)
	}

	return loans, nil
}

// Create creates a new loan in pending status
func (r *LoanRepository) Create(ctx context.Context, loan *models.Loan) error {
	if loan.ID == uuid.Nil {
		loan.ID = uuid.New()
	}
	query := `
		INSERT INTO loans (
			id, guild_id, lender_discord_id, borrower_discord_id,
			loan_amount, payback_amount, duration_ms, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.q.QueryRow(ctx, query,
		loan.ID,
		r.guildID,
		loan.LenderDiscordID,
		loan.BorrowerDiscordID,
		loan.LoanAmount,
		loan.PaybackAmount,
		loan.DurationMs,
		loan.Status,
	).Scan(&loan.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	loan.GuildID = r.guildID

	return nil
}

// GetByID retrieves a loan by its ID
func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 AND guild_id = $2`

	loan, err := scanLoan(r.q.QueryRow(ctx, query, id, r.guildID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan %s: %w", id, err)
	}

	return loan, nil
}

// GetByUser returns all loans where the user is lender or borrower, newest first
func (r *LoanRepository) GetByUser(ctx context.Context, discordID int64) ([]*models.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE guild_id = $1 AND (lender_discord_id = $2 OR borrower_discord_id = $2)
		ORDER BY created_at DESC
	`
	return r.queryLoans(ctx, query, r.guildID, discordID)
}

// GetRepayableByBorrower returns the borrower's due active/overdue loans
// sorted by earliest obligation first, for the auto-repayment sweep
func (r *LoanRepository) GetRepayableByBorrower(ctx context.Context, borrowerID int64, now time.Time) ([]*models.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE guild_id = $1 AND borrower_discord_id = $2
		  AND status IN ('active', 'overdue')
		  AND due_at <= $3
		ORDER BY due_at ASC
	`
	return r.queryLoans(ctx, query, r.guildID, borrowerID, now)
}

// GetActive returns all active loans in the current guild
func (r *LoanRepository) GetActive(ctx context.Context) ([]*models.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE guild_id = $1 AND status = 'active'
		ORDER BY due_at ASC
	`
	return r.queryLoans(ctx, query, r.guildID)
}

// GetActivePastDue returns active loans whose due date has already elapsed
func (r *LoanRepository) GetActivePastDue(ctx context.Context, now time.Time) ([]*models.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE guild_id = $1 AND status = 'active' AND due_at <= $2
		ORDER BY due_at ASC
	`
	return r.queryLoans(ctx, query, r.guildID, now)
}

// GetOverdueWithFutureDue returns overdue loans whose due date is still ahead
// of now, for the correction sweep
func (r *LoanRepository) GetOverdueWithFutureDue(ctx context.Context, now time.Time) ([]*models.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE guild_id = $1 AND status = 'overdue' AND due_at > $2
	`
	return r.queryLoans(ctx, query, r.guildID, now)
}

// GetPendingBefore returns pending offers created at or before the cutoff
func (r *LoanRepository) GetPendingBefore(ctx context.Context, cutoff time.Time) ([]*models.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE guild_id = $1 AND status = 'pending' AND created_at <= $2
		ORDER BY created_at ASC
	`
	return r.queryLoans(ctx, query, r.guildID, cutoff)
}

// HasPendingOfferBetween reports whether an unaccepted offer already exists
// from the lender to the borrower
func (r *LoanRepository) HasPendingOfferBetween(ctx context.Context, lenderID, borrowerID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM loans
			WHERE guild_id = $1 AND lender_discord_id = $2 AND borrower_discord_id = $3
			  AND status = 'pending'
		)
	`

	var exists bool
	if err := r.q.QueryRow(ctx, query, r.guildID, lenderID, borrowerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending offers between %d and %d: %w", lenderID, borrowerID, err)
	}
	return exists, nil
}

// Activate transitions a pending loan to active, stamping acceptance and due
// times. The status predicate makes a double-accept a no-op for the loser.
func (r *LoanRepository) Activate(ctx context.Context, id uuid.UUID, acceptedAt, dueAt time.Time) (bool, error) {
	query := `
		UPDATE loans
		SET status = 'active', accepted_at = $1, due_at = $2
		WHERE id = $3 AND guild_id = $4 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, acceptedAt, dueAt, id, r.guildID)
	if err != nil {
		return false, fmt.Errorf("failed to activate loan %s: %w", id, err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkOverdue flips an active loan to overdue. The due-date predicate makes a
// stale timer firing while due_at is still in the future a no-op.
func (r *LoanRepository) MarkOverdue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE loans
		SET status = 'overdue'
		WHERE id = $1 AND guild_id = $2 AND status = 'active' AND due_at <= $3
	`

	result, err := r.q.Exec(ctx, query, id, r.guildID, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark loan %s overdue: %w", id, err)
	}
	return result.RowsAffected() > 0, nil
}

// Reactivate demotes a wrongly-overdue loan back to active when its due date
// is still ahead of now
func (r *LoanRepository) Reactivate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE loans
		SET status = 'active'
		WHERE id = $1 AND guild_id = $2 AND status = 'overdue' AND due_at > $3
	`

	result, err := r.q.Exec(ctx, query, id, r.guildID, now)
	if err != nil {
		return false, fmt.Errorf("failed to reactivate loan %s: %w", id, err)
	}
	return result.RowsAffected() > 0, nil
}

// ApplyPayment increments amount_paid as a conditional update that can never
// exceed the payback amount, and settles the loan when it reaches it.
// Returns the updated loan.
func (r *LoanRepository) ApplyPayment(ctx context.Context, id uuid.UUID, amount int64) (*models.Loan, error) {
	query := `
		UPDATE loans
		SET amount_paid = amount_paid + $1,
		    status = CASE WHEN amount_paid + $1 = payback_amount THEN 'paid' ELSE status END,
		    settled_at = CASE WHEN amount_paid + $1 = payback_amount THEN NOW() ELSE settled_at END
		WHERE id = $2 AND guild_id = $3
		  AND status IN ('active', 'overdue')
		  AND amount_paid + $1 <= payback_amount
		RETURNING ` + loanColumns

	loan, err := scanLoan(r.q.QueryRow(ctx, query, amount, id, r.guildID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrAmountOutOfRange
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply payment to loan %s: %w", id, err)
	}

	return loan, nil
}

// Delete removes a loan. Used for expired pending offers and paid-loan
// housekeeping only; outstanding loans are never deleted.
func (r *LoanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM loans WHERE id = $1 AND guild_id = $2`

	if _, err := r.q.Exec(ctx, query, id, r.guildID); err != nil {
		return fmt.Errorf("failed to delete loan %s: %w", id, err)
	}
	return nil
}

// DeletePaidBefore removes paid loans that settled before the cutoff. The
// retention clock starts at settlement, not at creation, so a long-lived loan
// paid off recently survives the purge.
func (r *LoanRepository) DeletePaidBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM loans
		WHERE guild_id = $1 AND status = 'paid' AND settled_at <= $2
	`

	result, err := r.q.Exec(ctx, query, r.guildID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete paid loans: %w", err)
	}
	return result.RowsAffected(), nil
}

// GetGuildsWithLoans returns the guild IDs that currently hold any loans.
// Used by the scheduler sweeps, which process each guild separately.
func (r *LoanRepository) GetGuildsWithLoans(ctx context.Context) ([]int64, error) {
	query := `SELECT DISTINCT guild_id FROM loans`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get guilds with loans: %w", err)
	}
	defer rows.Close()

	var guildIDs []int64
	for rows.Next() {
		var guildID int64
		if err := rows.Scan(&guildID); err != nil {
			return nil, fmt.Errorf("failed to scan guild ID: %w", err)
		}
		guildIDs = append(guildIDs, guildID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate guild IDs: %w", err)
	}

	return guildIDs, nil
}
