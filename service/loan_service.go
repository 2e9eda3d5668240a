package service

import (
	"context"
	"fmt"
	"time"

	"banker/events"
	"banker/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type loanService struct {
	uowFactory UnitOfWorkFactory
	registrar  DeadlineRegistrar
}

// NewLoanService creates a new loan service. The registrar may be nil when no
// scheduler is wired, e.g. in tests that drive transitions directly.
func NewLoanService(uowFactory UnitOfWorkFactory, registrar DeadlineRegistrar) LoanService {
	return &loanService{
		uowFactory: uowFactory,
		registrar:  registrar,
	}
}

// OfferLoan creates a pending offer. No funds move until the borrower
// accepts; the principal is checked against the lender's balance at that
// point, not here.
func (s *loanService) OfferLoan(ctx context.Context, guildID, lenderID, borrowerID int64, amount, payback int64, duration time.Duration) (*models.Loan, error) {
	if amount <= 0 || payback < amount || duration <= 0 {
		return nil, models.ErrAmountOutOfRange
	}
	if lenderID == borrowerID {
		return nil, models.ErrAmountOutOfRange
	}

	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	exists, err := uow.LoanRepository().HasPendingOfferBetween(ctx, lenderID, borrowerID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.ErrPendingOfferExists
	}

	loan := &models.Loan{
		ID:                uuid.New(),
		GuildID:           guildID,
		LenderDiscordID:   lenderID,
		BorrowerDiscordID: borrowerID,
		LoanAmount:        amount,
		PaybackAmount:     payback,
		DurationMs:        duration.Milliseconds(),
		Status:            models.LoanStatusPending,
	}
	if err := uow.LoanRepository().Create(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to create loan: %w", err)
	}

	uow.EventBus().Publish(events.LoanStateChangeEvent{
		LoanID:            loan.ID,
		GuildID:           guildID,
		LenderDiscordID:   lenderID,
		BorrowerDiscordID: borrowerID,
		Transition:        events.LoanTransitionOffered,
		NewStatus:         models.LoanStatusPending,
		Amount:            amount,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return loan, nil
}

// AcceptLoan activates a pending offer: the principal moves from lender to
// borrower and the due date starts counting from now. A high-interest offer
// is rejected before anything changes unless the borrower confirmed it.
func (s *loanService) AcceptLoan(ctx context.Context, guildID int64, loanID uuid.UUID, borrowerID int64, confirmed bool) (*models.Loan, error) {
	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	loan, err := uow.LoanRepository().GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, models.ErrLoanNotFound
	}
	if loan.BorrowerDiscordID != borrowerID {
		return nil, models.ErrNotBorrower
	}
	if loan.Status != models.LoanStatusPending {
		return nil, &models.InvalidStateError{Expected: models.LoanStatusPending, Actual: loan.Status}
	}
	if loan.IsHighInterest() && !confirmed {
		return nil, models.ErrConfirmationRequired
	}

	if _, err := transferWithin(ctx, uow, guildID, loan.LenderDiscordID, loan.BorrowerDiscordID, loan.LoanAmount,
		models.TransactionTypeLoanDisbursement, models.TransactionTypeLoanReceived, loan); err != nil {
		return nil, err
	}

	now := time.Now()
	dueAt := now.Add(loan.Duration())
	activated, err := uow.LoanRepository().Activate(ctx, loan.ID, now, dueAt)
	if err != nil {
		return nil, fmt.Errorf("failed to activate loan: %w", err)
	}
	if !activated {
		// Lost a race with another accept, cancel, or expiry.
		return nil, &models.InvalidStateError{Expected: models.LoanStatusPending, Actual: loan.Status}
	}

	loan.Status = models.LoanStatusActive
	loan.AcceptedAt = &now
	loan.DueAt = &dueAt

	uow.EventBus().Publish(events.LoanStateChangeEvent{
		LoanID:            loan.ID,
		GuildID:           guildID,
		LenderDiscordID:   loan.LenderDiscordID,
		BorrowerDiscordID: loan.BorrowerDiscordID,
		Transition:        events.LoanTransitionAccepted,
		OldStatus:         models.LoanStatusPending,
		NewStatus:         models.LoanStatusActive,
		Amount:            loan.LoanAmount,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if s.registrar != nil {
		s.registrar.Register(loan)
	}

	return loan, nil
}

// RepayLoan moves a partial or full repayment from borrower to lender. The
// payment amount may never exceed what is still owed.
func (s *loanService) RepayLoan(ctx context.Context, guildID int64, loanID uuid.UUID, borrowerID int64, amount int64) (*models.RepayResult, error) {
	if amount <= 0 {
		return nil, models.ErrAmountOutOfRange
	}

	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	loan, err := uow.LoanRepository().GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, models.ErrLoanNotFound
	}
	if loan.BorrowerDiscordID != borrowerID {
		return nil, models.ErrNotBorrower
	}
	if !loan.IsOutstanding() {
		return nil, &models.InvalidStateError{Expected: models.LoanStatusActive, Actual: loan.Status}
	}
	if amount > loan.Remaining() {
		return nil, models.ErrAmountOutOfRange
	}

	if _, err := transferWithin(ctx, uow, guildID, loan.BorrowerDiscordID, loan.LenderDiscordID, amount,
		models.TransactionTypeLoanRepayment, models.TransactionTypeLoanCollection, loan); err != nil {
		return nil, err
	}

	updated, err := uow.LoanRepository().ApplyPayment(ctx, loan.ID, amount)
	if err != nil {
		return nil, err
	}

	transition := events.LoanTransitionRepaid
	if updated.Status == models.LoanStatusPaid {
		transition = events.LoanTransitionPaid
	}
	uow.EventBus().Publish(events.LoanStateChangeEvent{
		LoanID:            updated.ID,
		GuildID:           guildID,
		LenderDiscordID:   updated.LenderDiscordID,
		BorrowerDiscordID: updated.BorrowerDiscordID,
		Transition:        transition,
		OldStatus:         loan.Status,
		NewStatus:         updated.Status,
		Amount:            amount,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.RepayResult{
		Loan:       updated,
		AmountPaid: amount,
		Remaining:  updated.Remaining(),
		PaidOff:    updated.Status == models.LoanStatusPaid,
	}, nil
}

// CancelLoanOffer withdraws a pending offer. Only the lender can cancel, and
// only while no funds have moved.
func (s *loanService) CancelLoanOffer(ctx context.Context, guildID int64, loanID uuid.UUID, lenderID int64) error {
	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	loan, err := uow.LoanRepository().GetByID(ctx, loanID)
	if err != nil {
		return err
	}
	if loan == nil {
		return models.ErrLoanNotFound
	}
	if loan.LenderDiscordID != lenderID {
		return models.ErrNotLender
	}
	if loan.Status != models.LoanStatusPending {
		return &models.InvalidStateError{Expected: models.LoanStatusPending, Actual: loan.Status}
	}

	if err := uow.LoanRepository().Delete(ctx, loan.ID); err != nil {
		return fmt.Errorf("failed to delete loan offer: %w", err)
	}

	uow.EventBus().Publish(events.LoanStateChangeEvent{
		LoanID:            loan.ID,
		GuildID:           guildID,
		LenderDiscordID:   loan.LenderDiscordID,
		BorrowerDiscordID: loan.BorrowerDiscordID,
		Transition:        events.LoanTransitionCancelled,
		OldStatus:         models.LoanStatusPending,
		Amount:            loan.LoanAmount,
	})

	return uow.Commit()
}

// ListLoans returns every loan the user participates in, either side
func (s *loanService) ListLoans(ctx context.Context, guildID, discordID int64) ([]*models.Loan, error) {
	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	loans, err := uow.LoanRepository().GetByUser(ctx, discordID)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return loans, nil
}

// MarkOverdue flips an active past-due loan to overdue. The predicate lives
// in the update itself, so a timer firing for an already-settled loan or one
// whose due date moved is a no-op rather than a wrong transition.
func (s *loanService) MarkOverdue(ctx context.Context, guildID int64, loanID uuid.UUID) (bool, error) {
	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	loan, err := uow.LoanRepository().GetByID(ctx, loanID)
	if err != nil {
		return false, err
	}
	if loan == nil {
		return false, models.ErrLoanNotFound
	}

	transitioned, err := uow.LoanRepository().MarkOverdue(ctx, loan.ID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to mark loan overdue: %w", err)
	}

	if transitioned {
		uow.EventBus().Publish(events.LoanStateChangeEvent{
			LoanID:            loan.ID,
			GuildID:           guildID,
			LenderDiscordID:   loan.LenderDiscordID,
			BorrowerDiscordID: loan.BorrowerDiscordID,
			Transition:        events.LoanTransitionOverdue,
			OldStatus:         models.LoanStatusActive,
			NewStatus:         models.LoanStatusOverdue,
			Amount:            loan.Remaining(),
		})
	} else {
		log.WithFields(log.Fields{
			"loanId": loan.ID,
			"status": loan.Status,
		}).Debug("Overdue transition skipped, loan not active past due")
	}

	if err := uow.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return transitioned, nil
}
