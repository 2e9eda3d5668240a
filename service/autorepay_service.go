package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"banker/events"
	"banker/models"

	log "github.com/sirupsen/logrus"
)

type sweepKey struct {
	guildID    int64
	borrowerID int64
}

// AutoRepayService drains a borrower's available balance across their due
// loans, oldest deadline first. A per-(guild, borrower) marker makes
// concurrent triggers for the same borrower no-ops while a sweep is running;
// each repayment is still an atomic conditional debit, so even a missed
// marker could not overdraw.
type AutoRepayService struct {
	uowFactory UnitOfWorkFactory
	loans      LoanService

	mu       sync.Mutex
	inFlight map[sweepKey]struct{}
}

// NewAutoRepayService creates a new auto-repayment sweeper
func NewAutoRepayService(uowFactory UnitOfWorkFactory, loans LoanService) *AutoRepayService {
	return &AutoRepayService{
		uowFactory: uowFactory,
		loans:      loans,
		inFlight:   make(map[sweepKey]struct{}),
	}
}

// HandleBalanceChange triggers a sweep when a borrower's balance grows.
// Repayment debits themselves are skipped or sweeps would trigger sweeps.
func (s *AutoRepayService) HandleBalanceChange(ctx context.Context, event events.Event) {
	e, ok := event.(events.BalanceChangeEvent)
	if !ok {
		return
	}
	if e.ChangeAmount <= 0 {
		return
	}
	if e.TransactionType == models.TransactionTypeLoanCollection {
		return
	}
	s.SweepBorrower(ctx, e.GuildID, e.DiscordID)
}

// SweepBorrower runs one repayment sweep for the borrower. Returns without
// doing anything when a sweep for the same borrower is already in flight.
func (s *AutoRepayService) SweepBorrower(ctx context.Context, guildID, borrowerID int64) {
	key := sweepKey{guildID: guildID, borrowerID: borrowerID}

	s.mu.Lock()
	if _, busy := s.inFlight[key]; busy {
		s.mu.Unlock()
		return
	}
	s.inFlight[key] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}()

	if err := s.sweep(ctx, guildID, borrowerID); err != nil {
		log.Errorf("Error sweeping repayments for borrower %d in guild %d: %v", borrowerID, guildID, err)
	}
}

func (s *AutoRepayService) sweep(ctx context.Context, guildID, borrowerID int64) error {
	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	account, err := uow.AccountRepository().GetByDiscordID(ctx, borrowerID)
	if err != nil {
		uow.Rollback()
		return err
	}
	var available int64
	if account != nil {
		available = account.Balance
	}

	due, err := uow.LoanRepository().GetRepayableByBorrower(ctx, borrowerID, time.Now())
	uow.Rollback()
	if err != nil {
		return err
	}

	if available <= 0 || len(due) == 0 {
		return nil
	}

	var swept int64
	for _, loan := range due {
		if available <= 0 {
			break
		}
		payment := loan.Remaining()
		if payment > available {
			payment = available
		}
		if payment <= 0 {
			continue
		}

		if _, err := s.loans.RepayLoan(ctx, guildID, loan.ID, borrowerID, payment); err != nil {
			// The balance moved under us; a later trigger retries.
			if errors.Is(err, models.ErrInsufficientFunds) {
				break
			}
			// Another actor touched this loan concurrently; try the next one.
			var invalidState *models.InvalidStateError
			if errors.As(err, &invalidState) || errors.Is(err, models.ErrAmountOutOfRange) {
				continue
			}
			return err
		}
		available -= payment
		swept += payment
	}

	if swept > 0 {
		log.WithFields(log.Fields{
			"guildId":    guildID,
			"borrowerId": borrowerID,
			"amount":     swept,
			"loans":      len(due),
		}).Info("Auto-repayment sweep applied")
	}
	return nil
}
