package service

import (
	"context"
	"sync"
	"time"

	"banker/events"
	"banker/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	// pendingOfferTTL is how long an unanswered loan offer survives.
	pendingOfferTTL = 12 * time.Hour

	// paidLoanRetention is how long settled loans stay queryable before
	// housekeeping removes them.
	paidLoanRetention = 30 * 24 * time.Hour

	// sweepInterval drives the backstop, offer-expiry, and correction sweeps.
	sweepInterval = 1 * time.Hour
)

// LoanScheduler arms a timer per active loan and runs the periodic sweeps
// that keep loan state honest: a backstop for missed deadlines, expiry of
// stale pending offers, correction of loans wrongly marked overdue, and
// housekeeping of old paid loans. Timers are process-local; the sweeps and
// startup reconciliation recover whatever a restart dropped.
type LoanScheduler struct {
	uowFactory UnitOfWorkFactory
	loans      LoanService

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

// NewLoanScheduler creates a new loan scheduler. SetLoanService must be
// called before Start; the mutual dependency between scheduler and loan
// service is resolved at wiring time.
func NewLoanScheduler(uowFactory UnitOfWorkFactory) *LoanScheduler {
	return &LoanScheduler{
		uowFactory: uowFactory,
		timers:     make(map[uuid.UUID]*time.Timer),
	}
}

// SetLoanService binds the loan service used to apply overdue transitions
func (s *LoanScheduler) SetLoanService(loans LoanService) {
	s.loans = loans
}

// Register arms a timer for the loan's due date, replacing any existing
// timer for the same loan. A loan already past due fires immediately.
func (s *LoanScheduler) Register(loan *models.Loan) {
	if loan.DueAt == nil {
		return
	}

	guildID := loan.GuildID
	loanID := loan.ID
	delay := time.Until(*loan.DueAt)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[loanID]; ok {
		existing.Stop()
	}

	if delay <= 0 {
		delete(s.timers, loanID)
		go s.fire(guildID, loanID)
		return
	}

	s.timers[loanID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, loanID)
		s.mu.Unlock()
		s.fire(guildID, loanID)
	})

	log.WithFields(log.Fields{
		"loanId": loanID,
		"dueIn":  delay,
	}).Debug("Armed deadline timer for loan")
}

// fire applies the overdue transition for one loan. The transition predicate
// lives in the store, so a timer that outlived its loan is a harmless no-op.
func (s *LoanScheduler) fire(guildID int64, loanID uuid.UUID) {
	transitioned, err := s.loans.MarkOverdue(context.Background(), guildID, loanID)
	if err != nil {
		log.Errorf("Error marking loan %s overdue for guild %d: %v", loanID, guildID, err)
		return
	}
	if transitioned {
		log.WithFields(log.Fields{
			"loanId":  loanID,
			"guildId": guildID,
		}).Info("Loan deadline elapsed, marked overdue")
	}
}

// Start reconciles timers against the store, runs one sweep immediately, and
// then sweeps on a fixed interval. Returns a cleanup function to stop the
// scheduler gracefully.
func (s *LoanScheduler) Start(ctx context.Context) func() {
	ticker := time.NewTicker(sweepInterval)
	stopChan := make(chan struct{})

	go func() {
		log.Info("Loan scheduler started")

		// Rebuild timers lost to the last shutdown, then sweep once so
		// deadlines that elapsed while down are applied right away.
		s.reconcile()
		s.sweep()

		for {
			select {
			case <-ctx.Done():
				log.Info("Loan scheduler shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Loan scheduler shutting down (stop requested)...")
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(stopChan)
		s.stopAllTimers()
	}
}

func (s *LoanScheduler) stopAllTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// reconcile arms a timer for every active loan in every guild
func (s *LoanScheduler) reconcile() {
	for _, guildID := range s.guildsWithLoans() {
		uow := s.uowFactory.CreateForGuild(guildID)
		if err := uow.Begin(context.Background()); err != nil {
			log.Errorf("Error beginning transaction for guild %d loan reconciliation: %v", guildID, err)
			continue
		}

		active, err := uow.LoanRepository().GetActive(context.Background())
		uow.Rollback()
		if err != nil {
			log.Errorf("Error loading active loans for guild %d: %v", guildID, err)
			continue
		}

		for _, loan := range active {
			s.Register(loan)
		}
		if len(active) > 0 {
			log.Infof("Reconciled %d loan deadline timers for guild %d", len(active), guildID)
		}
	}
}

// sweep runs all periodic maintenance passes across every guild with loans
func (s *LoanScheduler) sweep() {
	now := time.Now()
	for _, guildID := range s.guildsWithLoans() {
		s.backstopOverdue(guildID, now)
		s.expirePendingOffers(guildID, now)
		s.correctOverdue(guildID, now)
		s.purgePaid(guildID, now)
	}
}

func (s *LoanScheduler) guildsWithLoans() []int64 {
	tempUow := s.uowFactory.CreateForGuild(0)
	if err := tempUow.Begin(context.Background()); err != nil {
		log.Errorf("Error beginning transaction to get guild list: %v", err)
		return nil
	}

	guildIDs, err := tempUow.LoanRepository().GetGuildsWithLoans(context.Background())
	tempUow.Rollback()
	if err != nil {
		log.Errorf("Error getting guilds with loans: %v", err)
		return nil
	}
	return guildIDs
}

// backstopOverdue catches active loans whose deadline elapsed without a
// timer firing, e.g. after a crash between reconciliations.
func (s *LoanScheduler) backstopOverdue(guildID int64, now time.Time) {
	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(context.Background()); err != nil {
		log.Errorf("Error beginning transaction for guild %d overdue backstop: %v", guildID, err)
		return
	}

	pastDue, err := uow.LoanRepository().GetActivePastDue(context.Background(), now)
	uow.Rollback()
	if err != nil {
		log.Errorf("Error loading past-due loans for guild %d: %v", guildID, err)
		return
	}

	for _, loan := range pastDue {
		if _, err := s.loans.MarkOverdue(context.Background(), guildID, loan.ID); err != nil {
			log.Errorf("Error backstopping overdue loan %s for guild %d: %v", loan.ID, guildID, err)
		}
	}
}

// expirePendingOffers removes offers that sat unanswered past the TTL
func (s *LoanScheduler) expirePendingOffers(guildID int64, now time.Time) {
	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(context.Background()); err != nil {
		log.Errorf("Error beginning transaction for guild %d offer expiry: %v", guildID, err)
		return
	}
	defer uow.Rollback() // No-op if already committed

	stale, err := uow.LoanRepository().GetPendingBefore(context.Background(), now.Add(-pendingOfferTTL))
	if err != nil {
		log.Errorf("Error loading stale loan offers for guild %d: %v", guildID, err)
		return
	}

	for _, loan := range stale {
		if err := uow.LoanRepository().Delete(context.Background(), loan.ID); err != nil {
			log.Errorf("Error expiring loan offer %s for guild %d: %v", loan.ID, guildID, err)
			return
		}
		uow.EventBus().Publish(events.LoanStateChangeEvent{
			LoanID:            loan.ID,
			GuildID:           guildID,
			LenderDiscordID:   loan.LenderDiscordID,
			BorrowerDiscordID: loan.BorrowerDiscordID,
			Transition:        events.LoanTransitionExpired,
			OldStatus:         models.LoanStatusPending,
			Amount:            loan.LoanAmount,
		})
	}

	if err := uow.Commit(); err != nil {
		log.Errorf("Error committing offer expiry for guild %d: %v", guildID, err)
		return
	}
	if len(stale) > 0 {
		log.Infof("Expired %d stale loan offers for guild %d", len(stale), guildID)
	}
}

// correctOverdue demotes loans marked overdue whose due date is still ahead.
// That state only arises from operator intervention or clock trouble, but
// leaving it uncorrected would charge borrowers for a deadline that never
// elapsed.
func (s *LoanScheduler) correctOverdue(guildID int64, now time.Time) {
	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(context.Background()); err != nil {
		log.Errorf("Error beginning transaction for guild %d overdue correction: %v", guildID, err)
		return
	}
	defer uow.Rollback() // No-op if already committed

	wrong, err := uow.LoanRepository().GetOverdueWithFutureDue(context.Background(), now)
	if err != nil {
		log.Errorf("Error loading wrongly-overdue loans for guild %d: %v", guildID, err)
		return
	}

	var corrected []*models.Loan
	for _, loan := range wrong {
		reactivated, err := uow.LoanRepository().Reactivate(context.Background(), loan.ID, now)
		if err != nil {
			log.Errorf("Error reactivating loan %s for guild %d: %v", loan.ID, guildID, err)
			return
		}
		if !reactivated {
			continue
		}
		loan.Status = models.LoanStatusActive
		corrected = append(corrected, loan)
		uow.EventBus().Publish(events.LoanStateChangeEvent{
			LoanID:            loan.ID,
			GuildID:           guildID,
			LenderDiscordID:   loan.LenderDiscordID,
			BorrowerDiscordID: loan.BorrowerDiscordID,
			Transition:        events.LoanTransitionCorrected,
			OldStatus:         models.LoanStatusOverdue,
			NewStatus:         models.LoanStatusActive,
			Amount:            loan.Remaining(),
		})
	}

	if err := uow.Commit(); err != nil {
		log.Errorf("Error committing overdue correction for guild %d: %v", guildID, err)
		return
	}

	// Re-arm timers for the restored due dates.
	for _, loan := range corrected {
		s.Register(loan)
	}
	if len(corrected) > 0 {
		log.Infof("Corrected %d wrongly-overdue loans for guild %d", len(corrected), guildID)
	}
}

// purgePaid removes settled loans past the retention period
func (s *LoanScheduler) purgePaid(guildID int64, now time.Time) {
	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(context.Background()); err != nil {
		log.Errorf("Error beginning transaction for guild %d paid-loan housekeeping: %v", guildID, err)
		return
	}
	defer uow.Rollback() // No-op if already committed

	removed, err := uow.LoanRepository().DeletePaidBefore(context.Background(), now.Add(-paidLoanRetention))
	if err != nil {
		log.Errorf("Error purging paid loans for guild %d: %v", guildID, err)
		return
	}

	if err := uow.Commit(); err != nil {
		log.Errorf("Error committing paid-loan housekeeping for guild %d: %v", guildID, err)
		return
	}
	if removed > 0 {
		log.Infof("Purged %d paid loans for guild %d", removed, guildID)
	}
}
