package service

import (
	"testing"
	"time"

	"banker/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestLoanScheduler_Register_FiresAtDeadline(t *testing.T) {
	mockFactory := new(MockUnitOfWorkFactory)
	mockLoans := new(MockLoanService)

	scheduler := NewLoanScheduler(mockFactory)
	scheduler.SetLoanService(mockLoans)

	due := time.Now().Add(50 * time.Millisecond)
	loan := &models.Loan{
		ID:      uuid.New(),
		GuildID: 777,
		Status:  models.LoanStatusActive,
		DueAt:   &due,
	}

	fired := make(chan struct{})
	mockLoans.On("MarkOverdue", mock.Anything, int64(777), loan.ID).
		Run(func(args mock.Arguments) { close(fired) }).
		Return(true, nil).Once()

	scheduler.Register(loan)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire for due loan")
	}
	mockLoans.AssertExpectations(t)
}

func TestLoanScheduler_Register_PastDueFiresImmediately(t *testing.T) {
	mockFactory := new(MockUnitOfWorkFactory)
	mockLoans := new(MockLoanService)

	scheduler := NewLoanScheduler(mockFactory)
	scheduler.SetLoanService(mockLoans)

	due := time.Now().Add(-time.Hour)
	loan := &models.Loan{
		ID:      uuid.New(),
		GuildID: 777,
		Status:  models.LoanStatusActive,
		DueAt:   &due,
	}

	fired := make(chan struct{})
	mockLoans.On("MarkOverdue", mock.Anything, int64(777), loan.ID).
		Run(func(args mock.Arguments) { close(fired) }).
		Return(true, nil).Once()

	scheduler.Register(loan)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("past-due loan was not processed immediately")
	}
}

func TestLoanScheduler_Register_NoDueDate(t *testing.T) {
	mockFactory := new(MockUnitOfWorkFactory)
	mockLoans := new(MockLoanService)

	scheduler := NewLoanScheduler(mockFactory)
	scheduler.SetLoanService(mockLoans)

	// A pending loan has no deadline yet
	scheduler.Register(&models.Loan{
		ID:      uuid.New(),
		GuildID: 777,
		Status:  models.LoanStatusPending,
	})

	time.Sleep(50 * time.Millisecond)
	mockLoans.AssertNotCalled(t, "MarkOverdue")
}

func TestLoanScheduler_Register_ReplacesTimer(t *testing.T) {
	mockFactory := new(MockUnitOfWorkFactory)
	mockLoans := new(MockLoanService)

	scheduler := NewLoanScheduler(mockFactory)
	scheduler.SetLoanService(mockLoans)

	id := uuid.New()
	early := time.Now().Add(60 * time.Millisecond)
	late := time.Now().Add(10 * time.Minute)

	mockLoans.On("MarkOverdue", mock.Anything, int64(777), id).Return(true, nil)

	scheduler.Register(&models.Loan{ID: id, GuildID: 777, DueAt: &early})
	// Re-registering with a pushed-out deadline disarms the earlier timer
	scheduler.Register(&models.Loan{ID: id, GuildID: 777, DueAt: &late})

	time.Sleep(200 * time.Millisecond)
	mockLoans.AssertNotCalled(t, "MarkOverdue")
}

func TestLoanScheduler_Sweep_ExpiresStaleOffers(t *testing.T) {
	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockLoanRepo := new(MockLoanRepository)
	mockLoans := new(MockLoanService)

	mockUoW.SetRepositories(nil, mockLoanRepo, nil, nil, nil)

	scheduler := NewLoanScheduler(mockFactory)
	scheduler.SetLoanService(mockLoans)

	stale := &models.Loan{
		ID:                uuid.New(),
		GuildID:           777,
		LenderDiscordID:   111,
		BorrowerDiscordID: 222,
		LoanAmount:        1000,
		PaybackAmount:     1200,
		Status:            models.LoanStatusPending,
		CreatedAt:         time.Now().Add(-13 * time.Hour),
	}

	mockFactory.On("CreateForGuild", mock.AnythingOfType("int64")).Return(mockUoW)
	mockUoW.On("Begin", mock.Anything).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockLoanRepo.On("GetGuildsWithLoans", mock.Anything).Return([]int64{777}, nil)
	mockLoanRepo.On("GetActivePastDue", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Loan{}, nil)
	mockLoanRepo.On("GetOverdueWithFutureDue", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Loan{}, nil)
	mockLoanRepo.On("DeletePaidBefore", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(0), nil)

	// The offer sat unanswered past the TTL; the cutoff passed to the query
	// must trail now by exactly that TTL
	mockLoanRepo.On("GetPendingBefore", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		return time.Since(cutoff) >= pendingOfferTTL-time.Minute &&
			time.Since(cutoff) <= pendingOfferTTL+time.Minute
	})).Return([]*models.Loan{stale}, nil)
	mockLoanRepo.On("Delete", mock.Anything, stale.ID).Return(nil)

	scheduler.sweep()

	mockLoanRepo.AssertExpectations(t)
}

func TestLoanScheduler_Sweep_CorrectsWronglyOverdue(t *testing.T) {
	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockLoanRepo := new(MockLoanRepository)
	mockLoans := new(MockLoanService)

	mockUoW.SetRepositories(nil, mockLoanRepo, nil, nil, nil)

	scheduler := NewLoanScheduler(mockFactory)
	scheduler.SetLoanService(mockLoans)

	futureDue := time.Now().Add(3 * time.Hour)
	wrong := &models.Loan{
		ID:                uuid.New(),
		GuildID:           777,
		LenderDiscordID:   111,
		BorrowerDiscordID: 222,
		LoanAmount:        1000,
		PaybackAmount:     1200,
		Status:            models.LoanStatusOverdue,
		DueAt:             &futureDue,
	}

	mockFactory.On("CreateForGuild", mock.AnythingOfType("int64")).Return(mockUoW)
	mockUoW.On("Begin", mock.Anything).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockLoanRepo.On("GetGuildsWithLoans", mock.Anything).Return([]int64{777}, nil)
	mockLoanRepo.On("GetActivePastDue", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Loan{}, nil)
	mockLoanRepo.On("GetPendingBefore", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Loan{}, nil)
	mockLoanRepo.On("DeletePaidBefore", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(0), nil)

	mockLoanRepo.On("GetOverdueWithFutureDue", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]*models.Loan{wrong}, nil)
	mockLoanRepo.On("Reactivate", mock.Anything, wrong.ID, mock.AnythingOfType("time.Time")).Return(true, nil)

	scheduler.sweep()

	mockLoanRepo.AssertExpectations(t)
	// The restored loan gets its timer re-armed for the future due date
	scheduler.mu.Lock()
	_, armed := scheduler.timers[wrong.ID]
	scheduler.mu.Unlock()
	assert.True(t, armed)
}

func TestLoanScheduler_Sweep_BackstopsMissedDeadlines(t *testing.T) {
	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockLoanRepo := new(MockLoanRepository)
	mockLoans := new(MockLoanService)

	mockUoW.SetRepositories(nil, mockLoanRepo, nil, nil, nil)

	scheduler := NewLoanScheduler(mockFactory)
	scheduler.SetLoanService(mockLoans)

	pastDue := time.Now().Add(-2 * time.Hour)
	missed := &models.Loan{
		ID:      uuid.New(),
		GuildID: 777,
		Status:  models.LoanStatusActive,
		DueAt:   &pastDue,
	}

	mockFactory.On("CreateForGuild", mock.AnythingOfType("int64")).Return(mockUoW)
	mockUoW.On("Begin", mock.Anything).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockLoanRepo.On("GetGuildsWithLoans", mock.Anything).Return([]int64{777}, nil)
	mockLoanRepo.On("GetActivePastDue", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]*models.Loan{missed}, nil)
	mockLoanRepo.On("GetPendingBefore", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Loan{}, nil)
	mockLoanRepo.On("GetOverdueWithFutureDue", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Loan{}, nil)
	mockLoanRepo.On("DeletePaidBefore", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(0), nil)

	mockLoans.On("MarkOverdue", mock.Anything, int64(777), missed.ID).Return(true, nil).Once()

	scheduler.sweep()

	mockLoans.AssertExpectations(t)
}
