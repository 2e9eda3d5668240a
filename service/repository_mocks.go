package service

import (
	"context"
	"time"

	"banker/events"
	"banker/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByDiscordID(ctx context.Context, discordID int64) (*models.Account, error) {
	args := m.Called(ctx, discordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, discordID int64, initialBalance int64) (*models.Account, error) {
	args := m.Called(ctx, discordID, initialBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) AdjustBalance(ctx context.Context, discordID int64, delta int64, requireNonNegative bool) (int64, error) {
	args := m.Called(ctx, discordID, delta, requireNonNegative)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAccountRepository) ResetWithdrawWindowIfExpired(ctx context.Context, discordID int64, cutoff time.Time) error {
	args := m.Called(ctx, discordID, cutoff)
	return args.Error(0)
}

func (m *MockAccountRepository) RecordWithdrawal(ctx context.Context, discordID int64, amount int64, now time.Time) error {
	args := m.Called(ctx, discordID, amount, now)
	return args.Error(0)
}

func (m *MockAccountRepository) SetCustomWithdrawLimit(ctx context.Context, discordID int64, limit int64) error {
	args := m.Called(ctx, discordID, limit)
	return args.Error(0)
}

// MockLoanRepository is a mock implementation of LoanRepository
type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *models.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetByUser(ctx context.Context, discordID int64) ([]*models.Loan, error) {
	args := m.Called(ctx, discordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetRepayableByBorrower(ctx context.Context, borrowerID int64, now time.Time) ([]*models.Loan, error) {
	args := m.Called(ctx, borrowerID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetActive(ctx context.Context) ([]*models.Loan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetActivePastDue(ctx context.Context, now time.Time) ([]*models.Loan, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetOverdueWithFutureDue(ctx context.Context, now time.Time) ([]*models.Loan, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetPendingBefore(ctx context.Context, cutoff time.Time) ([]*models.Loan, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) HasPendingOfferBetween(ctx context.Context, lenderID, borrowerID int64) (bool, error) {
	args := m.Called(ctx, lenderID, borrowerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLoanRepository) Activate(ctx context.Context, id uuid.UUID, acceptedAt, dueAt time.Time) (bool, error) {
	args := m.Called(ctx, id, acceptedAt, dueAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockLoanRepository) MarkOverdue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockLoanRepository) Reactivate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockLoanRepository) ApplyPayment(ctx context.Context, id uuid.UUID, amount int64) (*models.Loan, error) {
	args := m.Called(ctx, id, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockLoanRepository) DeletePaidBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLoanRepository) GetGuildsWithLoans(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	return args.Get(0).([]int64), args.Error(1)
}

// MockWithdrawalCounterRepository is a mock implementation of WithdrawalCounterRepository
type MockWithdrawalCounterRepository struct {
	mock.Mock
}

func (m *MockWithdrawalCounterRepository) GetOrCreate(ctx context.Context) (*models.WithdrawalCounter, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalCounter), args.Error(1)
}

func (m *MockWithdrawalCounterRepository) ResetIfExpired(ctx context.Context, cutoff time.Time, now time.Time) error {
	args := m.Called(ctx, cutoff, now)
	return args.Error(0)
}

func (m *MockWithdrawalCounterRepository) RecordWithdrawal(ctx context.Context, amount int64) error {
	args := m.Called(ctx, amount)
	return args.Error(0)
}

func (m *MockWithdrawalCounterRepository) SetTemporaryLimitIncrease(ctx context.Context, increase int64) error {
	args := m.Called(ctx, increase)
	return args.Error(0)
}

// MockBalanceHistoryRepository is a mock implementation of BalanceHistoryRepository
type MockBalanceHistoryRepository struct {
	mock.Mock
}

func (m *MockBalanceHistoryRepository) Record(ctx context.Context, history *models.BalanceHistory) error {
	args := m.Called(ctx, history)
	return args.Error(0)
}

func (m *MockBalanceHistoryRepository) GetByUser(ctx context.Context, discordID int64, limit int) ([]*models.BalanceHistory, error) {
	args := m.Called(ctx, discordID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BalanceHistory), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository getters
// hand back whatever SetRepositories installed; Begin/Commit/Rollback go
// through testify expectations.
type MockUnitOfWork struct {
	mock.Mock
	accountRepo AccountRepository
	loanRepo    LoanRepository
	counterRepo WithdrawalCounterRepository
	historyRepo BalanceHistoryRepository
	eventBus    EventPublisher
}

// SetRepositories installs the repositories the getters return. A nil event
// publisher gets a bus with no subscribers, so services can publish freely.
func (m *MockUnitOfWork) SetRepositories(accounts AccountRepository, loans LoanRepository, counters WithdrawalCounterRepository, history BalanceHistoryRepository, bus EventPublisher) {
	m.accountRepo = accounts
	m.loanRepo = loans
	m.counterRepo = counters
	m.historyRepo = history
	if bus == nil {
		bus = events.NewTransactionalBus(events.NewBus())
	}
	m.eventBus = bus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) AccountRepository() AccountRepository {
	return m.accountRepo
}

func (m *MockUnitOfWork) LoanRepository() LoanRepository {
	return m.loanRepo
}

func (m *MockUnitOfWork) WithdrawalCounterRepository() WithdrawalCounterRepository {
	return m.counterRepo
}

func (m *MockUnitOfWork) BalanceHistoryRepository() BalanceHistoryRepository {
	return m.historyRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) CreateForGuild(guildID int64) UnitOfWork {
	args := m.Called(guildID)
	return args.Get(0).(UnitOfWork)
}
