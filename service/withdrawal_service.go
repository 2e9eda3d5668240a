package service

import (
	"context"
	"fmt"
	"time"

	"banker/models"
)

// withdrawWindow is the rolling quota period. It resets a fixed interval
// after first use, not at a calendar boundary.
const withdrawWindow = 7 * 24 * time.Hour

type withdrawalService struct {
	uowFactory       UnitOfWorkFactory
	userWeeklyLimit  int64
	guildWeeklyLimit int64
}

// NewWithdrawalService creates a new withdrawal service
func NewWithdrawalService(uowFactory UnitOfWorkFactory, userWeeklyLimit, guildWeeklyLimit int64) WithdrawalService {
	return &withdrawalService{
		uowFactory:       uowFactory,
		userWeeklyLimit:  userWeeklyLimit,
		guildWeeklyLimit: guildWeeklyLimit,
	}
}

// CanWithdraw checks the per-user quota first, then the guild-wide quota,
// resetting any expired rolling window before checking. The returned check
// carries the remaining headroom of the first limit that would be exceeded.
func (s *withdrawalService) CanWithdraw(ctx context.Context, guildID, discordID int64, amount int64) (*models.WithdrawalCheck, error) {
	if amount <= 0 {
		return nil, models.ErrAmountOutOfRange
	}

	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	check, err := s.checkWithin(ctx, uow, discordID, amount, time.Now())
	if err != nil {
		return nil, err
	}

	// Window resets performed during the check must stick.
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return check, nil
}

// Withdraw validates the quota, debits the balance, and commits usage against
// both counters inside a single transaction. Running check and commit in one
// unit of work closes the gap where another trigger could slip between them.
func (s *withdrawalService) Withdraw(ctx context.Context, guildID, discordID int64, amount int64) (*models.AdjustResult, error) {
	if amount <= 0 {
		return nil, models.ErrAmountOutOfRange
	}

	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	now := time.Now()
	check, err := s.checkWithin(ctx, uow, discordID, amount, now)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		return nil, &models.LimitExceededError{Scope: check.Scope, Remaining: check.Remaining}
	}

	newBalance, err := uow.AccountRepository().AdjustBalance(ctx, discordID, -amount, true)
	if err != nil {
		return nil, err
	}

	if err := uow.AccountRepository().RecordWithdrawal(ctx, discordID, amount, now); err != nil {
		return nil, err
	}
	if err := uow.WithdrawalCounterRepository().RecordWithdrawal(ctx, amount); err != nil {
		return nil, err
	}

	history := &models.BalanceHistory{
		DiscordID:       discordID,
		BalanceBefore:   newBalance + amount,
		BalanceAfter:    newBalance,
		ChangeAmount:    -amount,
		TransactionType: models.TransactionTypeWithdrawal,
	}
	if err := RecordBalanceChange(ctx, uow, guildID, history); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.AdjustResult{
		DiscordID:  discordID,
		Delta:      -amount,
		NewBalance: newBalance,
	}, nil
}

func (s *withdrawalService) checkWithin(ctx context.Context, uow UnitOfWork, discordID int64, amount int64, now time.Time) (*models.WithdrawalCheck, error) {
	cutoff := now.Add(-withdrawWindow)

	if err := uow.AccountRepository().ResetWithdrawWindowIfExpired(ctx, discordID, cutoff); err != nil {
		return nil, err
	}

	account, err := uow.AccountRepository().GetByDiscordID(ctx, discordID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, models.ErrAccountNotFound
	}

	userLimit := s.userWeeklyLimit + account.CustomWithdrawLimit
	if account.WeeklyWithdrawAmount+amount > userLimit {
		remaining := userLimit - account.WeeklyWithdrawAmount
		if remaining < 0 {
			remaining = 0
		}
		return &models.WithdrawalCheck{Allowed: false, Scope: models.LimitScopeUser, Remaining: remaining}, nil
	}

	if err := uow.WithdrawalCounterRepository().ResetIfExpired(ctx, cutoff, now); err != nil {
		return nil, err
	}

	counter, err := uow.WithdrawalCounterRepository().GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	guildLimit := s.guildWeeklyLimit + counter.TemporaryLimitIncrease
	if counter.TotalWithdrawnThisWeek+amount > guildLimit {
		remaining := guildLimit - counter.TotalWithdrawnThisWeek
		if remaining < 0 {
			remaining = 0
		}
		return &models.WithdrawalCheck{Allowed: false, Scope: models.LimitScopeGlobal, Remaining: remaining}, nil
	}

	return &models.WithdrawalCheck{Allowed: true}, nil
}

// GrantWithdrawBonus sets an account's signed adjustment to the weekly cap
func (s *withdrawalService) GrantWithdrawBonus(ctx context.Context, guildID, discordID int64, bonus int64) error {
	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.AccountRepository().SetCustomWithdrawLimit(ctx, discordID, bonus); err != nil {
		return err
	}

	return uow.Commit()
}

// RaiseGlobalLimit sets the guild counter's temporary limit increase
func (s *withdrawalService) RaiseGlobalLimit(ctx context.Context, guildID int64, increase int64) error {
	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.WithdrawalCounterRepository().SetTemporaryLimitIncrease(ctx, increase); err != nil {
		return err
	}

	return uow.Commit()
}
