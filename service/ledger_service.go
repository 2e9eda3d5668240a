package service

import (
	"context"
	"errors"
	"fmt"

	"banker/models"
)

type ledgerService struct {
	uowFactory UnitOfWorkFactory
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory) LedgerService {
	return &ledgerService{
		uowFactory: uowFactory,
	}
}

// AdjustBalance applies a signed delta to one account as a single conditional
// update. The repository never overdraws when RequireNonNegative is set, so
// concurrent debits serialize at the store and the loser fails closed.
func (s *ledgerService) AdjustBalance(ctx context.Context, guildID, discordID int64, delta int64, opts AdjustOptions) (*models.AdjustResult, error) {
	if delta == 0 {
		return nil, models.ErrAmountOutOfRange
	}
	if opts.TransactionType == "" {
		opts.TransactionType = models.TransactionTypeAdminAdjustment
	}

	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	newBalance, err := uow.AccountRepository().AdjustBalance(ctx, discordID, delta, opts.RequireNonNegative)
	if err != nil {
		return nil, err
	}

	history := &models.BalanceHistory{
		DiscordID:           discordID,
		BalanceBefore:       newBalance - delta,
		BalanceAfter:        newBalance,
		ChangeAmount:        delta,
		TransactionType:     opts.TransactionType,
		TransactionMetadata: opts.Metadata,
	}
	if err := RecordBalanceChange(ctx, uow, guildID, history); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.AdjustResult{
		DiscordID:  discordID,
		Delta:      delta,
		NewBalance: newBalance,
	}, nil
}

// Transfer moves amount between two accounts. The debit leg is a conditional
// update that fails closed on insufficient funds; the credit leg runs only
// after the debit succeeded. Both legs share one unit of work, so a vanished
// recipient rolls the debit back and nothing is ever stranded mid-transfer.
func (s *ledgerService) Transfer(ctx context.Context, guildID, fromDiscordID, toDiscordID int64, amount int64) (*models.TransferResult, error) {
	if amount <= 0 {
		return nil, models.ErrAmountOutOfRange
	}
	if fromDiscordID == toDiscordID {
		return nil, models.ErrAmountOutOfRange
	}

	uow := s.uowFactory.CreateForGuild(guildID)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	result, err := transferWithin(ctx, uow, guildID, fromDiscordID, toDiscordID, amount,
		models.TransactionTypeTransferOut, models.TransactionTypeTransferIn, nil)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// transferWithin performs the debit/credit pair inside an already-open unit
// of work. The loan engine reuses it so that a loan acceptance or repayment
// carries its own transaction types and loan reference.
func transferWithin(ctx context.Context, uow UnitOfWork, guildID, fromDiscordID, toDiscordID int64, amount int64,
	debitType, creditType models.TransactionType, loan *models.Loan) (*models.TransferResult, error) {

	newFromBalance, err := uow.AccountRepository().AdjustBalance(ctx, fromDiscordID, -amount, true)
	if err != nil {
		return nil, err
	}

	newToBalance, err := uow.AccountRepository().AdjustBalance(ctx, toDiscordID, amount, false)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			// Rolling back the unit of work refunds the debit; the caller
			// learns the recipient side specifically failed.
			return nil, models.ErrRecipientGone
		}
		return nil, err
	}

	var relatedID *string
	var relatedType *models.RelatedType
	metadata := map[string]any{"transfer_amount": amount}
	if loan != nil {
		relatedID, relatedType = loanRelated(loan)
		metadata["loan_id"] = loan.ID.String()
	}

	fromHistory := &models.BalanceHistory{
		DiscordID:           fromDiscordID,
		BalanceBefore:       newFromBalance + amount,
		BalanceAfter:        newFromBalance,
		ChangeAmount:        -amount,
		TransactionType:     debitType,
		TransactionMetadata: metadata,
		RelatedID:           relatedID,
		RelatedType:         relatedType,
	}
	if err := RecordBalanceChange(ctx, uow, guildID, fromHistory); err != nil {
		return nil, err
	}

	toHistory := &models.BalanceHistory{
		DiscordID:           toDiscordID,
		BalanceBefore:       newToBalance - amount,
		BalanceAfter:        newToBalance,
		ChangeAmount:        amount,
		TransactionType:     creditType,
		TransactionMetadata: metadata,
		RelatedID:           relatedID,
		RelatedType:         relatedType,
	}
	if err := RecordBalanceChange(ctx, uow, guildID, toHistory); err != nil {
		return nil, err
	}

	return &models.TransferResult{
		Amount:         amount,
		FromDiscordID:  fromDiscordID,
		ToDiscordID:    toDiscordID,
		NewFromBalance: newFromBalance,
		NewToBalance:   newToBalance,
	}, nil
}
