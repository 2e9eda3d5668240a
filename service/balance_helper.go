package service

import (
	"context"
	"fmt"

	"banker/events"
	"banker/models"
)

// RecordBalanceChange records a balance history entry and emits the balance
// change notification. This is the single entry point for all balance changes
// in the system; the event is flushed only after the transaction commits.
func RecordBalanceChange(ctx context.Context, uow UnitOfWork, guildID int64, history *models.BalanceHistory) error {
	if err := uow.BalanceHistoryRepository().Record(ctx, history); err != nil {
		return fmt.Errorf("failed to record balance history: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		DiscordID:       history.DiscordID,
		GuildID:         guildID,
		OldBalance:      history.BalanceBefore,
		NewBalance:      history.BalanceAfter,
		TransactionType: history.TransactionType,
		ChangeAmount:    history.ChangeAmount,
	})

	if history.TransactionType == models.TransactionTypeInitial {
		uow.EventBus().Publish(events.AccountCreatedEvent{
			DiscordID:      history.DiscordID,
			GuildID:        guildID,
			InitialBalance: history.BalanceAfter,
		})
	}

	return nil
}

func loanRelated(loan *models.Loan) (*string, *models.RelatedType) {
	id := loan.ID.String()
	related := models.RelatedTypeLoan
	return &id, &related
}
