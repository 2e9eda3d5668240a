package testutil

import (
	"time"

	"banker/models"

	"github.com/google/uuid"
)

// CreateTestLoan creates a pending test loan with default values
func CreateTestLoan(guildID, lenderID, borrowerID int64) *models.Loan {
	return &models.Loan{
		ID:                uuid.New(),
		GuildID:           guildID,
		LenderDiscordID:   lenderID,
		BorrowerDiscordID: borrowerID,
		LoanAmount:        1000,
		PaybackAmount:     1200,
		DurationMs:        (24 * time.Hour).Milliseconds(),
		Status:            models.LoanStatusPending,
	}
}

// CreateTestLoanWithTerms creates a pending test loan with specific terms
func CreateTestLoanWithTerms(guildID, lenderID, borrowerID int64, amount, payback int64, duration time.Duration) *models.Loan {
	loan := CreateTestLoan(guildID, lenderID, borrowerID)
	loan.LoanAmount = amount
	loan.PaybackAmount = payback
	loan.DurationMs = duration.Milliseconds()
	return loan
}

// CreateTestBalanceHistory creates a test balance history entry
func CreateTestBalanceHistory(guildID, discordID int64, transactionType models.TransactionType) *models.BalanceHistory {
	return &models.BalanceHistory{
		GuildID:         guildID,
		DiscordID:       discordID,
		BalanceBefore:   100,
		BalanceAfter:    90,
		ChangeAmount:    -10,
		TransactionType: transactionType,
		TransactionMetadata: map[string]any{
			"test": true,
		},
	}
}
