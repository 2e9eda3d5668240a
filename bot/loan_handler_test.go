package bot

import (
	"testing"

	"banker/events"
	"banker/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanStateNotices_ExpiredNotifiesBothParties(t *testing.T) {
	e := events.LoanStateChangeEvent{
		LoanID:            uuid.New(),
		GuildID:           777,
		LenderDiscordID:   100,
		BorrowerDiscordID: 200,
		Transition:        events.LoanTransitionExpired,
		OldStatus:         models.LoanStatusPending,
		Amount:            1000,
	}

	notices := loanStateNotices(e)
	require.Len(t, notices, 2)

	recipients := []int64{notices[0].recipient, notices[1].recipient}
	assert.ElementsMatch(t, []int64{100, 200}, recipients)
	for _, n := range notices {
		assert.Contains(t, n.message, "expired")
		assert.Contains(t, n.message, "1,000")
	}
}

func TestLoanStateNotices_SingleRecipientTransitions(t *testing.T) {
	base := events.LoanStateChangeEvent{
		LoanID:            uuid.New(),
		GuildID:           777,
		LenderDiscordID:   100,
		BorrowerDiscordID: 200,
		Amount:            1200,
	}

	tests := []struct {
		name       string
		transition events.LoanTransition
		recipient  int64
	}{
		{"overdue goes to the borrower", events.LoanTransitionOverdue, 200},
		{"paid goes to the lender", events.LoanTransitionPaid, 100},
		{"corrected goes to the borrower", events.LoanTransitionCorrected, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			e.Transition = tt.transition

			notices := loanStateNotices(e)
			require.Len(t, notices, 1)
			assert.Equal(t, tt.recipient, notices[0].recipient)
		})
	}
}

func TestLoanStateNotices_InChannelTransitionsProduceNoDM(t *testing.T) {
	for _, transition := range []events.LoanTransition{
		events.LoanTransitionOffered,
		events.LoanTransitionAccepted,
		events.LoanTransitionRepaid,
		events.LoanTransitionCancelled,
	} {
		e := events.LoanStateChangeEvent{Transition: transition}
		assert.Empty(t, loanStateNotices(e), string(transition))
	}
}
