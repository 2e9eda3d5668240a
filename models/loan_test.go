package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoan_IsHighInterest(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		payback int64
		high    bool
	}{
		{"no interest", 1000, 1000, false},
		{"modest interest", 1000, 1500, false},
		{"exactly double", 1000, 2000, false},
		{"just over double", 1000, 2001, true},
		{"predatory", 1000, 5000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loan := &Loan{LoanAmount: tt.amount, PaybackAmount: tt.payback}
			assert.Equal(t, tt.high, loan.IsHighInterest())
		})
	}
}

func TestLoan_Remaining(t *testing.T) {
	loan := &Loan{PaybackAmount: 1200, AmountPaid: 450}
	assert.Equal(t, int64(750), loan.Remaining())

	loan.AmountPaid = 1200
	assert.Equal(t, int64(0), loan.Remaining())
}

func TestLoan_IsDue(t *testing.T) {
	now := time.Now()

	t.Run("no due date", func(t *testing.T) {
		loan := &Loan{Status: LoanStatusPending}
		assert.False(t, loan.IsDue(now))
	})

	t.Run("due date ahead", func(t *testing.T) {
		dueAt := now.Add(time.Hour)
		loan := &Loan{Status: LoanStatusActive, DueAt: &dueAt}
		assert.False(t, loan.IsDue(now))
	})

	t.Run("due date elapsed", func(t *testing.T) {
		dueAt := now.Add(-time.Hour)
		loan := &Loan{Status: LoanStatusActive, DueAt: &dueAt}
		assert.True(t, loan.IsDue(now))
	})

	t.Run("due exactly now", func(t *testing.T) {
		loan := &Loan{Status: LoanStatusActive, DueAt: &now}
		assert.True(t, loan.IsDue(now))
	})
}

func TestLoan_StatusPredicates(t *testing.T) {
	assert.True(t, (&Loan{Status: LoanStatusActive}).IsOutstanding())
	assert.True(t, (&Loan{Status: LoanStatusOverdue}).IsOutstanding())
	assert.False(t, (&Loan{Status: LoanStatusPending}).IsOutstanding())
	assert.False(t, (&Loan{Status: LoanStatusPaid}).IsOutstanding())

	assert.True(t, (&Loan{Status: LoanStatusPaid}).IsTerminal())
	assert.True(t, (&Loan{Status: LoanStatusDefaulted}).IsTerminal())
	assert.False(t, (&Loan{Status: LoanStatusOverdue}).IsTerminal())

	loan := &Loan{LenderDiscordID: 100, BorrowerDiscordID: 200}
	assert.True(t, loan.IsParticipant(100))
	assert.True(t, loan.IsParticipant(200))
	assert.False(t, loan.IsParticipant(300))
}
