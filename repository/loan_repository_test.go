package repository

import (
	"context"
	"testing"
	"time"

	"banker/models"
	"banker/repository/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanRepository_CreateAndGet(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLoanRepository(testDB.DB, 777)
	ctx := context.Background()

	t.Run("missing loan returns nil", func(t *testing.T) {
		loan, err := repo.GetByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, loan)
	})

	t.Run("create and retrieve", func(t *testing.T) {
		loan := testutil.CreateTestLoan(777, 100, 200)
		err := repo.Create(ctx, loan)
		require.NoError(t, err)
		assert.False(t, loan.CreatedAt.IsZero())

		found, err := repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, models.LoanStatusPending, found.Status)
		assert.Equal(t, int64(1000), found.LoanAmount)
		assert.Equal(t, int64(1200), found.PaybackAmount)
		assert.Nil(t, found.DueAt)
		assert.Nil(t, found.AcceptedAt)
	})

	t.Run("guild scoping", func(t *testing.T) {
		loan := testutil.CreateTestLoan(777, 100, 200)
		require.NoError(t, repo.Create(ctx, loan))

		otherGuild := NewLoanRepository(testDB.DB, 888)
		found, err := otherGuild.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestLoanRepository_Activate(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLoanRepository(testDB.DB, 777)
	ctx := context.Background()

	loan := testutil.CreateTestLoan(777, 100, 200)
	require.NoError(t, repo.Create(ctx, loan))

	now := time.Now()
	dueAt := now.Add(24 * time.Hour)

	activated, err := repo.Activate(ctx, loan.ID, now, dueAt)
	require.NoError(t, err)
	assert.True(t, activated)

	found, err := repo.GetByID(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusActive, found.Status)
	require.NotNil(t, found.DueAt)
	assert.WithinDuration(t, dueAt, *found.DueAt, time.Second)

	// The loser of a double-accept race gets false, not an error
	activated, err = repo.Activate(ctx, loan.ID, now, dueAt)
	require.NoError(t, err)
	assert.False(t, activated)
}

func TestLoanRepository_MarkOverdue(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLoanRepository(testDB.DB, 777)
	ctx := context.Background()

	now := time.Now()

	t.Run("past due transitions", func(t *testing.T) {
		loan := testutil.CreateTestLoan(777, 100, 200)
		require.NoError(t, repo.Create(ctx, loan))
		_, err := repo.Activate(ctx, loan.ID, now.Add(-25*time.Hour), now.Add(-time.Hour))
		require.NoError(t, err)

		transitioned, err := repo.MarkOverdue(ctx, loan.ID, now)
		require.NoError(t, err)
		assert.True(t, transitioned)

		found, err := repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LoanStatusOverdue, found.Status)
	})

	t.Run("future due date is a no-op", func(t *testing.T) {
		loan := testutil.CreateTestLoan(777, 100, 201)
		require.NoError(t, repo.Create(ctx, loan))
		_, err := repo.Activate(ctx, loan.ID, now, now.Add(24*time.Hour))
		require.NoError(t, err)

		transitioned, err := repo.MarkOverdue(ctx, loan.ID, now)
		require.NoError(t, err)
		assert.False(t, transitioned)

		found, err := repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LoanStatusActive, found.Status)
	})

	t.Run("pending loan is a no-op", func(t *testing.T) {
		loan := testutil.CreateTestLoan(777, 100, 202)
		require.NoError(t, repo.Create(ctx, loan))

		transitioned, err := repo.MarkOverdue(ctx, loan.ID, now)
		require.NoError(t, err)
		assert.False(t, transitioned)
	})
}

func TestLoanRepository_Reactivate(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLoanRepository(testDB.DB, 777)
	ctx := context.Background()

	now := time.Now()

	t.Run("overdue with future due date is corrected", func(t *testing.T) {
		loan := testutil.CreateTestLoan(777, 100, 200)
		require.NoError(t, repo.Create(ctx, loan))
		_, err := repo.Activate(ctx, loan.ID, now.Add(-25*time.Hour), now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = repo.MarkOverdue(ctx, loan.ID, now)
		require.NoError(t, err)

		// Evaluated as of a point before the due date elapsed
		corrected, err := repo.Reactivate(ctx, loan.ID, now.Add(-2*time.Hour))
		require.NoError(t, err)
		assert.True(t, corrected)

		found, err := repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LoanStatusActive, found.Status)
	})

	t.Run("genuinely overdue loan stays overdue", func(t *testing.T) {
		loan := testutil.CreateTestLoan(777, 100, 201)
		require.NoError(t, repo.Create(ctx, loan))
		_, err := repo.Activate(ctx, loan.ID, now.Add(-25*time.Hour), now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = repo.MarkOverdue(ctx, loan.ID, now)
		require.NoError(t, err)

		corrected, err := repo.Reactivate(ctx, loan.ID, now)
		require.NoError(t, err)
		assert.False(t, corrected)
	})
}

func TestLoanRepository_ApplyPayment(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLoanRepository(testDB.DB, 777)
	ctx := context.Background()

	now := time.Now()

	activeLoan := func(t *testing.T, borrowerID int64) *models.Loan {
		t.Helper()
		loan := testutil.CreateTestLoan(777, 100, borrowerID)
		require.NoError(t, repo.Create(ctx, loan))
		_, err := repo.Activate(ctx, loan.ID, now, now.Add(24*time.Hour))
		require.NoError(t, err)
		return loan
	}

	t.Run("partial payment", func(t *testing.T) {
		loan := activeLoan(t, 200)

		updated, err := repo.ApplyPayment(ctx, loan.ID, 500)
		require.NoError(t, err)
		assert.Equal(t, int64(500), updated.AmountPaid)
		assert.Equal(t, models.LoanStatusActive, updated.Status)
		assert.Equal(t, int64(700), updated.Remaining())
	})

	t.Run("exact settlement flips to paid", func(t *testing.T) {
		loan := activeLoan(t, 201)

		updated, err := repo.ApplyPayment(ctx, loan.ID, 1200)
		require.NoError(t, err)
		assert.Equal(t, models.LoanStatusPaid, updated.Status)
		assert.Equal(t, int64(0), updated.Remaining())
		require.NotNil(t, updated.SettledAt)
		assert.WithinDuration(t, time.Now(), *updated.SettledAt, 5*time.Second)
	})

	t.Run("partial payment leaves settlement unstamped", func(t *testing.T) {
		loan := activeLoan(t, 204)

		updated, err := repo.ApplyPayment(ctx, loan.ID, 300)
		require.NoError(t, err)
		assert.Nil(t, updated.SettledAt)
	})

	t.Run("overpayment is rejected", func(t *testing.T) {
		loan := activeLoan(t, 202)

		_, err := repo.ApplyPayment(ctx, loan.ID, 500)
		require.NoError(t, err)

		_, err = repo.ApplyPayment(ctx, loan.ID, 800)
		assert.ErrorIs(t, err, models.ErrAmountOutOfRange)

		found, err := repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(500), found.AmountPaid)
	})

	t.Run("settled loan accepts no further payments", func(t *testing.T) {
		loan := activeLoan(t, 203)

		_, err := repo.ApplyPayment(ctx, loan.ID, 1200)
		require.NoError(t, err)

		_, err = repo.ApplyPayment(ctx, loan.ID, 100)
		assert.ErrorIs(t, err, models.ErrAmountOutOfRange)
	})
}

func TestLoanRepository_PendingOffers(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLoanRepository(testDB.DB, 777)
	ctx := context.Background()

	loan := testutil.CreateTestLoan(777, 100, 200)
	require.NoError(t, repo.Create(ctx, loan))

	t.Run("pending offer is found between its parties", func(t *testing.T) {
		exists, err := repo.HasPendingOfferBetween(ctx, 100, 200)
		require.NoError(t, err)
		assert.True(t, exists)

		// Direction matters
		exists, err = repo.HasPendingOfferBetween(ctx, 200, 100)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("GetPendingBefore honors the cutoff", func(t *testing.T) {
		stale, err := repo.GetPendingBefore(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, loan.ID, stale[0].ID)

		fresh, err := repo.GetPendingBefore(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, fresh)
	})

	t.Run("accepted offer no longer counts as pending", func(t *testing.T) {
		_, err := repo.Activate(ctx, loan.ID, time.Now(), time.Now().Add(24*time.Hour))
		require.NoError(t, err)

		exists, err := repo.HasPendingOfferBetween(ctx, 100, 200)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestLoanRepository_GetRepayableByBorrower(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLoanRepository(testDB.DB, 777)
	ctx := context.Background()

	now := time.Now()

	// Three loans for borrower 200: overdue, active past due, active with time left
	overdue := testutil.CreateTestLoan(777, 100, 200)
	require.NoError(t, repo.Create(ctx, overdue))
	_, err := repo.Activate(ctx, overdue.ID, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	require.NoError(t, err)
	_, err = repo.MarkOverdue(ctx, overdue.ID, now)
	require.NoError(t, err)

	justDue := testutil.CreateTestLoan(777, 101, 200)
	require.NoError(t, repo.Create(ctx, justDue))
	_, err = repo.Activate(ctx, justDue.ID, now.Add(-25*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)

	notDue := testutil.CreateTestLoan(777, 102, 200)
	require.NoError(t, repo.Create(ctx, notDue))
	_, err = repo.Activate(ctx, notDue.ID, now, now.Add(24*time.Hour))
	require.NoError(t, err)

	// And one due loan for a different borrower
	other := testutil.CreateTestLoan(777, 100, 300)
	require.NoError(t, repo.Create(ctx, other))
	_, err = repo.Activate(ctx, other.ID, now.Add(-25*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)

	repayable, err := repo.GetRepayableByBorrower(ctx, 200, now)
	require.NoError(t, err)
	require.Len(t, repayable, 2)

	// Earliest obligation first
	assert.Equal(t, overdue.ID, repayable[0].ID)
	assert.Equal(t, justDue.ID, repayable[1].ID)
}

func TestLoanRepository_Housekeeping(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLoanRepository(testDB.DB, 777)
	ctx := context.Background()

	now := time.Now()

	paid := testutil.CreateTestLoan(777, 100, 200)
	require.NoError(t, repo.Create(ctx, paid))
	_, err := repo.Activate(ctx, paid.ID, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	_, err = repo.ApplyPayment(ctx, paid.ID, 1200)
	require.NoError(t, err)

	outstanding := testutil.CreateTestLoan(777, 100, 201)
	require.NoError(t, repo.Create(ctx, outstanding))
	_, err = repo.Activate(ctx, outstanding.ID, now, now.Add(24*time.Hour))
	require.NoError(t, err)

	t.Run("future cutoff removes the settled loan only", func(t *testing.T) {
		removed, err := repo.DeletePaidBefore(ctx, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		gone, err := repo.GetByID(ctx, paid.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		kept, err := repo.GetByID(ctx, outstanding.ID)
		require.NoError(t, err)
		assert.NotNil(t, kept)
	})

	t.Run("retention clock runs from settlement, not creation", func(t *testing.T) {
		old := testutil.CreateTestLoan(777, 100, 203)
		require.NoError(t, repo.Create(ctx, old))
		_, err := testDB.DB.Exec(ctx,
			`UPDATE loans SET created_at = NOW() - INTERVAL '60 days' WHERE id = $1`, old.ID)
		require.NoError(t, err)
		_, err = repo.Activate(ctx, old.ID, now, now.Add(24*time.Hour))
		require.NoError(t, err)
		_, err = repo.ApplyPayment(ctx, old.ID, 1200)
		require.NoError(t, err)

		// Created two months ago but settled just now, so a 30-day
		// retention cutoff must not touch it.
		removed, err := repo.DeletePaidBefore(ctx, now.Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(0), removed)

		kept, err := repo.GetByID(ctx, old.ID)
		require.NoError(t, err)
		assert.NotNil(t, kept)
	})

	t.Run("Delete removes a loan", func(t *testing.T) {
		pending := testutil.CreateTestLoan(777, 100, 202)
		require.NoError(t, repo.Create(ctx, pending))

		require.NoError(t, repo.Delete(ctx, pending.ID))

		found, err := repo.GetByID(ctx, pending.ID)
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestLoanRepository_GetGuildsWithLoans(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	ctx := context.Background()

	first := NewLoanRepository(testDB.DB, 777)
	second := NewLoanRepository(testDB.DB, 888)

	require.NoError(t, first.Create(ctx, testutil.CreateTestLoan(777, 100, 200)))
	require.NoError(t, first.Create(ctx, testutil.CreateTestLoan(777, 101, 201)))
	require.NoError(t, second.Create(ctx, testutil.CreateTestLoan(888, 100, 200)))

	guilds, err := first.GetGuildsWithLoans(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{777, 888}, guilds)
}
