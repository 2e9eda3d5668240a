package repository

import (
	"context"
	"testing"
	"time"

	"banker/events"
	"banker/models"
	"banker/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWork_CommitPersistsAndFlushesEvents(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	eventBus := events.NewBus()
	received := make(chan events.Event, 1)
	eventBus.Subscribe(events.EventTypeAccountCreated, func(ctx context.Context, event events.Event) {
		received <- event
	})

	factory := NewUnitOfWorkFactory(testDB.DB, eventBus)
	ctx := context.Background()

	uow := factory.CreateForGuild(777)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	account, err := uow.AccountRepository().Create(ctx, 123456, 100)
	require.NoError(t, err)

	uow.EventBus().Publish(events.AccountCreatedEvent{
		DiscordID:      account.DiscordID,
		GuildID:        account.GuildID,
		InitialBalance: account.Balance,
	})

	// Nothing reaches subscribers until the transaction commits
	select {
	case <-received:
		t.Fatal("event delivered before commit")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, uow.Commit())

	select {
	case event := <-received:
		created := event.(events.AccountCreatedEvent)
		assert.Equal(t, int64(123456), created.DiscordID)
		assert.Equal(t, int64(100), created.InitialBalance)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered after commit")
	}

	// The row is visible outside the transaction
	repo := NewAccountRepository(testDB.DB, 777)
	account, err = repo.GetByDiscordID(ctx, 123456)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, int64(100), account.Balance)
}

func TestUnitOfWork_RollbackDiscardsWorkAndEvents(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	eventBus := events.NewBus()
	received := make(chan events.Event, 1)
	eventBus.Subscribe(events.EventTypeAccountCreated, func(ctx context.Context, event events.Event) {
		received <- event
	})

	factory := NewUnitOfWorkFactory(testDB.DB, eventBus)
	ctx := context.Background()

	uow := factory.CreateForGuild(777)
	require.NoError(t, uow.Begin(ctx))

	_, err := uow.AccountRepository().Create(ctx, 123456, 100)
	require.NoError(t, err)

	uow.EventBus().Publish(events.AccountCreatedEvent{DiscordID: 123456, GuildID: 777})

	require.NoError(t, uow.Rollback())

	select {
	case <-received:
		t.Fatal("event delivered despite rollback")
	case <-time.After(100 * time.Millisecond):
	}

	repo := NewAccountRepository(testDB.DB, 777)
	account, err := repo.GetByDiscordID(ctx, 123456)
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestUnitOfWork_RepositoriesShareTheTransaction(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus())
	ctx := context.Background()

	uow := factory.CreateForGuild(777)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	_, err := uow.AccountRepository().Create(ctx, 111, 1000)
	require.NoError(t, err)

	// The uncommitted account is visible to the sibling repository
	newBalance, err := uow.AccountRepository().AdjustBalance(ctx, 111, -400, true)
	require.NoError(t, err)
	assert.Equal(t, int64(600), newBalance)

	history := testutil.CreateTestBalanceHistory(777, 111, models.TransactionTypeWithdrawal)
	require.NoError(t, uow.BalanceHistoryRepository().Record(ctx, history))

	require.NoError(t, uow.Commit())

	entries, err := NewBalanceHistoryRepository(testDB.DB, 777).GetByUser(ctx, 111, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-10), entries[0].ChangeAmount)
}

func TestUnitOfWork_DoubleBeginFails(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus())
	ctx := context.Background()

	uow := factory.CreateForGuild(777)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	assert.Error(t, uow.Begin(ctx))
}
