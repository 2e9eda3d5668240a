package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"banker/bot"
	"banker/config"
	"banker/database"
	"banker/events"
	"banker/repository"
	"banker/service"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Println("Starting banker bot...")

	// Load configuration
	cfg := config.Get()

	// Initialize database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Database connection established successfully")

	// Initialize event bus
	eventBus := events.NewBus()

	// Initialize unit of work factory
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Initialize services. The scheduler and loan service reference each
	// other: timers apply overdue transitions, acceptance arms timers.
	log.Println("Initializing services...")
	accountService := service.NewAccountService(uowFactory, cfg.StartingBalance)
	ledgerService := service.NewLedgerService(uowFactory)
	withdrawalService := service.NewWithdrawalService(uowFactory, cfg.WeeklyWithdrawLimit, cfg.GuildWeeklyWithdrawLimit)
	scheduler := service.NewLoanScheduler(uowFactory)
	loanService := service.NewLoanService(uowFactory, scheduler)
	scheduler.SetLoanService(loanService)
	autoRepay := service.NewAutoRepayService(uowFactory, loanService)
	log.Println("Services initialized successfully")

	// Incoming coins pay down due loans automatically.
	eventBus.Subscribe(events.EventTypeBalanceChange, autoRepay.HandleBalanceChange)

	// Start the deadline scheduler: reconciles timers, then sweeps hourly.
	stopScheduler := scheduler.Start(ctx)

	// Initialize Discord bot
	log.Println("Initializing Discord bot...")
	botConfig := bot.Config{
		Token:   cfg.DiscordToken,
		GuildID: cfg.DiscordGuildID,
	}
	discordBot, err := bot.New(botConfig, accountService, ledgerService, withdrawalService, loanService, eventBus)
	if err != nil {
		stopScheduler()
		return fmt.Errorf("failed to initialize Discord bot: %w", err)
	}
	log.Println("Discord bot initialized successfully")

	// Wait for context cancellation
	log.Printf("Bot is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	// Cleanup resources
	log.Println("Shutting down bot...")

	stopScheduler()

	// Close Discord bot connection
	if err := discordBot.Close(); err != nil {
		log.Printf("Error closing Discord bot: %v", err)
	}

	// Give cleanup operations time to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close database connection
	log.Println("Closing database connection...")
	db.Close()

	select {
	case <-shutdownCtx.Done():
		log.Println("Shutdown timeout exceeded")
	case <-time.After(1 * time.Second):
		log.Println("Shutdown completed")
	}

	return nil
}
