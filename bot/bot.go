package bot

import (
	"context"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"banker/events"
	"banker/service"

	"github.com/bwmarrin/discordgo"
)

// Config holds bot configuration
type Config struct {
	Token   string
	GuildID string
}

type Bot struct {
	config            Config
	session           *discordgo.Session
	accountService    service.AccountService
	ledgerService     service.LedgerService
	withdrawalService service.WithdrawalService
	loanService       service.LoanService
	eventBus          *events.Bus
}

func New(config Config, accountService service.AccountService, ledgerService service.LedgerService, withdrawalService service.WithdrawalService, loanService service.LoanService, eventBus *events.Bus) (*Bot, error) {
	dg, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages

	bot := &Bot{
		config:            config,
		session:           dg,
		accountService:    accountService,
		ledgerService:     ledgerService,
		withdrawalService: withdrawalService,
		loanService:       loanService,
		eventBus:          eventBus,
	}

	// Register slash command handlers
	dg.AddHandler(bot.handleCommands)

	// Open websocket connection
	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	// Register slash commands with Discord
	if err := bot.registerCommands(); err != nil {
		dg.Close()
		return nil, fmt.Errorf("error registering commands: %w", err)
	}

	// Notify loan participants about lifecycle transitions
	eventBus.Subscribe(events.EventTypeLoanStateChange, func(ctx context.Context, event events.Event) {
		if e, ok := event.(events.LoanStateChangeEvent); ok {
			bot.notifyLoanStateChange(e)
		}
	})

	return bot, nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) handleCommands(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	switch i.ApplicationCommandData().Name {
	case "balance":
		b.handleBalance(s, i)
	case "send":
		b.handleSend(s, i)
	case "withdraw":
		b.handleWithdraw(s, i)
	case "loan":
		b.handleLoanCommand(s, i)
	}
}

// GetDisplayName returns the server-specific display name for a user.
// Falls back to the username when no nickname is set or on lookup failure.
func GetDisplayName(s *discordgo.Session, guildID, userID string) string {
	member, err := s.GuildMember(guildID, userID)
	if err != nil {
		log.Debugf("Error getting guild member %s: %v", userID, err)
		user, err := s.User(userID)
		if err != nil {
			return userID
		}
		return user.Username
	}

	if member.Nick != "" {
		return member.Nick
	}
	return member.User.Username
}

// interactionIDs parses the invoking user's and guild's snowflakes
func interactionIDs(i *discordgo.InteractionCreate) (discordID, guildID int64, err error) {
	discordID, err = strconv.ParseInt(i.Member.User.ID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("error parsing discord ID %s: %w", i.Member.User.ID, err)
	}
	guildID, err = strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("error parsing guild ID %s: %w", i.GuildID, err)
	}
	return discordID, guildID, nil
}
