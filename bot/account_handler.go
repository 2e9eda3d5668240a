package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"banker/bot/common"
	"banker/models"

	"github.com/bwmarrin/discordgo"
)

// renderError maps a business error to a user-facing message. Anything not
// recognized is an infrastructure failure and gets a generic message; the
// detail stays in the logs.
func renderError(err error) string {
	var limitErr *models.LimitExceededError
	var stateErr *models.InvalidStateError

	switch {
	case errors.Is(err, models.ErrInsufficientFunds):
		return "You don't have enough coins for that."
	case errors.Is(err, models.ErrAccountNotFound):
		return "No account found. Check your balance first to open one."
	case errors.Is(err, models.ErrRecipientGone):
		return "The recipient's account no longer exists. Your coins were not taken."
	case errors.Is(err, models.ErrLoanNotFound):
		return "That loan doesn't exist."
	case errors.Is(err, models.ErrNotBorrower):
		return "Only the borrower of this loan can do that."
	case errors.Is(err, models.ErrNotLender):
		return "Only the lender of this loan can do that."
	case errors.Is(err, models.ErrAmountOutOfRange):
		return "That amount is out of range."
	case errors.Is(err, models.ErrConfirmationRequired):
		return "This loan pays back more than twice the principal. Re-run the command with `confirm: True` if you really want it."
	case errors.Is(err, models.ErrPendingOfferExists):
		return "You already have a pending offer to that member."
	case errors.As(err, &limitErr):
		scope := "Your weekly"
		if limitErr.Scope == models.LimitScopeGlobal {
			scope = "The server's weekly"
		}
		return fmt.Sprintf("%s withdrawal limit would be exceeded. **%s coins** remaining this week.", scope, common.FormatAmount(limitErr.Remaining))
	case errors.As(err, &stateErr):
		return fmt.Sprintf("That loan is %s, not %s.", stateErr.Actual, stateErr.Expected)
	default:
		return "Unable to process request. Please try again."
	}
}

func (b *Bot) handleBalance(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	discordID, guildID, err := interactionIDs(i)
	if err != nil {
		log.Errorf("Error parsing interaction IDs: %v", err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	account, err := b.accountService.GetOrCreateAccount(ctx, guildID, discordID)
	if err != nil {
		log.Errorf("Error getting account %d: %v", discordID, err)
		common.RespondWithError(s, i, "Unable to retrieve balance. Please try again.")
		return
	}

	displayName := GetDisplayName(s, i.GuildID, i.Member.User.ID)
	message := fmt.Sprintf("%s, your current balance: **%s coins**", displayName, common.FormatAmount(account.Balance))
	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: message,
		},
	})
	if err != nil {
		log.Errorf("Error responding to balance command: %v", err)
	}
}

func (b *Bot) handleSend(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	var amount int64
	var recipientUser *discordgo.User
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "amount":
			amount = opt.IntValue()
		case "user":
			recipientUser = opt.UserValue(s)
		}
	}

	if amount <= 0 {
		common.RespondWithError(s, i, "Amount must be positive.")
		return
	}
	if recipientUser == nil {
		common.RespondWithError(s, i, "Invalid recipient user.")
		return
	}

	fromDiscordID, guildID, err := interactionIDs(i)
	if err != nil {
		log.Errorf("Error parsing interaction IDs: %v", err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	toDiscordID, err := strconv.ParseInt(recipientUser.ID, 10, 64)
	if err != nil {
		log.Errorf("Error parsing recipient Discord ID %s: %v", recipientUser.ID, err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	if fromDiscordID == toDiscordID {
		common.RespondWithError(s, i, "You cannot send coins to yourself.")
		return
	}

	// Both sides get an account lazily before any coins move.
	if _, err := b.accountService.GetOrCreateAccount(ctx, guildID, fromDiscordID); err != nil {
		log.Errorf("Error getting/creating sender account %d: %v", fromDiscordID, err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}
	if _, err := b.accountService.GetOrCreateAccount(ctx, guildID, toDiscordID); err != nil {
		log.Errorf("Error getting/creating recipient account %d: %v", toDiscordID, err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	result, err := b.ledgerService.Transfer(ctx, guildID, fromDiscordID, toDiscordID, amount)
	if err != nil {
		if !models.IsBusinessError(err) {
			log.Errorf("Error transferring %d coins from %d to %d: %v", amount, fromDiscordID, toDiscordID, err)
		}
		common.RespondWithError(s, i, renderError(err))
		return
	}

	senderName := GetDisplayName(s, i.GuildID, i.Member.User.ID)
	message := fmt.Sprintf("**%s** sent **%s coins** to <@%s>",
		senderName, common.FormatAmount(result.Amount), recipientUser.ID)
	if err := common.RespondWithSuccess(s, i, message, false); err != nil {
		log.Errorf("Error responding to send command: %v", err)
	}
}

func (b *Bot) handleWithdraw(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	var amount int64
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "amount" {
			amount = opt.IntValue()
		}
	}

	if amount <= 0 {
		common.RespondWithError(s, i, "Amount must be positive.")
		return
	}

	discordID, guildID, err := interactionIDs(i)
	if err != nil {
		log.Errorf("Error parsing interaction IDs: %v", err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	if _, err := b.accountService.GetOrCreateAccount(ctx, guildID, discordID); err != nil {
		log.Errorf("Error getting/creating account %d: %v", discordID, err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	result, err := b.withdrawalService.Withdraw(ctx, guildID, discordID, amount)
	if err != nil {
		if !models.IsBusinessError(err) {
			log.Errorf("Error withdrawing %d coins for %d: %v", amount, discordID, err)
		}
		common.RespondWithError(s, i, renderError(err))
		return
	}

	message := fmt.Sprintf("Withdrew **%s coins**. New balance: **%s coins**",
		common.FormatAmount(amount), common.FormatAmount(result.NewBalance))
	if err := common.RespondWithSuccess(s, i, message, true); err != nil {
		log.Errorf("Error responding to withdraw command: %v", err)
	}
}
