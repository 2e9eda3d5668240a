package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"banker/bot/common"
	"banker/events"
	"banker/models"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

func (b *Bot) handleLoanCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		common.RespondWithError(s, i, "Invalid command options.")
		return
	}

	switch options[0].Name {
	case "offer":
		b.handleLoanOffer(s, i, options[0].Options)
	case "accept":
		b.handleLoanAccept(s, i, options[0].Options)
	case "repay":
		b.handleLoanRepay(s, i, options[0].Options)
	case "list":
		b.handleLoanList(s, i)
	case "cancel":
		b.handleLoanCancel(s, i, options[0].Options)
	}
}

func (b *Bot) handleLoanOffer(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()

	var borrowerUser *discordgo.User
	var amount, payback, hours int64
	for _, opt := range options {
		switch opt.Name {
		case "user":
			borrowerUser = opt.UserValue(s)
		case "amount":
			amount = opt.IntValue()
		case "payback":
			payback = opt.IntValue()
		case "hours":
			hours = opt.IntValue()
		}
	}

	if borrowerUser == nil {
		common.RespondWithError(s, i, "Invalid borrower user.")
		return
	}

	lenderID, guildID, err := interactionIDs(i)
	if err != nil {
		log.Errorf("Error parsing interaction IDs: %v", err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	borrowerID, err := strconv.ParseInt(borrowerUser.ID, 10, 64)
	if err != nil {
		log.Errorf("Error parsing borrower Discord ID %s: %v", borrowerUser.ID, err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	loan, err := b.loanService.OfferLoan(ctx, guildID, lenderID, borrowerID, amount, payback, time.Duration(hours)*time.Hour)
	if err != nil {
		if !models.IsBusinessError(err) {
			log.Errorf("Error offering loan from %d to %d: %v", lenderID, borrowerID, err)
		}
		common.RespondWithError(s, i, renderError(err))
		return
	}

	embed := loanEmbed(loan, "Loan Offered")
	embed.Description = fmt.Sprintf("<@%s>, <@%s> offered you a loan. Accept with `/loan accept id:%s` within 12 hours.",
		borrowerUser.ID, i.Member.User.ID, loan.ID)
	if loan.IsHighInterest() {
		embed.Description += "\n⚠️ This loan pays back more than twice the principal."
	}
	if err := common.RespondWithEmbed(s, i, embed, false); err != nil {
		log.Errorf("Error responding to loan offer command: %v", err)
	}
}

func (b *Bot) handleLoanAccept(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()

	var idStr string
	var confirmed bool
	for _, opt := range options {
		switch opt.Name {
		case "id":
			idStr = opt.StringValue()
		case "confirm":
			confirmed = opt.BoolValue()
		}
	}

	loanID, err := uuid.Parse(idStr)
	if err != nil {
		common.RespondWithError(s, i, "That isn't a valid loan ID.")
		return
	}

	borrowerID, guildID, err := interactionIDs(i)
	if err != nil {
		log.Errorf("Error parsing interaction IDs: %v", err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	// The borrower may never have touched the bot before.
	if _, err := b.accountService.GetOrCreateAccount(ctx, guildID, borrowerID); err != nil {
		log.Errorf("Error getting/creating borrower account %d: %v", borrowerID, err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	loan, err := b.loanService.AcceptLoan(ctx, guildID, loanID, borrowerID, confirmed)
	if err != nil {
		if !models.IsBusinessError(err) {
			log.Errorf("Error accepting loan %s for %d: %v", loanID, borrowerID, err)
		}
		common.RespondWithError(s, i, renderError(err))
		return
	}

	embed := loanEmbed(loan, "Loan Accepted")
	embed.Description = fmt.Sprintf("**%s coins** disbursed. Pay back **%s coins** by %s.",
		common.FormatAmount(loan.LoanAmount), common.FormatAmount(loan.PaybackAmount),
		common.FormatDiscordTimestamp(*loan.DueAt, "F"))
	if err := common.RespondWithEmbed(s, i, embed, false); err != nil {
		log.Errorf("Error responding to loan accept command: %v", err)
	}
}

func (b *Bot) handleLoanRepay(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()

	var idStr string
	var amount int64
	for _, opt := range options {
		switch opt.Name {
		case "id":
			idStr = opt.StringValue()
		case "amount":
			amount = opt.IntValue()
		}
	}

	loanID, err := uuid.Parse(idStr)
	if err != nil {
		common.RespondWithError(s, i, "That isn't a valid loan ID.")
		return
	}

	borrowerID, guildID, err := interactionIDs(i)
	if err != nil {
		log.Errorf("Error parsing interaction IDs: %v", err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	result, err := b.loanService.RepayLoan(ctx, guildID, loanID, borrowerID, amount)
	if err != nil {
		if !models.IsBusinessError(err) {
			log.Errorf("Error repaying loan %s for %d: %v", loanID, borrowerID, err)
		}
		common.RespondWithError(s, i, renderError(err))
		return
	}

	var message string
	if result.PaidOff {
		message = fmt.Sprintf("Repaid **%s coins**. The loan is fully paid off! 🎉", common.FormatAmount(result.AmountPaid))
	} else {
		message = fmt.Sprintf("Repaid **%s coins**. **%s coins** still owed.",
			common.FormatAmount(result.AmountPaid), common.FormatAmount(result.Remaining))
	}
	if err := common.RespondWithSuccess(s, i, message, false); err != nil {
		log.Errorf("Error responding to loan repay command: %v", err)
	}
}

func (b *Bot) handleLoanList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	discordID, guildID, err := interactionIDs(i)
	if err != nil {
		log.Errorf("Error parsing interaction IDs: %v", err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	loans, err := b.loanService.ListLoans(ctx, guildID, discordID)
	if err != nil {
		log.Errorf("Error listing loans for %d: %v", discordID, err)
		common.RespondWithError(s, i, "Unable to retrieve loans. Please try again.")
		return
	}

	if len(loans) == 0 {
		common.RespondWithError(s, i, "You have no loans.")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Your Loans",
		Color: 0x5865F2,
	}
	for _, loan := range loans {
		role := "Borrowing"
		counterparty := loan.LenderDiscordID
		if loan.LenderDiscordID == discordID {
			role = "Lending"
			counterparty = loan.BorrowerDiscordID
		}
		value := fmt.Sprintf("%s · %s <@%d>\n**%s** of **%s coins** repaid",
			common.FormatLoanStatus(loan.Status), role, counterparty,
			common.FormatAmount(loan.AmountPaid), common.FormatAmount(loan.PaybackAmount))
		if loan.DueAt != nil {
			value += fmt.Sprintf("\nDue %s", common.FormatDiscordTimestamp(*loan.DueAt, "R"))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("`%s`", loan.ID),
			Value: value,
		})
	}

	if err := common.RespondWithEmbed(s, i, embed, true); err != nil {
		log.Errorf("Error responding to loan list command: %v", err)
	}
}

func (b *Bot) handleLoanCancel(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()

	var idStr string
	for _, opt := range options {
		if opt.Name == "id" {
			idStr = opt.StringValue()
		}
	}

	loanID, err := uuid.Parse(idStr)
	if err != nil {
		common.RespondWithError(s, i, "That isn't a valid loan ID.")
		return
	}

	lenderID, guildID, err := interactionIDs(i)
	if err != nil {
		log.Errorf("Error parsing interaction IDs: %v", err)
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	if err := b.loanService.CancelLoanOffer(ctx, guildID, loanID, lenderID); err != nil {
		if !models.IsBusinessError(err) {
			log.Errorf("Error cancelling loan %s for %d: %v", loanID, lenderID, err)
		}
		common.RespondWithError(s, i, renderError(err))
		return
	}

	if err := common.RespondWithSuccess(s, i, "Loan offer cancelled.", true); err != nil {
		log.Errorf("Error responding to loan cancel command: %v", err)
	}
}

func loanEmbed(loan *models.Loan, title string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: title,
		Color: 0x5865F2,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Principal", Value: common.FormatAmount(loan.LoanAmount) + " coins", Inline: true},
			{Name: "Payback", Value: common.FormatAmount(loan.PaybackAmount) + " coins", Inline: true},
			{Name: "Term", Value: common.FormatDuration(loan.Duration()), Inline: true},
			{Name: "Status", Value: common.FormatLoanStatus(loan.Status), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "ID: " + loan.ID.String()},
	}
}

// loanNotice is a single DM produced by a loan lifecycle transition
type loanNotice struct {
	recipient int64
	message   string
}

// loanStateNotices maps a lifecycle transition to the DMs it produces. An
// expired offer notifies both parties; every other transition concerns one
// side only.
func loanStateNotices(e events.LoanStateChangeEvent) []loanNotice {
	switch e.Transition {
	case events.LoanTransitionOverdue:
		return []loanNotice{{
			recipient: e.BorrowerDiscordID,
			message: fmt.Sprintf("⚠️ Your loan `%s` is now **overdue**. **%s coins** still owed; incoming coins will be applied automatically.",
				e.LoanID, common.FormatAmount(e.Amount)),
		}}
	case events.LoanTransitionExpired:
		return []loanNotice{
			{
				recipient: e.LenderDiscordID,
				message: fmt.Sprintf("Your loan offer `%s` of **%s coins** expired without being accepted.",
					e.LoanID, common.FormatAmount(e.Amount)),
			},
			{
				recipient: e.BorrowerDiscordID,
				message: fmt.Sprintf("A loan offer `%s` of **%s coins** made to you expired before you accepted it.",
					e.LoanID, common.FormatAmount(e.Amount)),
			},
		}
	case events.LoanTransitionPaid:
		return []loanNotice{{
			recipient: e.LenderDiscordID,
			message:   fmt.Sprintf("✅ Loan `%s` has been fully repaid.", e.LoanID),
		}}
	case events.LoanTransitionCorrected:
		return []loanNotice{{
			recipient: e.BorrowerDiscordID,
			message:   fmt.Sprintf("Your loan `%s` was restored to **active**; its deadline hasn't passed.", e.LoanID),
		}}
	default:
		return nil
	}
}

// notifyLoanStateChange DMs the participants affected by a lifecycle
// transition the bot itself didn't just answer in-channel.
func (b *Bot) notifyLoanStateChange(e events.LoanStateChangeEvent) {
	for _, n := range loanStateNotices(e) {
		channel, err := b.session.UserChannelCreate(strconv.FormatInt(n.recipient, 10))
		if err != nil {
			log.Errorf("Error opening DM channel for user %d: %v", n.recipient, err)
			continue
		}
		if _, err := b.session.ChannelMessageSend(channel.ID, n.message); err != nil {
			log.Errorf("Error sending loan notification to user %d: %v", n.recipient, err)
		}
	}
}
