package tickets

import (
	"context"
	"fmt"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"github.com/ticketeer/ticketeer/models"
)

const (
	customIDCreate  = "create_ticket"
	customIDClaim   = "claim_ticket"
	customIDUnclaim = "unclaim_ticket"
	customIDClose   = "close_ticket"
)

const embedColor = 0x5865f2

// ComponentIDs lists the button custom ids the ticket system handles.
func ComponentIDs() []string {
	return []string{customIDCreate, customIDClaim, customIDUnclaim, customIDClose}
}

// HandleComponent routes a button press to the matching lifecycle
// operation. UserErrors are replied ephemerally, anything else is
// passed up to the dispatcher.
func (m *Manager) HandleComponent(s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	if ic.Member == nil || ic.Member.User == nil {
		// dm interactions are not part of the ticket flow
		return nil
	}

	ctx := context.Background()

	switch ic.MessageComponentData().CustomID {
	case customIDCreate:
		return m.handleCreateInteraction(ctx, s, ic)
	case customIDClaim:
		return m.handleClaimButton(ctx, s, ic)
	case customIDUnclaim:
		return m.handleUnclaimButton(ctx, s, ic)
	case customIDClose:
		return m.handleCloseButton(ctx, s, ic)
	}

	return nil
}

// handleCreateInteraction serves both the panel button and the ticket
// slash command.
func (m *Manager) handleCreateInteraction(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	ticket, err := m.CreateTicket(ctx, ic.GuildID, ic.Member.User)
	if err != nil {
		return respondError(s, ic, err)
	}

	return respondEphemeral(s, ic, fmt.Sprintf("Your ticket has been created: <#%s>", ticket.TicketID))
}

func (m *Manager) handleClaimButton(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	ticket, err := m.ClaimTicket(ctx, ic.ChannelID, ic.Member.User.ID)
	if err != nil {
		return respondError(s, ic, err)
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Ticket Claimed",
		Description: fmt.Sprintf("This ticket has been claimed by <@%s>", ticket.ClaimedBy),
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: fmt.Sprintf("<@%s>", ticket.OwnerID), Inline: true},
			{Name: "Staff", Value: fmt.Sprintf("<@%s>", ticket.ClaimedBy), Inline: true},
			{Name: "Status", Value: "Claimed", Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Ticket System"},
	}

	return updateControlMessage(s, ic, embed, claimedControls())
}

func (m *Manager) handleUnclaimButton(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	ticket, err := m.UnclaimTicket(ctx, ic.ChannelID, ic.Member.User.ID)
	if err != nil {
		return respondError(s, ic, err)
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Ticket Released",
		Description: "This ticket is now available.",
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: fmt.Sprintf("<@%s>", ticket.OwnerID), Inline: true},
			{Name: "Status", Value: "Available", Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Ticket System"},
	}

	return updateControlMessage(s, ic, embed, unclaimedControls())
}

func (m *Manager) handleCloseButton(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	ticket, err := m.CloseTicket(ctx, ic.ChannelID, ic.Member.User.ID)
	if err != nil {
		return respondError(s, ic, err)
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Ticket Closed",
		Description: "This ticket has been closed.",
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Closed by", Value: fmt.Sprintf("<@%s>", ticket.ClosedBy), Inline: true},
		},
	}

	// strip the controls, the channel is going away shortly
	return updateControlMessage(s, ic, embed, []discordgo.MessageComponent{})
}

// sendControlMessage posts the initial in-ticket message with the
// unclaimed control surface. Failures are logged only, the ticket
// itself is already fully set up.
func (m *Manager) sendControlMessage(ticket *models.Ticket) {
	embed := &discordgo.MessageEmbed{
		Title:       "Ticket Created",
		Description: "Your ticket has been created. A staff member will assist you shortly.",
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: fmt.Sprintf("<@%s>", ticket.OwnerID), Inline: true},
			{Name: "Status", Value: "Open", Inline: true},
		},
	}

	_, err := m.session.ChannelMessageSendComplex(ticket.TicketID, &discordgo.MessageSend{
		Content:    fmt.Sprintf("<@%s>", ticket.OwnerID),
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: unclaimedControls(),
	})
	if err != nil {
		logger.WithError(err).WithField("channel", ticket.TicketID).Error("failed sending ticket control message")
	}
}

func unclaimedControls() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Claim Ticket", Style: discordgo.PrimaryButton, CustomID: customIDClaim},
			discordgo.Button{Label: "Close Ticket", Style: discordgo.DangerButton, CustomID: customIDClose},
		},
	}}
}

func claimedControls() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Release Ticket", Style: discordgo.SecondaryButton, CustomID: customIDUnclaim},
			discordgo.Button{Label: "Close Ticket", Style: discordgo.DangerButton, CustomID: customIDClose},
		},
	}}
}

func updateControlMessage(s *discordgo.Session, ic *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
	return errors.WithStackIf(err)
}

// respondError surfaces UserErrors to the requester and passes
// everything else up for the generic failure path.
func respondError(s *discordgo.Session, ic *discordgo.InteractionCreate, err error) error {
	var uerr UserError
	if errors.As(err, &uerr) {
		return respondEphemeral(s, ic, string(uerr))
	}

	return err
}

func respondEphemeral(s *discordgo.Session, ic *discordgo.InteractionCreate, content string) error {
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	return errors.WithStackIf(err)
}
