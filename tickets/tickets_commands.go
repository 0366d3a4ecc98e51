package tickets

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/ticketeer/ticketeer/bot"
	"github.com/ticketeer/ticketeer/models"
)

// RegisterCommands wires the ticket slash commands and the control
// panel buttons into the registry.
func RegisterCommands(reg *bot.CommandRegistry, m *Manager) {
	reg.AddCommand(&discordgo.ApplicationCommand{
		Name:        "ticket",
		Description: "Open a support ticket",
	}, m.cmdTicket)

	reg.AddCommand(&discordgo.ApplicationCommand{
		Name:        "add",
		Description: "Add a user to this ticket",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "The user to add",
			Required:    true,
		}},
	}, m.cmdAdd)

	reg.AddCommand(&discordgo.ApplicationCommand{
		Name:        "remove",
		Description: "Remove a user from this ticket",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "The user to remove",
			Required:    true,
		}},
	}, m.cmdRemove)

	reg.AddCommand(&discordgo.ApplicationCommand{
		Name:        "blacklist",
		Description: "Bar a user from opening tickets",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "The user to blacklist",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "reason",
				Description: "Why the user is being blacklisted",
			},
		},
	}, m.cmdBlacklist)

	reg.AddCommand(&discordgo.ApplicationCommand{
		Name:        "unblacklist",
		Description: "Allow a blacklisted user to open tickets again",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "The user to remove from the blacklist",
			Required:    true,
		}},
	}, m.cmdUnblacklist)

	reg.AddCommand(&discordgo.ApplicationCommand{
		Name:        "setup-tickets",
		Description: "Configure the ticket system for this server",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "panel-channel",
				Description: "Text channel the ticket creation panel is posted in",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "ticket-category",
				Description: "Category new ticket channels are created under",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "transcript-channel",
				Description: "Text channel closed ticket transcripts are posted in",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "staff-roles",
				Description: "Comma separated role ids treated as ticket staff",
			},
		},
	}, m.cmdSetup)

	for _, id := range ComponentIDs() {
		reg.AddComponent(id, m.HandleComponent)
	}
}

func (m *Manager) cmdTicket(s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	if ic.Member == nil || ic.Member.User == nil {
		// dm interactions are not part of the ticket flow
		return nil
	}

	return m.handleCreateInteraction(context.Background(), s, ic)
}

func (m *Manager) cmdAdd(s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	target := commandOptions(ic)["user"].UserValue(s)

	err := m.AddParticipant(context.Background(), ic.ChannelID, ic.Member, target)
	if err != nil {
		return respondError(s, ic, err)
	}

	return respondEphemeral(s, ic, fmt.Sprintf("%s has been added to the ticket.", target.Username))
}

func (m *Manager) cmdRemove(s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	target := commandOptions(ic)["user"].UserValue(s)

	err := m.RemoveParticipant(context.Background(), ic.ChannelID, ic.Member, target)
	if err != nil {
		return respondError(s, ic, err)
	}

	return respondEphemeral(s, ic, fmt.Sprintf("%s has been removed from the ticket.", target.Username))
}

func (m *Manager) cmdBlacklist(s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	ctx := context.Background()
	if !m.actorIsStaff(ctx, ic) {
		return respondError(s, ic, ErrOnlyStaff)
	}

	opts := commandOptions(ic)
	target := opts["user"].UserValue(s)

	reason := "No specific reason"
	if opt, ok := opts["reason"]; ok {
		reason = opt.StringValue()
	}

	err := m.BlacklistUser(ctx, ic.Member.User.ID, target, reason)
	if err != nil {
		return respondError(s, ic, err)
	}

	return respondEphemeral(s, ic, fmt.Sprintf("%s has been blacklisted.\nReason: %s", target.Username, reason))
}

func (m *Manager) cmdUnblacklist(s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	ctx := context.Background()
	if !m.actorIsStaff(ctx, ic) {
		return respondError(s, ic, ErrOnlyStaff)
	}

	target := commandOptions(ic)["user"].UserValue(s)

	err := m.UnblacklistUser(ctx, target)
	if err != nil {
		return respondError(s, ic, err)
	}

	return respondEphemeral(s, ic, fmt.Sprintf("%s has been removed from the blacklist.", target.Username))
}

func (m *Manager) cmdSetup(s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	if ic.Member == nil || ic.Member.Permissions&discordgo.PermissionAdministrator == 0 {
		return respondEphemeral(s, ic, "Only administrators can configure the ticket system.")
	}

	opts := commandOptions(ic)
	panel := opts["panel-channel"].ChannelValue(s)
	category := opts["ticket-category"].ChannelValue(s)
	transcripts := opts["transcript-channel"].ChannelValue(s)

	if panel.Type != discordgo.ChannelTypeGuildText {
		return respondEphemeral(s, ic, "The panel channel must be a text channel.")
	}
	if category.Type != discordgo.ChannelTypeGuildCategory {
		return respondEphemeral(s, ic, "The ticket category must be a category channel.")
	}
	if transcripts.Type != discordgo.ChannelTypeGuildText {
		return respondEphemeral(s, ic, "The transcript channel must be a text channel.")
	}

	conf := &models.GuildConfig{
		GuildID:             ic.GuildID,
		TicketChannelID:     panel.ID,
		TicketCategoryID:    category.ID,
		TranscriptChannelID: transcripts.ID,
		StaffRoles:          parseStaffRoles(opts["staff-roles"]),
	}

	err := m.SetupGuild(context.Background(), conf)
	if err != nil {
		return respondError(s, ic, err)
	}

	return respondEphemeral(s, ic, fmt.Sprintf(
		"Ticket system configured.\nPanel: <#%s>\nCategory: <#%s>\nTranscripts: <#%s>",
		panel.ID, category.ID, transcripts.ID))
}

func (m *Manager) actorIsStaff(ctx context.Context, ic *discordgo.InteractionCreate) bool {
	conf, err := m.store.GuildConfig(ctx, ic.GuildID)
	if err != nil {
		conf = nil
	}

	return IsStaff(ic.Member, conf)
}

func parseStaffRoles(opt *discordgo.ApplicationCommandInteractionDataOption) []string {
	if opt == nil {
		return nil
	}

	var roles []string
	for _, part := range strings.Split(opt.StringValue(), ",") {
		part = strings.Trim(strings.TrimSpace(part), "<@&>")
		if part != "" {
			roles = append(roles, part)
		}
	}

	return roles
}

func commandOptions(ic *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := ic.ApplicationCommandData().Options
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		out[opt.Name] = opt
	}

	return out
}
