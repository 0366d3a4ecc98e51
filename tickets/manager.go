package tickets

import (
	"context"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"github.com/ticketeer/ticketeer/common"
	"github.com/ticketeer/ticketeer/models"
)

// InTicketPerms is granted to everyone who is part of a ticket.
const InTicketPerms = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionAttachFiles

// Store is the slice of the record store the ticket system writes
// through. *models.Store implements it.
type Store interface {
	InsertTicket(ctx context.Context, t *models.Ticket) error
	OpenTicketByChannel(ctx context.Context, channelID string) (*models.Ticket, error)
	OpenTicketByOwner(ctx context.Context, ownerID string) (*models.Ticket, error)
	ClaimTicket(ctx context.Context, channelID, staffID string, now time.Time) (*models.Ticket, error)
	UnclaimTicket(ctx context.Context, channelID, staffID string, now time.Time) (*models.Ticket, error)
	CloseTicket(ctx context.Context, channelID, actorID string, now time.Time) (*models.Ticket, error)
	AddParticipant(ctx context.Context, channelID, userID string) error
	RemoveParticipant(ctx context.Context, channelID, userID string) error

	FindBlacklistEntry(ctx context.Context, userID string) (*models.BlacklistEntry, error)
	AddBlacklistEntry(ctx context.Context, e *models.BlacklistEntry) error
	RemoveBlacklistEntry(ctx context.Context, userID string) error

	GuildConfig(ctx context.Context, guildID string) (*models.GuildConfig, error)
	UpsertGuildConfig(ctx context.Context, conf *models.GuildConfig) error
}

var _ Store = (*models.Store)(nil)

// Session is the subset of the discord session the ticket system talks
// to, split out so the state machine can be exercised without a
// gateway connection.
type Session interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64, options ...discordgo.RequestOption) error
	ChannelPermissionDelete(channelID, targetID string, options ...discordgo.RequestOption) error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
}

var _ Session = (*discordgo.Session)(nil)

// Manager owns the ticket lifecycle. All ticket record writes go
// through it; blacklist and config records it treats as inputs owned
// by the staff commands.
type Manager struct {
	store     Store
	session   Session
	archiver  *Archiver
	botUserID string

	// channels currently being closed, guards against double close
	// presses racing the archiver
	closingMu sync.Mutex
	closing   map[string]bool

	deleteDelay time.Duration
	now         func() time.Time
}

func NewManager(store Store, session Session, botUserID string) *Manager {
	return &Manager{
		store:       store,
		session:     session,
		archiver:    NewArchiver(session, common.HTTPClient),
		botUserID:   botUserID,
		closing:     make(map[string]bool),
		deleteDelay: 3 * time.Second,
		now:         time.Now,
	}
}

// CreateTicket opens a new ticket for the user: a restricted channel
// under the configured category, a persisted record and the control
// message. The store's open-ticket index is the final arbiter against
// concurrent duplicate creation.
func (m *Manager) CreateTicket(ctx context.Context, guildID string, user *discordgo.User) (*models.Ticket, error) {
	_, err := m.store.FindBlacklistEntry(ctx, user.ID)
	if err == nil {
		return nil, ErrBlacklisted
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	_, err = m.store.OpenTicketByOwner(ctx, user.ID)
	if err == nil {
		return nil, ErrAlreadyOpen
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	conf, err := m.store.GuildConfig(ctx, guildID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrNotConfigured
	} else if err != nil {
		return nil, err
	}

	category, err := m.session.Channel(conf.TicketCategoryID)
	if err != nil || category.Type != discordgo.ChannelTypeGuildCategory {
		return nil, ErrCategoryMissing
	}

	channelName := "ticket-" + sanitizeChannelName(user.Username)
	channel, err := m.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 channelName,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             conf.TicketCategoryID,
		PermissionOverwrites: m.ticketOverwrites(guildID, user.ID, conf),
	})
	if err != nil {
		return nil, errors.WithMessage(err, "creating ticket channel")
	}

	ticket := &models.Ticket{
		TicketID:    channel.ID,
		ChannelName: channelName,
		GuildID:     guildID,
		OwnerID:     user.ID,
		AddedUsers:  []string{},
	}

	err = m.store.InsertTicket(ctx, ticket)
	if err != nil {
		// lost a creation race after the channel went up, take the
		// channel back down
		if _, derr := m.session.ChannelDelete(channel.ID); derr != nil {
			logger.WithError(derr).WithField("channel", channel.ID).Error("failed deleting channel of unrecorded ticket")
		}

		if errors.Is(err, models.ErrOpenTicketExists) {
			return nil, ErrAlreadyOpen
		}
		return nil, err
	}

	m.sendControlMessage(ticket)

	metricsTicketsOpened.Inc()
	logger.WithField("guild", guildID).WithField("channel", channel.ID).Info("ticket opened")
	return ticket, nil
}

func (m *Manager) ticketOverwrites(guildID, ownerID string, conf *models.GuildConfig) []*discordgo.PermissionOverwrite {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			// the guild id doubles as the @everyone role id
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:    ownerID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: InTicketPerms,
		},
		{
			ID:    m.botUserID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: InTicketPerms,
		},
	}

	for _, roleID := range conf.StaffRoles {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    roleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: InTicketPerms | discordgo.PermissionManageMessages,
		})
	}

	return overwrites
}

// AddParticipant grants a user access to the ticket in the channel.
// The permission grant happens before the record update; when the
// grant fails nothing is recorded, when the record update fails after
// a successful grant the inconsistency is logged for manual
// reconciliation.
func (m *Manager) AddParticipant(ctx context.Context, channelID string, actor *discordgo.Member, target *discordgo.User) error {
	ticket, err := m.openTicket(ctx, channelID)
	if err != nil {
		return err
	}

	if !m.canManageParticipants(ctx, actor, ticket) {
		return ErrOnlyStaffAdd
	}

	if target.ID == ticket.OwnerID {
		return ErrOwnerTarget
	}

	if ticket.HasParticipant(target.ID) {
		return ErrAlreadyParticipant(target.Username)
	}

	err = m.session.ChannelPermissionSet(channelID, target.ID, discordgo.PermissionOverwriteTypeMember, InTicketPerms, 0)
	if err != nil {
		return errors.WithMessage(err, "granting channel access")
	}

	err = m.store.AddParticipant(ctx, channelID, target.ID)
	if err != nil {
		logger.WithError(err).
			WithField("channel", channelID).
			WithField("user", target.ID).
			Warn("access granted but participant record not written, ticket record is out of sync")
		return err
	}

	return nil
}

// RemoveParticipant revokes a previously granted participant's access.
func (m *Manager) RemoveParticipant(ctx context.Context, channelID string, actor *discordgo.Member, target *discordgo.User) error {
	ticket, err := m.openTicket(ctx, channelID)
	if err != nil {
		return err
	}

	if !m.canManageParticipants(ctx, actor, ticket) {
		return ErrOnlyStaffRemove
	}

	if target.Bot {
		return ErrBotTarget
	}

	if !ticket.HasParticipant(target.ID) {
		return ErrNotParticipant(target.Username)
	}

	err = m.session.ChannelPermissionDelete(channelID, target.ID)
	if err != nil {
		return errors.WithMessage(err, "revoking channel access")
	}

	err = m.store.RemoveParticipant(ctx, channelID, target.ID)
	if err != nil {
		logger.WithError(err).
			WithField("channel", channelID).
			WithField("user", target.ID).
			Warn("access revoked but participant record not removed, ticket record is out of sync")
		return err
	}

	return nil
}

// ClaimTicket assigns the open ticket in the channel to the actor.
func (m *Manager) ClaimTicket(ctx context.Context, channelID, staffID string) (*models.Ticket, error) {
	ticket, err := m.openTicket(ctx, channelID)
	if err != nil {
		return nil, err
	}

	if ticket.IsClaimed() {
		return nil, ErrAlreadyClaimedBy(ticket.ClaimedBy)
	}

	claimed, err := m.store.ClaimTicket(ctx, channelID, staffID, m.now().UTC())
	if errors.Is(err, models.ErrStaleTicket) {
		return nil, ErrTicketChanged
	} else if err != nil {
		return nil, err
	}

	metricsTicketsClaimed.Inc()
	return claimed, nil
}

// UnclaimTicket releases the actor's claim, making the ticket
// available again.
func (m *Manager) UnclaimTicket(ctx context.Context, channelID, staffID string) (*models.Ticket, error) {
	ticket, err := m.openTicket(ctx, channelID)
	if err != nil {
		return nil, err
	}

	if ticket.ClaimedBy != staffID {
		return nil, ErrNotClaimant
	}

	released, err := m.store.UnclaimTicket(ctx, channelID, staffID, m.now().UTC())
	if errors.Is(err, models.ErrStaleTicket) {
		return nil, ErrTicketChanged
	} else if err != nil {
		return nil, err
	}

	return released, nil
}

// CloseTicket performs the terminal transition: the record is closed,
// the transcript archived best-effort and the hosting channel deleted
// after a short grace delay so the close confirmation can render.
func (m *Manager) CloseTicket(ctx context.Context, channelID, actorID string) (*models.Ticket, error) {
	m.closingMu.Lock()
	if m.closing[channelID] {
		m.closingMu.Unlock()
		return nil, ErrAlreadyClosing
	}
	m.closing[channelID] = true
	m.closingMu.Unlock()

	closed, err := m.closeTicket(ctx, channelID, actorID)

	m.closingMu.Lock()
	delete(m.closing, channelID)
	m.closingMu.Unlock()

	return closed, err
}

func (m *Manager) closeTicket(ctx context.Context, channelID, actorID string) (*models.Ticket, error) {
	ticket, err := m.openTicket(ctx, channelID)
	if err != nil {
		return nil, err
	}

	if ticket.IsClaimed() && ticket.ClaimedBy != actorID {
		return nil, ErrClaimedByOther(ticket.ClaimedBy)
	}

	closed, err := m.store.CloseTicket(ctx, channelID, actorID, m.now().UTC())
	if errors.Is(err, models.ErrStaleTicket) {
		return nil, ErrTicketChanged
	} else if err != nil {
		return nil, err
	}

	metricsTicketsClosed.Inc()
	logger.WithField("guild", closed.GuildID).WithField("channel", channelID).Info("ticket closed")

	go m.finishClose(closed)

	return closed, nil
}

// finishClose archives the transcript and then deletes the hosting
// channel. Both are best effort, the close transition already
// happened.
func (m *Manager) finishClose(ticket *models.Ticket) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	conf, err := m.store.GuildConfig(ctx, ticket.GuildID)
	if err != nil {
		logger.WithError(err).WithField("guild", ticket.GuildID).Warn("no config resolved, skipping transcript")
	} else if err = m.archiver.Archive(ctx, ticket, conf); err != nil {
		metricsTranscriptsFailed.Inc()
		logger.WithError(err).WithField("channel", ticket.TicketID).Error("failed archiving transcript")
	}

	time.AfterFunc(m.deleteDelay, func() {
		if _, err := m.session.ChannelDelete(ticket.TicketID); err != nil {
			logger.WithError(err).WithField("channel", ticket.TicketID).Error("failed deleting closed ticket channel")
		}
	})
}

// BlacklistUser bars a user from creating tickets.
func (m *Manager) BlacklistUser(ctx context.Context, actorID string, target *discordgo.User, reason string) error {
	if target.Bot {
		return ErrBotBlacklist
	}

	_, err := m.store.FindBlacklistEntry(ctx, target.ID)
	if err == nil {
		return ErrAlreadyBlacklisted(target.Username)
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	return m.store.AddBlacklistEntry(ctx, &models.BlacklistEntry{
		UserID:        target.ID,
		Reason:        reason,
		BlacklistedBy: actorID,
	})
}

// UnblacklistUser lifts the bar again.
func (m *Manager) UnblacklistUser(ctx context.Context, target *discordgo.User) error {
	err := m.store.RemoveBlacklistEntry(ctx, target.ID)
	if errors.Is(err, models.ErrNotFound) {
		return ErrNotBlacklisted(target.Username)
	}

	return err
}

// SetupGuild upserts the guild's ticket configuration and posts the
// creation panel into the panel channel.
func (m *Manager) SetupGuild(ctx context.Context, conf *models.GuildConfig) error {
	err := m.store.UpsertGuildConfig(ctx, conf)
	if err != nil {
		return err
	}

	_, err = m.session.ChannelMessageSendComplex(conf.TicketChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Ticket System",
			Description: "Click the button below to create a support ticket.",
			Color:       embedColor,
		}},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{discordgo.Button{
				Label:    "Open Ticket",
				Style:    discordgo.SuccessButton,
				CustomID: customIDCreate,
			}},
		}},
	})
	return errors.WithMessage(err, "posting ticket panel")
}

func (m *Manager) openTicket(ctx context.Context, channelID string) (*models.Ticket, error) {
	ticket, err := m.store.OpenTicketByChannel(ctx, channelID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrNoOpenTicket
	} else if err != nil {
		return nil, err
	}

	return ticket, nil
}

// canManageParticipants is the participant management predicate: the
// claimant, holders of a configured staff role and members with the
// manage messages or administrator permission qualify. Resolved once
// per actor, role names play no part in it.
func (m *Manager) canManageParticipants(ctx context.Context, actor *discordgo.Member, ticket *models.Ticket) bool {
	if actor == nil || actor.User == nil {
		return false
	}

	if actor.User.ID == ticket.ClaimedBy {
		return true
	}

	conf, err := m.store.GuildConfig(ctx, ticket.GuildID)
	if err != nil {
		conf = nil
	}

	return IsStaff(actor, conf)
}

// IsStaff reports whether the member can act as ticket staff.
func IsStaff(member *discordgo.Member, conf *models.GuildConfig) bool {
	if member == nil {
		return false
	}

	if member.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageMessages) != 0 {
		return true
	}

	if conf == nil {
		return false
	}

	for _, roleID := range member.Roles {
		if common.ContainsStringSlice(conf.StaffRoles, roleID) {
			return true
		}
	}

	return false
}

// sanitizeChannelName squeezes a username into discord channel name
// rules: lower case, no spaces.
func sanitizeChannelName(name string) string {
	lowered := strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, lowered)
}
