package bot

import (
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("p", "bot")

const genericFailureMsg = "An error occurred while executing the command."

// Bot glues the gateway session to the command registry. The registry
// is injected at construction, there is no global dispatch table.
type Bot struct {
	session  *discordgo.Session
	registry *CommandRegistry

	// guilds whose commands are already registered; the post-ready
	// GuildCreate burst delivers events on separate goroutines
	registeredMu     sync.Mutex
	registeredGuilds map[string]bool
}

func New(session *discordgo.Session, registry *CommandRegistry) *Bot {
	return &Bot{
		session:          session,
		registry:         registry,
		registeredGuilds: make(map[string]bool),
	}
}

// Start attaches the event handlers and registers the slash commands
// on every guild the session currently knows about. The session must
// already be open.
func (b *Bot) Start() {
	b.session.AddHandler(b.handleGuildCreate)
	b.session.AddHandler(b.handleInteractionCreate)

	b.session.State.RLock()
	guilds := make([]string, 0, len(b.session.State.Guilds))
	for _, g := range b.session.State.Guilds {
		guilds = append(guilds, g.ID)
	}
	b.session.State.RUnlock()

	for _, gID := range guilds {
		b.registerGuildCommands(gID)
	}
}

func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.registerGuildCommands(g.ID)
}

func (b *Bot) registerGuildCommands(guildID string) {
	b.registeredMu.Lock()
	if b.registeredGuilds[guildID] {
		b.registeredMu.Unlock()
		return
	}
	b.registeredGuilds[guildID] = true
	b.registeredMu.Unlock()

	appID := b.session.State.User.ID
	_, err := b.session.ApplicationCommandBulkOverwrite(appID, guildID, b.registry.Commands())
	if err != nil {
		logger.WithError(err).WithField("guild", guildID).Error("failed registering slash commands")
		return
	}

	logger.WithField("guild", guildID).Info("registered slash commands")
}

func (b *Bot) handleInteractionCreate(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	var handler Handler
	var name string

	switch ic.Type {
	case discordgo.InteractionApplicationCommand:
		name = ic.ApplicationCommandData().Name
		handler = b.registry.CommandHandler(name)
	case discordgo.InteractionMessageComponent:
		name = ic.MessageComponentData().CustomID
		handler = b.registry.ComponentHandler(name)
	default:
		return
	}

	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("interaction", name).Errorf("recovered from panic in handler: %v", r)
			b.respondGenericFailure(ic)
		}
	}()

	err := handler(s, ic)
	if err != nil {
		logger.WithError(err).WithField("interaction", name).Error("interaction handler failed")
		b.respondGenericFailure(ic)
	}
}

// respondGenericFailure makes sure the requester gets feedback even
// when a handler blew up before responding. A second respond on an
// already-acknowledged interaction fails, that error is ignored.
func (b *Bot) respondGenericFailure(ic *discordgo.InteractionCreate) {
	_ = b.session.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: genericFailureMsg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}
