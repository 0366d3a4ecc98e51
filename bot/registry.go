package bot

import (
	"github.com/bwmarrin/discordgo"
)

// Handler handles one slash command or message component interaction.
// Returned errors are internal failures, user feedback is the
// handler's own business.
type Handler func(s *discordgo.Session, ic *discordgo.InteractionCreate) error

type RegisteredCommand struct {
	Command *discordgo.ApplicationCommand
	Handler Handler
}

// CommandRegistry maps command names and component custom ids to their
// handlers. It is built once at startup and handed to the dispatcher,
// nothing registers into it afterwards.
type CommandRegistry struct {
	commands   []*RegisteredCommand
	byName     map[string]*RegisteredCommand
	components map[string]Handler
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		byName:     make(map[string]*RegisteredCommand),
		components: make(map[string]Handler),
	}
}

func (r *CommandRegistry) AddCommand(cmd *discordgo.ApplicationCommand, handler Handler) {
	rc := &RegisteredCommand{Command: cmd, Handler: handler}
	r.commands = append(r.commands, rc)
	r.byName[cmd.Name] = rc
}

func (r *CommandRegistry) AddComponent(customID string, handler Handler) {
	r.components[customID] = handler
}

// Commands returns the application command definitions in registration
// order, for bulk registration against a guild.
func (r *CommandRegistry) Commands() []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, len(r.commands))
	for i, v := range r.commands {
		out[i] = v.Command
	}

	return out
}

func (r *CommandRegistry) CommandHandler(name string) Handler {
	if rc, ok := r.byName[name]; ok {
		return rc.Handler
	}

	return nil
}

func (r *CommandRegistry) ComponentHandler(customID string) Handler {
	return r.components[customID]
}
