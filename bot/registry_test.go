package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRegistry(t *testing.T) {
	reg := NewCommandRegistry()

	var calls []string
	handler := func(name string) Handler {
		return func(s *discordgo.Session, ic *discordgo.InteractionCreate) error {
			calls = append(calls, name)
			return nil
		}
	}

	reg.AddCommand(&discordgo.ApplicationCommand{Name: "ticket"}, handler("ticket"))
	reg.AddCommand(&discordgo.ApplicationCommand{Name: "add"}, handler("add"))
	reg.AddComponent("close_ticket", handler("close_ticket"))

	cmds := reg.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "ticket", cmds[0].Name)
	assert.Equal(t, "add", cmds[1].Name)

	require.NotNil(t, reg.CommandHandler("ticket"))
	require.NoError(t, reg.CommandHandler("add")(nil, nil))
	require.NoError(t, reg.ComponentHandler("close_ticket")(nil, nil))
	assert.Equal(t, []string{"add", "close_ticket"}, calls)

	assert.Nil(t, reg.CommandHandler("nope"))
	assert.Nil(t, reg.ComponentHandler("nope"))
}
