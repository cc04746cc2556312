package commands

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterCommandOffersEveryList(t *testing.T) {
	cmds := GenerateCommands()
	require.Len(t, cmds, 1)
	filter := cmds[0]
	assert.Equal(t, "filter", filter.Name)

	subs := make(map[string]*discordgo.ApplicationCommandOption)
	for _, opt := range filter.Options {
		assert.Equal(t, discordgo.ApplicationCommandOptionSubCommand, opt.Type)
		subs[opt.Name] = opt
	}
	require.Contains(t, subs, "add")
	assert.Contains(t, subs, "list")
	assert.Contains(t, subs, "delete")
	assert.Contains(t, subs, "reload")
	assert.Contains(t, subs, "infractions")

	var names []string
	for _, c := range subs["add"].Options[0].Choices {
		names = append(names, c.Value.(string))
	}
	assert.Equal(t, []string{"antispam", "domain", "extension", "invite", "token", "unique"}, names)
}
