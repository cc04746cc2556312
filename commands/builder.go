package commands

import (
	"filterbot/commands/defs"

	"github.com/bwmarrin/discordgo"
)

// GenerateCommands returns the application commands registered in the home guild.
func GenerateCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		defs.Filter(),
	}
}
