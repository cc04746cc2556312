package defs

import (
	"filterbot/filtering/lists"

	"github.com/bwmarrin/discordgo"
)

var moderatorPermission int64 = discordgo.PermissionManageMessages

// Filter builds the /filter command. The list choices follow the registered filter list types.
func Filter() *discordgo.ApplicationCommand {
	listChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0)
	for _, name := range lists.NewRegistry().Names() {
		listChoices = append(listChoices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
	}
	typeChoices := []*discordgo.ApplicationCommandOptionChoice{
		{Name: "deny", Value: "deny"},
		{Name: "allow", Value: "allow"},
	}

	return &discordgo.ApplicationCommand{
		Name:                     "filter",
		Description:              "Manage the message filters",
		DefaultMemberPermissions: &moderatorPermission,
		NameLocalizations: &map[discordgo.Locale]string{
			discordgo.ChineseCN: "过滤器",
			discordgo.ChineseTW: "過濾器",
		},
		DescriptionLocalizations: &map[discordgo.Locale]string{
			discordgo.ChineseCN: "管理消息过滤器",
			discordgo.ChineseTW: "管理訊息過濾器",
		},
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "Show the filter lists or the filters of one list",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "list",
						Description: "Filter list to show",
						Required:    false,
						Choices:     listChoices,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "type",
						Description: "Deny or allow list",
						Required:    false,
						Choices:     typeChoices,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Add a filter to a list",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "list",
						Description: "Filter list to add to",
						Required:    true,
						Choices:     listChoices,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "type",
						Description: "Deny or allow list",
						Required:    true,
						Choices:     typeChoices,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "content",
						Description: "What the filter matches",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "description",
						Description: "Why the filter exists",
						Required:    false,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "settings",
						Description: `Setting overrides as JSON, e.g. {"infraction_type": "TIMEOUT"}`,
						Required:    false,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "delete",
				Description: "Delete a filter by id",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "id",
						Description: "Filter id",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "reload",
				Description: "Reload the filter lists from the seed file",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "infractions",
				Description: "Show the infractions the filters gave a user",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "User to look up",
						Required:    true,
					},
				},
			},
		},
	}
}
