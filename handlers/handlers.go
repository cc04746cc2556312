package handlers

import (
	"context"
	"log"
	"time"

	"filterbot/bot"
	"filterbot/handlers/filter"
	"filterbot/utils"

	"github.com/bwmarrin/discordgo"
)

// eventTimeout bounds the API calls one gateway event may cause.
const eventTimeout = time.Minute

func Register(b *bot.Bot) {
	b.CommandHandlers = commandHandlers(b)
	addHandlers(b)
}

func commandHandlers(b *bot.Bot) map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	filterHandler := &filter.Handler{
		Engine:      b.Filtering,
		Infractions: b.Store,
		Reload:      b.ReloadFilterListsFromFile,
		Permissions: func() utils.Permissions {
			cfg := b.GetConfig()
			return utils.Permissions{
				AdminRoleIDs:      cfg.AdminRoleIDs,
				SuperAdminRoleIDs: cfg.SuperAdminRoleIDs,
				DeveloperUserIDs:  cfg.DeveloperUserIDs,
			}
		},
		Log:          b.Session,
		LogChannelID: func() string { return b.GetConfig().LogChannelID },
	}
	return map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate){
		"filter": filterHandler.Handle,
	}
}

func addHandlers(b *bot.Bot) {
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Printf("Logged in as: %v#%v", s.State.User.Username, s.State.User.Discriminator)
		if err := utils.LogInfo(s, b.GetConfig().LogChannelID, "System", "Ready", "Connected to the gateway."); err != nil {
			log.Printf("Failed to send ready log: %v", err)
		}
	})
	b.Session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		if h, ok := b.CommandHandlers[i.ApplicationCommandData().Name]; ok {
			h(s, i)
		}
	})
	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if !inHomeGuild(b, m.GuildID) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		b.Filtering.OnMessage(ctx, m.Message)
	})
	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageUpdate) {
		if !inHomeGuild(b, m.GuildID) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		b.Filtering.OnMessageEdit(ctx, m.BeforeUpdate, m.Message)
	})
	b.Session.AddHandler(func(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
		if v.VoiceState == nil || v.GuildID != b.GetConfig().GuildID {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		b.Filtering.OnVoiceStateUpdate(ctx, v.VoiceState)
	})
	b.Session.AddHandler(func(s *discordgo.Session, t *discordgo.ThreadCreate) {
		// Thread create is also sent when the bot is added to an existing thread.
		if !t.NewlyCreated || t.GuildID != b.GetConfig().GuildID {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		b.Filtering.OnThreadCreate(ctx, t.Channel)
	})
}

// inHomeGuild lets DMs through, since DM filtering is a per-list setting.
func inHomeGuild(b *bot.Bot, guildID string) bool {
	return guildID == "" || guildID == b.GetConfig().GuildID
}
