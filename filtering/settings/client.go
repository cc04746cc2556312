package settings

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrNotFound is returned by Client lookups for users, invites and messages that don't exist.
var ErrNotFound = errors.New("not found")

// InfractionRequest is a single call into the infraction issuer.
type InfractionRequest struct {
	Type      Infraction
	UserID    string
	GuildID   string
	ChannelID string
	Duration  time.Duration // zero is permanent
	Reason    string
}

// Client is the chat API surface actions and filters act through.
type Client interface {
	DeleteMessages(ctx context.Context, channelID string, messageIDs []string) error
	DeleteChannel(ctx context.Context, channelID string) error
	SendDM(ctx context.Context, userID, content string, embed *discordgo.MessageEmbed) error
	Infract(ctx context.Context, req InfractionRequest) error
	// ModAlert posts a plain warning to the mod alerts channel.
	ModAlert(ctx context.Context, content string) error
	// ResolveRole looks a role up by id or name in the home guild.
	ResolveRole(idOrName string) (*discordgo.Role, bool)
	// ArchiveAttachments re-uploads a message's attachments and returns the new urls.
	ArchiveAttachments(ctx context.Context, msg *discordgo.Message) ([]string, error)
	User(ctx context.Context, userID string) (*discordgo.User, error)
	Invite(ctx context.Context, code string) (*discordgo.Invite, error)
	DeleteWebhook(ctx context.Context, webhookID, token string) error
}
