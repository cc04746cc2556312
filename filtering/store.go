package filtering

import (
	"context"

	"filterbot/model"

	"github.com/bwmarrin/discordgo"
)

// RuleStore is where filter lists are persisted.
type RuleStore interface {
	FilterLists(ctx context.Context) ([]model.FilterListRecord, error)
	AddFilter(ctx context.Context, name string, listType int, rec model.FilterRecord) (model.FilterRecord, error)
	DeleteFilter(ctx context.Context, id int64) error
}

// OffensiveStore persists messages scheduled for deletion across restarts.
type OffensiveStore interface {
	AddOffensive(ctx context.Context, msg model.OffensiveMessage) error
	PendingOffensive(ctx context.Context) ([]model.OffensiveMessage, error)
	DeleteOffensive(ctx context.Context, messageID string) error
}

// Resolver looks up the guild objects a FilterContext is built from.
type Resolver interface {
	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
	Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
	Roles(guildID string, roleIDs []string) []*discordgo.Role
}
