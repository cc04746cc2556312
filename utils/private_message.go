package utils

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// SendDM sends a direct message to a user. Either content or embed may be empty.
func SendDM(ctx context.Context, s *discordgo.Session, userID, content string, embed *discordgo.MessageEmbed) error {
	channel, err := s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to open a DM with user %s: %w", userID, err)
	}
	send := &discordgo.MessageSend{Content: content}
	if embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}
	if _, err := s.ChannelMessageSendComplex(channel.ID, send, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send a DM to user %s: %w", userID, err)
	}
	return nil
}
