package alert

import (
	"context"
	"fmt"
	"log"
	"regexp"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

var webhookURLPattern = regexp.MustCompile(`/api/webhooks/(\d+)/([\w-]+)`)

// Poster is the part of the gateway session the sinks post through.
type Poster interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// WebhookSink posts alerts through the filter webhook, so each alert can carry its own username.
type WebhookSink struct {
	poster  Poster
	id      string
	token   string
	limiter *rate.Limiter
}

// NewWebhookSink parses a webhook url. Posting is paced to stay under the webhook rate limit.
func NewWebhookSink(poster Poster, webhookURL string) (*WebhookSink, error) {
	m := webhookURLPattern.FindStringSubmatch(webhookURL)
	if m == nil {
		return nil, fmt.Errorf("invalid filter webhook url")
	}
	return &WebhookSink{
		poster:  poster,
		id:      m[1],
		token:   m[2],
		limiter: rate.NewLimiter(rate.Limit(0.5), 5),
	}, nil
}

func (w *WebhookSink) Send(ctx context.Context, a Alert) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("alert dropped while waiting for the webhook: %w", err)
	}
	_, err := w.poster.WebhookExecute(w.id, w.token, false, &discordgo.WebhookParams{
		Username:        a.Username,
		Content:         a.Content,
		Embeds:          a.Embeds,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeRoles, discordgo.AllowedMentionTypeUsers, discordgo.AllowedMentionTypeEveryone}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		log.Printf("[Filtering] Failed to post %s alert: %v", a.Username, err)
		return fmt.Errorf("failed to execute filter webhook: %w", err)
	}
	return nil
}

// ChannelSink posts alerts as the bot into a channel, used when no webhook is configured.
type ChannelSink struct {
	poster    Poster
	channelID string
	limiter   *rate.Limiter
}

func NewChannelSink(poster Poster, channelID string) *ChannelSink {
	return &ChannelSink{poster: poster, channelID: channelID, limiter: rate.NewLimiter(rate.Limit(1), 5)}
}

func (c *ChannelSink) Send(ctx context.Context, a Alert) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("alert dropped while waiting for the channel: %w", err)
	}
	content := a.Content
	if a.Username != "" {
		content = "**" + a.Username + "**\n" + content
	}
	_, err := c.poster.ChannelMessageSendComplex(c.channelID, &discordgo.MessageSend{
		Content: content,
		Embeds:  a.Embeds,
	}, discordgo.WithContext(ctx))
	if err != nil {
		log.Printf("[Filtering] Failed to post %s alert to channel %s: %v", a.Username, c.channelID, err)
		return fmt.Errorf("failed to post alert: %w", err)
	}
	return nil
}
