package alert

import (
	"context"
	"strings"
	"testing"

	"filterbot/filtering/fctx"
	"filterbot/filtering/settings"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

type fakePoster struct {
	webhooks []*discordgo.WebhookParams
	sent     []*discordgo.MessageSend
}

func (p *fakePoster) WebhookExecute(_, _ string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	p.webhooks = append(p.webhooks, data)
	return nil, nil
}

func (p *fakePoster) ChannelMessageSendComplex(_ string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	p.sent = append(p.sent, data)
	return nil, nil
}

func guildContext(content string) *fctx.FilterContext {
	msg := &discordgo.Message{ID: "3", ChannelID: "2", GuildID: "1", Content: content, Author: &discordgo.User{ID: "42"}}
	return fctx.FromMessage(fctx.Message, msg, nil, &discordgo.Channel{ID: "2", GuildID: "1"}, nil)
}

func TestBuildEmbed(t *testing.T) {
	fc := guildContext("bad content")
	fc.AddMatches("bad")
	fc.AddActionDescription("deleted", "notified")

	embed := BuildEmbed(fc, []ListMessages{{List: "token", Messages: []string{"#1 (`bad`)"}}, {List: "unique"}})
	require.Contains(t, embed.Description, "**Triggered by:** <@42> (`42`)")
	require.Contains(t, embed.Description, "**Triggered in:** <#2> (`2`)")
	require.Contains(t, embed.Description, "**Token Filters:** #1 (`bad`)")
	require.NotContains(t, embed.Description, "Unique Filters")
	require.Contains(t, embed.Description, `**Matches:** "bad"`)
	require.Contains(t, embed.Description, "**Actions Taken:** deleted, notified")
	require.Contains(t, embed.Description, "https://discord.com/channels/1/2/3")
	require.True(t, strings.HasSuffix(embed.Description, "bad content"))
}

func TestBuildEmbedDM(t *testing.T) {
	fc := fctx.New(fctx.Message, &discordgo.User{ID: "42"}, nil, &discordgo.Channel{ID: "9", Type: discordgo.ChannelTypeDM}, "hi")
	embed := BuildEmbed(fc, nil)
	require.Contains(t, embed.Description, ":warning:**DM**:warning:")
	require.Contains(t, embed.Description, "**Actions Taken:** -")
}

func TestBuildTruncates(t *testing.T) {
	fc := guildContext(strings.Repeat("a", 5000))
	embed := BuildEmbed(fc, nil)
	require.Equal(t, MaxDescription, len([]rune(embed.Description)))
	require.True(t, strings.HasSuffix(embed.Description, "..."))
}

func TestBuildCapsLongMatches(t *testing.T) {
	fc := guildContext("spam")
	for n := 0; n < 60; n++ {
		fc.AddMatches("https://" + strings.Repeat("x", 100) + ".example.com/" + strings.Repeat("y", n))
	}
	embed := BuildEmbed(fc, nil)
	require.LessOrEqual(t, len([]rune(embed.Description)), MaxDescription)
	require.Contains(t, embed.Description, "...\n")
	require.True(t, strings.HasSuffix(embed.Description, "spam"))
}

func TestBuildTruncatesLongFilterLines(t *testing.T) {
	fc := guildContext("spam")
	lines := make([]string, 60)
	for n := range lines {
		lines[n] = strings.Repeat("z", 80)
	}
	embed := BuildEmbed(fc, []ListMessages{{List: "domain", Messages: lines}})
	require.Equal(t, MaxDescription, len([]rune(embed.Description)))
	require.True(t, strings.HasSuffix(embed.Description, "..."))
}

func TestBuildCapsEmbeds(t *testing.T) {
	fc := guildContext("x")
	for i := 0; i < 12; i++ {
		fc.AddAlertEmbeds(&discordgo.MessageEmbed{Title: "extra"})
	}
	fc.PrependAlertContent("<@&5>")

	a := Build(fc, nil, nil)
	require.Len(t, a.Embeds, MaxEmbeds)
	require.Equal(t, "Message Filter", a.Username)
	require.Equal(t, "<@&5>", a.Content)
}

func TestColorBySeverity(t *testing.T) {
	ban := settings.NewActionSettings(settings.InfractionAndNotification{InfractionType: settings.Ban})
	note := settings.NewActionSettings(settings.InfractionAndNotification{InfractionType: settings.Note})
	require.Equal(t, colorSevere, Color(ban))
	require.Equal(t, colorDefault, Color(note))
	require.Equal(t, colorDefault, Color(nil))
}

func TestUsername(t *testing.T) {
	require.Equal(t, "Message Edit Filter", Username(fctx.MessageEdit))
}

func TestWebhookSink(t *testing.T) {
	poster := &fakePoster{}
	_, err := NewWebhookSink(poster, "https://example.com/nothing")
	require.Error(t, err)

	sink, err := NewWebhookSink(poster, "https://discord.com/api/webhooks/123/tok-en")
	require.NoError(t, err)
	require.NoError(t, sink.Send(context.Background(), Alert{Username: "Anti-Spam", Content: "hi"}))
	require.Len(t, poster.webhooks, 1)
	require.Equal(t, "Anti-Spam", poster.webhooks[0].Username)
}

func TestChannelSink(t *testing.T) {
	poster := &fakePoster{}
	sink := NewChannelSink(poster, "77")
	require.NoError(t, sink.Send(context.Background(), Alert{Username: "Message Filter", Content: "<@&5>"}))
	require.Equal(t, "**Message Filter**\n<@&5>", poster.sent[0].Content)
}
