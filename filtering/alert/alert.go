// Package alert builds and delivers moderator alerts for filter triggers.
package alert

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"filterbot/filtering/fctx"
	"filterbot/filtering/settings"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// MaxDescription is the embed description budget.
	MaxDescription = 4096
	// MaxEmbeds is the most embeds a single webhook message can carry.
	MaxEmbeds = 10
	// maxMatches bounds the matches line so the original content keeps some room.
	maxMatches = 1000
)

const (
	colorSevere  = 15158332
	colorHigh    = 15105570
	colorDefault = 16098851
)

// Alert is one webhook message for the mod alerts channel.
type Alert struct {
	Username string
	Content  string
	Embeds   []*discordgo.MessageEmbed
}

// Sink delivers alerts. Delivery is best effort.
type Sink interface {
	Send(ctx context.Context, a Alert) error
}

// ListMessages are the lines one filter list contributed to an alert.
type ListMessages struct {
	List     string
	Messages []string
}

// Username is the display name used when alerting for an event, e.g. "Message Edit Filter".
func Username(event fctx.Event) string {
	return event.Title() + " Filter"
}

// Color picks the embed colour from the infraction that was applied.
func Color(actions *settings.ActionSettings) int {
	inf, ok := actions.Infraction()
	if !ok {
		return colorDefault
	}
	switch inf.InfractionType {
	case settings.Ban, settings.Kick:
		return colorSevere
	case settings.Timeout, settings.VoiceMute, settings.Superstar:
		return colorHigh
	}
	return colorDefault
}

// Build assembles the alert for an event: the summary embed first, followed by
// any embeds the filters attached, capped at MaxEmbeds.
func Build(fc *fctx.FilterContext, triggered []ListMessages, actions *settings.ActionSettings) Alert {
	embed := BuildEmbed(fc, triggered)
	embed.Color = Color(actions)
	embeds := append([]*discordgo.MessageEmbed{embed}, fc.AlertEmbeds()...)
	if len(embeds) > MaxEmbeds {
		embeds = embeds[:MaxEmbeds]
	}
	return Alert{
		Username: Username(fc.Event),
		Content:  fc.AlertContent(),
		Embeds:   embeds,
	}
}

// BuildEmbed writes the summary embed of a triggered event.
func BuildEmbed(fc *fctx.FilterContext, triggered []ListMessages) *discordgo.MessageEmbed {
	var parts []string
	if fc.Author != nil {
		parts = append(parts, fmt.Sprintf("**Triggered by:** <@%s> (`%s`)", fc.Author.ID, fc.Author.ID))
	}
	if fc.Channel != nil {
		in := "**Triggered in:** :warning:**DM**:warning:"
		if fc.InGuild() {
			in = fmt.Sprintf("**Triggered in:** <#%s> (`%s`)", fc.Channel.ID, fc.Channel.ID)
		}
		if channels := fc.RelatedChannels(); len(channels) > 1 {
			mentions := make([]string, 0, len(channels))
			for _, id := range channels {
				mentions = append(mentions, "<#"+id+">")
			}
			in += "\n**Channels:** " + strings.Join(mentions, ", ")
		}
		parts = append(parts, in)
	}

	for _, t := range triggered {
		if len(t.Messages) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("**%s Filters:** %s", cases.Title(language.English).String(strings.ReplaceAll(t.List, "_", " ")), strings.Join(t.Messages, ", ")))
	}

	if matches := fc.Matches(); len(matches) > 0 {
		quoted := make([]string, 0, len(matches))
		for _, m := range matches {
			quoted = append(quoted, fmt.Sprintf("%q", m))
		}
		parts = append(parts, "**Matches:** "+truncate(escapeMarkdown(strings.Join(quoted, ", ")), maxMatches))
	}

	taken := "-"
	if descs := fc.ActionDescriptions(); len(descs) > 0 {
		taken = strings.Join(descs, ", ")
	}
	parts = append(parts, "\n**Actions Taken:** "+taken)

	description := strings.Join(parts, "\n")
	if fc.Message != nil {
		description += fmt.Sprintf("\n**[Original Content](%s)**:\n", jumpURL(fc.Message))
	} else {
		description += "\n**Original Content**:\n"
	}
	description += originalContent(fc, utf8.RuneCountInString(description))

	embed := &discordgo.MessageEmbed{Description: truncate(description, MaxDescription), Color: colorDefault}
	if fc.Author != nil {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: fc.Author.AvatarURL("")}
	}
	return embed
}

// originalContent renders the redacted content plus archived attachments within what remains of the budget.
func originalContent(fc *fctx.FilterContext, used int) string {
	content := fc.RedactedContent()
	if uploaded := fc.UploadedAttachments(); len(uploaded) > 0 {
		var links []string
		for _, urls := range uploaded {
			links = append(links, urls...)
		}
		content += "\n\n**Attachments:**\n" + strings.Join(links, "\n")
	}
	remaining := MaxDescription - used
	if remaining <= 0 {
		return ""
	}
	return truncate(content, remaining)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

func jumpURL(msg *discordgo.Message) string {
	guild := msg.GuildID
	if guild == "" {
		guild = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guild, msg.ChannelID, msg.ID)
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "~", `\~`, "`", "\\`", "|", `\|`, ">", `\>`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
