package unique

import (
	"context"
	"strings"
	"time"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/settings"
	"filterbot/model"

	"github.com/bwmarrin/discordgo"
)

// Edits closer than this to the previous version are the gateway resending the same message.
const doubleTriggerDelta = 100 * time.Microsecond

// RichEmbedFilter catches rich embeds that are not link previews of the content.
type RichEmbedFilter struct {
	filters.Base
}

func NewRichEmbedFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (filters.Filter, error) {
	base, err := filters.NewBase("rich_embed", rec, defaults)
	if err != nil {
		return nil, err
	}
	return &RichEmbedFilter{Base: base}, nil
}

func (f *RichEmbedFilter) Events() []fctx.Event {
	return []fctx.Event{fctx.Message, fctx.MessageEdit}
}

func (f *RichEmbedFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	if len(fc.Embeds) == 0 {
		return false
	}
	if fc.Event == fctx.MessageEdit && !genuineEdit(fc.Message, fc.BeforeMessage) {
		return false
	}

	urls := make(map[string]struct{})
	for _, u := range filters.URLPattern.FindAllString(fc.Content, -1) {
		urls[u] = struct{}{}
		// Previews drop the subdomain, mobile.twitter.com renders as twitter.com.
		urls[withoutSubdomain(u)] = struct{}{}
	}
	for _, embed := range fc.Embeds {
		if embed.Type != discordgo.EmbedTypeRich {
			continue
		}
		if _, ok := urls[embed.URL]; embed.URL == "" || !ok {
			fc.AddAlertEmbeds(fc.Embeds...)
			return true
		}
	}
	return false
}

func genuineEdit(msg, before *discordgo.Message) bool {
	if msg == nil || msg.EditedTimestamp == nil {
		return false
	}
	if before == nil {
		return true
	}
	prev := before.Timestamp
	if before.EditedTimestamp != nil {
		prev = *before.EditedTimestamp
	}
	return msg.EditedTimestamp.Sub(prev) >= doubleTriggerDelta
}

func withoutSubdomain(u string) string {
	host := filters.Host(u)
	registered := filters.RegisteredDomain(host)
	if host == registered {
		return u
	}
	return strings.Replace(u, host, registered, 1)
}
