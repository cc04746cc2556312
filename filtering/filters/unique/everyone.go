package unique

import (
	"context"
	"regexp"
	"strings"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/settings"
	"filterbot/model"
)

var (
	codeBlocks = []*regexp.Regexp{
		regexp.MustCompile("(?s)```.*?```"),
		regexp.MustCompile("``[^`]+?``"),
		regexp.MustCompile("`[^`]+?`"),
	}
	everyonePing = regexp.MustCompile(`@everyone|@here`)
)

// EveryoneFilter catches mass pings outside of code blocks.
type EveryoneFilter struct {
	filters.Base
}

func NewEveryoneFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (filters.Filter, error) {
	base, err := filters.NewBase("everyone", rec, defaults)
	if err != nil {
		return nil, err
	}
	return &EveryoneFilter{Base: base}, nil
}

func (f *EveryoneFilter) Events() []fctx.Event {
	return []fctx.Event{fctx.Message, fctx.MessageEdit, fctx.Snekbox}
}

func (f *EveryoneFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	content := fc.Content
	for _, re := range codeBlocks {
		content = re.ReplaceAllString(content, "")
	}
	if everyonePing.MatchString(content) {
		return true
	}
	// The @everyone role shares its id with the guild.
	guildID := ""
	if fc.Channel != nil {
		guildID = fc.Channel.GuildID
	}
	return guildID != "" && strings.Contains(content, "<@&"+guildID+">")
}
