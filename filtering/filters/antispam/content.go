package antispam

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/settings"
	"filterbot/model"

	"github.com/bwmarrin/discordgo"
	"github.com/rivo/uniseg"
	"github.com/spaolacci/murmur3"
)

var (
	customEmoji = regexp.MustCompile(`<a?:\w+:\d+>`)
	newlineRuns = regexp.MustCompile(`\n+`)
)

// DuplicatesFilter limits repeats of the same message content.
type DuplicatesFilter struct{ Filter }

func NewDuplicatesFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (filters.Filter, error) {
	f, err := newFilter("duplicates", rec, defaults, Extra{Interval: 10, Threshold: 3})
	if err != nil {
		return nil, err
	}
	return &DuplicatesFilter{f}, nil
}

func (f *DuplicatesFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	if fc.Message == nil || fc.Message.Content == "" {
		return false
	}
	content := fc.Message.Content
	sum := murmur3.Sum64([]byte(content))

	var detected []*discordgo.Message
	for _, msg := range f.Relevant(fc) {
		if len(msg.Content) != len(content) || murmur3.Sum64([]byte(msg.Content)) != sum {
			continue
		}
		if msg.Content == content {
			detected = append(detected, msg)
		}
	}
	return f.flag(fc, len(detected), detected, "sent %d duplicate messages")
}

// EmojiFilter limits the number of distinct emoji, custom or unicode.
type EmojiFilter struct{ Filter }

func NewEmojiFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (filters.Filter, error) {
	f, err := newFilter("emoji", rec, defaults, Extra{Interval: 10, Threshold: 20})
	if err != nil {
		return nil, err
	}
	return &EmojiFilter{f}, nil
}

func (f *EmojiFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	seen := make(map[string]struct{})
	var detected []*discordgo.Message
	for _, msg := range f.Relevant(fc) {
		found := emojiIn(msg.Content)
		for _, e := range found {
			seen[e] = struct{}{}
		}
		if len(found) > 0 {
			detected = append(detected, msg)
		}
	}
	return f.flag(fc, len(seen), detected, "sent %d emojis")
}

// emojiIn lists custom emoji and unicode emoji clusters. A flag or a
// joined family counts as one emoji.
func emojiIn(content string) []string {
	found := customEmoji.FindAllString(content, -1)
	rest := customEmoji.ReplaceAllString(content, "")
	g := uniseg.NewGraphemes(rest)
	for g.Next() {
		runes := g.Runes()
		if len(runes) > 0 && isEmoji(runes[0]) {
			found = append(found, g.Str())
		}
	}
	return found
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF, r >= 0x2600 && r <= 0x27BF, r >= 0x2B00 && r <= 0x2BFF:
		return true
	}
	return r > 0x2000 && unicode.Is(unicode.So, r)
}

// LinksFilter limits the number of links, spread over more than one message.
type LinksFilter struct{ Filter }

func NewLinksFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (filters.Filter, error) {
	f, err := newFilter("links", rec, defaults, Extra{Interval: 10, Threshold: 10})
	if err != nil {
		return nil, err
	}
	return &LinksFilter{f}, nil
}

func (f *LinksFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	var detected []*discordgo.Message
	total := 0
	for _, msg := range f.Relevant(fc) {
		if n := len(filters.URLPattern.FindAllStringIndex(msg.Content, -1)); n > 0 {
			detected = append(detected, msg)
			total += n
		}
	}
	if len(detected) <= 1 {
		return false
	}
	return f.flag(fc, total, detected, "sent %d links")
}

// NewlinesExtra adds a limit on the longest run of blank lines.
type NewlinesExtra struct {
	Extra                `mapstructure:",squash"`
	ConsecutiveThreshold int `mapstructure:"consecutive_threshold"`
}

// NewlinesFilter limits total newlines and the longest run of consecutive ones.
type NewlinesFilter struct {
	Filter
	Consecutive int
}

func NewNewlinesFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (filters.Filter, error) {
	base, err := filters.NewBase("newlines", rec, defaults)
	if err != nil {
		return nil, err
	}
	extra := NewlinesExtra{Extra: Extra{Interval: 10, Threshold: 100}, ConsecutiveThreshold: 10}
	if err := filters.DecodeExtra("newlines", rec, &extra); err != nil {
		return nil, err
	}
	if extra.Interval <= 0 {
		return nil, fmt.Errorf("newlines filter #%d needs a positive interval", rec.ID)
	}
	return &NewlinesFilter{Filter: Filter{Base: base, Extra: extra.Extra}, Consecutive: extra.ConsecutiveThreshold}, nil
}

func (f *NewlinesFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	msgs := f.Relevant(fc)
	total, longest := 0, 0
	for _, msg := range msgs {
		total += strings.Count(msg.Content, "\n")
		for _, run := range newlineRuns.FindAllString(msg.Content, -1) {
			longest = max(longest, len(run))
		}
	}
	if f.flag(fc, total, msgs, "sent %d newlines") {
		return true
	}
	if longest > f.Consecutive {
		fc.AddRelatedMessages(msgs...)
		fc.SetFilterInfo(f.Key(), fmt.Sprintf("sent %d consecutive newlines", longest))
		return true
	}
	return false
}
