// Package antispam holds behavioural filters evaluated over a window of recent
// messages from the same author.
package antispam

import (
	"fmt"
	"time"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/settings"
	"filterbot/model"

	"github.com/bwmarrin/discordgo"
)

// Extra is the configuration shared by every antispam filter.
type Extra struct {
	// Interval is the window length in seconds.
	Interval  int `mapstructure:"interval"`
	Threshold int `mapstructure:"threshold"`
}

func (e Extra) window() time.Duration {
	return time.Duration(e.Interval) * time.Second
}

// Filter is the common part of the antispam filters.
type Filter struct {
	filters.Base
	Extra Extra
}

func newFilter(name string, rec model.FilterRecord, defaults *settings.Defaults, extra Extra) (Filter, error) {
	base, err := filters.NewBase(name, rec, defaults)
	if err != nil {
		return Filter{}, err
	}
	f := Filter{Base: base, Extra: extra}
	if err := filters.DecodeExtra(name, rec, &f.Extra); err != nil {
		return Filter{}, err
	}
	if f.Extra.Interval <= 0 {
		return Filter{}, fmt.Errorf("%s filter #%d needs a positive interval", name, rec.ID)
	}
	return f, nil
}

// Interval is how far back the filter looks.
func (f *Filter) Interval() time.Duration {
	return f.Extra.window()
}

func (f *Filter) Events() []fctx.Event {
	return []fctx.Event{fctx.Message}
}

// Relevant returns the author's messages inside the filter's interval. The
// window is newest first, so the scan stops at the first message that is too old.
func (f *Filter) Relevant(fc *fctx.FilterContext) []*discordgo.Message {
	return Relevant(fc, f.Extra.window())
}

func Relevant(fc *fctx.FilterContext, interval time.Duration) []*discordgo.Message {
	now := time.Now()
	if fc.Message != nil && !fc.Message.Timestamp.IsZero() {
		now = fc.Message.Timestamp
	}
	earliest := now.Add(-interval)
	author := fc.AuthorID()

	var out []*discordgo.Message
	for _, msg := range fc.Window {
		if !msg.Timestamp.After(earliest) {
			break
		}
		if msg.Author != nil && msg.Author.ID == author {
			out = append(out, msg)
		}
	}
	return out
}

// flag records the implicated messages and a summary when value exceeds the threshold.
func (f *Filter) flag(fc *fctx.FilterContext, value int, detected []*discordgo.Message, format string) bool {
	if value <= f.Extra.Threshold {
		return false
	}
	fc.AddRelatedMessages(detected...)
	fc.SetFilterInfo(f.Key(), fmt.Sprintf(format, value))
	return true
}

// NewRegistry returns the registry of every antispam filter type.
func NewRegistry() (*filters.Registry, error) {
	r := filters.NewRegistry("antispam")
	for _, t := range []struct {
		name    string
		factory filters.Factory
	}{
		{"attachments", NewAttachmentsFilter},
		{"burst", NewBurstFilter},
		{"chars", NewCharsFilter},
		{"duplicates", NewDuplicatesFilter},
		{"emoji", NewEmojiFilter},
		{"links", NewLinksFilter},
		{"mentions", NewMentionsFilter},
		{"newlines", NewNewlinesFilter},
		{"role_mentions", NewRoleMentionsFilter},
	} {
		if err := r.Register(t.name, t.factory); err != nil {
			return nil, fmt.Errorf("failed to register antispam filters: %w", err)
		}
	}
	return r, nil
}
