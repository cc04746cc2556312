package antispam

import (
	"context"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/settings"
	"filterbot/model"

	"github.com/bwmarrin/discordgo"
)

// BurstFilter limits the number of messages.
type BurstFilter struct{ Filter }

func NewBurstFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (filters.Filter, error) {
	f, err := newFilter("burst", rec, defaults, Extra{Interval: 10, Threshold: 7})
	if err != nil {
		return nil, err
	}
	return &BurstFilter{f}, nil
}

func (f *BurstFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	msgs := f.Relevant(fc)
	return f.flag(fc, len(msgs), msgs, "sent %d messages")
}

// AttachmentsFilter limits the number of attachments.
type AttachmentsFilter struct{ Filter }

func NewAttachmentsFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (filters.Filter, error) {
	f, err := newFilter("attachments", rec, defaults, Extra{Interval: 10, Threshold: 6})
	if err != nil {
		return nil, err
	}
	return &AttachmentsFilter{f}, nil
}

func (f *AttachmentsFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	var detected []*discordgo.Message
	total := 0
	for _, msg := range f.Relevant(fc) {
		if len(msg.Attachments) > 0 {
			detected = append(detected, msg)
			total += len(msg.Attachments)
		}
	}
	return f.flag(fc, total, detected, "sent %d attachments")
}

// CharsFilter limits the number of characters.
type CharsFilter struct{ Filter }

func NewCharsFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (filters.Filter, error) {
	f, err := newFilter("chars", rec, defaults, Extra{Interval: 5, Threshold: 4200})
	if err != nil {
		return nil, err
	}
	return &CharsFilter{f}, nil
}

func (f *CharsFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	msgs := f.Relevant(fc)
	total := 0
	for _, msg := range msgs {
		total += len([]rune(msg.Content))
	}
	return f.flag(fc, total, msgs, "sent %d characters")
}

// RoleMentionsFilter limits the number of role mentions.
type RoleMentionsFilter struct{ Filter }

func NewRoleMentionsFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (filters.Filter, error) {
	f, err := newFilter("role_mentions", rec, defaults, Extra{Interval: 10, Threshold: 3})
	if err != nil {
		return nil, err
	}
	return &RoleMentionsFilter{f}, nil
}

func (f *RoleMentionsFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	var detected []*discordgo.Message
	total := 0
	for _, msg := range f.Relevant(fc) {
		if len(msg.MentionRoles) > 0 {
			detected = append(detected, msg)
			total += len(msg.MentionRoles)
		}
	}
	return f.flag(fc, total, detected, "sent %d role mentions")
}

// MentionsFilter limits the number of distinct users pinged. Bots, the author
// and the author of a replied to message don't count.
type MentionsFilter struct{ Filter }

func NewMentionsFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (filters.Filter, error) {
	f, err := newFilter("mentions", rec, defaults, Extra{Interval: 10, Threshold: 5})
	if err != nil {
		return nil, err
	}
	return &MentionsFilter{f}, nil
}

func (f *MentionsFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	author := fc.AuthorID()
	mentioned := make(map[string]struct{})
	var detected []*discordgo.Message
	for _, msg := range f.Relevant(fc) {
		replyTo := ""
		if msg.ReferencedMessage != nil && msg.ReferencedMessage.Author != nil {
			replyTo = msg.ReferencedMessage.Author.ID
		}
		counted := false
		for _, u := range msg.Mentions {
			if u.Bot || u.ID == author || u.ID == replyTo {
				continue
			}
			mentioned[u.ID] = struct{}{}
			counted = true
		}
		if counted {
			detected = append(detected, msg)
		}
	}
	return f.flag(fc, len(mentioned), detected, "sent %d mentions")
}
