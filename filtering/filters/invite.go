package filters

import (
	"context"
	"fmt"
	"strconv"

	"filterbot/filtering/fctx"
	"filterbot/filtering/settings"
	"filterbot/model"
)

// InviteFilter matches invites to a single guild, identified by its id.
type InviteFilter struct {
	Base
	guildID string
}

func NewInviteFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (Filter, error) {
	base, err := NewBase("invite", rec, defaults)
	if err != nil {
		return nil, err
	}
	if _, err := strconv.ParseUint(rec.Content, 10, 64); err != nil {
		return nil, fmt.Errorf("invite filter #%d must hold a guild id, got %q", rec.ID, rec.Content)
	}
	return &InviteFilter{Base: base, guildID: rec.Content}, nil
}

func (f *InviteFilter) GuildID() string { return f.guildID }

// TriggeredOn expects the content set to hold the guild ids the invites point to.
func (f *InviteFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	for _, id := range fc.ContentSet {
		if id == f.guildID {
			return true
		}
	}
	return false
}
