package settings

import (
	"filterbot/filtering/fctx"
)

// BypassRoles exempts members holding any of the listed roles, by id or name.
type BypassRoles struct {
	meta
	Roles []string `mapstructure:"bypass_roles"`
}

func buildBypassRoles(data, defaults map[string]any) (Entry, error) {
	e, m, err := decodeEntry[BypassRoles]("bypass_roles", data, defaults)
	if err != nil {
		return nil, err
	}
	e.Roles = unionStrings(e.Roles, nil)
	e.meta = m
	return e, nil
}

func (BypassRoles) Name() string { return "bypass_roles" }

func (e BypassRoles) Dump() map[string]any {
	return map[string]any{"bypass_roles": append([]string{}, e.Roles...)}
}

func (e BypassRoles) TriggersOn(fc *fctx.FilterContext) bool {
	if fc.Member == nil {
		return true
	}
	roles := toSet(e.Roles)
	for _, id := range fc.MemberRoles() {
		if _, ok := roles[id]; ok {
			return false
		}
	}
	for _, role := range fc.Roles {
		if _, ok := roles[role.ID]; ok {
			return false
		}
		if _, ok := roles[role.Name]; ok {
			return false
		}
	}
	return true
}

// ChannelScope limits where a rule applies, by channel and category id or name.
type ChannelScope struct {
	meta
	DisabledChannels   []string `mapstructure:"disabled_channels"`
	DisabledCategories []string `mapstructure:"disabled_categories"`
	EnabledChannels    []string `mapstructure:"enabled_channels"`
	EnabledCategories  []string `mapstructure:"enabled_categories"`
}

func buildChannelScope(data, defaults map[string]any) (Entry, error) {
	e, m, err := decodeEntry[ChannelScope]("channel_scope", data, defaults)
	if err != nil {
		return nil, err
	}
	e.meta = m
	return e, nil
}

func (ChannelScope) Name() string { return "channel_scope" }

func (e ChannelScope) Dump() map[string]any {
	return map[string]any{
		"disabled_channels":   append([]string{}, e.DisabledChannels...),
		"disabled_categories": append([]string{}, e.DisabledCategories...),
		"enabled_channels":    append([]string{}, e.EnabledChannels...),
		"enabled_categories":  append([]string{}, e.EnabledCategories...),
	}
}

// TriggersOn applies: an explicitly enabled channel always passes; otherwise the
// channel must not be disabled, its category must be enabled (or no category
// allow list exists) and its category must not be disabled.
func (e ChannelScope) TriggersOn(fc *fctx.FilterContext) bool {
	channel := fc.ScopeChannel()
	if channel == nil || !fc.InGuild() {
		return true
	}
	enabledChannel := matchesAny(e.EnabledChannels, channel.ID, channel.Name)
	disabledChannel := matchesAny(e.DisabledChannels, channel.ID, channel.Name)

	categoryEnabled := len(e.EnabledCategories) == 0
	categoryDisabled := false
	if cat := fc.Category; cat != nil {
		if !categoryEnabled {
			categoryEnabled = matchesAny(e.EnabledCategories, cat.ID, cat.Name)
		}
		categoryDisabled = matchesAny(e.DisabledCategories, cat.ID, cat.Name)
	}
	return enabledChannel || (!disabledChannel && categoryEnabled && !categoryDisabled)
}

// Enabled switches a rule on or off.
type Enabled struct {
	meta
	Enabled bool `mapstructure:"enabled"`
}

func buildEnabled(data, defaults map[string]any) (Entry, error) {
	e, m, err := decodeEntry[Enabled]("enabled", data, defaults)
	if err != nil {
		return nil, err
	}
	e.meta = m
	return e, nil
}

func (Enabled) Name() string { return "enabled" }

func (e Enabled) Dump() map[string]any { return map[string]any{"enabled": e.Enabled} }

func (e Enabled) TriggersOn(*fctx.FilterContext) bool { return e.Enabled }

// FilterDM controls whether a rule applies in direct messages.
type FilterDM struct {
	meta
	FilterDM bool `mapstructure:"filter_dm"`
}

func buildFilterDM(data, defaults map[string]any) (Entry, error) {
	e, m, err := decodeEntry[FilterDM]("filter_dm", data, defaults)
	if err != nil {
		return nil, err
	}
	e.meta = m
	return e, nil
}

func (FilterDM) Name() string { return "filter_dm" }

func (e FilterDM) Dump() map[string]any { return map[string]any{"filter_dm": e.FilterDM} }

func (e FilterDM) TriggersOn(fc *fctx.FilterContext) bool {
	if fc.Event == fctx.Nickname {
		return true
	}
	return fc.InGuild() || e.FilterDM
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return set
}

func matchesAny(list []string, values ...string) bool {
	for _, item := range list {
		for _, v := range values {
			if v != "" && item == v {
				return true
			}
		}
	}
	return false
}
