package lists

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/settings"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

var invitePattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?` +
	`(?:discord(?:[.,]|dot)gg|` +
	`discord(?:[.,]|dot)com(?:/|slash)invite|` +
	`discordapp(?:[.,]|dot)com(?:/|slash)invite|` +
	`discord(?:[.,]|dot)me|` +
	`discord(?:[.,]|dot)li|` +
	`discord(?:[.,]|dot)io|` +
	`(?:^|[^\w])(?:[.,]|dot)gg)` +
	`(?:/|slash)([a-zA-Z0-9\-]+)`)

const (
	inviteCacheSize = 1024
	inviteCacheTTL  = 10 * time.Minute
)

// InviteList decides on guild invites. Invites to guilds on the DENY list are
// blocked. Partnered and verified guilds are otherwise allowed, while any other
// guild must be on the ALLOW list. Invites that don't resolve to a guild are blocked.
type InviteList struct {
	baseList
	client settings.Client

	group singleflight.Group
	cache *expirable.LRU[string, *discordgo.Invite]
}

func NewInviteList(deps Deps) (FilterList, error) {
	return &InviteList{
		baseList: newBaseList("invite", fixedBuild(filters.NewInviteFilter, deps.Client), false),
		client:   deps.Client,
		cache:    expirable.NewLRU[string, *discordgo.Invite](inviteCacheSize, nil, inviteCacheTTL),
	}, nil
}

func (l *InviteList) Events() []fctx.Event {
	return []fctx.Event{fctx.Message, fctx.MessageEdit, fctx.Snekbox}
}

// inviteCodes extracts the distinct invite codes of a text, in order of appearance.
func inviteCodes(text string) []string {
	text = strings.ReplaceAll(filters.CleanInput(text), `\`, "")
	var codes []string
	seen := make(map[string]struct{})
	for _, m := range invitePattern.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		codes = append(codes, m[1])
	}
	return codes
}

// resolve looks an invite up, sharing in-flight lookups. A nil invite means the code doesn't exist.
func (l *InviteList) resolve(ctx context.Context, code string) (*discordgo.Invite, error) {
	if inv, ok := l.cache.Get(code); ok {
		return inv, nil
	}
	v, err, _ := l.group.Do(code, func() (any, error) {
		inv, err := l.client.Invite(ctx, code)
		if errors.Is(err, settings.ErrNotFound) {
			l.cache.Add(code, nil)
			return (*discordgo.Invite)(nil), nil
		}
		if err != nil {
			return nil, err
		}
		l.cache.Add(code, inv)
		return inv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*discordgo.Invite), nil
}

type unknownInvite struct {
	code   string
	invite *discordgo.Invite
}

func (l *InviteList) ActionsFor(ctx context.Context, fc *fctx.FilterContext) (Result, error) {
	codes := inviteCodes(fc.Content)
	if len(codes) == 0 {
		return Result{}, nil
	}
	// Unknown invites are only a problem where the ALLOW list applies.
	allowList, hasAllow := l.List(Allow)
	checkAllowed := hasAllow && allowList.DefaultsRelevant(fc)

	inspect := make(map[string]*discordgo.Invite)
	var unknown []unknownInvite
	for _, code := range codes {
		inv, err := l.resolve(ctx, code)
		if err != nil {
			log.Printf("[Filtering] Failed to resolve invite %s: %v", code, err)
		}
		switch {
		case inv != nil && inv.Guild != nil:
			inspect[code] = inv
		case checkAllowed:
			// Group DM invites and codes that don't resolve.
			unknown = append(unknown, unknownInvite{code: code, invite: inv})
		}
	}

	var guildIDs []string
	for _, code := range codes {
		if inv, ok := inspect[code]; ok {
			guildIDs = append(guildIDs, inv.Guild.ID)
		}
	}
	denyList, triggered := l.listFilters(ctx, Deny, fc.Replace(fctx.WithContentSet(guildIDs)))
	blockedGuilds := make(map[string]struct{}, len(triggered))
	for _, f := range triggered {
		blockedGuilds[f.Content()] = struct{}{}
	}

	var blocked []unknownInvite
	var remaining []unknownInvite
	for _, code := range codes {
		inv, ok := inspect[code]
		if !ok {
			continue
		}
		if _, denied := blockedGuilds[inv.Guild.ID]; denied {
			blocked = append(blocked, unknownInvite{code: code, invite: inv})
			continue
		}
		if !partneredOrVerified(inv.Guild) {
			remaining = append(remaining, unknownInvite{code: code, invite: inv})
		}
	}

	res := Result{Triggers: map[ListType][]filters.Filter{Deny: triggered}}
	if checkAllowed && len(remaining) > 0 {
		ids := make([]string, 0, len(remaining))
		for _, r := range remaining {
			ids = append(ids, r.invite.Guild.ID)
		}
		allowedFilters := allowList.FilterListResult(ctx, fc.Replace(fctx.WithContentSet(ids)))
		res.Triggers[Allow] = allowedFilters
		allowed := make(map[string]struct{}, len(allowedFilters))
		for _, f := range allowedFilters {
			allowed[f.Content()] = struct{}{}
		}
		for _, r := range remaining {
			if _, ok := allowed[r.invite.Guild.ID]; !ok {
				unknown = append(unknown, r)
			}
		}
	}

	if len(triggered) == 0 && len(unknown) == 0 {
		return res, nil
	}

	if len(unknown) > 0 {
		res.Actions = allowList.Defaults.Actions
	}
	if len(triggered) > 0 {
		denied, err := denyList.MergeActions(triggered)
		if err != nil {
			return Result{}, err
		}
		// Denied invites come second so their actions take precedence.
		if res.Actions, err = res.Actions.Union(denied); err != nil {
			return Result{}, fmt.Errorf("failed to merge invite actions: %w", err)
		}
	}

	for _, b := range append(blocked, unknown...) {
		fc.AddMatches(b.code)
		if b.invite != nil && b.invite.Guild != nil {
			fc.AddAlertEmbeds(guildEmbed(b.invite))
		}
	}
	res.Messages = FormatMessages(triggered, false)
	for _, u := range unknown {
		if u.invite != nil && u.invite.Guild != nil {
			res.Messages = append(res.Messages, fmt.Sprintf("`%s - %s`", u.code, u.invite.Guild.ID))
		} else {
			res.Messages = append(res.Messages, "`"+u.code+"`")
		}
	}
	return res, nil
}

func partneredOrVerified(g *discordgo.Guild) bool {
	for _, f := range g.Features {
		if s := string(f); s == "PARTNERED" || s == "VERIFIED" {
			return true
		}
	}
	return false
}

func guildEmbed(inv *discordgo.Invite) *discordgo.MessageEmbed {
	g := inv.Guild
	embed := &discordgo.MessageEmbed{
		Title:       g.Name,
		Description: g.Description,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Guild ID", Value: g.ID, Inline: true},
			{Name: "Members", Value: strconv.Itoa(inv.ApproximateMemberCount), Inline: true},
			{Name: "Online", Value: strconv.Itoa(inv.ApproximatePresenceCount), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Invite code: " + inv.Code},
	}
	if g.Icon != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: g.IconURL("")}
	}
	return embed
}

// ProcessInput turns an invite, or a bare guild id, into the guild id the filter stores.
func (l *InviteList) ProcessInput(ctx context.Context, content string) (string, error) {
	content = strings.TrimSpace(content)
	if _, err := strconv.ParseUint(content, 10, 64); err == nil {
		return content, nil
	}
	code := content
	if codes := inviteCodes(content); len(codes) > 0 {
		code = codes[0]
	}
	inv, err := l.resolve(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to resolve invite %s: %w", code, err)
	}
	if inv == nil || inv.Guild == nil {
		return "", fmt.Errorf("`%s` is not a guild invite", content)
	}
	return inv.Guild.ID, nil
}
