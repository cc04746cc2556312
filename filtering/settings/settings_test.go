package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"filterbot/filtering/fctx"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	deleted    map[string][]string
	dms        []string
	infracted  []InfractionRequest
	alerts     []string
	dmErr      error
	infractErr error
	roles      map[string]*discordgo.Role
	archiveErr error
	archived   []string
}

func (c *recordingClient) DeleteMessages(_ context.Context, channelID string, ids []string) error {
	if c.deleted == nil {
		c.deleted = make(map[string][]string)
	}
	c.deleted[channelID] = append(c.deleted[channelID], ids...)
	return nil
}
func (c *recordingClient) DeleteChannel(context.Context, string) error { return nil }
func (c *recordingClient) SendDM(_ context.Context, _ string, content string, _ *discordgo.MessageEmbed) error {
	if c.dmErr != nil {
		return c.dmErr
	}
	c.dms = append(c.dms, content)
	return nil
}
func (c *recordingClient) Infract(_ context.Context, req InfractionRequest) error {
	if c.infractErr != nil {
		return c.infractErr
	}
	c.infracted = append(c.infracted, req)
	return nil
}
func (c *recordingClient) ModAlert(_ context.Context, content string) error {
	c.alerts = append(c.alerts, content)
	return nil
}
func (c *recordingClient) ResolveRole(idOrName string) (*discordgo.Role, bool) {
	r, ok := c.roles[idOrName]
	return r, ok
}
func (c *recordingClient) ArchiveAttachments(_ context.Context, msg *discordgo.Message) ([]string, error) {
	if c.archiveErr != nil {
		return nil, c.archiveErr
	}
	c.archived = append(c.archived, msg.ID)
	return []string{"https://archive.test/" + msg.ID}, nil
}
func (c *recordingClient) User(context.Context, string) (*discordgo.User, error) { return nil, nil }
func (c *recordingClient) Invite(context.Context, string) (*discordgo.Invite, error) {
	return nil, nil
}
func (c *recordingClient) DeleteWebhook(context.Context, string, string) error { return nil }

func mustBuild(t *testing.T, build func(data, defaults map[string]any) (Entry, error), data map[string]any) Entry {
	t.Helper()
	e, err := build(data, nil)
	require.NoError(t, err)
	return e
}

func TestUnionIdempotent(t *testing.T) {
	entries := []ActionEntry{
		mustBuild(t, buildInfraction, map[string]any{"infraction_type": "timeout", "infraction_duration": 600.0, "dm_content": "hi"}).(ActionEntry),
		mustBuild(t, buildRemoveContext, map[string]any{"remove_context": true}).(ActionEntry),
		mustBuild(t, buildSendAlert, map[string]any{"send_alert": false}).(ActionEntry),
		mustBuild(t, buildPing, map[string]any{"guild_pings": []any{"Moderators", "here"}, "dm_pings": []any{}}).(ActionEntry),
	}
	for _, e := range entries {
		t.Run(e.Name(), func(t *testing.T) {
			merged, err := e.Union(e)
			require.NoError(t, err)
			require.Equal(t, e, merged)
		})
	}
}

func TestInfractionUnionSeverity(t *testing.T) {
	ban := mustBuild(t, buildInfraction, map[string]any{"infraction_type": "BAN"}).(InfractionAndNotification)
	warn := mustBuild(t, buildInfraction, map[string]any{"infraction_type": "WARNING", "infraction_duration": 10.0}).(InfractionAndNotification)

	ab, err := ban.Union(warn)
	require.NoError(t, err)
	ba, err := warn.Union(ban)
	require.NoError(t, err)
	require.Equal(t, ab, ba)
	require.Equal(t, Ban, ab.(InfractionAndNotification).InfractionType)
}

func TestInfractionUnionDuration(t *testing.T) {
	short := mustBuild(t, buildInfraction, map[string]any{"infraction_type": "TIMEOUT", "infraction_duration": "10m"}).(InfractionAndNotification)
	long := mustBuild(t, buildInfraction, map[string]any{"infraction_type": "TIMEOUT", "infraction_duration": 3600}).(InfractionAndNotification)
	permanent := mustBuild(t, buildInfraction, map[string]any{"infraction_type": "TIMEOUT"}).(InfractionAndNotification)

	for _, pair := range [][2]InfractionAndNotification{{short, long}, {long, short}} {
		merged, err := pair[0].Union(pair[1])
		require.NoError(t, err)
		require.Equal(t, time.Hour, merged.(InfractionAndNotification).InfractionDuration)
	}

	merged, err := long.Union(permanent)
	require.NoError(t, err)
	require.Zero(t, merged.(InfractionAndNotification).InfractionDuration)
}

func TestInfractionUnionCarriesDM(t *testing.T) {
	ban := mustBuild(t, buildInfraction, map[string]any{"infraction_type": "BAN"}).(InfractionAndNotification)
	note := mustBuild(t, buildInfraction, map[string]any{"infraction_type": "NOTE", "dm_content": "please stop"}).(InfractionAndNotification)

	merged, err := ban.Union(note)
	require.NoError(t, err)
	inf := merged.(InfractionAndNotification)
	require.Equal(t, Ban, inf.InfractionType)
	require.Equal(t, "please stop", inf.DMContent)
}

func TestUnionMismatch(t *testing.T) {
	rc := mustBuild(t, buildRemoveContext, map[string]any{"remove_context": true}).(ActionEntry)
	sa := mustBuild(t, buildSendAlert, map[string]any{"send_alert": true}).(ActionEntry)
	_, err := rc.Union(sa)
	require.Error(t, err)
}

func TestCreateGroupsFieldsAndInheritsDefaults(t *testing.T) {
	actions, validations, err := Create(map[string]any{
		"infraction_type":     "KICK",
		"infraction_reason":   "spam",
		"dm_content":          "",
		"remove_context":      true,
		"send_alert":          true,
		"guild_pings":         []any{"Moderators"},
		"dm_pings":            []any{},
		"enabled":             true,
		"bypass_roles":        []any{"Helpers"},
		"filter_dm":           true,
		"disabled_channels":   []any{},
		"disabled_categories": []any{},
		"enabled_channels":    []any{},
		"enabled_categories":  []any{},
	}, nil, true)
	require.NoError(t, err)
	require.Equal(t, 4, actions.Len())
	require.Equal(t, 4, validations.Len())

	defaults := &Defaults{Actions: actions, Validations: validations}
	overrideActions, overrideValidations, err := Create(map[string]any{
		"infraction_type": "BAN",
		"dm_content":      nil,
	}, defaults, false)
	require.NoError(t, err)
	require.Nil(t, overrideValidations)

	inf, ok := overrideActions.Infraction()
	require.True(t, ok)
	require.Equal(t, Ban, inf.InfractionType)
	require.Equal(t, "spam", inf.InfractionReason)
	require.Equal(t, []string{"infraction_type"}, inf.Overrides())
}

func TestCreateEmptyWithoutKeepEmpty(t *testing.T) {
	actions, validations, err := Create(map[string]any{}, nil, false)
	require.NoError(t, err)
	require.Nil(t, actions)
	require.Nil(t, validations)
}

func TestCreateIgnoresUnknownKeys(t *testing.T) {
	actions, _, err := Create(map[string]any{"send_alert": true, "colour": "red"}, nil, false)
	require.NoError(t, err)
	require.Equal(t, 1, actions.Len())
}

func TestCreateRejectsMalformedData(t *testing.T) {
	_, _, err := Create(map[string]any{"send_alert": "yes"}, nil, false)
	require.Error(t, err)

	_, _, err = Create(map[string]any{"infraction_type": "EXILE"}, nil, false)
	require.Error(t, err)

	_, _, err = Create(map[string]any{"ping": "Moderators"}, nil, false)
	require.Error(t, err)
}

func TestValidateRegistry(t *testing.T) {
	require.NoError(t, ValidateRegistry())
}

func TestChannelScope(t *testing.T) {
	scope := mustBuild(t, buildChannelScope, map[string]any{
		"disabled_channels":   []any{"off-topic"},
		"disabled_categories": []any{"staff"},
		"enabled_channels":    []any{"staff-sandbox"},
		"enabled_categories":  []any{},
	}).(ChannelScope)

	general := &discordgo.Channel{ID: "1", GuildID: "g", Name: "general"}
	offTopic := &discordgo.Channel{ID: "2", GuildID: "g", Name: "off-topic"}
	sandbox := &discordgo.Channel{ID: "3", GuildID: "g", Name: "staff-sandbox"}
	staffCat := &discordgo.Channel{ID: "10", GuildID: "g", Name: "staff", Type: discordgo.ChannelTypeGuildCategory}

	ctxIn := func(ch, cat *discordgo.Channel) *fctx.FilterContext {
		fc := fctx.New(fctx.Message, &discordgo.User{ID: "u"}, nil, ch, "")
		fc.Category = cat
		return fc
	}

	require.True(t, scope.TriggersOn(ctxIn(general, nil)))
	require.False(t, scope.TriggersOn(ctxIn(offTopic, nil)))
	require.False(t, scope.TriggersOn(ctxIn(general, staffCat)))
	require.True(t, scope.TriggersOn(ctxIn(sandbox, staffCat)))

	thread := &discordgo.Channel{ID: "4", GuildID: "g", Name: "a thread", ParentID: "2", Type: discordgo.ChannelTypeGuildPublicThread}
	fc := ctxIn(thread, nil)
	fc.Parent = offTopic
	require.False(t, scope.TriggersOn(fc))
}

func TestBypassRoles(t *testing.T) {
	bypass := mustBuild(t, buildBypassRoles, map[string]any{"bypass_roles": []any{"Helpers", "42"}}).(BypassRoles)

	member := &discordgo.Member{Roles: []string{"42"}}
	fc := fctx.New(fctx.Message, &discordgo.User{ID: "u"}, member, &discordgo.Channel{ID: "c", GuildID: "g"}, "")
	require.False(t, bypass.TriggersOn(fc))

	fc = fctx.New(fctx.Message, &discordgo.User{ID: "u"}, &discordgo.Member{Roles: []string{"7"}}, &discordgo.Channel{ID: "c", GuildID: "g"}, "")
	fc.Roles = []*discordgo.Role{{ID: "7", Name: "Helpers"}}
	require.False(t, bypass.TriggersOn(fc))

	fc = fctx.New(fctx.Message, &discordgo.User{ID: "u"}, nil, &discordgo.Channel{ID: "c"}, "")
	require.True(t, bypass.TriggersOn(fc))
}

func TestFilterDM(t *testing.T) {
	off := mustBuild(t, buildFilterDM, map[string]any{"filter_dm": false}).(FilterDM)
	dm := fctx.New(fctx.Message, &discordgo.User{ID: "u"}, nil, &discordgo.Channel{ID: "c", Type: discordgo.ChannelTypeDM}, "")
	require.False(t, off.TriggersOn(dm))

	nick := fctx.New(fctx.Nickname, &discordgo.User{ID: "u"}, nil, nil, "")
	require.True(t, off.TriggersOn(nick))
}

func TestActionSettingsRunsAllEntries(t *testing.T) {
	actions, _, err := Create(map[string]any{
		"remove_context":  true,
		"infraction_type": "TIMEOUT",
		"dm_content":      "Your message linked to {domain}.",
		"send_alert":      true,
		"guild_pings":     []any{"Moderators"},
	}, nil, false)
	require.NoError(t, err)

	client := &recordingClient{
		infractErr: errors.New("missing permissions"),
		roles:      map[string]*discordgo.Role{"Moderators": {ID: "99", Name: "Moderators"}},
	}
	msg := &discordgo.Message{ID: "m", ChannelID: "c", Author: &discordgo.User{ID: "u"}}
	fc := fctx.FromMessage(fctx.Message, msg, nil, &discordgo.Channel{ID: "c", GuildID: "g"}, nil)
	fc.SetNotificationDomain("evil.com")

	actions.Action(context.Background(), fc, client)

	require.Equal(t, []string{"m"}, client.deleted["c"])
	require.Len(t, client.dms, 1)
	require.Contains(t, client.dms[0], "evil.com")
	require.Len(t, client.alerts, 1)
	require.Equal(t, []string{"deleted", "notified", "failed to apply timeout"}, fc.ActionDescriptions())
	require.True(t, fc.SendAlert())
	require.Equal(t, "<@&99>", fc.AlertContent())
	require.True(t, fc.MessagesDeleted())
}

func TestFailedDMRecorded(t *testing.T) {
	actions, _, err := Create(map[string]any{"dm_embed": "Not allowed."}, nil, false)
	require.NoError(t, err)
	client := &recordingClient{dmErr: errors.New("cannot send messages to this user")}
	fc := fctx.New(fctx.Message, &discordgo.User{ID: "u"}, nil, &discordgo.Channel{ID: "c", GuildID: "g"}, "")

	actions.Action(context.Background(), fc, client)
	require.Equal(t, []string{"failed to notify"}, fc.ActionDescriptions())
}

func TestRemoveContextArchivesAttachments(t *testing.T) {
	actions, _, err := Create(map[string]any{"remove_context": true}, nil, false)
	require.NoError(t, err)

	withFile := &discordgo.Message{ID: "m1", ChannelID: "c", Author: &discordgo.User{ID: "u"},
		Attachments: []*discordgo.MessageAttachment{{ID: "a", Filename: "cat.png"}}}
	plain := &discordgo.Message{ID: "m2", ChannelID: "c", Author: &discordgo.User{ID: "u"}}
	channel := &discordgo.Channel{ID: "c", GuildID: "g"}

	client := &recordingClient{}
	fc := fctx.FromMessage(fctx.Message, withFile, nil, channel, nil)
	fc.AddRelatedMessages(plain)
	actions.Action(context.Background(), fc, client)

	require.Equal(t, []string{"m1"}, client.archived)
	require.Equal(t, map[string][]string{"m1": {"https://archive.test/m1"}}, fc.UploadedAttachments())
	require.ElementsMatch(t, []string{"m1", "m2"}, client.deleted["c"])

	failing := &recordingClient{archiveErr: errors.New("upload too large")}
	fc = fctx.FromMessage(fctx.Message, withFile, nil, channel, nil)
	actions.Action(context.Background(), fc, failing)
	require.Empty(t, fc.UploadedAttachments())
	require.Equal(t, []string{"failed to archive attachments", "deleted"}, fc.ActionDescriptions())
}

func TestInfractionParsing(t *testing.T) {
	inf, err := ParseInfraction("voice mute")
	require.NoError(t, err)
	require.Equal(t, VoiceMute, inf)
	require.Equal(t, "voice muted", inf.Passive())
	require.Less(t, Ban.Severity(), Note.Severity())
	require.Equal(t, None.Severity(), Infraction(0).Severity())
}
