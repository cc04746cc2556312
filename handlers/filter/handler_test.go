package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"filterbot/filtering/filters"
	"filterbot/filtering/lists"
	"filterbot/model"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	token  lists.FilterList
	nextID int64
	extra  map[string]any
}

func newEngine(t *testing.T) *fakeEngine {
	t.Helper()
	fl, err := lists.NewTokenList(lists.Deps{})
	require.NoError(t, err)
	_, err = fl.Load(model.FilterListRecord{
		ID:       1,
		Name:     "token",
		ListType: int(lists.Deny),
		Settings: map[string]any{
			"remove_context":  true,
			"send_alert":      true,
			"infraction_type": "NONE",
			"guild_pings":     []any{"Moderators"},
			"dm_pings":        []any{},
			"bypass_roles":    []any{},
			"enabled":         true,
			"filter_dm":       true,
		},
		Filters: []model.FilterRecord{{ID: 7, Content: "badword", Description: "slur"}},
	})
	require.NoError(t, err)
	return &fakeEngine{token: fl, nextID: 100}
}

func (e *fakeEngine) Lists() []lists.FilterList { return []lists.FilterList{e.token} }

func (e *fakeEngine) List(name string) (lists.FilterList, bool) {
	if name == "token" {
		return e.token, true
	}
	return nil, false
}

func (e *fakeEngine) AddFilter(_ context.Context, listName string, t lists.ListType, content, description string, raw, extra map[string]any) (filters.Filter, error) {
	if listName != "token" {
		return nil, fmt.Errorf("there is no filter list named %s", listName)
	}
	e.nextID++
	e.extra = extra
	return e.token.AddFilter(t, model.FilterRecord{ID: e.nextID, Content: content, Description: description, Settings: raw})
}

func (e *fakeEngine) DeleteFilter(_ context.Context, id int64) (filters.Filter, error) {
	removed, ok := e.token.RemoveFilter(id)
	if !ok {
		return nil, fmt.Errorf("there is no filter with id %d", id)
	}
	return removed, nil
}

type fakeInfractions map[string][]model.InfractionRecord

func (f fakeInfractions) Infractions(_ context.Context, userID string) ([]model.InfractionRecord, error) {
	return f[userID], nil
}

func opts(options ...*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	return optionMap(options)
}

func str(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

func TestListOverviewAndFilters(t *testing.T) {
	h := &Handler{Engine: newEngine(t)}

	r, err := h.execute(context.Background(), "list", opts())
	require.NoError(t, err)
	require.Len(t, r.embeds, 1)
	require.Len(t, r.embeds[0].Fields, 1)
	assert.Equal(t, "token", r.embeds[0].Fields[0].Name)
	assert.Equal(t, "DENY: 1", r.embeds[0].Fields[0].Value)

	r, err = h.execute(context.Background(), "list", opts(str("list", "token")))
	require.NoError(t, err)
	require.Len(t, r.embeds, 1)
	assert.Equal(t, "7. `badword` - slur", r.embeds[0].Description)

	r, err = h.execute(context.Background(), "list", opts(str("list", "token"), str("type", "allow")))
	require.NoError(t, err)
	assert.Empty(t, r.embeds)
	assert.Contains(t, r.content, "no matching lists")

	_, err = h.execute(context.Background(), "list", opts(str("list", "nope")))
	assert.Error(t, err)
}

func TestAddAndDelete(t *testing.T) {
	engine := newEngine(t)
	h := &Handler{Engine: engine}

	r, err := h.execute(context.Background(), "add", opts(
		str("list", "token"),
		str("type", "deny"),
		str("content", "spam+"),
		str("settings", `{"send_alert": false, "extra": {"note": "x"}}`),
	))
	require.NoError(t, err)
	assert.Equal(t, "✅ Added to token DENY: 101. `spam+`", r.content)
	assert.Equal(t, map[string]any{"note": "x"}, engine.extra)

	r, err = h.execute(context.Background(), "delete", opts(&discordgo.ApplicationCommandInteractionDataOption{
		Name: "id", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(101),
	}))
	require.NoError(t, err)
	assert.Contains(t, r.content, "Deleted token filter 101.")

	_, err = h.execute(context.Background(), "add", opts(str("list", "token"), str("type", "sideways"), str("content", "x")))
	assert.Error(t, err)
}

func TestParseOverrides(t *testing.T) {
	raw, extra, err := parseOverrides("")
	require.NoError(t, err)
	assert.Nil(t, raw)
	assert.Nil(t, extra)

	raw, extra, err = parseOverrides(`{"extra": {"a": 1}}`)
	require.NoError(t, err)
	assert.Nil(t, raw)
	assert.Equal(t, map[string]any{"a": float64(1)}, extra)

	_, _, err = parseOverrides(`[1, 2]`)
	assert.Error(t, err)
	_, _, err = parseOverrides(`{"extra": 3}`)
	assert.Error(t, err)
}

func TestReload(t *testing.T) {
	calls := 0
	h := &Handler{Engine: newEngine(t), Reload: func(context.Context) error {
		calls++
		return nil
	}}
	r, err := h.execute(context.Background(), "reload", opts())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "✅ Reloaded 1 filter lists.", r.content)

	h.Reload = func(context.Context) error { return errors.New("bad json") }
	_, err = h.execute(context.Background(), "reload", opts())
	assert.ErrorContains(t, err, "bad json")
}

type fakeLogSender struct {
	channels []string
	embeds   []*discordgo.MessageEmbed
}

func (f *fakeLogSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channels = append(f.channels, channelID)
	f.embeds = append(f.embeds, embed)
	return &discordgo.Message{}, nil
}

func TestReloadFailureIsLogged(t *testing.T) {
	sender := &fakeLogSender{}
	h := &Handler{
		Engine:       newEngine(t),
		Reload:       func(context.Context) error { return errors.New("bad json") },
		Log:          sender,
		LogChannelID: func() string { return "logs" },
	}
	_, err := h.execute(context.Background(), "reload", opts())
	require.Error(t, err)
	require.Equal(t, []string{"logs"}, sender.channels)
	assert.Equal(t, "ERROR Log", sender.embeds[0].Title)
	assert.Equal(t, "Reload", sender.embeds[0].Fields[1].Value)
	assert.Equal(t, "bad json", sender.embeds[0].Fields[2].Value)

	h.Reload = func(context.Context) error { return nil }
	_, err = h.execute(context.Background(), "reload", opts())
	require.NoError(t, err)
	assert.Len(t, sender.embeds, 1)
}

func TestInfractions(t *testing.T) {
	created := time.Unix(1700000000, 0)
	h := &Handler{Engine: newEngine(t), Infractions: fakeInfractions{
		"42": {{ID: 3, UserID: "42", Type: "TIMEOUT", Reason: "spam", Duration: 3600, CreatedAt: created}},
	}}

	r, err := h.execute(context.Background(), "infractions", opts(&discordgo.ApplicationCommandInteractionDataOption{
		Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "42",
	}))
	require.NoError(t, err)
	require.Len(t, r.embeds, 1)
	assert.Contains(t, r.embeds[0].Description, "`#3` **TIMEOUT** <t:1700000000:R> for 1h0m0s - spam")

	r, err = h.execute(context.Background(), "infractions", opts(&discordgo.ApplicationCommandInteractionDataOption{
		Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "43",
	}))
	require.NoError(t, err)
	assert.Contains(t, r.embeds[0].Description, "No infractions.")
}

func TestJoinWithin(t *testing.T) {
	assert.Equal(t, "a\nb", joinWithin([]string{"a", "b"}, 100))

	lines := make([]string, 50)
	for n := range lines {
		lines[n] = strings.Repeat("x", 10)
	}
	out := joinWithin(lines, 60)
	assert.LessOrEqual(t, len([]rune(out)), 60)
	assert.True(t, strings.HasSuffix(out, "more"))
}
