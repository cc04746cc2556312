package filtering

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"filterbot/filtering/alert"
	"filterbot/filtering/fctx"
	"filterbot/filtering/lists"
	"filterbot/filtering/settings"
	"filterbot/filtering/testutils"
	"filterbot/model"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var (
	author  = &discordgo.User{ID: "42", Username: "someone"}
	general = &discordgo.Channel{ID: "c1", GuildID: "g1", Name: "python-general", Type: discordgo.ChannelTypeGuildText}
)

type fakeResolver struct {
	channels map[string]*discordgo.Channel
	members  map[string]*discordgo.Member
}

func (r *fakeResolver) Channel(_ context.Context, id string) (*discordgo.Channel, error) {
	if ch, ok := r.channels[id]; ok {
		return ch, nil
	}
	return nil, settings.ErrNotFound
}

func (r *fakeResolver) Member(_ context.Context, _, userID string) (*discordgo.Member, error) {
	if m, ok := r.members[userID]; ok {
		return m, nil
	}
	return nil, settings.ErrNotFound
}

func (r *fakeResolver) Roles(string, []string) []*discordgo.Role { return nil }

type fakeSink struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (s *fakeSink) Send(_ context.Context, a alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *fakeSink) sent() []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]alert.Alert(nil), s.alerts...)
}

type memoryRules struct {
	mu     sync.Mutex
	lists  []model.FilterListRecord
	nextID int64
}

func (m *memoryRules) FilterLists(context.Context) ([]model.FilterListRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.FilterListRecord(nil), m.lists...), nil
}

func (m *memoryRules) AddFilter(_ context.Context, name string, listType int, rec model.FilterRecord) (model.FilterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.lists {
		if m.lists[i].Name == name && m.lists[i].ListType == listType {
			m.nextID++
			rec.ID = 1000 + m.nextID
			m.lists[i].Filters = append(m.lists[i].Filters, rec)
			return rec, nil
		}
	}
	return rec, errors.New("no such list")
}

func (m *memoryRules) DeleteFilter(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.lists {
		for j, f := range m.lists[i].Filters {
			if f.ID == id {
				m.lists[i].Filters = append(m.lists[i].Filters[:j], m.lists[i].Filters[j+1:]...)
				return nil
			}
		}
	}
	return errors.New("no such filter")
}

func (m *memoryRules) filterCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.lists {
		n += len(l.Filters)
	}
	return n
}

type memoryOffensive struct {
	mu   sync.Mutex
	msgs map[string]model.OffensiveMessage
}

func (m *memoryOffensive) AddOffensive(_ context.Context, msg model.OffensiveMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs[msg.MessageID] = msg
	return nil
}

func (m *memoryOffensive) PendingOffensive(context.Context) ([]model.OffensiveMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.OffensiveMessage
	for _, msg := range m.msgs {
		out = append(out, msg)
	}
	return out, nil
}

func (m *memoryOffensive) DeleteOffensive(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.msgs, id)
	return nil
}

func (m *memoryOffensive) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

func defaults(overrides map[string]any) map[string]any {
	raw := map[string]any{
		"remove_context":  true,
		"send_alert":      true,
		"infraction_type": "NONE",
		"guild_pings":     []any{"Moderators"},
		"dm_pings":        []any{},
		"bypass_roles":    []any{"Helpers"},
		"enabled":         true,
		"filter_dm":       true,
	}
	for k, v := range overrides {
		raw[k] = v
	}
	return raw
}

type harness struct {
	f         *Filtering
	client    *testutils.Client
	sink      *fakeSink
	rules     *memoryRules
	offensive *memoryOffensive
}

func newHarness(t *testing.T, cfg Config, records ...model.FilterListRecord) *harness {
	t.Helper()
	h := &harness{
		client:    testutils.NewClient(),
		sink:      &fakeSink{},
		rules:     &memoryRules{lists: records},
		offensive: &memoryOffensive{msgs: make(map[string]model.OffensiveMessage)},
	}
	h.client.Roles["r1"] = &discordgo.Role{ID: "r1", Name: "Moderators"}
	f, err := New(cfg, Deps{
		Client:    h.client,
		Resolver:  &fakeResolver{channels: map[string]*discordgo.Channel{general.ID: general}},
		Alerts:    h.sink,
		Rules:     h.rules,
		Offensive: h.offensive,
	})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	h.f = f
	return h
}

func (h *harness) load(t *testing.T) {
	t.Helper()
	require.NoError(t, h.f.Load(context.Background()))
}

func tokenList(raw map[string]any, filters ...model.FilterRecord) model.FilterListRecord {
	return model.FilterListRecord{ID: 1, Name: "token", ListType: int(lists.Deny), Settings: raw, Filters: filters}
}

func guildMessage(id, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        id,
		ChannelID: general.ID,
		GuildID:   general.GuildID,
		Author:    author,
		Member:    &discordgo.Member{},
		Content:   content,
		Timestamp: time.Now(),
	}
}

func TestUnknownInviteTakesNoAction(t *testing.T) {
	h := newHarness(t, Config{}, model.FilterListRecord{ID: 1, Name: "invite", ListType: int(lists.Deny), Settings: defaults(nil)})
	h.client.Invites["python"] = &discordgo.Invite{Code: "python", Guild: &discordgo.Guild{ID: "g2", Name: "Python"}}
	h.load(t)

	h.f.OnMessage(context.Background(), guildMessage("m1", "come join discord.gg/python"))

	require.Empty(t, h.client.DeletedIDs(general.ID))
	require.Empty(t, h.client.IssuedInfractions())
	require.Empty(t, h.sink.sent())
	require.Zero(t, h.offensive.len())
}

func TestTokenTriggerDeletesAndAlerts(t *testing.T) {
	h := newHarness(t, Config{OffensiveDeleteAfter: time.Hour}, tokenList(defaults(nil), model.FilterRecord{ID: 1, Content: "badword"}))
	h.load(t)

	h.f.OnMessage(context.Background(), guildMessage("m1", "this has a BADWORD in it"))

	require.Equal(t, []string{"m1"}, h.client.DeletedIDs(general.ID))
	sent := h.sink.sent()
	require.Len(t, sent, 1)
	require.Equal(t, "Message Filter", sent[0].Username)
	require.Contains(t, sent[0].Content, "<@&r1>")
	require.Contains(t, sent[0].Embeds[0].Description, "**Token Filters:**")
	// Deleted messages are not scheduled again.
	require.Zero(t, h.offensive.len())
}

func TestIgnoresBotsAndWebhooks(t *testing.T) {
	h := newHarness(t, Config{}, tokenList(defaults(nil), model.FilterRecord{ID: 1, Content: "badword"}))
	h.load(t)

	bot := guildMessage("m1", "badword")
	bot.Author = &discordgo.User{ID: "7", Bot: true}
	h.f.OnMessage(context.Background(), bot)

	hook := guildMessage("m2", "badword")
	hook.WebhookID = "w1"
	h.f.OnMessage(context.Background(), hook)

	require.Empty(t, h.client.DeletedIDs(general.ID))
	require.Zero(t, h.f.Cache().Len())
}

type panickingList struct {
	lists.FilterList
}

func (panickingList) Name() string { return "broken" }

func (panickingList) ActionsFor(context.Context, *fctx.FilterContext) (lists.Result, error) {
	panic("boom")
}

func TestFailingListDoesNotStopOthers(t *testing.T) {
	h := newHarness(t, Config{},
		tokenList(defaults(nil), model.FilterRecord{ID: 1, Content: "badword"}),
		model.FilterListRecord{ID: 2, Name: "broken", ListType: int(lists.Deny), Settings: defaults(nil)},
	)
	h.f.registry["broken"] = func(deps lists.Deps) (lists.FilterList, error) {
		inner, err := lists.NewTokenList(deps)
		return panickingList{inner}, err
	}
	h.load(t)
	require.Len(t, h.f.subscribed(fctx.Message), 2)

	h.f.OnMessage(context.Background(), guildMessage("m1", "badword"))

	require.Equal(t, []string{"m1"}, h.client.DeletedIDs(general.ID))
	require.Len(t, h.sink.sent(), 1)
}

func TestUnknownListIsSkipped(t *testing.T) {
	h := newHarness(t, Config{},
		tokenList(defaults(nil)),
		model.FilterListRecord{ID: 2, Name: "mystery", ListType: int(lists.Deny)},
	)
	h.load(t)

	require.Len(t, h.f.Lists(), 1)
	_, ok := h.f.List("mystery")
	require.False(t, ok)
}

func TestNicknameAlertCooldown(t *testing.T) {
	h := newHarness(t, Config{NameAlertInterval: time.Hour}, tokenList(defaults(nil), model.FilterRecord{ID: 1, Content: "badword"}))
	h.load(t)

	for i := 0; i < 3; i++ {
		msg := guildMessage(fmt.Sprintf("m%d", i), "hello")
		msg.Member = &discordgo.Member{Nick: "the badword fan"}
		h.f.OnMessage(context.Background(), msg)
	}

	issued := h.client.IssuedInfractions()
	require.Len(t, issued, 1)
	require.Equal(t, settings.Superstar, issued[0].Type)
	require.Equal(t, "g1", issued[0].GuildID)
	require.Empty(t, h.client.DeletedIDs(general.ID))

	sent := h.sink.sent()
	require.Len(t, sent, 1)
	require.Equal(t, "Nickname Filter", sent[0].Username)
}

func TestNameVariants(t *testing.T) {
	require.Equal(t, "plain", nameVariants("plain"))
	// Fullwidth letters fold to ASCII, accents are stripped.
	require.Equal(t, "ｂａｄ bad", nameVariants("ｂａｄ"))
	require.Equal(t, "b\u00e5dw\u00f6rd badword", nameVariants("b\u00e5dw\u00f6rd"))
}

func TestVoiceStateChecksDisplayName(t *testing.T) {
	h := newHarness(t, Config{}, tokenList(defaults(nil), model.FilterRecord{ID: 1, Content: "badword"}))
	h.load(t)
	voice := &discordgo.Channel{ID: "v1", GuildID: "g1", Name: "Lounge", Type: discordgo.ChannelTypeGuildVoice}
	h.f.resolver.(*fakeResolver).channels[voice.ID] = voice

	h.f.OnVoiceStateUpdate(context.Background(), &discordgo.VoiceState{
		GuildID:   "g1",
		ChannelID: "",
		UserID:    author.ID,
		Member:    &discordgo.Member{User: author, Nick: "badword"},
	})
	require.Empty(t, h.client.IssuedInfractions())

	h.f.OnVoiceStateUpdate(context.Background(), &discordgo.VoiceState{
		GuildID:   "g1",
		ChannelID: voice.ID,
		UserID:    author.ID,
		Member:    &discordgo.Member{User: &discordgo.User{ID: author.ID, GlobalName: "badword"}},
	})
	require.Len(t, h.client.IssuedInfractions(), 1)
}

func TestOffensiveMessageIsDeletedLater(t *testing.T) {
	quiet := defaults(map[string]any{"remove_context": false, "send_alert": false})
	h := newHarness(t, Config{OffensiveDeleteAfter: 50 * time.Millisecond}, tokenList(quiet, model.FilterRecord{ID: 1, Content: "badword"}))
	h.load(t)

	h.f.OnMessage(context.Background(), guildMessage("m1", "badword"))
	require.Empty(t, h.client.DeletedIDs(general.ID))
	require.Empty(t, h.sink.sent())

	require.Eventually(t, func() bool {
		return len(h.client.DeletedIDs(general.ID)) == 1 && h.offensive.len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRescheduleOffensive(t *testing.T) {
	h := newHarness(t, Config{})
	h.load(t)
	h.offensive.msgs["old"] = model.OffensiveMessage{MessageID: "old", ChannelID: "c9", DeleteAt: time.Now().Add(-time.Minute)}
	h.offensive.msgs["new"] = model.OffensiveMessage{MessageID: "new", ChannelID: "c9", DeleteAt: time.Now().Add(time.Hour)}

	require.NoError(t, h.f.RescheduleOffensive(context.Background()))

	require.Eventually(t, func() bool {
		return len(h.client.DeletedIDs("c9")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"old"}, h.client.DeletedIDs("c9"))
	require.True(t, h.f.scheduler.IsPending("offensive:new"))
}

func TestMessageEdit(t *testing.T) {
	h := newHarness(t, Config{}, tokenList(defaults(nil), model.FilterRecord{ID: 1, Content: "badword"}))
	h.load(t)
	ctx := context.Background()

	h.f.OnMessage(ctx, guildMessage("m1", "hello"))

	// Embed-only updates carry no author and unchanged content.
	h.f.OnMessageEdit(ctx, nil, &discordgo.Message{ID: "m1", ChannelID: general.ID, Content: "hello"})
	require.Empty(t, h.client.DeletedIDs(general.ID))

	edited := guildMessage("m1", "hello badword")
	h.f.OnMessageEdit(ctx, nil, edited)
	require.Equal(t, []string{"m1"}, h.client.DeletedIDs(general.ID))

	sent := h.sink.sent()
	require.Len(t, sent, 1)
	require.Equal(t, "Message Edit Filter", sent[0].Username)
	cached, ok := h.f.Cache().Get("m1")
	require.True(t, ok)
	require.Equal(t, "hello badword", cached.Content)
}

func TestThreadNames(t *testing.T) {
	h := newHarness(t, Config{}, tokenList(defaults(nil), model.FilterRecord{ID: 1, Content: "badword"}))
	h.load(t)
	thread := &discordgo.Channel{ID: "t1", GuildID: "g1", ParentID: general.ID, Name: "badword thread", OwnerID: author.ID, Type: discordgo.ChannelTypeGuildPublicThread}
	res := h.f.resolver.(*fakeResolver)
	res.channels[thread.ID] = thread
	res.members = map[string]*discordgo.Member{author.ID: {User: author, GuildID: "g1"}}

	h.f.OnThreadCreate(context.Background(), thread)
	require.Equal(t, []string{"t1"}, h.client.DeletedChannels)

	rename := guildMessage("m5", "badword thread")
	rename.ChannelID = thread.ID
	rename.Type = discordgo.MessageTypeChannelNameChange
	h.f.OnMessage(context.Background(), rename)
	require.Equal(t, []string{"t1", "t1"}, h.client.DeletedChannels)
	require.Zero(t, h.f.Cache().Len())
}

func TestFilterSandboxOutput(t *testing.T) {
	h := newHarness(t, Config{},
		tokenList(defaults(nil), model.FilterRecord{ID: 1, Content: "badword"}),
		model.FilterListRecord{ID: 2, Name: "extension", ListType: int(lists.Allow), Settings: defaults(nil), Filters: []model.FilterRecord{{ID: 2, Content: ".png"}}},
	)
	h.load(t)
	ctx := context.Background()
	request := guildMessage("m1", "!eval print('hi')")

	blocked, exts := h.f.FilterSandboxOutput(ctx, "hi", []string{"a.exe", "b.txt", "c.png"}, request)
	require.False(t, blocked)
	require.Equal(t, []string{".exe"}, exts)
	require.Empty(t, h.sink.sent())

	blocked, _ = h.f.FilterSandboxOutput(ctx, "badword", nil, request)
	require.True(t, blocked)
	require.Len(t, h.sink.sent(), 1)
	require.Equal(t, "Snekbox Filter", h.sink.sent()[0].Username)
	require.Empty(t, h.client.DeletedIDs(general.ID))
}

func TestAddAndDeleteFilter(t *testing.T) {
	h := newHarness(t, Config{}, tokenList(defaults(nil)))
	h.load(t)
	ctx := context.Background()

	_, err := h.f.AddFilter(ctx, "nope", lists.Deny, "x", "", nil, nil)
	require.Error(t, err)
	_, err = h.f.AddFilter(ctx, "token", lists.Allow, "x", "", nil, nil)
	require.Error(t, err)
	_, err = h.f.AddFilter(ctx, "token", lists.Deny, "(", "", nil, nil)
	require.Error(t, err)
	_, err = h.f.AddFilter(ctx, "token", lists.Deny, "fine", "", map[string]any{"remove_context": "definitely"}, nil)
	require.Error(t, err)
	require.Zero(t, h.rules.filterCount())

	added, err := h.f.AddFilter(ctx, "token", lists.Deny, "ba+dword", "spelling variants", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, h.rules.filterCount())

	h.f.OnMessage(ctx, guildMessage("m1", "baaaadword"))
	require.Equal(t, []string{"m1"}, h.client.DeletedIDs(general.ID))

	removed, err := h.f.DeleteFilter(ctx, added.ID())
	require.NoError(t, err)
	require.Equal(t, added.ID(), removed.ID())
	require.Zero(t, h.rules.filterCount())
	_, err = h.f.DeleteFilter(ctx, added.ID())
	require.Error(t, err)

	h.f.OnMessage(ctx, guildMessage("m2", "baaaadword"))
	require.Equal(t, []string{"m1"}, h.client.DeletedIDs(general.ID))
}

func TestAddedUniqueFilterSubscribesList(t *testing.T) {
	h := newHarness(t, Config{}, model.FilterListRecord{ID: 1, Name: "unique", ListType: int(lists.Deny), Settings: defaults(nil)})
	h.load(t)
	ctx := context.Background()
	require.Empty(t, h.f.subscribed(fctx.Message))

	_, err := h.f.AddFilter(ctx, "unique", lists.Deny, "everyone", "", nil, nil)
	require.NoError(t, err)
	require.Len(t, h.f.subscribed(fctx.Message), 1)

	h.f.OnMessage(ctx, guildMessage("m1", "hey @everyone look"))
	require.Equal(t, []string{"m1"}, h.client.DeletedIDs(general.ID))
}

func TestAlertExpandsOnlyALoneTrigger(t *testing.T) {
	h := newHarness(t, Config{}, tokenList(defaults(nil),
		model.FilterRecord{ID: 1, Content: "badword", Description: "slur"},
		model.FilterRecord{ID: 2, Content: "worseword", Description: "worse slur"},
	))
	h.load(t)
	ctx := context.Background()

	h.f.OnMessage(ctx, guildMessage("m1", "a badword"))
	h.f.OnMessage(ctx, guildMessage("m2", "a badword and a worseword"))

	sent := h.sink.sent()
	require.Len(t, sent, 2)
	require.Contains(t, sent[0].Embeds[0].Description, "**Token Filters:** #1 (`badword`) - slur")
	require.Contains(t, sent[1].Embeds[0].Description, "**Token Filters:** #1 (`badword`), #2 (`worseword`)")
	require.NotContains(t, sent[1].Embeds[0].Description, "worse slur")
}

func TestIgnoresAutoModerationAlerts(t *testing.T) {
	h := newHarness(t, Config{}, tokenList(defaults(nil), model.FilterRecord{ID: 1, Content: "badword"}))
	h.load(t)

	msg := guildMessage("m1", "badword")
	msg.Type = messageTypeAutoModerationAction
	h.f.OnMessage(context.Background(), msg)

	require.Empty(t, h.client.DeletedIDs(general.ID))
}

func TestSubscribeIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{}, tokenList(defaults(nil)))
	h.load(t)
	fl, ok := h.f.List("token")
	require.True(t, ok)

	h.f.Subscribe(fl, fctx.Message, fctx.Message)
	require.Len(t, h.f.subscribed(fctx.Message), 1)

	h.f.Unsubscribe(fl, fctx.Message)
	require.Empty(t, h.f.subscribed(fctx.Message))
	require.Len(t, h.f.subscribed(fctx.Nickname), 1)
}

func TestMemoryNameAlerts(t *testing.T) {
	store := NewMemoryNameAlerts(50 * time.Millisecond)
	ctx := context.Background()

	recent, err := store.Recent(ctx, "u1")
	require.NoError(t, err)
	require.False(t, recent)

	require.NoError(t, store.Mark(ctx, "u1"))
	recent, _ = store.Recent(ctx, "u1")
	require.True(t, recent)

	require.Eventually(t, func() bool {
		recent, _ := store.Recent(ctx, "u1")
		return !recent
	}, time.Second, 10*time.Millisecond)
}

func TestRedisNameAlerts(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()
	store := NewRedisNameAlerts(client, time.Minute)
	userID := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() { client.Del(ctx, store.prefix+userID) })

	recent, err := store.Recent(ctx, userID)
	require.NoError(t, err)
	require.False(t, recent)
	require.NoError(t, store.Mark(ctx, userID))
	recent, err = store.Recent(ctx, userID)
	require.NoError(t, err)
	require.True(t, recent)
}
