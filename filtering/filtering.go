// Package filtering runs gateway events through the filter lists and acts on what they decide.
package filtering

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"filterbot/filtering/alert"
	"filterbot/filtering/cache"
	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/lists"
	"filterbot/filtering/settings"
	"filterbot/model"
	"filterbot/tasks"
	"filterbot/utils"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Config holds the filtering tunables.
type Config struct {
	GuildID              string
	AlertDelay           time.Duration
	MessageCacheSize     int
	OffensiveDeleteAfter time.Duration
	NameAlertInterval    time.Duration
	PasteURL             string
	MetaChannelID        string
}

// Deps are the collaborators of the orchestrator. Offensive and NameAlerts are optional.
type Deps struct {
	Client     settings.Client
	Resolver   Resolver
	Alerts     alert.Sink
	Rules      RuleStore
	Offensive  OffensiveStore
	NameAlerts NameAlertStore
	Scheduler  *tasks.Scheduler
}

// Filtering subscribes filter lists to events, fans each event out to them,
// runs the union of their actions and sends one alert per event.
type Filtering struct {
	cfg        Config
	client     settings.Client
	resolver   Resolver
	alerts     alert.Sink
	rules      RuleStore
	offensive  OffensiveStore
	nameAlerts NameAlertStore
	scheduler  *tasks.Scheduler
	registry   lists.Registry
	cache      *cache.MessageCache
	nameLocks  utils.KeyedMutex

	mu            sync.RWMutex
	filterLists   map[string]lists.FilterList
	subscriptions map[fctx.Event][]lists.FilterList
}

// messageTypeAutoModerationAction is the type of the alerts Discord's own automod posts.
const messageTypeAutoModerationAction discordgo.MessageType = 24

// resolution is what every subscribed list decided for one event.
type resolution struct {
	actions  *settings.ActionSettings
	messages []alert.ListMessages
	triggers map[string]map[lists.ListType][]filters.Filter
}

func New(cfg Config, deps Deps) (*Filtering, error) {
	if err := settings.ValidateRegistry(); err != nil {
		return nil, fmt.Errorf("invalid settings registry: %w", err)
	}
	if deps.Client == nil || deps.Resolver == nil || deps.Alerts == nil || deps.Rules == nil {
		return nil, errors.New("filtering needs a client, a resolver, an alert sink and a rule store")
	}
	if cfg.MessageCacheSize <= 0 {
		cfg.MessageCacheSize = 1000
	}
	if cfg.NameAlertInterval <= 0 {
		cfg.NameAlertInterval = 3 * time.Hour
	}
	if deps.NameAlerts == nil {
		deps.NameAlerts = NewMemoryNameAlerts(cfg.NameAlertInterval)
	}
	if deps.Scheduler == nil {
		deps.Scheduler = tasks.NewScheduler("Filtering")
	}
	return &Filtering{
		cfg:           cfg,
		client:        deps.Client,
		resolver:      deps.Resolver,
		alerts:        deps.Alerts,
		rules:         deps.Rules,
		offensive:     deps.Offensive,
		nameAlerts:    deps.NameAlerts,
		scheduler:     deps.Scheduler,
		registry:      lists.NewRegistry(),
		cache:         cache.New(cfg.MessageCacheSize),
		filterLists:   make(map[string]lists.FilterList),
		subscriptions: make(map[fctx.Event][]lists.FilterList),
	}, nil
}

func (f *Filtering) listDeps() lists.Deps {
	return lists.Deps{
		Client:        f.client,
		Alerts:        f.alerts,
		Scheduler:     f.scheduler,
		AlertDelay:    f.cfg.AlertDelay,
		PasteURL:      f.cfg.PasteURL,
		MetaChannelID: f.cfg.MetaChannelID,
	}
}

// Load builds every filter list from the rule store and swaps them in.
// Lists and filters that fail to load are logged and skipped.
func (f *Filtering) Load(ctx context.Context) error {
	records, err := f.rules.FilterLists(ctx)
	if err != nil {
		return fmt.Errorf("failed to load filter lists: %w", err)
	}

	built := make(map[string]lists.FilterList)
	for _, rec := range records {
		fl, ok := built[rec.Name]
		if !ok {
			factory, known := f.registry[rec.Name]
			if !known {
				lists.WarnUnknownList(rec.Name)
				continue
			}
			fl, err = factory(f.listDeps())
			if err != nil {
				log.Printf("[Filtering] Failed to create the %s list: %v", rec.Name, err)
				continue
			}
			built[rec.Name] = fl
		}
		if _, err := fl.Load(rec); err != nil {
			log.Printf("[Filtering] Failed to load list: %v", err)
		}
	}

	f.mu.Lock()
	f.filterLists = built
	f.subscriptions = make(map[fctx.Event][]lists.FilterList)
	for _, name := range sortedNames(built) {
		f.subscribeLocked(built[name], built[name].Events()...)
	}
	f.mu.Unlock()

	log.Printf("[Filtering] Loaded %d filter lists", len(built))
	return nil
}

// Subscribe makes fl receive the given events. Subscribing twice is a no-op.
func (f *Filtering) Subscribe(fl lists.FilterList, events ...fctx.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeLocked(fl, events...)
}

func (f *Filtering) subscribeLocked(fl lists.FilterList, events ...fctx.Event) {
	for _, event := range events {
		subscribed := f.subscriptions[event]
		if containsList(subscribed, fl) {
			continue
		}
		f.subscriptions[event] = append(subscribed, fl)
	}
}

// Unsubscribe stops fl from receiving the given events.
func (f *Filtering) Unsubscribe(fl lists.FilterList, events ...fctx.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, event := range events {
		subscribed := f.subscriptions[event]
		kept := subscribed[:0:0]
		for _, s := range subscribed {
			if s != fl {
				kept = append(kept, s)
			}
		}
		f.subscriptions[event] = kept
	}
}

func (f *Filtering) subscribed(event fctx.Event) []lists.FilterList {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]lists.FilterList(nil), f.subscriptions[event]...)
}

// Lists returns the loaded filter lists sorted by name.
func (f *Filtering) Lists() []lists.FilterList {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]lists.FilterList, 0, len(f.filterLists))
	for _, name := range sortedNames(f.filterLists) {
		out = append(out, f.filterLists[name])
	}
	return out
}

func (f *Filtering) List(name string) (lists.FilterList, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fl, ok := f.filterLists[name]
	return fl, ok
}

// Cache exposes the recent message cache.
func (f *Filtering) Cache() *cache.MessageCache {
	return f.cache
}

// AddFilter validates a new filter, stores it and adds it to the running list.
func (f *Filtering) AddFilter(ctx context.Context, listName string, t lists.ListType, content, description string, raw, extra map[string]any) (filters.Filter, error) {
	fl, ok := f.List(listName)
	if !ok {
		return nil, fmt.Errorf("there is no filter list named %s", listName)
	}
	if _, ok := fl.List(t); !ok {
		return nil, fmt.Errorf("the %s filter list has no %s list", listName, t)
	}
	content, err := fl.ProcessInput(ctx, content)
	if err != nil {
		return nil, err
	}

	stored, err := f.rules.AddFilter(ctx, listName, int(t), model.FilterRecord{
		Content:         content,
		Description:     description,
		Settings:        raw,
		AdditionalField: extra,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store the filter: %w", err)
	}
	added, err := fl.AddFilter(t, stored)
	if err != nil {
		if delErr := f.rules.DeleteFilter(ctx, stored.ID); delErr != nil {
			log.Printf("[Filtering] Failed to roll back filter #%d: %v", stored.ID, delErr)
		}
		return nil, err
	}
	// A unique filter can bring events the list was not subscribed to yet.
	f.Subscribe(fl, fl.Events()...)
	log.Printf("[Filtering] Added filter #%d to %s %s", added.ID(), listName, t)
	return added, nil
}

// DeleteFilter removes a filter from the store and from whichever list holds it.
func (f *Filtering) DeleteFilter(ctx context.Context, id int64) (filters.Filter, error) {
	var owner lists.FilterList
	for _, fl := range f.Lists() {
		for _, al := range fl.Lists() {
			if _, ok := al.Get(id); ok {
				owner = fl
			}
		}
	}
	if owner == nil {
		return nil, fmt.Errorf("there is no filter with id %d", id)
	}
	if err := f.rules.DeleteFilter(ctx, id); err != nil {
		return nil, err
	}
	removed, _ := owner.RemoveFilter(id)
	log.Printf("[Filtering] Deleted filter #%d from %s", id, owner.Name())
	return removed, nil
}

// OnMessage filters a new message, and the display name of its author.
func (f *Filtering) OnMessage(ctx context.Context, msg *discordgo.Message) {
	if ignoredMessage(msg) {
		return
	}
	channel, err := f.resolver.Channel(ctx, msg.ChannelID)
	if err != nil {
		log.Printf("[Filtering] Failed to resolve channel %s of message %s: %v", msg.ChannelID, msg.ID, err)
		return
	}

	if msg.Type == discordgo.MessageTypeChannelNameChange {
		if channel.IsThread() {
			f.checkThreadName(ctx, msg, channel)
		}
		return
	}

	f.cache.Append(msg)
	fc := fctx.FromMessage(fctx.Message, msg, nil, channel, f.cache)
	f.decorate(ctx, fc, msg.GuildID)

	res := f.resolveAction(ctx, fc)
	f.act(ctx, fc, res)

	if fc.Member != nil {
		nick := fctx.FromMessage(fctx.Nickname, msg, nil, channel, f.cache)
		f.decorate(ctx, nick, msg.GuildID)
		f.checkDisplayName(ctx, nick, displayName(msg.Member, msg.Author))
	}

	f.maybeScheduleDelete(ctx, fc, res.actions)
	countTriggers(res.triggers)
}

// OnMessageEdit filters the new version of an edited message. before may be nil,
// in which case the cached copy is used.
func (f *Filtering) OnMessageEdit(ctx context.Context, before, after *discordgo.Message) {
	if before == nil {
		before, _ = f.cache.Get(after.ID)
	}
	if after.Author == nil && before != nil {
		after.Author = before.Author
	}
	if after.GuildID == "" && before != nil {
		after.GuildID = before.GuildID
	}
	if ignoredMessage(after) {
		return
	}
	if before != nil && before.Content == after.Content && len(before.Attachments) == len(after.Attachments) {
		return
	}
	f.cache.Update(after)

	channel, err := f.resolver.Channel(ctx, after.ChannelID)
	if err != nil {
		log.Printf("[Filtering] Failed to resolve channel %s of edited message %s: %v", after.ChannelID, after.ID, err)
		return
	}
	fc := fctx.FromMessage(fctx.MessageEdit, after, before, channel, f.cache)
	f.decorate(ctx, fc, after.GuildID)

	res := f.resolveAction(ctx, fc)
	f.act(ctx, fc, res)
	f.maybeScheduleDelete(ctx, fc, res.actions)
	countTriggers(res.triggers)
}

// OnThreadCreate filters the name of a new thread.
func (f *Filtering) OnThreadCreate(ctx context.Context, thread *discordgo.Channel) {
	if thread == nil || !thread.IsThread() {
		return
	}
	var author *discordgo.User
	member, err := f.resolver.Member(ctx, thread.GuildID, thread.OwnerID)
	switch {
	case err != nil:
		log.Printf("[Filtering] Failed to resolve owner %s of thread %s: %v", thread.OwnerID, thread.ID, err)
		member = nil
	case member.User != nil:
		author = member.User
		if author.Bot {
			return
		}
	}

	fc := fctx.New(fctx.ThreadName, author, member, thread, thread.Name)
	f.decorate(ctx, fc, thread.GuildID)
	res := f.resolveAction(ctx, fc)
	f.act(ctx, fc, res)
	countTriggers(res.triggers)
}

func (f *Filtering) checkThreadName(ctx context.Context, msg *discordgo.Message, thread *discordgo.Channel) {
	fc := fctx.FromMessage(fctx.ThreadName, msg, nil, thread, f.cache).Replace(fctx.WithContent(thread.Name))
	f.decorate(ctx, fc, msg.GuildID)
	res := f.resolveAction(ctx, fc)
	f.act(ctx, fc, res)
	countTriggers(res.triggers)
}

// OnVoiceStateUpdate filters the display name of a member joining a voice channel.
func (f *Filtering) OnVoiceStateUpdate(ctx context.Context, vs *discordgo.VoiceState) {
	if vs == nil || vs.ChannelID == "" || vs.GuildID == "" {
		return
	}
	member := vs.Member
	if member == nil {
		var err error
		if member, err = f.resolver.Member(ctx, vs.GuildID, vs.UserID); err != nil {
			log.Printf("[Filtering] Failed to resolve voice member %s: %v", vs.UserID, err)
			return
		}
	}
	if member.User == nil || member.User.Bot {
		return
	}
	channel, err := f.resolver.Channel(ctx, vs.ChannelID)
	if err != nil {
		log.Printf("[Filtering] Failed to resolve voice channel %s: %v", vs.ChannelID, err)
		return
	}

	fc := fctx.New(fctx.Nickname, member.User, member, channel, "")
	f.decorate(ctx, fc, vs.GuildID)
	f.checkDisplayName(ctx, fc, displayName(member, member.User))
}

// FilterSandboxOutput filters the output of a code evaluation requested by msg.
// It reports whether any filter asked for action, and the file extensions that were blocked.
func (f *Filtering) FilterSandboxOutput(ctx context.Context, stdout string, files []string, msg *discordgo.Message) (bool, []string) {
	channel, err := f.resolver.Channel(ctx, msg.ChannelID)
	if err != nil {
		log.Printf("[Filtering] Failed to resolve channel %s of sandbox request %s: %v", msg.ChannelID, msg.ID, err)
		channel = &discordgo.Channel{ID: msg.ChannelID, GuildID: msg.GuildID}
	}
	fc := fctx.FromMessage(fctx.Snekbox, msg, nil, channel, f.cache)
	fc.Content = stdout
	fc.Attachments = make([]*discordgo.MessageAttachment, 0, len(files))
	for _, name := range files {
		fc.Attachments = append(fc.Attachments, &discordgo.MessageAttachment{Filename: name})
	}
	f.decorate(ctx, fc, msg.GuildID)

	res := f.resolveAction(ctx, fc)
	f.act(ctx, fc, res)
	countTriggers(res.triggers)
	return res.actions != nil, fc.BlockedExts()
}

// decorate fills the guild objects the validations look at.
func (f *Filtering) decorate(ctx context.Context, fc *fctx.FilterContext, guildID string) {
	if guildID == "" {
		return
	}
	if fc.Member != nil && fc.Member.GuildID == "" {
		fc.Member.GuildID = guildID
	}
	if ch := fc.Channel; ch != nil && ch.IsThread() && ch.ParentID != "" {
		parent, err := f.resolver.Channel(ctx, ch.ParentID)
		if err != nil {
			log.Printf("[Filtering] Failed to resolve parent of thread %s: %v", ch.ID, err)
		} else {
			fc.Parent = parent
		}
	}
	if scope := fc.ScopeChannel(); scope != nil && scope.ParentID != "" {
		category, err := f.resolver.Channel(ctx, scope.ParentID)
		if err == nil && category.Type == discordgo.ChannelTypeGuildCategory {
			fc.Category = category
		}
	}
	if fc.Member != nil {
		fc.Roles = f.resolver.Roles(guildID, fc.Member.Roles)
	}
}

// resolveAction asks every list subscribed to the event for its actions and unions them.
// A list that fails or panics is logged and left out.
func (f *Filtering) resolveAction(ctx context.Context, fc *fctx.FilterContext) resolution {
	start := time.Now()
	defer func() { resolveSeconds.Observe(time.Since(start).Seconds()) }()
	eventsTotal.WithLabelValues(fc.Event.String()).Inc()

	res := resolution{triggers: make(map[string]map[lists.ListType][]filters.Filter)}
	for _, fl := range f.subscribed(fc.Event) {
		result, err := actionsFor(ctx, fl, fc)
		if err != nil {
			listErrorsTotal.WithLabelValues(fl.Name()).Inc()
			log.Printf("[Filtering] The %s list failed on a %s event: %v", fl.Name(), fc.Event, err)
			continue
		}
		if result.Actions != nil {
			merged, err := res.actions.Union(result.Actions)
			if err != nil {
				listErrorsTotal.WithLabelValues(fl.Name()).Inc()
				log.Printf("[Filtering] Failed to merge the actions of the %s list: %v", fl.Name(), err)
			} else {
				res.actions = merged
			}
		}
		if len(result.Messages) > 0 {
			res.messages = append(res.messages, alert.ListMessages{List: fl.Name(), Messages: result.Messages})
		}
		if len(result.Triggers) > 0 {
			res.triggers[fl.Name()] = result.Triggers
		}
	}
	res.expandSingle()
	return res
}

// expandSingle describes the filter in full when it is the only one that fired
// across every list. Lists write the condensed form.
func (r *resolution) expandSingle() {
	if len(r.messages) != 1 || len(r.messages[0].Messages) != 1 {
		return
	}
	var fired []filters.Filter
	for _, byType := range r.triggers {
		fired = append(fired, byType[lists.Deny]...)
	}
	if len(fired) != 1 {
		return
	}
	only := []filters.Filter{fired[0]}
	if r.messages[0].Messages[0] != lists.FormatMessages(only, false)[0] {
		return
	}
	r.messages[0].Messages = lists.FormatMessages(only, true)
}

func actionsFor(ctx context.Context, fl lists.FilterList, fc *fctx.FilterContext) (result lists.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fl.ActionsFor(ctx, fc)
}

// act runs the resolved actions and sends the alert they asked for.
func (f *Filtering) act(ctx context.Context, fc *fctx.FilterContext, res resolution) {
	if res.actions == nil {
		return
	}
	res.actions.Action(ctx, fc, f.client)
	if fc.SendAlert() {
		f.sendAlert(ctx, fc, res)
	}
}

func (f *Filtering) sendAlert(ctx context.Context, fc *fctx.FilterContext, res resolution) {
	a := alert.Build(fc, res.messages, res.actions)
	if err := f.alerts.Send(ctx, a); err != nil {
		alertsTotal.WithLabelValues(fc.Event.String(), "failed").Inc()
		log.Printf("[Filtering] Failed to send the %s alert: %v", fc.Event, err)
		return
	}
	alertsTotal.WithLabelValues(fc.Event.String(), "sent").Inc()
}

// checkDisplayName filters a member's display name, at most once per alert interval.
func (f *Filtering) checkDisplayName(ctx context.Context, fc *fctx.FilterContext, name string) {
	userID := fc.AuthorID()
	if userID == "" || name == "" {
		return
	}
	unlock := f.nameLocks.Lock(userID)
	defer unlock()

	recent, err := f.nameAlerts.Recent(ctx, userID)
	if err != nil {
		log.Printf("[Filtering] %v", err)
		return
	}
	if recent {
		return
	}

	fc = fc.Replace(fctx.WithContent(nameVariants(name)))
	res := f.resolveAction(ctx, fc)
	f.act(ctx, fc, res)
	countTriggers(res.triggers)
	if res.actions == nil {
		return
	}
	if err := f.nameAlerts.Mark(ctx, userID); err != nil {
		log.Printf("[Filtering] %v", err)
	}
}

// nameVariants joins a name with its compatibility normalised forms, so look-alike
// characters and stacked accents can't hide a word from the filters.
func nameVariants(name string) string {
	variants := []string{name}
	add := func(v string) {
		for _, existing := range variants {
			if existing == v {
				return
			}
		}
		variants = append(variants, v)
	}
	add(norm.NFKC.String(name))
	stripped, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFKC), name)
	if err == nil {
		add(stripped)
	}
	return strings.Join(variants, " ")
}

func displayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user == nil {
		return ""
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}

// maybeScheduleDelete stores a message that asked for action but was not deleted,
// so it is removed once the offensive message delay passes.
func (f *Filtering) maybeScheduleDelete(ctx context.Context, fc *fctx.FilterContext, actions *settings.ActionSettings) {
	if actions == nil || f.offensive == nil || f.cfg.OffensiveDeleteAfter <= 0 {
		return
	}
	if fc.Message == nil || !fc.InGuild() || fc.MessagesDeleted() {
		return
	}
	msg := model.OffensiveMessage{
		MessageID: fc.Message.ID,
		ChannelID: fc.Message.ChannelID,
		DeleteAt:  time.Now().Add(f.cfg.OffensiveDeleteAfter).UTC(),
	}
	if err := f.offensive.AddOffensive(ctx, msg); err != nil {
		log.Printf("[Filtering] Failed to store offensive message %s: %v", msg.MessageID, err)
		return
	}
	f.scheduleOffensive(msg)
	log.Printf("[Filtering] Offensive message %s will be deleted at %s", msg.MessageID, msg.DeleteAt.Format(time.RFC3339))
}

// RescheduleOffensive schedules the stored offensive messages, deleting overdue ones right away.
func (f *Filtering) RescheduleOffensive(ctx context.Context) error {
	if f.offensive == nil {
		return nil
	}
	pending, err := f.offensive.PendingOffensive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load offensive messages: %w", err)
	}
	for _, msg := range pending {
		f.scheduleOffensive(msg)
	}
	log.Printf("[Filtering] Rescheduled %d offensive message deletions", len(pending))
	return nil
}

func (f *Filtering) scheduleOffensive(msg model.OffensiveMessage) {
	if f.scheduler.ScheduleAt("offensive:"+msg.MessageID, msg.DeleteAt, func() { f.deleteOffensive(msg) }) {
		offensivePending.Inc()
	}
}

func (f *Filtering) deleteOffensive(msg model.OffensiveMessage) {
	defer offensivePending.Dec()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.client.DeleteMessages(ctx, msg.ChannelID, []string{msg.MessageID}); err != nil && !errors.Is(err, settings.ErrNotFound) {
		log.Printf("[Filtering] Failed to delete offensive message %s: %v", msg.MessageID, err)
	}
	if err := f.offensive.DeleteOffensive(ctx, msg.MessageID); err != nil {
		log.Printf("[Filtering] Failed to forget offensive message %s: %v", msg.MessageID, err)
	}
}

// Close stops the scheduler. Pending antispam alerts and offensive deletions are dropped;
// the latter are picked up again by RescheduleOffensive on the next start.
func (f *Filtering) Close() {
	f.scheduler.Close()
}

func countTriggers(triggers map[string]map[lists.ListType][]filters.Filter) {
	for name, byType := range triggers {
		for t, triggered := range byType {
			for _, flt := range triggered {
				triggersTotal.WithLabelValues(name, t.String(), flt.Name()).Inc()
			}
		}
	}
}

func ignoredMessage(msg *discordgo.Message) bool {
	if msg == nil || msg.Author == nil || msg.Author.Bot || msg.WebhookID != "" {
		return true
	}
	return msg.Type == messageTypeAutoModerationAction
}

func containsList(subscribed []lists.FilterList, fl lists.FilterList) bool {
	for _, s := range subscribed {
		if s == fl {
			return true
		}
	}
	return false
}

func sortedNames(m map[string]lists.FilterList) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
