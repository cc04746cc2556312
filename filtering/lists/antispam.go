package lists

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"filterbot/filtering/alert"
	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/filters/antispam"
	"filterbot/filtering/settings"
	"filterbot/tasks"

	"github.com/bwmarrin/discordgo"
)

const (
	defaultAlertDelay  = 6 * time.Second
	maxAlertActionRows = 20
)

// AntispamList runs the antispam filters over the recent messages of the author.
// Alerts are deferred: triggers for the same member within the alert delay are
// gathered in one DeletionContext and reported together.
type AntispamList struct {
	baseList
	registry *filters.Registry

	client     settings.Client
	alerts     alert.Sink
	scheduler  *tasks.Scheduler
	alertDelay time.Duration

	mu      sync.Mutex
	pending map[string]*DeletionContext
}

func NewAntispamList(deps Deps) (FilterList, error) {
	reg, err := antispam.NewRegistry()
	if err != nil {
		return nil, err
	}
	delay := deps.AlertDelay
	if delay <= 0 {
		delay = defaultAlertDelay
	}
	scheduler := deps.Scheduler
	if scheduler == nil {
		scheduler = tasks.NewScheduler("Antispam")
	}
	return &AntispamList{
		baseList:   newBaseList("antispam", registryBuild(reg, "antispam", deps.Client), true),
		registry:   reg,
		client:     deps.Client,
		alerts:     deps.Alerts,
		scheduler:  scheduler,
		alertDelay: delay,
		pending:    make(map[string]*DeletionContext),
	}, nil
}

func (l *AntispamList) Events() []fctx.Event {
	return []fctx.Event{fctx.Message}
}

func (l *AntispamList) ActionsFor(ctx context.Context, fc *fctx.FilterContext) (Result, error) {
	if fc.Message == nil || fc.Message.WebhookID != "" || fc.Cache == nil {
		return Result{}, nil
	}
	list, ok := l.List(Deny)
	if !ok {
		return Result{}, nil
	}

	var longest time.Duration
	for _, f := range list.Subscribed(fc.Event) {
		if w, ok := f.(interface{ Interval() time.Duration }); ok && w.Interval() > longest {
			longest = w.Interval()
		}
	}
	window := windowOf(fc, longest)
	triggered := list.FilterListResult(ctx, fc.Replace(fctx.WithWindow(window)))
	if len(triggered) == 0 {
		return Result{}, nil
	}

	merged, err := list.MergeActions(triggered)
	if err != nil {
		return Result{}, err
	}
	dc, opened := l.deletionContext(fc.AuthorID())
	if opened {
		fc.AddAdditionalAction(l.scheduleFlush(fc.AuthorID()))
		for _, msg := range fc.RelatedMessages() {
			fc.AddRelatedChannels(msg.ChannelID)
		}
	} else {
		// The earlier messages are already being deleted by the open context.
		fc.DiscardRelatedMessages()
	}
	dc.add(fc, triggered)

	// Alerting is left to the flush.
	current := merged.Without("ping", "send_alert")
	if inf, ok := current.Infraction(); ok {
		if dc.escalate(inf.InfractionType) {
			first := triggered[0]
			info, _ := fc.FilterInfo(first.Key())
			inf.InfractionReason = fmt.Sprintf("%s spam - %s", strings.ReplaceAll(first.Name(), "_", " "), info)
			current = current.With(inf)
		} else {
			current = current.Without("infraction_and_notification")
		}
	}

	messages := make([]string, 0, len(triggered))
	for _, f := range triggered {
		messages = append(messages, strings.ReplaceAll(f.Name(), "_", " ")+" spam")
	}
	return Result{Actions: current, Messages: messages, Triggers: map[ListType][]filters.Filter{Deny: triggered}}, nil
}

// windowOf returns the cached messages newer than the interval, newest first.
func windowOf(fc *fctx.FilterContext, interval time.Duration) []*discordgo.Message {
	now := time.Now()
	if !fc.Message.Timestamp.IsZero() {
		now = fc.Message.Timestamp
	}
	earliest := now.Add(-interval)
	var out []*discordgo.Message
	for _, msg := range fc.Cache.Newest() {
		if !msg.Timestamp.After(earliest) {
			break
		}
		out = append(out, msg)
	}
	return out
}

// deletionContext returns the open context of a member, opening one if needed.
func (l *AntispamList) deletionContext(memberID string) (*DeletionContext, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if dc, ok := l.pending[memberID]; ok {
		return dc, false
	}
	dc := &DeletionContext{}
	l.pending[memberID] = dc
	return dc, true
}

func (l *AntispamList) scheduleFlush(memberID string) fctx.AdditionalAction {
	return func(context.Context, *fctx.FilterContext) {
		l.scheduler.Schedule("antispam:"+memberID, l.alertDelay, func() {
			l.flush(memberID)
		})
	}
}

// flush reports a member's deletion context. The context leaves the pending map
// first, so a trigger arriving meanwhile opens a new one.
func (l *AntispamList) flush(memberID string) {
	l.mu.Lock()
	dc, ok := l.pending[memberID]
	delete(l.pending, memberID)
	l.mu.Unlock()
	if !ok {
		return
	}
	list, ok := l.List(Deny)
	if !ok {
		return
	}
	if err := dc.sendAlert(context.Background(), list, l.client, l.alerts); err != nil {
		log.Printf("[Antispam] Failed to send the alert for member %s: %v", memberID, err)
	}
}

// Pending reports whether a member has an open deletion context.
func (l *AntispamList) Pending(memberID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[memberID]
	return ok
}

func (l *AntispamList) ProcessInput(_ context.Context, content string) (string, error) {
	if _, ok := l.registry.Lookup(content); !ok {
		return "", fmt.Errorf("there is no antispam filter named %q, pick one of %v", content, l.registry.Names())
	}
	return content, nil
}

// DeletionContext gathers the antispam triggers of one member until they are reported.
type DeletionContext struct {
	mu       sync.Mutex
	contexts []*fctx.FilterContext
	rules    []filters.Filter
	ruleIDs  map[int64]struct{}
	current  settings.Infraction
}

func (d *DeletionContext) add(fc *fctx.FilterContext, triggered []filters.Filter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ruleIDs == nil {
		d.ruleIDs = make(map[int64]struct{})
	}
	d.contexts = append(d.contexts, fc)
	for _, f := range triggered {
		if _, ok := d.ruleIDs[f.ID()]; ok {
			continue
		}
		d.ruleIDs[f.ID()] = struct{}{}
		d.rules = append(d.rules, f)
	}
}

// escalate records inf if it is more severe than anything issued so far.
func (d *DeletionContext) escalate(inf settings.Infraction) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != 0 && inf.Severity() >= d.current.Severity() {
		return false
	}
	d.current = inf
	return true
}

// sendAlert posts one alert covering every gathered context.
func (d *DeletionContext) sendAlert(ctx context.Context, list *AtomicList, client settings.Client, sink alert.Sink) error {
	d.mu.Lock()
	contexts := append([]*fctx.FilterContext(nil), d.contexts...)
	rules := append([]filters.Filter(nil), d.rules...)
	d.mu.Unlock()
	if len(contexts) == 0 || sink == nil {
		return nil
	}

	first := contexts[0]
	summary := fctx.New(first.Event, first.Author, first.Member, first.Channel, first.Content)
	summary.Message = first.Message

	var descriptions []string
	counts := make(map[string]int)
	deleted := true
	for i, c := range contexts {
		for _, desc := range c.ActionDescriptions() {
			if counts[desc] == 0 {
				descriptions = append(descriptions, desc)
			}
			counts[desc]++
		}
		summary.AddRelatedMessages(c.RelatedMessages()...)
		summary.AddRelatedChannels(c.RelatedChannels()...)
		if i > 0 && c.Message != nil {
			summary.AddRelatedMessages(c.Message)
			summary.AddRelatedChannels(c.Message.ChannelID)
		}
		for id, urls := range c.UploadedAttachments() {
			summary.AddUploadedAttachments(id, urls...)
		}
		deleted = deleted && c.MessagesDeleted()
	}
	if deleted {
		summary.MarkMessagesDeleted()
	}
	rows := make([]string, 0, len(descriptions))
	for _, desc := range descriptions {
		if n := counts[desc]; n > 1 {
			desc = fmt.Sprintf("%s (x%d)", desc, n)
		}
		rows = append(rows, desc)
	}
	if len(rows) > maxAlertActionRows {
		extra := len(rows) - maxAlertActionRows
		rows = rows[:maxAlertActionRows]
		rows[len(rows)-1] += fmt.Sprintf(" (+%d other actions)", extra)
	}
	summary.AddActionDescription(rows...)

	actions, err := list.MergeActions(rules)
	if err != nil {
		return err
	}
	actions.Only("ping", "send_alert").Action(ctx, summary, client)
	if !summary.SendAlert() {
		return nil
	}

	embed := alert.BuildEmbed(summary, []alert.ListMessages{{List: list.Name, Messages: FormatMessages(rules, true)}})
	embed.Color = alert.Color(actions)
	if len(contexts) > 1 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "The list of actions taken includes actions from additional contexts after deletion began."}
	}
	embeds := append([]*discordgo.MessageEmbed{embed}, first.AlertEmbeds()...)
	if len(embeds) > alert.MaxEmbeds {
		embeds = embeds[:alert.MaxEmbeds]
	}
	return sink.Send(ctx, alert.Alert{Username: "Anti-Spam", Content: summary.AlertContent(), Embeds: embeds})
}
