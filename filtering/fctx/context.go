package fctx

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Event is the kind of occurrence a context was built for.
type Event int

const (
	Message Event = iota
	MessageEdit
	Nickname
	ThreadName
	Snekbox
)

var eventNames = [...]string{"MESSAGE", "MESSAGE_EDIT", "NICKNAME", "THREAD_NAME", "SNEKBOX"}

// Events lists every event kind in declaration order.
var Events = []Event{Message, MessageEdit, Nickname, ThreadName, Snekbox}

func (e Event) String() string {
	if int(e) < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return eventNames[e]
}

// Title returns the display form of the event, e.g. "Message Edit".
func (e Event) Title() string {
	return cases.Title(language.English).String(strings.ReplaceAll(strings.ToLower(e.String()), "_", " "))
}

// ParseEvent resolves an event by its upper case name.
func ParseEvent(name string) (Event, error) {
	for i, n := range eventNames {
		if strings.EqualFold(n, name) {
			return Event(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", name)
}

// MessageCache is the read side of the shared recent-message cache.
type MessageCache interface {
	// Newest returns the cached messages, newest first.
	Newest() []*discordgo.Message
	// TriggeredFilters returns the filter ids that triggered for a message in the given atomic list.
	TriggeredFilters(messageID, list string) ([]int64, bool)
	SetTriggeredFilters(messageID, list string, filterIDs []int64)
}

// AdditionalAction is a side effect queued by a filter, run after the main actions.
type AdditionalAction func(ctx context.Context, fc *FilterContext)

// FilterContext carries one event through the filtering pipeline.
//
// Input fields are copied by Replace. Output accumulators live behind a pointer
// shared by every derived copy, so anything a filter records on a derived view
// is visible on the original context.
type FilterContext struct {
	Event         Event
	Author        *discordgo.User
	Member        *discordgo.Member
	Roles         []*discordgo.Role
	Channel       *discordgo.Channel
	Parent        *discordgo.Channel
	Category      *discordgo.Channel
	Content       string
	ContentSet    []string
	Window        []*discordgo.Message
	Message       *discordgo.Message
	BeforeMessage *discordgo.Message
	Embeds        []*discordgo.MessageEmbed
	Attachments   []*discordgo.MessageAttachment
	Cache         MessageCache

	inGuild bool
	out     *outputs
}

type outputs struct {
	mu sync.Mutex

	matches             []string
	actionDescriptions  []string
	alertContent        string
	alertEmbeds         []*discordgo.MessageEmbed
	sendAlert           bool
	dmContent           string
	dmEmbed             string
	notificationDomain  string
	filterInfo          map[string]string
	relatedMessages     []*discordgo.Message
	relatedChannels     []string
	additionalActions   []AdditionalAction
	messagesDeletion    bool
	blockedExts         []string
	uploadedAttachments map[string][]string
	redactions          []string
}

// New builds a context. The guild flag is derived here once and never changes.
func New(event Event, author *discordgo.User, member *discordgo.Member, channel *discordgo.Channel, content string) *FilterContext {
	fc := &FilterContext{
		Event:   event,
		Author:  author,
		Member:  member,
		Channel: channel,
		Content: content,
		out: &outputs{
			filterInfo:          make(map[string]string),
			uploadedAttachments: make(map[string][]string),
		},
	}
	switch {
	case channel != nil:
		fc.inGuild = channel.GuildID != ""
	default:
		fc.inGuild = member != nil
	}
	return fc
}

// FromMessage builds a context from a chat message.
func FromMessage(event Event, msg *discordgo.Message, before *discordgo.Message, channel *discordgo.Channel, cache MessageCache) *FilterContext {
	fc := New(event, msg.Author, msg.Member, channel, msg.Content)
	fc.Message = msg
	fc.BeforeMessage = before
	fc.Embeds = msg.Embeds
	fc.Attachments = msg.Attachments
	fc.Cache = cache
	if fc.Member != nil && fc.Member.User == nil {
		fc.Member.User = msg.Author
	}
	return fc
}

// Option overrides an input field of a derived context.
type Option func(*FilterContext)

func WithContent(content string) Option {
	return func(fc *FilterContext) { fc.Content = content }
}

func WithContentSet(set []string) Option {
	return func(fc *FilterContext) { fc.ContentSet = set }
}

func WithWindow(window []*discordgo.Message) Option {
	return func(fc *FilterContext) { fc.Window = window }
}

func WithEvent(event Event) Option {
	return func(fc *FilterContext) { fc.Event = event }
}

// Replace returns a copy of the context with the given overrides applied.
func (fc *FilterContext) Replace(opts ...Option) *FilterContext {
	cp := *fc
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

func (fc *FilterContext) InGuild() bool {
	return fc.inGuild
}

// AuthorID identifies the offending user for per-member bookkeeping.
func (fc *FilterContext) AuthorID() string {
	if fc.Author == nil {
		return ""
	}
	return fc.Author.ID
}

// ScopeChannel is the channel scoping rules apply to: the parent for threads.
func (fc *FilterContext) ScopeChannel() *discordgo.Channel {
	if fc.Parent != nil {
		return fc.Parent
	}
	return fc.Channel
}

// MemberRoles returns the role ids of the author, empty outside guilds.
func (fc *FilterContext) MemberRoles() []string {
	if fc.Member == nil {
		return nil
	}
	return fc.Member.Roles
}

func (fc *FilterContext) AddMatches(matches ...string) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	fc.out.matches = append(fc.out.matches, matches...)
}

func (fc *FilterContext) Matches() []string {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	return append([]string(nil), fc.out.matches...)
}

func (fc *FilterContext) AddActionDescription(desc ...string) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	fc.out.actionDescriptions = append(fc.out.actionDescriptions, desc...)
}

func (fc *FilterContext) ActionDescriptions() []string {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	return append([]string(nil), fc.out.actionDescriptions...)
}

// AppendAlertContent adds a line to the plain text part of the alert.
func (fc *FilterContext) AppendAlertContent(content string) {
	if content == "" {
		return
	}
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	if fc.out.alertContent == "" {
		fc.out.alertContent = content
		return
	}
	fc.out.alertContent += " " + content
}

// PrependAlertContent puts content, typically mentions, in front of the alert text.
func (fc *FilterContext) PrependAlertContent(content string) {
	if content == "" {
		return
	}
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	if fc.out.alertContent == "" {
		fc.out.alertContent = content
		return
	}
	fc.out.alertContent = content + " " + fc.out.alertContent
}

func (fc *FilterContext) AlertContent() string {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	return fc.out.alertContent
}

func (fc *FilterContext) AddAlertEmbeds(embeds ...*discordgo.MessageEmbed) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	fc.out.alertEmbeds = append(fc.out.alertEmbeds, embeds...)
}

func (fc *FilterContext) AlertEmbeds() []*discordgo.MessageEmbed {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	return append([]*discordgo.MessageEmbed(nil), fc.out.alertEmbeds...)
}

// RequestAlert marks the event as needing a mod alert. The gate is only ever raised.
func (fc *FilterContext) RequestAlert() {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	fc.out.sendAlert = true
}

func (fc *FilterContext) SendAlert() bool {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	return fc.out.sendAlert
}

// SetDM sets the notification the offending user receives.
func (fc *FilterContext) SetDM(content, embed string) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	fc.out.dmContent = content
	fc.out.dmEmbed = embed
}

func (fc *FilterContext) DM() (content, embed string) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	return fc.out.dmContent, fc.out.dmEmbed
}

// SetNotificationDomain records the domain named in the user notification. The first value wins.
func (fc *FilterContext) SetNotificationDomain(domain string) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	if fc.out.notificationDomain == "" {
		fc.out.notificationDomain = domain
	}
}

func (fc *FilterContext) NotificationDomain() string {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	return fc.out.notificationDomain
}

// SetFilterInfo annotates a filter, keyed by its identity string.
func (fc *FilterContext) SetFilterInfo(key, info string) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	fc.out.filterInfo[key] = info
}

func (fc *FilterContext) FilterInfo(key string) (string, bool) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	info, ok := fc.out.filterInfo[key]
	return info, ok
}

// AddRelatedMessages adds messages to the deletion scope, ignoring ids already present.
func (fc *FilterContext) AddRelatedMessages(msgs ...*discordgo.Message) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	for _, m := range msgs {
		if m == nil || containsMessage(fc.out.relatedMessages, m.ID) {
			continue
		}
		fc.out.relatedMessages = append(fc.out.relatedMessages, m)
	}
}

func (fc *FilterContext) RelatedMessages() []*discordgo.Message {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	return append([]*discordgo.Message(nil), fc.out.relatedMessages...)
}

// DiscardRelatedMessages drops the deletion scope. Used when the messages
// already belong to a pending antispam deletion.
func (fc *FilterContext) DiscardRelatedMessages() {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	fc.out.relatedMessages = nil
}

func (fc *FilterContext) AddRelatedChannels(ids ...string) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	for _, id := range ids {
		if id != "" && !containsString(fc.out.relatedChannels, id) {
			fc.out.relatedChannels = append(fc.out.relatedChannels, id)
		}
	}
}

func (fc *FilterContext) RelatedChannels() []string {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	return append([]string(nil), fc.out.relatedChannels...)
}

func (fc *FilterContext) AddAdditionalAction(action AdditionalAction) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	fc.out.additionalActions = append(fc.out.additionalActions, action)
}

func (fc *FilterContext) AdditionalActions() []AdditionalAction {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	return append([]AdditionalAction(nil), fc.out.additionalActions...)
}

// MarkMessagesDeleted records that the triggering messages were removed.
func (fc *FilterContext) MarkMessagesDeleted() {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	fc.out.messagesDeletion = true
}

func (fc *FilterContext) MessagesDeleted() bool {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	return fc.out.messagesDeletion
}

func (fc *FilterContext) AddBlockedExts(exts ...string) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	for _, ext := range exts {
		if !containsString(fc.out.blockedExts, ext) {
			fc.out.blockedExts = append(fc.out.blockedExts, ext)
		}
	}
}

func (fc *FilterContext) BlockedExts() []string {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	return append([]string(nil), fc.out.blockedExts...)
}

// AddUploadedAttachments records archived attachment urls for a deleted message.
func (fc *FilterContext) AddUploadedAttachments(messageID string, urls ...string) {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	fc.out.uploadedAttachments[messageID] = append(fc.out.uploadedAttachments[messageID], urls...)
}

func (fc *FilterContext) UploadedAttachments() map[string][]string {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	cp := make(map[string][]string, len(fc.out.uploadedAttachments))
	for k, v := range fc.out.uploadedAttachments {
		cp[k] = append([]string(nil), v...)
	}
	return cp
}

// Redact hides secret in the content shown to staff, replacing it with replacement.
func (fc *FilterContext) Redact(secret, replacement string) {
	if secret == "" {
		return
	}
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	fc.out.redactions = append(fc.out.redactions, secret, replacement)
}

// RedactedContent is the content with every recorded redaction applied.
func (fc *FilterContext) RedactedContent() string {
	fc.out.mu.Lock()
	defer fc.out.mu.Unlock()
	if len(fc.out.redactions) == 0 {
		return fc.Content
	}
	return strings.NewReplacer(fc.out.redactions...).Replace(fc.Content)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsMessage(list []*discordgo.Message, id string) bool {
	for _, m := range list {
		if m.ID == id {
			return true
		}
	}
	return false
}
