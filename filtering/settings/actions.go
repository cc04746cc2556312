package settings

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"filterbot/filtering/fctx"

	"github.com/bwmarrin/discordgo"
)

const (
	dmEmbedColor     = 0x5865F2
	superstarReason  = "Your nickname was found to be in violation of our code of conduct. If you believe this is a mistake, please let us know."
	superstarDefault = time.Hour
)

// InfractionAndNotification notifies the user and issues an infraction.
type InfractionAndNotification struct {
	meta
	DMContent          string        `mapstructure:"dm_content"`
	DMEmbed            string        `mapstructure:"dm_embed"`
	InfractionType     Infraction    `mapstructure:"infraction_type"`
	InfractionReason   string        `mapstructure:"infraction_reason"`
	InfractionDuration time.Duration `mapstructure:"infraction_duration"`
	InfractionChannel  string        `mapstructure:"infraction_channel"`
}

func buildInfraction(data, defaults map[string]any) (Entry, error) {
	e, m, err := decodeEntry[InfractionAndNotification]("infraction_and_notification", data, defaults)
	if err != nil {
		return nil, err
	}
	if e.InfractionDuration < 0 {
		return nil, fmt.Errorf("infraction_and_notification: negative infraction_duration %s", e.InfractionDuration)
	}
	e.InfractionType = e.InfractionType.normalized()
	e.meta = m
	return e, nil
}

func (InfractionAndNotification) Name() string { return "infraction_and_notification" }

func (e InfractionAndNotification) Dump() map[string]any {
	return map[string]any{
		"dm_content":          e.DMContent,
		"dm_embed":            e.DMEmbed,
		"infraction_type":     e.InfractionType.String(),
		"infraction_reason":   e.InfractionReason,
		"infraction_duration": e.InfractionDuration.Seconds(),
		"infraction_channel":  e.InfractionChannel,
	}
}

// outranks reports whether e wins over o: more severe type first, then the longer duration.
// A zero duration is permanent and beats any finite one.
func (e InfractionAndNotification) outranks(o InfractionAndNotification) bool {
	if e.InfractionType.Severity() != o.InfractionType.Severity() {
		return e.InfractionType.Severity() < o.InfractionType.Severity()
	}
	if e.InfractionDuration == o.InfractionDuration {
		return true
	}
	if e.InfractionDuration == 0 {
		return true
	}
	if o.InfractionDuration == 0 {
		return false
	}
	return e.InfractionDuration > o.InfractionDuration
}

func (e InfractionAndNotification) Union(other ActionEntry) (ActionEntry, error) {
	o, ok := other.(InfractionAndNotification)
	if !ok {
		return nil, unionMismatch(e, other)
	}
	winner, loser := e, o
	if !e.outranks(o) {
		winner, loser = o, e
	}
	if winner.DMContent == "" && winner.DMEmbed == "" {
		winner.DMContent = loser.DMContent
		winner.DMEmbed = loser.DMEmbed
	}
	winner.meta = mergeOverrides(e.meta, o.meta)
	return winner, nil
}

func (e InfractionAndNotification) Action(ctx context.Context, fc *fctx.FilterContext, client Client) {
	dmContent, dmEmbed := e.DMContent, e.DMEmbed
	// Without a configured message, fall back to one prepared by the filters.
	if dmContent == "" && dmEmbed == "" {
		dmContent, dmEmbed = fc.DM()
	}
	if dmContent != "" || dmEmbed != "" {
		replacer := strings.NewReplacer("{domain}", fc.NotificationDomain())
		content := fmt.Sprintf("Hey <@%s>!", fc.AuthorID())
		if dmContent != "" {
			content += "\n" + replacer.Replace(dmContent)
		}
		var embed *discordgo.MessageEmbed
		if dmEmbed != "" {
			embed = &discordgo.MessageEmbed{Description: replacer.Replace(dmEmbed), Color: dmEmbedColor}
		}
		if err := client.SendDM(ctx, fc.AuthorID(), content, embed); err != nil {
			log.Printf("[Filtering] Failed to DM user %s: %v", fc.AuthorID(), err)
			fc.AddActionDescription("failed to notify")
		} else {
			fc.AddActionDescription("notified")
		}
	}

	if e.InfractionType.normalized() == None {
		return
	}
	req := InfractionRequest{
		Type:      e.InfractionType,
		UserID:    fc.AuthorID(),
		ChannelID: e.InfractionChannel,
		Duration:  e.InfractionDuration,
		Reason:    e.InfractionReason,
	}
	if fc.Channel != nil {
		req.GuildID = fc.Channel.GuildID
		if req.ChannelID == "" {
			req.ChannelID = fc.Channel.ID
		}
	}
	if err := client.Infract(ctx, req); err != nil {
		log.Printf("[Filtering] Failed to apply %s to %s: %v", e.InfractionType, fc.AuthorID(), err)
		warning := fmt.Sprintf(":warning: Could not apply %s to <@%s>: %v", strings.ToLower(e.InfractionType.String()), fc.AuthorID(), err)
		if alertErr := client.ModAlert(ctx, warning); alertErr != nil {
			log.Printf("[Filtering] Failed to post infraction warning: %v", alertErr)
		}
		fc.AddActionDescription("failed to apply " + strings.ToLower(e.InfractionType.String()))
		return
	}
	fc.AddActionDescription(e.InfractionType.Passive())
}

// RemoveContext deletes the offending content.
type RemoveContext struct {
	meta
	RemoveContext bool `mapstructure:"remove_context"`
}

func buildRemoveContext(data, defaults map[string]any) (Entry, error) {
	e, m, err := decodeEntry[RemoveContext]("remove_context", data, defaults)
	if err != nil {
		return nil, err
	}
	e.meta = m
	return e, nil
}

func (RemoveContext) Name() string { return "remove_context" }

func (e RemoveContext) Dump() map[string]any {
	return map[string]any{"remove_context": e.RemoveContext}
}

func (e RemoveContext) Union(other ActionEntry) (ActionEntry, error) {
	o, ok := other.(RemoveContext)
	if !ok {
		return nil, unionMismatch(e, other)
	}
	return RemoveContext{meta: mergeOverrides(e.meta, o.meta), RemoveContext: e.RemoveContext || o.RemoveContext}, nil
}

func (e RemoveContext) Action(ctx context.Context, fc *fctx.FilterContext, client Client) {
	if !e.RemoveContext {
		return
	}
	switch fc.Event {
	case fctx.Message, fctx.MessageEdit:
		removeMessages(ctx, fc, client)
	case fctx.Nickname:
		superstar(ctx, fc, client)
	case fctx.ThreadName:
		removeThread(ctx, fc, client)
	}
}

func removeMessages(ctx context.Context, fc *fctx.FilterContext, client Client) {
	if fc.Message == nil || !fc.InGuild() {
		return
	}
	// Set before deleting so a failed deletion can still be scheduled for later.
	fc.MarkMessagesDeleted()

	byChannel := make(map[string][]*discordgo.Message)
	var order []string
	for _, msg := range append([]*discordgo.Message{fc.Message}, fc.RelatedMessages()...) {
		channelID := msg.ChannelID
		if channelID == "" && fc.Channel != nil {
			channelID = fc.Channel.ID
		}
		if _, ok := byChannel[channelID]; !ok {
			order = append(order, channelID)
		}
		if !hasMessage(byChannel[channelID], msg.ID) {
			byChannel[channelID] = append(byChannel[channelID], msg)
		}
	}

	archiveAttachments(ctx, fc, client, byChannel)

	success, fail := 0, 0
	for _, channelID := range order {
		msgs := byChannel[channelID]
		ids := make([]string, 0, len(msgs))
		for _, m := range msgs {
			ids = append(ids, m.ID)
		}
		if err := client.DeleteMessages(ctx, channelID, ids); err != nil {
			log.Printf("[Filtering] Failed to delete %d messages in %s: %v", len(ids), channelID, err)
			fail += len(ids)
			continue
		}
		success += len(ids)
	}

	switch {
	case fail == 0 && success == 1:
		fc.AddActionDescription("deleted")
	case fail == 0:
		fc.AddActionDescription("deleted all")
	case success == 0 && fail == 1:
		fc.AddActionDescription("failed to delete")
	case success == 0:
		fc.AddActionDescription("all failed to delete")
	default:
		fc.AddActionDescription(fmt.Sprintf("%d deleted, %d failed to delete", success, fail))
	}
}

func archiveAttachments(ctx context.Context, fc *fctx.FilterContext, client Client, byChannel map[string][]*discordgo.Message) {
	uploaded := fc.UploadedAttachments()
	failed := false
	for _, msgs := range byChannel {
		for _, msg := range msgs {
			if len(msg.Attachments) == 0 {
				continue
			}
			if _, done := uploaded[msg.ID]; done {
				continue
			}
			urls, err := client.ArchiveAttachments(ctx, msg)
			if err != nil {
				log.Printf("[Filtering] Failed to archive attachments of %s: %v", msg.ID, err)
				failed = true
				continue
			}
			fc.AddUploadedAttachments(msg.ID, urls...)
		}
	}
	if failed {
		fc.AddActionDescription("failed to archive attachments")
	}
}

func superstar(ctx context.Context, fc *fctx.FilterContext, client Client) {
	req := InfractionRequest{
		Type:     Superstar,
		UserID:   fc.AuthorID(),
		Duration: superstarDefault,
		Reason:   superstarReason,
	}
	if fc.Member != nil {
		req.GuildID = fc.Member.GuildID
	}
	if err := client.Infract(ctx, req); err != nil {
		log.Printf("[Filtering] Failed to superstar %s: %v", fc.AuthorID(), err)
		if alertErr := client.ModAlert(ctx, fmt.Sprintf(":warning: Could not superstar <@%s>: %v", fc.AuthorID(), err)); alertErr != nil {
			log.Printf("[Filtering] Failed to post superstar warning: %v", alertErr)
		}
		fc.AddActionDescription("failed to superstar")
		return
	}
	fc.AddActionDescription("superstarred")
}

func removeThread(ctx context.Context, fc *fctx.FilterContext, client Client) {
	if fc.Channel == nil {
		return
	}
	if err := client.DeleteChannel(ctx, fc.Channel.ID); err != nil {
		log.Printf("[Filtering] Failed to delete thread %s: %v", fc.Channel.ID, err)
		fc.AddActionDescription("failed to delete thread")
		return
	}
	fc.AddActionDescription("deleted thread")
}

func hasMessage(msgs []*discordgo.Message, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Ping mentions staff in the alert.
type Ping struct {
	meta
	GuildPings []string `mapstructure:"guild_pings"`
	DMPings    []string `mapstructure:"dm_pings"`
}

func buildPing(data, defaults map[string]any) (Entry, error) {
	e, m, err := decodeEntry[Ping]("ping", data, defaults)
	if err != nil {
		return nil, err
	}
	e.GuildPings = unionStrings(e.GuildPings, nil)
	e.DMPings = unionStrings(e.DMPings, nil)
	e.meta = m
	return e, nil
}

func (Ping) Name() string { return "ping" }

func (e Ping) Dump() map[string]any {
	return map[string]any{
		"guild_pings": append([]string{}, e.GuildPings...),
		"dm_pings":    append([]string{}, e.DMPings...),
	}
}

func (e Ping) Union(other ActionEntry) (ActionEntry, error) {
	o, ok := other.(Ping)
	if !ok {
		return nil, unionMismatch(e, other)
	}
	return Ping{
		meta:       mergeOverrides(e.meta, o.meta),
		GuildPings: unionStrings(e.GuildPings, o.GuildPings),
		DMPings:    unionStrings(e.DMPings, o.DMPings),
	}, nil
}

func (e Ping) Action(_ context.Context, fc *fctx.FilterContext, client Client) {
	mentions := e.GuildPings
	if !fc.InGuild() {
		mentions = e.DMPings
	}
	if len(mentions) == 0 {
		return
	}
	resolved := make([]string, 0, len(mentions))
	for _, m := range mentions {
		resolved = append(resolved, ResolveMention(m, client))
	}
	fc.PrependAlertContent(strings.Join(resolved, " "))
}

// ResolveMention turns a configured ping (id, role name, "here", "everyone") into a mention.
func ResolveMention(mention string, client Client) string {
	if mention == "here" || mention == "everyone" {
		return "@" + mention
	}
	if client != nil {
		if role, ok := client.ResolveRole(mention); ok {
			return "<@&" + role.ID + ">"
		}
	}
	if isSnowflake(mention) {
		return "<@" + mention + ">"
	}
	return mention
}

func isSnowflake(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SendAlert raises the alert gate.
type SendAlert struct {
	meta
	SendAlert bool `mapstructure:"send_alert"`
}

func buildSendAlert(data, defaults map[string]any) (Entry, error) {
	e, m, err := decodeEntry[SendAlert]("send_alert", data, defaults)
	if err != nil {
		return nil, err
	}
	e.meta = m
	return e, nil
}

func (SendAlert) Name() string { return "send_alert" }

func (e SendAlert) Dump() map[string]any {
	return map[string]any{"send_alert": e.SendAlert}
}

func (e SendAlert) Union(other ActionEntry) (ActionEntry, error) {
	o, ok := other.(SendAlert)
	if !ok {
		return nil, unionMismatch(e, other)
	}
	return SendAlert{meta: mergeOverrides(e.meta, o.meta), SendAlert: e.SendAlert || o.SendAlert}, nil
}

func (e SendAlert) Action(_ context.Context, fc *fctx.FilterContext, _ Client) {
	if e.SendAlert {
		fc.RequestAlert()
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := []string{}
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
