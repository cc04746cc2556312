// Package filter implements the /filter moderation command.
package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"filterbot/filtering/filters"
	"filterbot/filtering/lists"
	"filterbot/model"
	"filterbot/utils"

	"github.com/bwmarrin/discordgo"
)

const (
	embedDescriptionLimit = 4096
	commandTimeout        = 30 * time.Second
)

// Engine is the part of the filtering engine the command manages.
type Engine interface {
	Lists() []lists.FilterList
	List(name string) (lists.FilterList, bool)
	AddFilter(ctx context.Context, listName string, t lists.ListType, content, description string, raw, extra map[string]any) (filters.Filter, error)
	DeleteFilter(ctx context.Context, id int64) (filters.Filter, error)
}

// InfractionLister reads the infractions the filters recorded.
type InfractionLister interface {
	Infractions(ctx context.Context, userID string) ([]model.InfractionRecord, error)
}

// Handler serves the /filter subcommands.
type Handler struct {
	Engine      Engine
	Infractions InfractionLister
	// Reload re-reads the filter lists from their seed file.
	Reload      func(ctx context.Context) error
	Permissions func() utils.Permissions
	// Log and LogChannelID post failed reloads to the log channel. Both are optional.
	Log          utils.ChannelSender
	LogChannelID func() string
}

type reply struct {
	content string
	embeds  []*discordgo.MessageEmbed
}

func (h *Handler) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Member == nil || i.Member.User == nil {
		utils.SendErrorResponse(s, i, "This command can only be used in a server.")
		return
	}
	level := h.Permissions().CheckPermission(i.Member.Roles, i.Member.User.ID)
	if !utils.CanModerate(level) {
		utils.SendErrorResponse(s, i, "You do not have permission to use this command.")
		return
	}
	if err := utils.DeferResponse(s, i, true); err != nil {
		log.Printf("Failed to defer interaction: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		utils.SendFollowUpError(s, i.Interaction, "Missing subcommand.")
		return
	}
	sub := data.Options[0]
	r, err := h.execute(ctx, sub.Name, optionMap(sub.Options))
	if err != nil {
		log.Printf("[Filter] /filter %s by %s failed: %v", sub.Name, i.Member.User.ID, err)
		utils.SendFollowUpError(s, i.Interaction, err.Error())
		return
	}
	if len(r.embeds) > 0 {
		utils.SendFollowUpEmbeds(s, i.Interaction, r.embeds)
		return
	}
	utils.SendFollowUp(s, i.Interaction, r.content)
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func stringOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if opt, ok := opts[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (h *Handler) execute(ctx context.Context, sub string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (reply, error) {
	switch sub {
	case "list":
		return h.list(stringOption(opts, "list"), stringOption(opts, "type"))
	case "add":
		return h.add(ctx, opts)
	case "delete":
		opt, ok := opts["id"]
		if !ok {
			return reply{}, fmt.Errorf("missing filter id")
		}
		removed, err := h.Engine.DeleteFilter(ctx, opt.IntValue())
		if err != nil {
			return reply{}, err
		}
		return reply{content: fmt.Sprintf("✅ Deleted %s filter %s", removed.Name(), removed.String())}, nil
	case "reload":
		if err := h.Reload(ctx); err != nil {
			h.logError("Reload", err)
			return reply{}, fmt.Errorf("failed to reload the filter lists: %w", err)
		}
		return reply{content: fmt.Sprintf("✅ Reloaded %d filter lists.", len(h.Engine.Lists()))}, nil
	case "infractions":
		opt, ok := opts["user"]
		if !ok {
			return reply{}, fmt.Errorf("missing user")
		}
		userID, _ := opt.Value.(string)
		records, err := h.Infractions.Infractions(ctx, userID)
		if err != nil {
			return reply{}, fmt.Errorf("failed to read infractions: %w", err)
		}
		return reply{embeds: []*discordgo.MessageEmbed{infractionsEmbed(userID, records)}}, nil
	}
	return reply{}, fmt.Errorf("unknown subcommand %s", sub)
}

func (h *Handler) logError(operation string, err error) {
	if h.Log == nil || h.LogChannelID == nil {
		return
	}
	if lerr := utils.LogError(h.Log, h.LogChannelID(), "Filtering", operation, err.Error()); lerr != nil {
		log.Printf("[Filter] Failed to send error log: %v", lerr)
	}
}

func (h *Handler) list(name, typeName string) (reply, error) {
	if name == "" {
		return reply{embeds: []*discordgo.MessageEmbed{overviewEmbed(h.Engine.Lists())}}, nil
	}
	fl, ok := h.Engine.List(name)
	if !ok {
		return reply{}, fmt.Errorf("there is no filter list named %s", name)
	}
	var embeds []*discordgo.MessageEmbed
	for _, al := range fl.Lists() {
		if typeName != "" {
			t, err := lists.ParseListType(typeName)
			if err != nil {
				return reply{}, err
			}
			if al.Type != t {
				continue
			}
		}
		embeds = append(embeds, atomicListEmbed(al))
	}
	if len(embeds) == 0 {
		return reply{content: fmt.Sprintf("The %s filter list has no matching lists.", name)}, nil
	}
	return reply{embeds: embeds}, nil
}

func (h *Handler) add(ctx context.Context, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (reply, error) {
	t, err := lists.ParseListType(stringOption(opts, "type"))
	if err != nil {
		return reply{}, err
	}
	raw, extra, err := parseOverrides(stringOption(opts, "settings"))
	if err != nil {
		return reply{}, err
	}
	listName := stringOption(opts, "list")
	added, err := h.Engine.AddFilter(ctx, listName, t, stringOption(opts, "content"), stringOption(opts, "description"), raw, extra)
	if err != nil {
		return reply{}, err
	}
	return reply{content: fmt.Sprintf("✅ Added to %s %s: %s", listName, t, added.String())}, nil
}

// parseOverrides reads the settings option. The "extra" key holds the filter type's own fields,
// every other key overrides a list setting.
func parseOverrides(s string) (raw, extra map[string]any, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil, nil
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, nil, fmt.Errorf("settings must be a JSON object: %w", err)
	}
	if v, ok := raw["extra"]; ok {
		extra, ok = v.(map[string]any)
		if !ok {
			return nil, nil, fmt.Errorf("extra must be a JSON object")
		}
		delete(raw, "extra")
	}
	if len(raw) == 0 {
		raw = nil
	}
	return raw, extra, nil
}

func overviewEmbed(all []lists.FilterList) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: "Filter lists", Color: 0x3498db}
	for _, fl := range all {
		var counts []string
		for _, al := range fl.Lists() {
			counts = append(counts, fmt.Sprintf("%s: %d", al.Type, al.Len()))
		}
		value := strings.Join(counts, "\n")
		if value == "" {
			value = "empty"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: fl.Name(), Value: value, Inline: true})
	}
	if len(embed.Fields) == 0 {
		embed.Description = "No filter lists are loaded."
	}
	return embed
}

func atomicListEmbed(al *lists.AtomicList) *discordgo.MessageEmbed {
	lines := make([]string, 0, al.Len())
	for _, f := range al.Filters() {
		lines = append(lines, f.String())
	}
	description := joinWithin(lines, embedDescriptionLimit)
	if description == "" {
		description = "No filters."
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s filters (%d)", al.Label(), al.Len()),
		Description: description,
		Color:       0x3498db,
	}
}

func infractionsEmbed(userID string, records []model.InfractionRecord) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		line := fmt.Sprintf("`#%d` **%s** <t:%d:R>", rec.ID, rec.Type, rec.CreatedAt.Unix())
		if rec.Duration > 0 {
			line += fmt.Sprintf(" for %s", time.Duration(rec.Duration)*time.Second)
		}
		if rec.Reason != "" {
			line += " - " + rec.Reason
		}
		lines = append(lines, line)
	}
	description := joinWithin(lines, embedDescriptionLimit)
	if description == "" {
		description = "No infractions."
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Filter infractions of %s", userID),
		Description: fmt.Sprintf("<@%s>\n\n%s", userID, description),
		Color:       0xe67e22,
	}
}

// joinWithin joins lines with newlines, dropping the tail that would not fit in limit runes.
func joinWithin(lines []string, limit int) string {
	var b strings.Builder
	used := 0
	for n, line := range lines {
		cost := len([]rune(line)) + 1
		reserve := 0
		if rest := len(lines) - n - 1; rest > 0 {
			reserve = len([]rune(moreLine(rest)))
		}
		if used+cost+reserve > limit {
			b.WriteString(moreLine(len(lines) - n))
			return b.String()
		}
		b.WriteString(line)
		b.WriteString("\n")
		used += cost
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func moreLine(n int) string {
	return fmt.Sprintf("…and %d more", n)
}
