package filtering

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"filterbot/filtering/settings"
	"filterbot/model"
	"filterbot/tasks"
	"filterbot/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/spaolacci/murmur3"
)

const (
	bulkDeleteLimit = 100
	// maxTimeout is the longest communication timeout Discord allows.
	maxTimeout = 28 * 24 * time.Hour
)

var superstarNames = []string{
	"Rocket Raccoon", "Stardust", "Comet Tail", "Nova Prime", "Moon Walker",
	"Disco Inferno", "Glitter Bomb", "Neon Knight", "Velvet Thunder", "Solar Flare",
}

// InfractionRecorder keeps the history of infractions issued by the filters.
type InfractionRecorder interface {
	AddInfraction(ctx context.Context, rec model.InfractionRecord) (int64, error)
}

// DiscordClient carries out filter actions and lookups through a gateway session.
type DiscordClient struct {
	s                      *discordgo.Session
	guildID                string
	modAlertsChannelID     string
	attachmentLogChannelID string
	recorder               InfractionRecorder
	reverts                *tasks.Scheduler
}

// DiscordClientConfig holds the ids the client posts to.
type DiscordClientConfig struct {
	GuildID                string
	ModAlertsChannelID     string
	AttachmentLogChannelID string
}

func NewDiscordClient(s *discordgo.Session, cfg DiscordClientConfig, recorder InfractionRecorder) *DiscordClient {
	return &DiscordClient{
		s:                      s,
		guildID:                cfg.GuildID,
		modAlertsChannelID:     cfg.ModAlertsChannelID,
		attachmentLogChannelID: cfg.AttachmentLogChannelID,
		recorder:               recorder,
		reverts:                tasks.NewScheduler("Infractions"),
	}
}

// Close drops pending unmutes and nickname resets.
func (c *DiscordClient) Close() {
	c.reverts.Close()
}

// translate turns a 404 from the API into settings.ErrNotFound.
func translate(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", settings.ErrNotFound, err)
	}
	return err
}

// DeleteMessages deletes messages of one channel, in bulk where possible.
func (c *DiscordClient) DeleteMessages(ctx context.Context, channelID string, messageIDs []string) error {
	var failed []string
	for start := 0; start < len(messageIDs); start += bulkDeleteLimit {
		end := min(start+bulkDeleteLimit, len(messageIDs))
		batch := messageIDs[start:end]
		if len(batch) > 1 {
			err := c.s.ChannelMessagesBulkDelete(channelID, batch, discordgo.WithContext(ctx))
			if err == nil {
				continue
			}
			// Bulk deletion refuses messages older than two weeks, fall back to one at a time.
			log.Printf("[Filtering] Bulk delete in %s failed, deleting one by one: %v", channelID, err)
		}
		for _, id := range batch {
			if err := c.s.ChannelMessageDelete(channelID, id, discordgo.WithContext(ctx)); err != nil {
				if errors.Is(translate(err), settings.ErrNotFound) && len(messageIDs) > 1 {
					continue
				}
				failed = append(failed, id)
				if len(messageIDs) == 1 {
					return translate(err)
				}
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to delete %d of %d messages in %s", len(failed), len(messageIDs), channelID)
	}
	return nil
}

func (c *DiscordClient) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := c.s.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return translate(err)
	}
	return nil
}

func (c *DiscordClient) SendDM(ctx context.Context, userID, content string, embed *discordgo.MessageEmbed) error {
	return utils.SendDM(ctx, c.s, userID, content, embed)
}

// Infract applies an infraction and records it.
func (c *DiscordClient) Infract(ctx context.Context, req settings.InfractionRequest) error {
	guildID := req.GuildID
	if guildID == "" {
		guildID = c.guildID
	}
	opt := discordgo.WithContext(ctx)

	var err error
	switch req.Type {
	case settings.Ban:
		err = c.s.GuildBanCreateWithReason(guildID, req.UserID, req.Reason, 0, opt)
	case settings.Kick:
		err = c.s.GuildMemberDeleteWithReason(guildID, req.UserID, req.Reason, opt)
	case settings.Timeout:
		d := req.Duration
		if d <= 0 || d > maxTimeout {
			d = maxTimeout
		}
		until := time.Now().Add(d)
		err = c.s.GuildMemberTimeout(guildID, req.UserID, &until, opt)
	case settings.VoiceMute:
		if err = c.s.GuildMemberMute(guildID, req.UserID, true, opt); err == nil && req.Duration > 0 {
			c.revertLater("unmute:"+req.UserID, req.Duration, func(ctx context.Context) error {
				return c.s.GuildMemberMute(guildID, req.UserID, false, discordgo.WithContext(ctx))
			})
		}
	case settings.Superstar:
		if err = c.s.GuildMemberNickname(guildID, req.UserID, superstarName(req.UserID), opt); err == nil && req.Duration > 0 {
			c.revertLater("superstar:"+req.UserID, req.Duration, func(ctx context.Context) error {
				return c.s.GuildMemberNickname(guildID, req.UserID, "", discordgo.WithContext(ctx))
			})
		}
	case settings.Warning, settings.Watch, settings.Note:
		// Record only.
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply %s to %s: %w", req.Type, req.UserID, translate(err))
	}

	if c.recorder == nil {
		return nil
	}
	if _, err := c.recorder.AddInfraction(ctx, model.InfractionRecord{
		UserID:    req.UserID,
		GuildID:   guildID,
		ChannelID: req.ChannelID,
		Type:      req.Type.String(),
		Reason:    req.Reason,
		Duration:  int64(req.Duration / time.Second),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		log.Printf("[Filtering] Failed to record %s of %s: %v", req.Type, req.UserID, err)
	}
	return nil
}

func (c *DiscordClient) revertLater(id string, after time.Duration, fn func(ctx context.Context) error) {
	c.reverts.Cancel(id)
	c.reverts.Schedule(id, after, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("[Filtering] Failed to revert %s: %v", id, err)
		}
	})
}

func superstarName(userID string) string {
	return superstarNames[murmur3.Sum32([]byte(userID))%uint32(len(superstarNames))]
}

func (c *DiscordClient) ModAlert(ctx context.Context, content string) error {
	if c.modAlertsChannelID == "" {
		return errors.New("no mod alerts channel configured")
	}
	if _, err := c.s.ChannelMessageSend(c.modAlertsChannelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to post mod alert: %w", err)
	}
	return nil
}

// ResolveRole looks a role up by id or case-insensitive name in the home guild.
func (c *DiscordClient) ResolveRole(idOrName string) (*discordgo.Role, bool) {
	var roles []*discordgo.Role
	if g, err := c.s.State.Guild(c.guildID); err == nil {
		roles = g.Roles
	} else {
		roles, err = c.s.GuildRoles(c.guildID)
		if err != nil {
			log.Printf("[Filtering] Failed to fetch roles of %s: %v", c.guildID, err)
			return nil, false
		}
	}
	for _, r := range roles {
		if r.ID == idOrName || strings.EqualFold(r.Name, idOrName) {
			return r, true
		}
	}
	return nil, false
}

// ArchiveAttachments re-uploads the attachments of a message to the attachment log channel.
func (c *DiscordClient) ArchiveAttachments(ctx context.Context, msg *discordgo.Message) ([]string, error) {
	if c.attachmentLogChannelID == "" {
		return nil, errors.New("no attachment log channel configured")
	}
	files := make([]*discordgo.File, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		data, err := utils.DownloadBytes(ctx, a.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", a.Filename, err)
		}
		name := a.Filename
		if name == "" {
			name = a.ID + path.Ext(a.URL)
		}
		files = append(files, &discordgo.File{Name: name, ContentType: a.ContentType, Reader: bytes.NewReader(data)})
	}

	author := "unknown"
	if msg.Author != nil {
		author = msg.Author.ID
	}
	sent, err := c.s.ChannelMessageSendComplex(c.attachmentLogChannelID, &discordgo.MessageSend{
		Content:         fmt.Sprintf("Attachments of message `%s` by <@%s> in <#%s>", msg.ID, author, msg.ChannelID),
		Files:           files,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachments of %s: %w", msg.ID, err)
	}
	urls := make([]string, 0, len(sent.Attachments))
	for _, a := range sent.Attachments {
		urls = append(urls, a.URL)
	}
	return urls, nil
}

func (c *DiscordClient) User(ctx context.Context, userID string) (*discordgo.User, error) {
	u, err := c.s.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (c *DiscordClient) Invite(ctx context.Context, code string) (*discordgo.Invite, error) {
	inv, err := c.s.InviteWithCounts(code, discordgo.WithContext(ctx))
	if err != nil {
		return nil, translate(err)
	}
	return inv, nil
}

func (c *DiscordClient) DeleteWebhook(ctx context.Context, webhookID, token string) error {
	if _, err := c.s.WebhookDeleteWithToken(webhookID, token, discordgo.WithContext(ctx)); err != nil {
		return translate(err)
	}
	return nil
}

// Channel returns a channel from the state cache, fetching it when missing.
func (c *DiscordClient) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if ch, err := c.s.State.Channel(channelID); err == nil {
		return ch, nil
	}
	ch, err := c.s.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, translate(err)
	}
	return ch, nil
}

// Member returns a member from the state cache, fetching it when missing.
func (c *DiscordClient) Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if m, err := c.s.State.Member(guildID, userID); err == nil {
		return m, nil
	}
	m, err := c.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, translate(err)
	}
	if m.GuildID == "" {
		m.GuildID = guildID
	}
	return m, nil
}

// Roles resolves role ids through the state cache. Unknown ids are skipped.
func (c *DiscordClient) Roles(guildID string, roleIDs []string) []*discordgo.Role {
	roles := make([]*discordgo.Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		if r, err := c.s.State.Role(guildID, id); err == nil {
			roles = append(roles, r)
		}
	}
	return roles
}

var (
	_ settings.Client = (*DiscordClient)(nil)
	_ Resolver        = (*DiscordClient)(nil)
)
