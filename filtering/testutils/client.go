// Package testutils provides fakes for the chat API used across filtering tests.
package testutils

import (
	"context"
	"sync"

	"filterbot/filtering/settings"

	"github.com/bwmarrin/discordgo"
)

var ErrNotFound = settings.ErrNotFound

// Client records every call made through settings.Client. It is safe for concurrent use.
type Client struct {
	mu sync.Mutex

	Roles   map[string]*discordgo.Role
	Users   map[string]*discordgo.User
	Invites map[string]*discordgo.Invite

	DMErr      error
	InfractErr error
	DeleteErr  error
	WebhookErr error
	ArchiveErr error

	Deleted         map[string][]string
	DeletedChannels []string
	DMs             []string
	Infractions     []settings.InfractionRequest
	ModAlerts       []string
	DeletedWebhooks []string
	InviteLookups   int
}

func NewClient() *Client {
	return &Client{
		Roles:   make(map[string]*discordgo.Role),
		Users:   make(map[string]*discordgo.User),
		Invites: make(map[string]*discordgo.Invite),
		Deleted: make(map[string][]string),
	}
}

func (c *Client) DeleteMessages(_ context.Context, channelID string, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeleteErr != nil {
		return c.DeleteErr
	}
	c.Deleted[channelID] = append(c.Deleted[channelID], ids...)
	return nil
}

func (c *Client) DeleteChannel(_ context.Context, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeleteErr != nil {
		return c.DeleteErr
	}
	c.DeletedChannels = append(c.DeletedChannels, channelID)
	return nil
}

func (c *Client) SendDM(_ context.Context, _ string, content string, _ *discordgo.MessageEmbed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DMErr != nil {
		return c.DMErr
	}
	c.DMs = append(c.DMs, content)
	return nil
}

func (c *Client) Infract(_ context.Context, req settings.InfractionRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.InfractErr != nil {
		return c.InfractErr
	}
	c.Infractions = append(c.Infractions, req)
	return nil
}

func (c *Client) ModAlert(_ context.Context, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ModAlerts = append(c.ModAlerts, content)
	return nil
}

func (c *Client) ResolveRole(idOrName string) (*discordgo.Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.Roles[idOrName]; ok {
		return r, true
	}
	for _, r := range c.Roles {
		if r.Name == idOrName {
			return r, true
		}
	}
	return nil, false
}

func (c *Client) ArchiveAttachments(_ context.Context, msg *discordgo.Message) ([]string, error) {
	if c.ArchiveErr != nil {
		return nil, c.ArchiveErr
	}
	urls := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		urls = append(urls, "https://archive.test/"+a.Filename)
	}
	return urls, nil
}

func (c *Client) User(_ context.Context, userID string) (*discordgo.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.Users[userID]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func (c *Client) Invite(_ context.Context, code string) (*discordgo.Invite, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InviteLookups++
	if inv, ok := c.Invites[code]; ok {
		return inv, nil
	}
	return nil, ErrNotFound
}

func (c *Client) DeleteWebhook(_ context.Context, webhookID, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WebhookErr != nil {
		return c.WebhookErr
	}
	c.DeletedWebhooks = append(c.DeletedWebhooks, webhookID)
	return nil
}

// Snapshot helpers read recorded calls under the lock.

func (c *Client) ModAlertCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ModAlerts)
}

func (c *Client) DeletedIDs(channelID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Deleted[channelID]...)
}

func (c *Client) IssuedInfractions() []settings.InfractionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]settings.InfractionRequest(nil), c.Infractions...)
}
