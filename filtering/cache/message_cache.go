package cache

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const triggerTTL = 24 * time.Hour

// MessageCache is a bounded ring of recent messages in arrival order, plus a
// record of which filters triggered on each message.
type MessageCache struct {
	mu     sync.RWMutex
	items  []*discordgo.Message
	start  int
	size   int
	maxlen int

	triggers *expirable.LRU[string, map[string][]int64]
}

func New(maxlen int) *MessageCache {
	if maxlen <= 0 {
		maxlen = 1
	}
	return &MessageCache{
		items:    make([]*discordgo.Message, maxlen),
		maxlen:   maxlen,
		triggers: expirable.NewLRU[string, map[string][]int64](maxlen, nil, triggerTTL),
	}
}

// Append adds a message, evicting the oldest one when full.
func (c *MessageCache) Append(msg *discordgo.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.size < c.maxlen {
		c.items[(c.start+c.size)%c.maxlen] = msg
		c.size++
		return
	}
	c.items[c.start] = msg
	c.start = (c.start + 1) % c.maxlen
}

// Update replaces a cached message with its edited version, keeping its position.
func (c *MessageCache) Update(msg *discordgo.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.size; i++ {
		idx := (c.start + i) % c.maxlen
		if c.items[idx].ID == msg.ID {
			c.items[idx] = msg
			return true
		}
	}
	return false
}

func (c *MessageCache) Get(id string) (*discordgo.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := c.size - 1; i >= 0; i-- {
		m := c.items[(c.start+i)%c.maxlen]
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// Newest returns a snapshot of the cached messages, newest first.
func (c *MessageCache) Newest() []*discordgo.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*discordgo.Message, 0, c.size)
	for i := c.size - 1; i >= 0; i-- {
		out = append(out, c.items[(c.start+i)%c.maxlen])
	}
	return out
}

func (c *MessageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

func (c *MessageCache) TriggeredFilters(messageID, list string) ([]int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byList, ok := c.triggers.Get(messageID)
	if !ok {
		return nil, false
	}
	ids, ok := byList[list]
	return append([]int64(nil), ids...), ok
}

func (c *MessageCache) SetTriggeredFilters(messageID, list string, filterIDs []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byList, ok := c.triggers.Get(messageID)
	if !ok {
		byList = make(map[string][]int64)
	}
	byList[list] = append([]int64(nil), filterIDs...)
	c.triggers.Add(messageID, byList)
}
