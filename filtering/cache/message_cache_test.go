package cache

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

func ids(msgs []*discordgo.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestRingEvictsOldest(t *testing.T) {
	c := New(3)
	for _, id := range []string{"1", "2", "3", "4"} {
		c.Append(&discordgo.Message{ID: id})
	}
	require.Equal(t, 3, c.Len())
	require.Equal(t, []string{"4", "3", "2"}, ids(c.Newest()))

	_, ok := c.Get("1")
	require.False(t, ok)
}

func TestUpdateKeepsPosition(t *testing.T) {
	c := New(5)
	c.Append(&discordgo.Message{ID: "1", Content: "a"})
	c.Append(&discordgo.Message{ID: "2", Content: "b"})

	require.True(t, c.Update(&discordgo.Message{ID: "1", Content: "edited"}))
	require.False(t, c.Update(&discordgo.Message{ID: "9"}))

	m, ok := c.Get("1")
	require.True(t, ok)
	require.Equal(t, "edited", m.Content)
	require.Equal(t, []string{"2", "1"}, ids(c.Newest()))
}

func TestTriggeredFilters(t *testing.T) {
	c := New(5)
	_, ok := c.TriggeredFilters("m", "token DENY")
	require.False(t, ok)

	c.SetTriggeredFilters("m", "token DENY", []int64{1, 2})
	c.SetTriggeredFilters("m", "domain DENY", nil)

	got, ok := c.TriggeredFilters("m", "token DENY")
	require.True(t, ok)
	require.Equal(t, []int64{1, 2}, got)

	got, ok = c.TriggeredFilters("m", "domain DENY")
	require.True(t, ok)
	require.Empty(t, got)
}
