package fctx

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

func TestEventTitle(t *testing.T) {
	require.Equal(t, "Message Edit", MessageEdit.Title())
	require.Equal(t, "Thread Name", ThreadName.Title())
	require.Equal(t, "Snekbox", Snekbox.Title())
}

func TestParseEvent(t *testing.T) {
	e, err := ParseEvent("nickname")
	require.NoError(t, err)
	require.Equal(t, Nickname, e)

	_, err = ParseEvent("reaction")
	require.Error(t, err)
}

func TestInGuild(t *testing.T) {
	author := &discordgo.User{ID: "1"}

	guild := New(Message, author, nil, &discordgo.Channel{ID: "c", GuildID: "g"}, "")
	require.True(t, guild.InGuild())

	dm := New(Message, author, nil, &discordgo.Channel{ID: "c", Type: discordgo.ChannelTypeDM}, "")
	require.False(t, dm.InGuild())

	nick := New(Nickname, author, &discordgo.Member{User: author}, nil, "nick")
	require.True(t, nick.InGuild())
}

func TestReplaceSharesAccumulators(t *testing.T) {
	msg := &discordgo.Message{ID: "m", Content: "hello", Author: &discordgo.User{ID: "1"}}
	fc := FromMessage(Message, msg, nil, &discordgo.Channel{ID: "c", GuildID: "g"}, nil)

	derived := fc.Replace(WithContentSet([]string{"a.com"}), WithContent(""))
	derived.AddMatches("a.com")
	derived.SetNotificationDomain("a.com")
	derived.RequestAlert()

	require.Equal(t, "hello", fc.Content)
	require.Nil(t, fc.ContentSet)
	require.Equal(t, []string{"a.com"}, fc.Matches())
	require.Equal(t, "a.com", fc.NotificationDomain())
	require.True(t, fc.SendAlert())
	require.True(t, derived.InGuild())
}

func TestRelatedMessagesDeduplicated(t *testing.T) {
	fc := New(Message, &discordgo.User{ID: "1"}, nil, nil, "")
	m1 := &discordgo.Message{ID: "1"}
	m2 := &discordgo.Message{ID: "2"}

	fc.AddRelatedMessages(m1, m2, m1)
	require.Len(t, fc.RelatedMessages(), 2)

	fc.DiscardRelatedMessages()
	require.Empty(t, fc.RelatedMessages())
}

func TestNotificationDomainFirstWins(t *testing.T) {
	fc := New(Message, &discordgo.User{ID: "1"}, nil, nil, "")
	fc.SetNotificationDomain("first.com")
	fc.SetNotificationDomain("second.com")
	require.Equal(t, "first.com", fc.NotificationDomain())
}

func TestRedactedContent(t *testing.T) {
	fc := New(Message, &discordgo.User{ID: "1"}, nil, nil, "token abc.def.ghi here")
	require.Equal(t, "token abc.def.ghi here", fc.RedactedContent())

	fc.Redact("abc.def.ghi", "abc.def.xxx")
	require.Equal(t, "token abc.def.xxx here", fc.RedactedContent())
	require.Equal(t, "token abc.def.ghi here", fc.Content)
}
