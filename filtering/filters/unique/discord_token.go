package unique

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log"
	"regexp"
	"strings"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/settings"
	"filterbot/model"
)

const (
	// Token timestamps count from this epoch rather than the unix one.
	tokenEpoch = 1293840000
	// Nothing can be minted before Discord itself existed.
	discordEpoch = 1420070400
)

var tokenPattern = regexp.MustCompile(`([\w-]{10,})\.([\w-]{5,})\.([\w-]{10,})`)

const deletionDM = "I noticed you posted a seemingly valid Discord API token in your message and have removed your message. " +
	"This means that your token has been **compromised**. Please change your token **immediately** at: " +
	"<https://discord.com/developers/applications>\n\n" +
	"Feel free to re-post it with the token removed. If you believe this was a mistake, please let us know!"

// DiscordTokenExtra chooses who gets pinged, depending on whose token leaked.
type DiscordTokenExtra struct {
	PingsForBot  []string `mapstructure:"pings_for_bot"`
	PingsForUser []string `mapstructure:"pings_for_user"`
}

// DiscordTokenFilter catches bot and user tokens posted in chat.
type DiscordTokenFilter struct {
	filters.Base
	Extra  DiscordTokenExtra
	client settings.Client
}

type token struct {
	userID    string
	timestamp string
	hmac      string
}

func (t token) censored() string {
	return t.userID + "." + t.timestamp + "." + strings.Repeat("x", len(t.hmac))
}

func NewDiscordTokenFilter(rec model.FilterRecord, defaults *settings.Defaults, client settings.Client) (filters.Filter, error) {
	base, err := filters.NewBase("discord_token", rec, defaults)
	if err != nil {
		return nil, err
	}
	f := &DiscordTokenFilter{
		Base:   base,
		Extra:  DiscordTokenExtra{PingsForUser: []string{"Moderators"}},
		client: client,
	}
	if err := filters.DecodeExtra("discord_token", rec, &f.Extra); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *DiscordTokenFilter) Events() []fctx.Event {
	return []fctx.Event{fctx.Message, fctx.MessageEdit}
}

func (f *DiscordTokenFilter) TriggeredOn(ctx context.Context, fc *fctx.FilterContext) bool {
	tok, ok := findToken(fc.Content)
	if !ok {
		return false
	}
	userID, _ := decodeUserID(tok.userID)

	censored := tok.censored()
	fc.Redact(tok.userID+"."+tok.timestamp+"."+tok.hmac, censored)
	fc.AddMatches(censored)
	fc.SetDM(deletionDM, "")

	kind, pings := "user", f.Extra.PingsForUser
	if f.client != nil {
		if user, err := f.client.User(ctx, userID); err != nil {
			log.Printf("[Filtering] Could not resolve the owner of a leaked token (%s): %v", userID, err)
		} else if user.Bot {
			kind, pings = "bot", f.Extra.PingsForBot
		}
	}

	var mentions []string
	for _, p := range pings {
		mentions = append(mentions, settings.ResolveMention(p, f.client))
	}
	if len(mentions) > 0 {
		fc.PrependAlertContent(strings.Join(mentions, " "))
	}
	fc.AppendAlertContent(fmt.Sprintf(
		"Censored a seemingly valid token sent by <@%s>. Token was: `%s`\nThe token belongs to the %s <@%s>.",
		fc.AuthorID(), censored, kind, userID,
	))
	return true
}

// findToken returns the first match that passes every structural check.
func findToken(content string) (token, bool) {
	for _, m := range tokenPattern.FindAllStringSubmatch(content, -1) {
		t := token{userID: m[1], timestamp: m[2], hmac: m[3]}
		if _, ok := decodeUserID(t.userID); !ok {
			continue
		}
		if !validTimestamp(t.timestamp) || !validHMAC(t.hmac) {
			continue
		}
		return t, true
	}
	return token{}, false
}

func decodeBase64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// decodeUserID checks the first token part is a base64 encoded snowflake.
func decodeUserID(part string) (string, bool) {
	raw, err := decodeBase64(part)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	return string(raw), true
}

func validTimestamp(part string) bool {
	raw, err := decodeBase64(part)
	if err != nil || len(raw) == 0 || len(raw) > 8 {
		return false
	}
	buf := make([]byte, 8)
	copy(buf[8-len(raw):], raw)
	ts := binary.BigEndian.Uint64(buf)
	return ts+tokenEpoch >= discordEpoch
}

// validHMAC rejects runs of repeated characters, which are far more likely placeholders than real signatures.
func validHMAC(part string) bool {
	unique := make(map[rune]struct{})
	for _, r := range strings.ToLower(part) {
		unique[r] = struct{}{}
	}
	return len(unique) > 3
}
