package settings

import (
	"fmt"
	"strings"
)

// Infraction is a moderation action type. Lower values are more severe.
type Infraction int

const (
	Ban Infraction = iota + 1
	Kick
	Timeout
	VoiceMute
	Superstar
	Warning
	Watch
	Note
	None
)

var infractionNames = map[Infraction]string{
	Ban:       "BAN",
	Kick:      "KICK",
	Timeout:   "TIMEOUT",
	VoiceMute: "VOICE_MUTE",
	Superstar: "SUPERSTAR",
	Warning:   "WARNING",
	Watch:     "WATCH",
	Note:      "NOTE",
	None:      "NONE",
}

var passiveForms = map[Infraction]string{
	Ban:       "banned",
	Kick:      "kicked",
	Timeout:   "timed out",
	VoiceMute: "voice muted",
	Superstar: "superstarred",
	Warning:   "warned",
	Watch:     "watch",
	Note:      "noted",
	None:      "",
}

func (i Infraction) String() string {
	if name, ok := infractionNames[i.normalized()]; ok {
		return name
	}
	return fmt.Sprintf("Infraction(%d)", int(i))
}

// Passive is the form used in action descriptions, e.g. "banned".
func (i Infraction) Passive() string {
	return passiveForms[i.normalized()]
}

// Severity orders infractions; lower is more severe. The zero value ranks as None.
func (i Infraction) Severity() int {
	return int(i.normalized())
}

func (i Infraction) normalized() Infraction {
	if i < Ban || i > None {
		return None
	}
	return i
}

// ParseInfraction accepts the upper or lower case name, with spaces or underscores.
func ParseInfraction(s string) (Infraction, error) {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
	if key == "" {
		return None, nil
	}
	for inf, name := range infractionNames {
		if name == key {
			return inf, nil
		}
	}
	return None, fmt.Errorf("unknown infraction type %q", s)
}

func (i Infraction) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Infraction) UnmarshalText(text []byte) error {
	parsed, err := ParseInfraction(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
