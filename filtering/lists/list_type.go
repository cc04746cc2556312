package lists

import (
	"fmt"
	"strings"
)

// ListType is the polarity of an atomic list.
type ListType int

const (
	Deny ListType = iota
	Allow
)

var listTypeAliases = map[string]ListType{
	"deny":      Deny,
	"denylist":  Deny,
	"denied":    Deny,
	"blacklist": Deny,
	"black":     Deny,
	"bl":        Deny,
	"dl":        Deny,
	"allow":     Allow,
	"allowlist": Allow,
	"allowed":   Allow,
	"whitelist": Allow,
	"white":     Allow,
	"wl":        Allow,
	"al":        Allow,
}

func (t ListType) String() string {
	if t == Allow {
		return "ALLOW"
	}
	return "DENY"
}

// ParseListType accepts the names and aliases admins use in commands.
func ParseListType(s string) (ListType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if t, ok := listTypeAliases[key]; ok {
		return t, nil
	}
	return Deny, fmt.Errorf("%q is not a valid list type", s)
}

func listTypeFromRecord(v int) (ListType, error) {
	switch ListType(v) {
	case Deny, Allow:
		return ListType(v), nil
	}
	return Deny, fmt.Errorf("unknown list type %d", v)
}
