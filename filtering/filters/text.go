package filters

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/purell"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	URLPattern     = regexp.MustCompile(`(?i)https?://[^\s<>]+`)
	spoilerPattern = regexp.MustCompile(`(?s)\|\|(.+?)\|\|`)
)

const urlFlags = purell.FlagLowercaseScheme | purell.FlagLowercaseHost | purell.FlagRemoveDefaultPort |
	purell.FlagDecodeUnnecessaryEscapes | purell.FlagRemoveDotSegments | purell.FlagRemoveDuplicateSlashes

// ExtractURLs returns the distinct normalised urls in text, lower cased and without a trailing slash.
func ExtractURLs(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, raw := range URLPattern.FindAllString(text, -1) {
		raw = trimURL(raw)
		normalized, err := purell.NormalizeURLString(raw, urlFlags)
		if err != nil {
			normalized = raw
		}
		normalized = strings.TrimSuffix(strings.ToLower(normalized), "/")
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func trimURL(raw string) string {
	raw = strings.TrimRight(raw, `"'.,;:!?*_~`)
	if strings.HasSuffix(raw, ")") && !strings.Contains(raw, "(") {
		raw = strings.TrimRight(raw, ")")
	}
	return raw
}

// Host returns the lower cased host of a url or bare domain.
func Host(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(u.Hostname(), ".")
}

// Path returns the path of a url or bare domain, without the leading slash.
func Path(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.Trim(u.Path, "/")
}

// RegisteredDomain is the eTLD+1 of a host, or the host itself when it has none.
func RegisteredDomain(host string) string {
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// CleanInput strips combining marks and invisible characters, which are used to dodge filters.
func CleanInput(s string) string {
	// Chained transformers hold state, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(runes.Predicate(isInvisible)), norm.NFC)
	cleaned, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return cleaned
}

func isInvisible(r rune) bool {
	switch {
	case r == '\u00ad', r == '\u034f', r == '\u061c', r == '\u115f', r == '\u1160', r == '\u17b4', r == '\u17b5',
		r == '\u180e', r == '\u3164', r == '\uffa0', r == '\ufeff':
		return true
	case r >= '\u200b' && r <= '\u200f', r >= '\u202a' && r <= '\u202e', r >= '\u2060' && r <= '\u206f':
		return true
	}
	return false
}

// ExpandSpoilers returns the text in every reading of its spoiler tags: without
// the hidden parts, the hidden parts alone, and with the markers removed.
func ExpandSpoilers(text string) string {
	if !spoilerPattern.MatchString(text) {
		return text
	}
	without := spoilerPattern.ReplaceAllString(text, "")
	var hidden []string
	for _, m := range spoilerPattern.FindAllStringSubmatch(text, -1) {
		hidden = append(hidden, m[1])
	}
	unmarked := strings.ReplaceAll(text, "||", "")
	return strings.Join([]string{without, strings.Join(hidden, "\n"), unmarked}, "\n")
}
