package filters

import (
	"context"
	"fmt"
	"regexp"

	"filterbot/filtering/fctx"
	"filterbot/filtering/settings"
	"filterbot/model"
)

// TokenFilter matches a case insensitive regular expression against the content.
type TokenFilter struct {
	Base
	re *regexp.Regexp
}

func NewTokenFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (Filter, error) {
	base, err := NewBase("token", rec, defaults)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile("(?i)" + rec.Content)
	if err != nil {
		return nil, fmt.Errorf("token filter #%d has an invalid pattern: %w", rec.ID, err)
	}
	return &TokenFilter{Base: base, re: re}, nil
}

func (f *TokenFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	match := f.re.FindString(fc.Content)
	if match == "" && !f.re.MatchString(fc.Content) {
		return false
	}
	fc.AddMatches(match)
	return true
}
