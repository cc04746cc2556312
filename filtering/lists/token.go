package lists

import (
	"context"
	"fmt"
	"regexp"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
)

// TokenList blocks content matching denied patterns. Spoilers are expanded first
// so a token can't hide behind spoiler tags.
type TokenList struct {
	baseList
}

func NewTokenList(deps Deps) (FilterList, error) {
	return &TokenList{newBaseList("token", fixedBuild(filters.NewTokenFilter, deps.Client), false)}, nil
}

func (l *TokenList) Events() []fctx.Event {
	return []fctx.Event{fctx.Message, fctx.MessageEdit, fctx.Nickname, fctx.ThreadName, fctx.Snekbox}
}

func (l *TokenList) ActionsFor(ctx context.Context, fc *fctx.FilterContext) (Result, error) {
	text := filters.ExpandSpoilers(filters.CleanInput(fc.Content))
	list, triggered := l.listFilters(ctx, Deny, fc.Replace(fctx.WithContent(text)))
	if len(triggered) == 0 {
		return Result{}, nil
	}
	actions, err := list.MergeActions(triggered)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Actions:  actions,
		Messages: FormatMessages(triggered, false),
		Triggers: map[ListType][]filters.Filter{Deny: triggered},
	}, nil
}

func (l *TokenList) ProcessInput(_ context.Context, content string) (string, error) {
	if _, err := regexp.Compile("(?i)" + content); err != nil {
		return "", fmt.Errorf("`%s` is not a valid regular expression: %w", content, err)
	}
	return content, nil
}
