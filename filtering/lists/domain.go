package lists

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
)

var domainInput = regexp.MustCompile(`(?i)^(?:https?://)?(\S+?)[\\/]*$`)

// DomainList blocks links to denied domains.
type DomainList struct {
	baseList
}

func NewDomainList(deps Deps) (FilterList, error) {
	return &DomainList{newBaseList("domain", fixedBuild(filters.NewDomainFilter, deps.Client), false)}, nil
}

func (l *DomainList) Events() []fctx.Event {
	return []fctx.Event{fctx.Message, fctx.MessageEdit, fctx.Snekbox}
}

func (l *DomainList) ActionsFor(ctx context.Context, fc *fctx.FilterContext) (Result, error) {
	urls := filters.ExtractURLs(fc.Content)
	if len(urls) == 0 {
		return Result{}, nil
	}
	list, triggered := l.listFilters(ctx, Deny, fc.Replace(fctx.WithContentSet(urls)))
	if len(triggered) == 0 {
		return Result{}, nil
	}
	actions, err := list.MergeActions(triggered)
	if err != nil {
		return Result{}, err
	}
	fc.SetNotificationDomain(notificationDomain(list, triggered))
	return Result{
		Actions:  actions,
		Messages: FormatMessages(triggered, false),
		Triggers: map[ListType][]filters.Filter{Deny: triggered},
	}, nil
}

// notificationDomain is the domain named to the user. Only a filter that
// deletes the message may name its domain, so silent watch rules stay hidden
// unless nothing else triggered.
func notificationDomain(list *AtomicList, triggered []filters.Filter) string {
	for _, f := range triggered {
		if f.Actions().FallbackTo(list.Defaults.Actions).RemovesContext() {
			return f.Content()
		}
	}
	return triggered[0].Content()
}

func (l *DomainList) ProcessInput(_ context.Context, content string) (string, error) {
	m := domainInput.FindStringSubmatch(strings.TrimSpace(content))
	if m == nil || m[1] == "" {
		return "", fmt.Errorf("`%s` is not a URL", content)
	}
	return strings.ToLower(m[1]), nil
}
