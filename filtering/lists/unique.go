package lists

import (
	"context"
	"fmt"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/filters/unique"
)

// UniqueList runs each unique filter at most once, on the events it subscribes to.
type UniqueList struct {
	baseList
	registry *filters.Registry
}

func NewUniqueList(deps Deps) (FilterList, error) {
	reg, err := unique.NewRegistry()
	if err != nil {
		return nil, err
	}
	return &UniqueList{
		baseList: newBaseList("unique", registryBuild(reg, "unique", deps.Client), true),
		registry: reg,
	}, nil
}

func (l *UniqueList) Events() []fctx.Event {
	list, ok := l.List(Deny)
	if !ok {
		return nil
	}
	return list.Events()
}

func (l *UniqueList) ActionsFor(ctx context.Context, fc *fctx.FilterContext) (Result, error) {
	list, triggered := l.listFilters(ctx, Deny, fc)
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

func (l *UniqueList) ProcessInput(_ context.Context, content string) (string, error) {
	if _, ok := l.registry.Lookup(content); !ok {
		return "", fmt.Errorf("there is no unique filter named %q, pick one of %v", content, l.registry.Names())
	}
	return content, nil
}
