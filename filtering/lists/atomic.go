package lists

import (
	"context"
	"fmt"
	"sync"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/settings"
)

// AtomicList is one polarity of a filter list: its defaults and its filters.
type AtomicList struct {
	ID       int64
	Name     string
	Type     ListType
	Defaults *settings.Defaults

	// subscribing lists only consider filters subscribed to the current event.
	subscribing bool

	mu            sync.RWMutex
	filters       map[int64]filters.Filter
	order         []int64
	subscriptions map[fctx.Event][]int64
}

func NewAtomicList(id int64, name string, t ListType, defaults *settings.Defaults, subscribing bool) *AtomicList {
	if defaults == nil {
		defaults = &settings.Defaults{}
	}
	return &AtomicList{
		ID:            id,
		Name:          name,
		Type:          t,
		Defaults:      defaults,
		subscribing:   subscribing,
		filters:       make(map[int64]filters.Filter),
		subscriptions: make(map[fctx.Event][]int64),
	}
}

// Label identifies the list in logs and in the message cache trigger records.
func (l *AtomicList) Label() string {
	return fmt.Sprintf("%s %s", l.Name, l.Type)
}

// Add inserts or replaces a filter. A replaced filter keeps its position.
func (l *AtomicList) Add(f filters.Filter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.filters[f.ID()]; exists {
		l.unsubscribe(f.ID())
	} else {
		l.order = append(l.order, f.ID())
	}
	l.filters[f.ID()] = f
	if u, ok := f.(filters.UniqueFilter); ok && l.subscribing {
		for _, e := range u.Events() {
			l.subscriptions[e] = append(l.subscriptions[e], f.ID())
		}
	}
}

func (l *AtomicList) Remove(id int64) (filters.Filter, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.filters[id]
	if !ok {
		return nil, false
	}
	delete(l.filters, id)
	l.unsubscribe(id)
	for i, fid := range l.order {
		if fid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return f, true
}

func (l *AtomicList) unsubscribe(id int64) {
	for e, ids := range l.subscriptions {
		kept := ids[:0]
		for _, fid := range ids {
			if fid != id {
				kept = append(kept, fid)
			}
		}
		l.subscriptions[e] = kept
	}
}

func (l *AtomicList) Get(id int64) (filters.Filter, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.filters[id]
	return f, ok
}

// Filters returns the filters in insertion order.
func (l *AtomicList) Filters() []filters.Filter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]filters.Filter, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.filters[id])
	}
	return out
}

func (l *AtomicList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.filters)
}

// Subscribed returns the filters subscribed to an event, in insertion order.
func (l *AtomicList) Subscribed(event fctx.Event) []filters.Filter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make(map[int64]struct{}, len(l.subscriptions[event]))
	for _, id := range l.subscriptions[event] {
		ids[id] = struct{}{}
	}
	var out []filters.Filter
	for _, id := range l.order {
		if _, ok := ids[id]; ok {
			out = append(out, l.filters[id])
		}
	}
	return out
}

// Events returns every event at least one filter subscribes to.
func (l *AtomicList) Events() []fctx.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []fctx.Event
	for _, e := range fctx.Events {
		if len(l.subscriptions[e]) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// DefaultsRelevant reports whether the list's default validations pass in the context.
func (l *AtomicList) DefaultsRelevant(fc *fctx.FilterContext) bool {
	_, failed := l.Defaults.Validations.Evaluate(fc)
	return len(failed) == 0
}

// FilterListResult returns the filters of the list that trigger on the context.
//
// A filter without validation overrides is considered only when the list
// defaults pass. A filter with overrides is considered when none of them fail
// and every default that failed is one it overrides and passes. On a DENY list,
// a message edit does not re-trigger filters that already triggered on an
// earlier version of the message.
func (l *AtomicList) FilterListResult(ctx context.Context, fc *fctx.FilterContext) []filters.Filter {
	candidates := l.Filters()
	if l.subscribing {
		candidates = l.Subscribed(fc.Event)
	}
	_, failedByDefault := l.Defaults.Validations.Evaluate(fc)

	var triggered []filters.Filter
	for _, f := range candidates {
		if !considered(f, fc, failedByDefault) {
			continue
		}
		if f.TriggeredOn(ctx, fc) {
			triggered = append(triggered, f)
		}
	}
	return l.suppressEdits(fc, triggered)
}

func considered(f filters.Filter, fc *fctx.FilterContext, failedByDefault map[string]struct{}) bool {
	overrides := f.Validations()
	if overrides.Len() == 0 {
		return len(failedByDefault) == 0
	}
	passed, failed := overrides.Evaluate(fc)
	if len(failed) > 0 {
		return false
	}
	for name := range failedByDefault {
		if _, ok := passed[name]; !ok {
			return false
		}
	}
	return true
}

func (l *AtomicList) suppressEdits(fc *fctx.FilterContext, triggered []filters.Filter) []filters.Filter {
	if l.Type != Deny || fc.Message == nil || fc.Cache == nil {
		return triggered
	}
	if fc.Event != fctx.Message && fc.Event != fctx.MessageEdit {
		return triggered
	}
	ids := make([]int64, 0, len(triggered))
	for _, f := range triggered {
		ids = append(ids, f.ID())
	}
	previous, cached := fc.Cache.TriggeredFilters(fc.Message.ID, l.Label())
	fc.Cache.SetTriggeredFilters(fc.Message.ID, l.Label(), ids)
	if fc.Event != fctx.MessageEdit || !cached {
		return triggered
	}

	seen := make(map[int64]struct{}, len(previous))
	for _, id := range previous {
		seen[id] = struct{}{}
	}
	var fresh []filters.Filter
	for _, f := range triggered {
		if _, ok := seen[f.ID()]; !ok {
			fresh = append(fresh, f)
		}
	}
	return fresh
}

// MergeActions combines the actions of the triggered filters. Filters without
// overrides contribute the list defaults, and entries no filter sets fall back
// to the defaults. It returns nil when nothing triggered.
func (l *AtomicList) MergeActions(triggered []filters.Filter) (*settings.ActionSettings, error) {
	if len(triggered) == 0 {
		return nil, nil
	}
	overridden := false
	for _, f := range triggered {
		if f.Actions().Len() > 0 {
			overridden = true
			break
		}
	}
	if !overridden {
		return l.Defaults.Actions, nil
	}

	var merged *settings.ActionSettings
	for _, f := range triggered {
		actions := f.Actions()
		if actions.Len() == 0 {
			actions = l.Defaults.Actions
		}
		var err error
		if merged, err = merged.Union(actions); err != nil {
			return nil, fmt.Errorf("failed to merge actions of %s: %w", l.Label(), err)
		}
	}
	return merged.FallbackTo(l.Defaults.Actions), nil
}

// FormatMessages describes the triggered filters for an alert. With expandSingle,
// a lone filter is shown with its description.
func FormatMessages(triggered []filters.Filter, expandSingle bool) []string {
	if len(triggered) == 1 && expandSingle {
		f := triggered[0]
		msg := fmt.Sprintf("#%d (`%s`)", f.ID(), f.Content())
		if f.Description() != "" {
			msg += " - " + f.Description()
		}
		return []string{msg}
	}
	out := make([]string, 0, len(triggered))
	for _, f := range triggered {
		out = append(out, fmt.Sprintf("#%d (`%s`)", f.ID(), f.Content()))
	}
	return out
}
