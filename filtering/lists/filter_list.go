package lists

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"filterbot/filtering/alert"
	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/settings"
	"filterbot/model"
	"filterbot/tasks"
)

// Result is what a filter list decided for one event.
type Result struct {
	// Actions is nil when nothing should be done.
	Actions  *settings.ActionSettings
	Messages []string
	Triggers map[ListType][]filters.Filter
}

// FilterList holds the DENY and ALLOW lists of one filter type.
type FilterList interface {
	Name() string
	// Events are the events the list wants to see.
	Events() []fctx.Event
	ActionsFor(ctx context.Context, fc *fctx.FilterContext) (Result, error)

	// Load builds an atomic list from its record, replacing any list of the same type.
	Load(rec model.FilterListRecord) (*AtomicList, error)
	List(t ListType) (*AtomicList, bool)
	Lists() []*AtomicList
	AddFilter(t ListType, rec model.FilterRecord) (filters.Filter, error)
	RemoveFilter(id int64) (filters.Filter, bool)
	// ProcessInput normalises the content of a filter an admin is adding.
	ProcessInput(ctx context.Context, content string) (string, error)
}

// Deps are the collaborators filter lists are built with.
type Deps struct {
	Client     settings.Client
	Alerts     alert.Sink
	Scheduler  *tasks.Scheduler
	AlertDelay time.Duration
	// PasteURL is suggested to users whose code attachments were blocked.
	PasteURL      string
	MetaChannelID string
}

// Factory builds an empty filter list.
type Factory func(deps Deps) (FilterList, error)

// Registry maps list names to factories.
type Registry map[string]Factory

// NewRegistry returns every filter list type.
func NewRegistry() Registry {
	return Registry{
		"domain":    NewDomainList,
		"extension": NewExtensionList,
		"invite":    NewInviteList,
		"token":     NewTokenList,
		"unique":    NewUniqueList,
		"antispam":  NewAntispamList,
	}
}

func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type buildFunc func(rec model.FilterRecord, defaults *settings.Defaults) (filters.Filter, error)

// baseList implements the bookkeeping shared by every filter list.
type baseList struct {
	name        string
	build       buildFunc
	subscribing bool

	mu    sync.RWMutex
	lists map[ListType]*AtomicList
}

func newBaseList(name string, build buildFunc, subscribing bool) baseList {
	return baseList{name: name, build: build, subscribing: subscribing, lists: make(map[ListType]*AtomicList)}
}

func (b *baseList) Name() string { return b.name }

func (b *baseList) Load(rec model.FilterListRecord) (*AtomicList, error) {
	t, err := listTypeFromRecord(rec.ListType)
	if err != nil {
		return nil, fmt.Errorf("%s list #%d: %w", b.name, rec.ID, err)
	}
	actions, validations, err := settings.Create(rec.Settings, nil, true)
	if err != nil {
		return nil, fmt.Errorf("%s list #%d has malformed settings: %w", b.name, rec.ID, err)
	}
	list := NewAtomicList(rec.ID, b.name, t, &settings.Defaults{Actions: actions, Validations: validations}, b.subscribing)
	for _, frec := range rec.Filters {
		f, err := b.build(frec, list.Defaults)
		if err != nil {
			warnOnce(fmt.Sprintf("%s:%d", list.Label(), frec.ID), "Skipping filter #%d of %s: %v", frec.ID, list.Label(), err)
			continue
		}
		list.Add(f)
	}

	b.mu.Lock()
	b.lists[t] = list
	b.mu.Unlock()
	return list, nil
}

func (b *baseList) List(t ListType) (*AtomicList, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.lists[t]
	return l, ok
}

func (b *baseList) Lists() []*AtomicList {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*AtomicList
	for _, t := range []ListType{Deny, Allow} {
		if l, ok := b.lists[t]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (b *baseList) AddFilter(t ListType, rec model.FilterRecord) (filters.Filter, error) {
	list, ok := b.List(t)
	if !ok {
		return nil, fmt.Errorf("the %s list has no %s list", b.name, t)
	}
	f, err := b.build(rec, list.Defaults)
	if err != nil {
		return nil, err
	}
	list.Add(f)
	return f, nil
}

func (b *baseList) RemoveFilter(id int64) (filters.Filter, bool) {
	for _, l := range b.Lists() {
		if f, ok := l.Remove(id); ok {
			return f, true
		}
	}
	return nil, false
}

// listFilters returns the filters of one polarity, or nothing when the list is missing.
func (b *baseList) listFilters(ctx context.Context, t ListType, fc *fctx.FilterContext) (*AtomicList, []filters.Filter) {
	list, ok := b.List(t)
	if !ok {
		return nil, nil
	}
	return list, list.FilterListResult(ctx, fc)
}

// fixedBuild adapts a filter factory to a list that holds a single filter type.
func fixedBuild(factory filters.Factory, client settings.Client) buildFunc {
	return func(rec model.FilterRecord, defaults *settings.Defaults) (filters.Filter, error) {
		return factory(rec, defaults, client)
	}
}

// registryBuild picks the filter type from the content of the record.
func registryBuild(reg *filters.Registry, kind string, client settings.Client) buildFunc {
	return func(rec model.FilterRecord, defaults *settings.Defaults) (filters.Filter, error) {
		factory, ok := reg.Lookup(rec.Content)
		if !ok {
			return nil, fmt.Errorf("no %s filter named %q", kind, rec.Content)
		}
		return factory(rec, defaults, client)
	}
}

var (
	warnedMu sync.Mutex
	warned   = make(map[string]struct{})
)

// warnOnce logs a loading problem the first time it is seen for a key.
func warnOnce(key, format string, args ...any) {
	warnedMu.Lock()
	defer warnedMu.Unlock()
	if _, ok := warned[key]; ok {
		return
	}
	warned[key] = struct{}{}
	log.Printf("[Filtering] "+format, args...)
}

// WarnUnknownList logs, once, a stored list with no implementation.
func WarnUnknownList(name string) {
	warnOnce("list:"+name, "A filter list named %s was loaded from the database, but no matching implementation exists.", name)
}
