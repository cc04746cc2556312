package filters

import (
	"context"
	"fmt"
	"time"

	"filterbot/filtering/fctx"
	"filterbot/filtering/settings"
	"filterbot/model"
)

// Filter is one rule of a filter list.
type Filter interface {
	ID() int64
	// Name is the filter type, e.g. "token" or "burst".
	Name() string
	Content() string
	Description() string
	// Actions and Validations are the per-filter overrides, nil when the list defaults apply.
	Actions() *settings.ActionSettings
	Validations() *settings.ValidationSettings
	TriggeredOn(ctx context.Context, fc *fctx.FilterContext) bool
	// Key identifies the filter in per-event annotations.
	Key() string
	Record() model.FilterRecord
	String() string
}

// UniqueFilter runs at most once per event and only for the events it subscribes to.
type UniqueFilter interface {
	Filter
	Events() []fctx.Event
}

// Factory builds a filter from its stored record.
type Factory func(rec model.FilterRecord, defaults *settings.Defaults, client settings.Client) (Filter, error)

// Base carries the fields shared by every filter type.
type Base struct {
	id          int64
	name        string
	content     string
	description string
	actions     *settings.ActionSettings
	validations *settings.ValidationSettings
	record      model.FilterRecord
}

// NewBase parses the common part of a record. Settings override the list defaults.
func NewBase(name string, rec model.FilterRecord, defaults *settings.Defaults) (Base, error) {
	actions, validations, err := settings.Create(rec.Settings, defaults, false)
	if err != nil {
		return Base{}, fmt.Errorf("%s filter #%d: %w", name, rec.ID, err)
	}
	return Base{
		id:          rec.ID,
		name:        name,
		content:     rec.Content,
		description: rec.Description,
		actions:     actions,
		validations: validations,
		record:      rec,
	}, nil
}

func (b *Base) ID() int64                                 { return b.id }
func (b *Base) Name() string                              { return b.name }
func (b *Base) Content() string                           { return b.content }
func (b *Base) Description() string                       { return b.description }
func (b *Base) Actions() *settings.ActionSettings         { return b.actions }
func (b *Base) Validations() *settings.ValidationSettings { return b.validations }
func (b *Base) Key() string                               { return fmt.Sprintf("%s#%d", b.name, b.id) }
func (b *Base) Record() model.FilterRecord                { return b.record }
func (b *Base) UpdatedAt() time.Time                      { return b.record.UpdatedAt }

func (b *Base) String() string {
	s := fmt.Sprintf("%d. `%s`", b.id, b.content)
	if b.description != "" {
		s += " - " + b.description
	}
	return s
}

// DecodeExtra reads a filter's typed extra configuration into out. Out must
// already hold the defaults. Unknown keys and mistyped values are errors.
func DecodeExtra(name string, rec model.FilterRecord, out any) error {
	if len(rec.AdditionalField) == 0 {
		return nil
	}
	if _, err := settings.DecodeStrict(rec.AdditionalField, out); err != nil {
		return fmt.Errorf("%s filter #%d has malformed extra fields: %w", name, rec.ID, err)
	}
	return nil
}

// Registry maps filter type names to factories. Names must be unique.
type Registry struct {
	kind      string
	factories map[string]Factory
	order     []string
}

func NewRegistry(kind string) *Registry {
	return &Registry{kind: kind, factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("%s filter registered without a name", r.kind)
	}
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("%s filter %q registered twice", r.kind, name)
	}
	r.factories[name] = f
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Lookup(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
