package settings

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"

	"filterbot/filtering/fctx"
)

// ActionSettings is a set of action entries keyed by entry name. Values are never mutated in place.
type ActionSettings struct {
	entries map[string]ActionEntry
}

// NewActionSettings builds settings from entries. A later entry of the same name replaces an earlier one.
func NewActionSettings(entries ...ActionEntry) *ActionSettings {
	s := &ActionSettings{entries: make(map[string]ActionEntry, len(entries))}
	for _, e := range entries {
		s.entries[e.Name()] = e
	}
	return s
}

func (s *ActionSettings) Get(name string) (ActionEntry, bool) {
	if s == nil {
		return nil, false
	}
	e, ok := s.entries[name]
	return e, ok
}

func (s *ActionSettings) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns the entries in execution order.
func (s *ActionSettings) Entries() []ActionEntry {
	if s == nil {
		return nil
	}
	out := make([]ActionEntry, 0, len(s.entries))
	for _, et := range entryTypes {
		if e, ok := s.entries[et.name]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Union merges two settings entry by entry. A nil side yields the other.
func (s *ActionSettings) Union(other *ActionSettings) (*ActionSettings, error) {
	if s == nil {
		return other, nil
	}
	if other == nil {
		return s, nil
	}
	result := &ActionSettings{entries: make(map[string]ActionEntry, len(s.entries)+len(other.entries))}
	for name, e := range s.entries {
		if o, ok := other.entries[name]; ok {
			merged, err := e.Union(o)
			if err != nil {
				return nil, fmt.Errorf("union of %s: %w", name, err)
			}
			result.entries[name] = merged
			continue
		}
		result.entries[name] = e
	}
	for name, o := range other.entries {
		if _, ok := result.entries[name]; !ok {
			result.entries[name] = o
		}
	}
	return result, nil
}

// FallbackTo fills entry kinds missing from s with those of fallback.
func (s *ActionSettings) FallbackTo(fallback *ActionSettings) *ActionSettings {
	result := &ActionSettings{entries: make(map[string]ActionEntry)}
	if s != nil {
		for name, e := range s.entries {
			result.entries[name] = e
		}
	}
	if fallback != nil {
		for name, e := range fallback.entries {
			if _, ok := result.entries[name]; !ok {
				result.entries[name] = e
			}
		}
	}
	return result
}

// Without returns a copy lacking the named entries.
func (s *ActionSettings) Without(names ...string) *ActionSettings {
	if s == nil {
		return nil
	}
	drop := toSet(names)
	result := &ActionSettings{entries: make(map[string]ActionEntry, len(s.entries))}
	for name, e := range s.entries {
		if _, ok := drop[name]; !ok {
			result.entries[name] = e
		}
	}
	return result
}

// Only returns a copy holding just the named entries.
func (s *ActionSettings) Only(names ...string) *ActionSettings {
	if s == nil {
		return nil
	}
	keep := toSet(names)
	result := &ActionSettings{entries: make(map[string]ActionEntry, len(names))}
	for name, e := range s.entries {
		if _, ok := keep[name]; ok {
			result.entries[name] = e
		}
	}
	return result
}

// With returns a copy where e replaces any entry of the same name.
func (s *ActionSettings) With(e ActionEntry) *ActionSettings {
	result := s.FallbackTo(nil)
	result.entries[e.Name()] = e
	return result
}

// Infraction returns the infraction entry, if any.
func (s *ActionSettings) Infraction() (InfractionAndNotification, bool) {
	e, ok := s.Get("infraction_and_notification")
	if !ok {
		return InfractionAndNotification{}, false
	}
	inf, ok := e.(InfractionAndNotification)
	return inf, ok
}

// RemovesContext reports whether the settings delete the offending content.
func (s *ActionSettings) RemovesContext() bool {
	e, ok := s.Get("remove_context")
	if !ok {
		return false
	}
	rc, ok := e.(RemoveContext)
	return ok && rc.RemoveContext
}

// Action runs every entry, then the additional actions queued on the context.
// A failing entry does not stop the rest.
func (s *ActionSettings) Action(ctx context.Context, fc *fctx.FilterContext, client Client) {
	for _, e := range s.Entries() {
		runGuarded(e.Name(), func() { e.Action(ctx, fc, client) })
	}
	for _, action := range fc.AdditionalActions() {
		runGuarded("additional action", func() { action(ctx, fc) })
	}
}

func runGuarded(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Filtering] Panic while running %s: %v\n%s", name, r, debug.Stack())
		}
	}()
	fn()
}

// Dump serialises the settings back to their stored form.
func (s *ActionSettings) Dump() map[string]any {
	out := make(map[string]any)
	for _, e := range s.Entries() {
		out[e.Name()] = e.Dump()
	}
	return out
}

// ValidationSettings is a set of validation entries keyed by entry name.
type ValidationSettings struct {
	entries map[string]ValidationEntry
}

func NewValidationSettings(entries ...ValidationEntry) *ValidationSettings {
	s := &ValidationSettings{entries: make(map[string]ValidationEntry, len(entries))}
	for _, e := range entries {
		s.entries[e.Name()] = e
	}
	return s
}

func (s *ValidationSettings) Get(name string) (ValidationEntry, bool) {
	if s == nil {
		return nil, false
	}
	e, ok := s.entries[name]
	return e, ok
}

func (s *ValidationSettings) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

func (s *ValidationSettings) Entries() []ValidationEntry {
	if s == nil {
		return nil
	}
	out := make([]ValidationEntry, 0, len(s.entries))
	for _, et := range entryTypes {
		if e, ok := s.entries[et.name]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Evaluate splits the entries into the names that passed and the names that failed.
func (s *ValidationSettings) Evaluate(fc *fctx.FilterContext) (passed, failed map[string]struct{}) {
	passed = make(map[string]struct{})
	failed = make(map[string]struct{})
	for _, e := range s.Entries() {
		if e.TriggersOn(fc) {
			passed[e.Name()] = struct{}{}
		} else {
			failed[e.Name()] = struct{}{}
		}
	}
	return passed, failed
}

func (s *ValidationSettings) Dump() map[string]any {
	out := make(map[string]any)
	for _, e := range s.Entries() {
		out[e.Name()] = e.Dump()
	}
	return out
}

// Defaults are the settings of an atomic list, used for any filter that does not override them.
type Defaults struct {
	Actions     *ActionSettings
	Validations *ValidationSettings
}

// Create builds action and validation settings from a stored settings mapping.
//
// Keys may be entry names (with an object value, or a scalar for single field
// entries) or field names of an entry. Nil values inherit from defaults. Unknown
// keys are logged once and ignored. Without keepEmpty, a mapping that sets
// nothing yields nil settings.
func Create(raw map[string]any, defaults *Defaults, keepEmpty bool) (*ActionSettings, *ValidationSettings, error) {
	grouped := make(map[string]map[string]any)
	for key, value := range raw {
		if et, ok := entryIndex[key]; ok {
			data := groupFor(grouped, key)
			if obj, isObj := value.(map[string]any); isObj {
				for k, v := range obj {
					data[k] = v
				}
				continue
			}
			if len(et.fields) != 1 || et.fields[0] != key {
				return nil, nil, fmt.Errorf("attempted to load a %s setting, but the data is malformed: %v", key, value)
			}
			data[key] = value
			continue
		}
		if owner, ok := fieldOwner[key]; ok {
			groupFor(grouped, owner)[key] = value
			continue
		}
		warnUnknownOnce(key)
	}

	var actions []ActionEntry
	var validations []ValidationEntry
	for _, et := range entryTypes {
		data, ok := grouped[et.name]
		if !ok {
			continue
		}
		if !keepEmpty && allNil(data) {
			continue
		}
		var defaultData map[string]any
		if defaults != nil {
			if et.action {
				if d, ok := defaults.Actions.Get(et.name); ok {
					defaultData = d.Dump()
				}
			} else if d, ok := defaults.Validations.Get(et.name); ok {
				defaultData = d.Dump()
			}
		}
		entry, err := et.build(data, defaultData)
		if err != nil {
			return nil, nil, err
		}
		switch e := entry.(type) {
		case ActionEntry:
			actions = append(actions, e)
		case ValidationEntry:
			validations = append(validations, e)
		}
	}

	var as *ActionSettings
	if len(actions) > 0 || keepEmpty {
		as = NewActionSettings(actions...)
	}
	var vs *ValidationSettings
	if len(validations) > 0 || keepEmpty {
		vs = NewValidationSettings(validations...)
	}
	return as, vs, nil
}

func groupFor(grouped map[string]map[string]any, name string) map[string]any {
	data, ok := grouped[name]
	if !ok {
		data = make(map[string]any)
		grouped[name] = data
	}
	return data
}

func allNil(data map[string]any) bool {
	for _, v := range data {
		if v != nil {
			return false
		}
	}
	return true
}
