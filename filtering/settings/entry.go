package settings

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"filterbot/filtering/fctx"
	"filterbot/utils"

	"github.com/go-viper/mapstructure/v2"
)

// Entry is one typed unit of policy.
type Entry interface {
	Name() string
	// Overrides lists the fields that were explicitly set rather than inherited.
	Overrides() []string
	Dump() map[string]any
}

// ValidationEntry decides whether a rule applies to a context. It must not have side effects.
type ValidationEntry interface {
	Entry
	TriggersOn(fc *fctx.FilterContext) bool
}

// ActionEntry performs a side effect and merges with entries of the same kind.
type ActionEntry interface {
	Entry
	Action(ctx context.Context, fc *fctx.FilterContext, client Client)
	// Union combines two entries of the same type. Mixing types is an error.
	Union(other ActionEntry) (ActionEntry, error)
}

type meta struct {
	overrides []string
}

func (m meta) Overrides() []string {
	return append([]string(nil), m.overrides...)
}

func mergeOverrides(a, b meta) meta {
	seen := make(map[string]struct{}, len(a.overrides)+len(b.overrides))
	var out []string
	for _, list := range [][]string{a.overrides, b.overrides} {
		for _, o := range list {
			if _, ok := seen[o]; ok {
				continue
			}
			seen[o] = struct{}{}
			out = append(out, o)
		}
	}
	sort.Strings(out)
	return meta{overrides: out}
}

func unionMismatch(a Entry, b Entry) error {
	return fmt.Errorf("cannot union %s with %T", a.Name(), b)
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook reads durations given as seconds or as duration strings such as "10m" or "7d".
func durationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case string:
		if v == "" {
			return time.Duration(0), nil
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		d, err := utils.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", v, err)
		}
		return d, nil
	}
	return data, nil
}

// DecodeStrict decodes raw config into out, rejecting unknown keys and mistyped values.
func DecodeStrict(raw map[string]any, out any) (*mapstructure.Metadata, error) {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		Metadata:    &md,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			durationHook,
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return &md, nil
}

// decodeEntry overlays data on the defaults and decodes the result. Nil values inherit the default.
func decodeEntry[T any](name string, data, defaults map[string]any) (T, meta, error) {
	var out T
	merged := make(map[string]any, len(defaults)+len(data))
	for k, v := range defaults {
		merged[k] = v
	}
	var overrides []string
	for k, v := range data {
		if v == nil {
			continue
		}
		merged[k] = v
		overrides = append(overrides, k)
	}
	sort.Strings(overrides)

	if _, err := DecodeStrict(merged, &out); err != nil {
		return out, meta{}, fmt.Errorf("attempted to load a %s setting, but the data is malformed: %w", name, err)
	}
	return out, meta{overrides: overrides}, nil
}

type entryType struct {
	name   string
	action bool
	fields []string
	build  func(data, defaults map[string]any) (Entry, error)
}

// entryTypes is the static entry registry. Action entries run in this order.
var entryTypes = []entryType{
	{name: "remove_context", action: true, fields: fieldsOf(RemoveContext{}), build: buildRemoveContext},
	{name: "infraction_and_notification", action: true, fields: fieldsOf(InfractionAndNotification{}), build: buildInfraction},
	{name: "ping", action: true, fields: fieldsOf(Ping{}), build: buildPing},
	{name: "send_alert", action: true, fields: fieldsOf(SendAlert{}), build: buildSendAlert},
	{name: "bypass_roles", fields: fieldsOf(BypassRoles{}), build: buildBypassRoles},
	{name: "channel_scope", fields: fieldsOf(ChannelScope{}), build: buildChannelScope},
	{name: "enabled", fields: fieldsOf(Enabled{}), build: buildEnabled},
	{name: "filter_dm", fields: fieldsOf(FilterDM{}), build: buildFilterDM},
}

func fieldsOf(v any) []string {
	t := reflect.TypeOf(v)
	var fields []string
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("mapstructure")
		if tag == "" {
			continue
		}
		fields = append(fields, strings.Split(tag, ",")[0])
	}
	return fields
}

var (
	entryIndex map[string]*entryType
	fieldOwner map[string]string
)

func init() {
	entryIndex = make(map[string]*entryType, len(entryTypes))
	fieldOwner = make(map[string]string)
	for i := range entryTypes {
		et := &entryTypes[i]
		entryIndex[et.name] = et
		for _, f := range et.fields {
			fieldOwner[f] = et.name
		}
	}
}

// ValidateRegistry checks entry names and field names are unique across entry types.
func ValidateRegistry() error {
	names := make(map[string]struct{}, len(entryTypes))
	owners := make(map[string]string)
	for _, et := range entryTypes {
		if _, dup := names[et.name]; dup {
			return fmt.Errorf("duplicate settings entry name %q", et.name)
		}
		names[et.name] = struct{}{}
		if len(et.fields) == 0 {
			return fmt.Errorf("settings entry %q declares no fields", et.name)
		}
		for _, f := range et.fields {
			if owner, dup := owners[f]; dup {
				return fmt.Errorf("settings field %q is declared by both %q and %q", f, owner, et.name)
			}
			owners[f] = et.name
		}
	}
	for _, et := range entryTypes {
		if owner, ok := owners[et.name]; ok && owner != et.name {
			return fmt.Errorf("settings entry name %q collides with a field of %q", et.name, owner)
		}
	}
	return nil
}

var (
	warnedMu sync.Mutex
	warned   = make(map[string]struct{})
)

func warnUnknownOnce(key string) {
	warnedMu.Lock()
	defer warnedMu.Unlock()
	if _, ok := warned[key]; ok {
		return
	}
	warned[key] = struct{}{}
	log.Printf("[Filtering] A setting named %s was loaded from the database, but no matching entry exists.", key)
}
