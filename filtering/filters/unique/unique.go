// Package unique holds filters that run at most once per event and subscribe
// to the events they care about. A filter's content is its type name.
package unique

import (
	"fmt"

	"filterbot/filtering/filters"
)

// NewRegistry returns the registry of every unique filter type.
func NewRegistry() (*filters.Registry, error) {
	r := filters.NewRegistry("unique")
	for _, t := range []struct {
		name    string
		factory filters.Factory
	}{
		{"discord_token", NewDiscordTokenFilter},
		{"everyone", NewEveryoneFilter},
		{"rich_embed", NewRichEmbedFilter},
		{"webhook", NewWebhookFilter},
	} {
		if err := r.Register(t.name, t.factory); err != nil {
			return nil, fmt.Errorf("failed to register unique filters: %w", err)
		}
	}
	return r, nil
}
