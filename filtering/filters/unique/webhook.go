package unique

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
	"filterbot/filtering/settings"
	"filterbot/model"
)

var webhookURL = regexp.MustCompile(`(?i)((?:https?://)?(?:ptb\.|canary\.)?discord(?:app)?\.com/api/webhooks/(\d+)/)(\S+)`)

// WebhookFilter catches leaked webhook urls and deletes the webhook.
type WebhookFilter struct {
	filters.Base
	client settings.Client
}

func NewWebhookFilter(rec model.FilterRecord, defaults *settings.Defaults, client settings.Client) (filters.Filter, error) {
	base, err := filters.NewBase("webhook", rec, defaults)
	if err != nil {
		return nil, err
	}
	return &WebhookFilter{Base: base, client: client}, nil
}

func (f *WebhookFilter) Events() []fctx.Event {
	return []fctx.Event{fctx.Message, fctx.MessageEdit, fctx.Snekbox}
}

func (f *WebhookFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	found := webhookURL.FindAllStringSubmatch(fc.Content, -1)
	if len(found) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(found))
	var unique [][]string
	for _, m := range found {
		if _, ok := seen[m[0]]; ok {
			continue
		}
		seen[m[0]] = struct{}{}
		unique = append(unique, m)
	}

	for i, m := range unique {
		suffix := ""
		if len(unique) > 1 {
			suffix = fmt.Sprintf(" (%d)", i+1)
		}
		id, token := m[2], strings.TrimSuffix(m[3], "/")
		fc.AddAdditionalAction(f.deleteWebhook(id, token, suffix))
		fc.Redact(m[0], m[1]+"xxx")
	}
	return true
}

func (f *WebhookFilter) deleteWebhook(id, token, suffix string) fctx.AdditionalAction {
	return func(ctx context.Context, fc *fctx.FilterContext) {
		if f.client == nil {
			fc.AddActionDescription("failed to delete webhook" + suffix)
			return
		}
		if err := f.client.DeleteWebhook(ctx, id, token); err != nil {
			log.Printf("[Filtering] Failed to delete leaked webhook %s: %v", id, err)
			fc.AddActionDescription("failed to delete webhook" + suffix)
			return
		}
		fc.AddActionDescription("webhook deleted" + suffix)
	}
}
