package filters

import (
	"context"
	"fmt"
	"strings"

	"filterbot/filtering/fctx"
	"filterbot/filtering/settings"
	"filterbot/model"
)

// ExtensionFilter matches a file extension, given with or without the leading dot.
type ExtensionFilter struct {
	Base
	ext string
}

func NewExtensionFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (Filter, error) {
	base, err := NewBase("extension", rec, defaults)
	if err != nil {
		return nil, err
	}
	ext := NormalizeExtension(rec.Content)
	if ext == "." {
		return nil, fmt.Errorf("extension filter #%d has an empty extension", rec.ID)
	}
	return &ExtensionFilter{Base: base, ext: ext}, nil
}

func (f *ExtensionFilter) Extension() string { return f.ext }

func (f *ExtensionFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	for _, ext := range fc.ContentSet {
		if ext == f.ext {
			return true
		}
	}
	return false
}

// NormalizeExtension lower cases an extension and makes sure it starts with a dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
