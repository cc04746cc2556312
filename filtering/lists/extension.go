package lists

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"filterbot/filtering/fctx"
	"filterbot/filtering/filters"
)

// Discord turns long messages into these, so blocking them gets its own hint.
var textLikeExtensions = map[string]struct{}{".txt": {}, ".csv": {}, ".json": {}}

// ExtensionList only allows attachments whose extension is on the ALLOW list.
type ExtensionList struct {
	baseList
	pasteURL      string
	metaChannelID string
}

func NewExtensionList(deps Deps) (FilterList, error) {
	return &ExtensionList{
		baseList:      newBaseList("extension", fixedBuild(filters.NewExtensionFilter, deps.Client), false),
		pasteURL:      deps.PasteURL,
		metaChannelID: deps.MetaChannelID,
	}, nil
}

func (l *ExtensionList) Events() []fctx.Event {
	return []fctx.Event{fctx.Message, fctx.Snekbox}
}

func (l *ExtensionList) ActionsFor(ctx context.Context, fc *fctx.FilterContext) (Result, error) {
	if fc.Message == nil || len(fc.Attachments) == 0 {
		return Result{}, nil
	}
	list, ok := l.List(Allow)
	if !ok || !list.DefaultsRelevant(fc) {
		return Result{}, nil
	}

	var exts []string
	seen := make(map[string]struct{})
	for _, a := range fc.Attachments {
		ext := strings.ToLower(path.Ext(a.Filename))
		if _, dup := seen[ext]; dup {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}

	allowed := make(map[string]struct{})
	triggered := list.FilterListResult(ctx, fc.Replace(fctx.WithContentSet(exts)))
	for _, f := range triggered {
		allowed[f.(*filters.ExtensionFilter).Extension()] = struct{}{}
	}

	var blocked []string
	for _, ext := range exts {
		if _, ok := allowed[ext]; ok {
			continue
		}
		// Sandbox output always comes with text files.
		if _, textLike := textLikeExtensions[ext]; textLike && fc.Event == fctx.Snekbox {
			continue
		}
		blocked = append(blocked, ext)
	}
	if len(blocked) == 0 {
		return Result{Triggers: map[ListType][]filters.Filter{Allow: triggered}}, nil
	}

	fc.SetDM("", l.guidance(list, blocked))
	fc.AddMatches(blocked...)
	fc.AddBlockedExts(blocked...)

	messages := make([]string, 0, len(blocked))
	for _, ext := range blocked {
		if ext == "" {
			messages = append(messages, "`No Extension`")
			continue
		}
		messages = append(messages, "`"+ext+"`")
	}
	res := Result{Messages: messages, Triggers: map[ListType][]filters.Filter{Allow: triggered}}
	// Blocked sandbox files are reported back to the caller instead of acted on.
	if fc.Event != fctx.Snekbox {
		res.Actions = list.Defaults.Actions
	}
	return res, nil
}

// guidance explains to the user why their attachment was removed.
func (l *ExtensionList) guidance(list *AtomicList, blocked []string) string {
	for _, ext := range blocked {
		if ext == ".py" {
			return "It looks like you tried to attach a Python file - please use a code-pasting service such as " + l.pasteURL
		}
	}
	for _, ext := range blocked {
		if _, ok := textLikeExtensions[ext]; ok {
			return fmt.Sprintf("You either uploaded a `%s` file or entered a message that was too long. "+
				"Please use our [paste bin](%s) instead.", ext, l.pasteURL)
		}
	}
	var whitelist []string
	for _, f := range list.Filters() {
		whitelist = append(whitelist, f.(*filters.ExtensionFilter).Extension())
	}
	sort.Strings(whitelist)
	meta := "the meta channel"
	if l.metaChannelID != "" {
		meta = "<#" + l.metaChannelID + ">"
	}
	return fmt.Sprintf("It looks like you tried to attach file type(s) that we do not allow (%s). "+
		"We currently allow the following file types: **%s**.\n\n"+
		"Feel free to ask in %s if you think this is a mistake.",
		strings.Join(blocked, ", "), strings.Join(whitelist, ", "), meta)
}

func (l *ExtensionList) ProcessInput(_ context.Context, content string) (string, error) {
	ext := filters.NormalizeExtension(content)
	if ext == "." || strings.ContainsAny(ext[1:], "./\\ ") {
		return "", fmt.Errorf("`%s` is not a file extension", content)
	}
	return ext, nil
}
