package filters

import (
	"context"
	"strings"

	"filterbot/filtering/fctx"
	"filterbot/filtering/settings"
	"filterbot/model"
)

// DomainExtra is the extra configuration of a domain filter.
type DomainExtra struct {
	// OnlySubdomains limits the filter to subdomains and paths of the domain, never the bare domain.
	OnlySubdomains bool `mapstructure:"only_subdomains"`
}

// DomainFilter matches urls on a domain and any of its subdomains.
type DomainFilter struct {
	Base
	Extra DomainExtra

	host string
	path string
}

func NewDomainFilter(rec model.FilterRecord, defaults *settings.Defaults, _ settings.Client) (Filter, error) {
	base, err := NewBase("domain", rec, defaults)
	if err != nil {
		return nil, err
	}
	f := &DomainFilter{Base: base, host: Host(rec.Content), path: Path(rec.Content)}
	if err := DecodeExtra("domain", rec, &f.Extra); err != nil {
		return nil, err
	}
	return f, nil
}

// TriggeredOn checks every url of the content set. The url must sit on the
// filtered host or one of its subdomains, under the same registered domain.
func (f *DomainFilter) TriggeredOn(_ context.Context, fc *fctx.FilterContext) bool {
	if f.host == "" {
		return false
	}
	for _, u := range fc.ContentSet {
		if f.matches(u) {
			fc.AddMatches(u)
			return true
		}
	}
	return false
}

func (f *DomainFilter) matches(u string) bool {
	host := Host(u)
	if host == "" {
		return false
	}
	sub := strings.HasSuffix(host, "."+f.host)
	if host != f.host && !sub {
		return false
	}
	if RegisteredDomain(host) != RegisteredDomain(f.host) {
		return false
	}
	path := Path(u)
	if f.path != "" && path != f.path && !strings.HasPrefix(path, f.path+"/") {
		return false
	}
	if f.Extra.OnlySubdomains {
		return sub || len(path) > len(f.path)
	}
	return true
}
