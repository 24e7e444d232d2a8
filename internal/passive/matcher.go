package passive

import (
	"fmt"
	"regexp"
	"sort"
)

// Matcher accepts hostnames that are proper subdomains of one domain:
// at least one label in front, compared case-sensitively.
type Matcher struct {
	domain string
	re     *regexp.Regexp
}

func NewMatcher(domain string) (*Matcher, error) {
	if domain == "" {
		return nil, fmt.Errorf("matcher: empty domain")
	}
	re, err := regexp.Compile(`^[a-zA-Z0-9.-]+\.` + regexp.QuoteMeta(domain) + `$`)
	if err != nil {
		return nil, fmt.Errorf("matcher: compile pattern for %s: %w", domain, err)
	}
	return &Matcher{domain: domain, re: re}, nil
}

func (m *Matcher) Domain() string { return m.domain }

func (m *Matcher) Match(hostname string) bool {
	return m.re.MatchString(hostname)
}

func (m *Matcher) Collect(records []Record) SubdomainSet {
	set := NewSubdomainSet()
	for _, r := range records {
		if m.Match(r.Hostname) {
			set.Add(r.Hostname)
		}
	}
	return set
}

type SubdomainSet map[string]struct{}

func NewSubdomainSet() SubdomainSet {
	return make(SubdomainSet)
}

func (s SubdomainSet) Add(host string) bool {
	if _, ok := s[host]; ok {
		return false
	}
	s[host] = struct{}{}
	return true
}

func (s SubdomainSet) Has(host string) bool {
	_, ok := s[host]
	return ok
}

func (s SubdomainSet) Len() int { return len(s) }

func (s SubdomainSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Retain drops every member not in keep.
func (s SubdomainSet) Retain(keep []string) {
	k := make(map[string]struct{}, len(keep))
	for _, h := range keep {
		k[h] = struct{}{}
	}
	for h := range s {
		if _, ok := k[h]; !ok {
			delete(s, h)
		}
	}
}
