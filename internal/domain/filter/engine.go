// Package filter implements the content-filtering engine shared by every
// content session, and the cache that loads, fetches and persists it.
package filter

import (
	"bufio"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Request describes one network request to check.
type Request struct {
	URL       string       `json:"url"`
	SourceURL string       `json:"source_url,omitempty"`
	Type      ResourceType `json:"type,omitempty"`
}

// Decision is the result of checking a request.
type Decision struct {
	Blocked   bool   `json:"blocked"`
	Filter    string `json:"filter,omitempty"`
	Exception string `json:"exception,omitempty"`
}

// Engine is a compiled set of network filters. It is safe for concurrent
// use; AddRules may run while other goroutines call Check.
type Engine struct {
	mu       sync.RWMutex
	lines    []string
	block    ruleSet
	allow    ruleSet
	docAllow ruleSet
}

// New compiles an engine from filter list texts.
func New(lists ...string) *Engine {
	e := &Engine{}
	for _, list := range lists {
		sc := bufio.NewScanner(strings.NewReader(list))
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			e.add(sc.Text())
		}
	}
	return e
}

// AddRules compiles and appends rules to the live engine, returning how many
// were accepted. Adding the same rule twice stores it twice.
func (e *Engine) AddRules(rules []string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, line := range rules {
		if e.add(line) {
			n++
		}
	}
	return n
}

// Len returns the number of compiled rules.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.lines)
}

// Rules returns the source lines of every compiled rule in insertion order.
func (e *Engine) Rules() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.lines))
	copy(out, e.lines)
	return out
}

func (e *Engine) add(line string) bool {
	r, ok := parseRule(line)
	if !ok {
		return false
	}
	e.lines = append(e.lines, r.raw)
	switch {
	case r.isDocumentException():
		e.docAllow.add(r)
		if len(r.types) > 1 {
			e.allow.add(r)
		}
	case r.exception:
		e.allow.add(r)
	default:
		e.block.add(r)
	}
	return true
}

// Check decides whether req should be blocked. Page-level exceptions for the
// source document win over everything, then request exceptions override
// blocking filters.
func (e *Engine) Check(req Request) Decision {
	e.mu.RLock()
	defer e.mu.RUnlock()

	u := strings.ToLower(req.URL)
	src := strings.ToLower(req.SourceURL)
	if src == "" {
		src = u
	}
	typ := req.Type
	if typ == "" {
		typ = TypeOther
	}
	srcHost := hostOf(src)

	page := matchContext{url: src, host: srcHost, srcHost: srcHost, typ: TypeDocument, thirdParty: false}
	if r := e.docAllow.find(page); r != nil {
		return Decision{Exception: r.raw}
	}

	host := hostOf(u)
	mc := matchContext{
		url:        u,
		host:       host,
		srcHost:    srcHost,
		typ:        typ,
		thirdParty: site(host) != site(srcHost),
	}
	blocked := e.block.find(mc)
	if blocked == nil {
		return Decision{}
	}
	if r := e.allow.find(mc); r != nil {
		return Decision{Exception: r.raw}
	}
	return Decision{Blocked: true, Filter: blocked.raw}
}

type matchContext struct {
	url        string
	host       string
	srcHost    string
	typ        ResourceType
	thirdParty bool
}

// ruleSet indexes host-anchored rules by their literal domain.
type ruleSet struct {
	byHost  map[string][]*rule
	generic []*rule
}

func (s *ruleSet) add(r *rule) {
	if r.hostKey == "" {
		s.generic = append(s.generic, r)
		return
	}
	if s.byHost == nil {
		s.byHost = make(map[string][]*rule)
	}
	s.byHost[r.hostKey] = append(s.byHost[r.hostKey], r)
}

func (s *ruleSet) find(mc matchContext) *rule {
	if len(s.byHost) > 0 {
		for h := mc.host; h != ""; {
			for _, r := range s.byHost[h] {
				if r.applies(mc) {
					return r
				}
			}
			i := strings.IndexByte(h, '.')
			if i < 0 {
				break
			}
			h = h[i+1:]
		}
	}
	for _, r := range s.generic {
		if r.applies(mc) {
			return r
		}
	}
	return nil
}

func (r *rule) applies(mc matchContext) bool {
	if len(r.types) > 0 {
		if !r.types[mc.typ] {
			return false
		}
	} else if mc.typ == TypeDocument && !r.exception {
		// Untyped blocking filters never block top-level pages.
		return false
	}
	if r.excludeTypes[mc.typ] {
		return false
	}
	switch r.party {
	case firstParty:
		if mc.thirdParty {
			return false
		}
	case thirdParty:
		if !mc.thirdParty {
			return false
		}
	}
	if len(r.domains) > 0 && !matchesAnyDomain(mc.srcHost, r.domains) {
		return false
	}
	if matchesAnyDomain(mc.srcHost, r.notDomains) {
		return false
	}
	if r.pattern == "" {
		return true
	}
	return r.matchURL(mc.url)
}

func matchesAnyDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func hostOf(u string) string {
	start, end := hostBounds(u)
	if start < 0 {
		return ""
	}
	return strings.TrimSuffix(u[start:end], ".")
}

// site returns the registrable domain used for first/third-party checks.
func site(host string) string {
	if host == "" {
		return ""
	}
	s, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return s
}
