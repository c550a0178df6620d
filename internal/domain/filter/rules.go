package filter

import (
	"strings"
)

// ResourceType classifies a network request for type-restricted rules.
type ResourceType string

const (
	TypeDocument    ResourceType = "document"
	TypeSubdocument ResourceType = "subdocument"
	TypeScript      ResourceType = "script"
	TypeImage       ResourceType = "image"
	TypeStylesheet  ResourceType = "stylesheet"
	TypeXHR         ResourceType = "xmlhttprequest"
	TypeFont        ResourceType = "font"
	TypeMedia       ResourceType = "media"
	TypeWebSocket   ResourceType = "websocket"
	TypePing        ResourceType = "ping"
	TypeOther       ResourceType = "other"
)

var typeOptions = map[string]ResourceType{
	"document":       TypeDocument,
	"doc":            TypeDocument,
	"subdocument":    TypeSubdocument,
	"frame":          TypeSubdocument,
	"script":         TypeScript,
	"image":          TypeImage,
	"stylesheet":     TypeStylesheet,
	"css":            TypeStylesheet,
	"xmlhttprequest": TypeXHR,
	"xhr":            TypeXHR,
	"font":           TypeFont,
	"media":          TypeMedia,
	"websocket":      TypeWebSocket,
	"ping":           TypePing,
	"other":          TypeOther,
}

type party int

const (
	anyParty party = iota
	firstParty
	thirdParty
)

// rule is one compiled network filter.
type rule struct {
	raw       string
	exception bool

	hostAnchor  bool
	startAnchor bool
	endAnchor   bool
	pattern     string
	// hostKey is the literal domain after "||" used for indexing, if any.
	hostKey string

	types        map[ResourceType]bool
	excludeTypes map[ResourceType]bool
	party        party
	domains      []string
	notDomains   []string
}

// isDocumentException reports whether the rule disables blocking for whole
// pages rather than single requests.
func (r *rule) isDocumentException() bool {
	return r.exception && r.types[TypeDocument]
}

// parseRule compiles one list line. Comments, cosmetic filters and rules with
// options the engine does not understand are skipped.
func parseRule(line string) (*rule, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "!") || strings.HasPrefix(line, "[") {
		return nil, false
	}
	if strings.Contains(line, "##") || strings.Contains(line, "#@#") || strings.Contains(line, "#?#") || strings.Contains(line, "#$#") {
		return nil, false
	}

	r := &rule{raw: line}
	body := line
	if strings.HasPrefix(body, "@@") {
		r.exception = true
		body = body[2:]
	}

	if i := strings.LastIndex(body, "$"); i >= 0 && !strings.HasPrefix(body[i:], "$/") {
		if !r.parseOptions(body[i+1:]) {
			return nil, false
		}
		body = body[:i]
	}

	switch {
	case strings.HasPrefix(body, "||"):
		r.hostAnchor = true
		body = body[2:]
	case strings.HasPrefix(body, "|"):
		r.startAnchor = true
		body = body[1:]
	}
	if strings.HasSuffix(body, "|") {
		r.endAnchor = true
		body = body[:len(body)-1]
	}
	// Regular-expression filters are not supported.
	if len(body) > 1 && strings.HasPrefix(body, "/") && strings.HasSuffix(body, "/") {
		return nil, false
	}

	r.pattern = strings.ToLower(body)
	if r.pattern == "" && len(r.domains) == 0 {
		return nil, false
	}
	if r.hostAnchor {
		// Only a domain followed by a separator is a complete host.
		if i := strings.IndexAny(r.pattern, "^/*|:?"); i > 0 && r.pattern[i] != '*' && r.pattern[i] != '|' {
			r.hostKey = r.pattern[:i]
		}
	}
	return r, true
}

func (r *rule) parseOptions(opts string) bool {
	for _, opt := range strings.Split(opts, ",") {
		opt = strings.ToLower(strings.TrimSpace(opt))
		if opt == "" {
			continue
		}
		negated := strings.HasPrefix(opt, "~")
		name := strings.TrimPrefix(opt, "~")

		switch {
		case name == "third-party" || name == "3p":
			if negated {
				r.party = firstParty
			} else {
				r.party = thirdParty
			}
		case name == "first-party" || name == "1p":
			if negated {
				r.party = thirdParty
			} else {
				r.party = firstParty
			}
		case strings.HasPrefix(name, "domain="):
			for _, d := range strings.Split(strings.TrimPrefix(name, "domain="), "|") {
				d = strings.TrimSpace(d)
				switch {
				case d == "" || d == "~":
				case strings.HasPrefix(d, "~"):
					r.notDomains = append(r.notDomains, d[1:])
				default:
					r.domains = append(r.domains, d)
				}
			}
		case name == "important":
		default:
			t, ok := typeOptions[name]
			if !ok {
				return false
			}
			if negated {
				if r.excludeTypes == nil {
					r.excludeTypes = map[ResourceType]bool{}
				}
				r.excludeTypes[t] = true
			} else {
				if r.types == nil {
					r.types = map[ResourceType]bool{}
				}
				r.types[t] = true
			}
		}
	}
	return true
}

// matchURL reports whether the rule's pattern matches a lower-cased URL.
func (r *rule) matchURL(u string) bool {
	switch {
	case r.hostAnchor:
		start, end := hostBounds(u)
		if start < 0 {
			return false
		}
		for i := start; i < end; i++ {
			if i != start && u[i-1] != '.' {
				continue
			}
			if glob(r.pattern, u[i:], r.endAnchor) {
				return true
			}
		}
		return false
	case r.startAnchor:
		return glob(r.pattern, u, r.endAnchor)
	default:
		return glob("*"+r.pattern, u, r.endAnchor)
	}
}

// glob matches p against a prefix of s (all of s when anchorEnd). '*' matches
// any run of characters and '^' matches one separator character or the end.
func glob(p, s string, anchorEnd bool) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			for len(p) > 0 && p[0] == '*' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if glob(p, s[i:], anchorEnd) {
					return true
				}
			}
			return false
		case '^':
			if len(s) == 0 {
				p = p[1:]
				continue
			}
			if !isSeparator(s[0]) {
				return false
			}
			p, s = p[1:], s[1:]
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
			p, s = p[1:], s[1:]
		}
	}
	return !anchorEnd || len(s) == 0
}

func isSeparator(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return false
	case c == '_' || c == '-' || c == '.' || c == '%':
		return false
	}
	return true
}

// hostBounds returns the byte range of the host in u, or -1 when u has no
// authority section.
func hostBounds(u string) (int, int) {
	i := strings.Index(u, "://")
	if i < 0 {
		return -1, -1
	}
	start := i + 3
	if at := strings.IndexByte(u[start:], '@'); at >= 0 {
		if slash := strings.IndexAny(u[start:], "/?#"); slash < 0 || at < slash {
			start += at + 1
		}
	}
	end := len(u)
	if j := strings.IndexAny(u[start:], "/?#:"); j >= 0 {
		end = start + j
	}
	return start, end
}

// ExceptionRules returns the rules that whitelist every page on the given
// domains.
func ExceptionRules(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		out = append(out, "@@||"+d+"^$document")
	}
	return out
}
