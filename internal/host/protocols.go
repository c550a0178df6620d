package host

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// protocolRegistry records the URL schemes the host handles. Launch and
// second-instance URLs with any other scheme are ignored.
type protocolRegistry struct {
	mu      sync.RWMutex
	schemes map[string]struct{}
}

func newProtocolRegistry() *protocolRegistry {
	return &protocolRegistry{schemes: make(map[string]struct{})}
}

func (r *protocolRegistry) RegisterProtocols(schemes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		s = strings.ToLower(strings.TrimSpace(s))
		if !validScheme(s) {
			return fmt.Errorf("invalid scheme %q", s)
		}
		r.schemes[s] = struct{}{}
	}
	return nil
}

// Handles reports whether raw has a registered scheme.
func (r *protocolRegistry) Handles(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemes[strings.ToLower(u.Scheme)]
	return ok
}

func validScheme(s string) bool {
	if s == "" || !(s[0] >= 'a' && s[0] <= 'z') {
		return false
	}
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return true
}
