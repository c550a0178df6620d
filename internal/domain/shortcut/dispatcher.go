package shortcut

import (
	"sync"

	"go.uber.org/zap"
)

// Action is a command a key binding triggers.
type Action string

const (
	ActionCommandPalette Action = "commandPalette"
	ActionQuickSearch    Action = "quickSearch"
	ActionTabOverview    Action = "tabOverview"

	ActionDevTools  Action = "devtools"
	ActionReload    Action = "reload"
	ActionFind      Action = "find"
	ActionZoomIn    Action = "zoomIn"
	ActionZoomOut   Action = "zoomOut"
	ActionZoomReset Action = "zoomReset"
)

// Remappable lists the user-configurable actions in match order.
var Remappable = []Action{ActionCommandPalette, ActionQuickSearch, ActionTabOverview}

// DefaultKeybinds are used for remappable actions without a user binding.
var DefaultKeybinds = map[Action]string{
	ActionCommandPalette: "CommandOrControl+K",
	ActionQuickSearch:    "CommandOrControl+Alt+K",
	ActionTabOverview:    "CommandOrControl+Shift+O",
}

var fixedBindings = []struct {
	action Action
	keys   []string
}{
	{ActionDevTools, []string{"F12", "CommandOrControl+Shift+I"}},
	{ActionReload, []string{"CommandOrControl+R", "F5"}},
	{ActionFind, []string{"CommandOrControl+F"}},
	{ActionZoomIn, []string{"CommandOrControl+=", "CommandOrControl+Shift+=", "CommandOrControl+Plus"}},
	{ActionZoomOut, []string{"CommandOrControl+-"}},
	{ActionZoomReset, []string{"CommandOrControl+0"}},
}

// Event returns the notification the action is delivered as.
func (a Action) Event() string {
	switch a {
	case ActionCommandPalette:
		return "trigger-command-palette"
	case ActionQuickSearch:
		return "trigger-quick-search"
	case ActionTabOverview:
		return "toggle-tab-overview"
	default:
		return "shortcut"
	}
}

// Fixed reports whether the action cannot be remapped or suspended.
func (a Action) Fixed() bool {
	for _, r := range Remappable {
		if r == a {
			return false
		}
	}
	return true
}

type entry struct {
	action  Action
	binding Binding
}

// Dispatcher resolves key events against the remappable bindings first and
// the fixed browser bindings second. Bindings are parsed once when loaded.
type Dispatcher struct {
	mac    bool
	logger *zap.Logger

	mu         sync.RWMutex
	remappable []entry
	fixed      []entry
	enabled    bool
}

// NewDispatcher creates a dispatcher for the platform ("darwin" is macOS)
// with the user's keybinds.
func NewDispatcher(platform string, keybinds map[string]string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		mac:     platform == "darwin",
		logger:  logger,
		enabled: true,
	}
	for _, fb := range fixedBindings {
		for _, k := range fb.keys {
			b, err := ParseBinding(k, d.mac)
			if err != nil {
				panic(err)
			}
			d.fixed = append(d.fixed, entry{action: fb.action, binding: b})
		}
	}
	d.Reload(keybinds)
	return d
}

// Reload replaces the remappable bindings. Unparseable or missing bindings
// fall back to the defaults.
func (d *Dispatcher) Reload(keybinds map[string]string) {
	entries := make([]entry, 0, len(Remappable))
	for _, a := range Remappable {
		raw, ok := keybinds[string(a)]
		if !ok || raw == "" {
			raw = DefaultKeybinds[a]
		}
		b, err := ParseBinding(raw, d.mac)
		if err != nil {
			d.logger.Warn("invalid keybind, using default",
				zap.String("action", string(a)), zap.String("binding", raw), zap.Error(err))
			b, _ = ParseBinding(DefaultKeybinds[a], d.mac)
		}
		entries = append(entries, entry{action: a, binding: b})
	}

	d.mu.Lock()
	d.remappable = entries
	d.mu.Unlock()
}

// SetEnabled suspends or restores every remappable binding at once.
func (d *Dispatcher) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Enabled reports whether remappable bindings are active.
func (d *Dispatcher) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// Resolve returns the action for a key-down event. A match means the event's
// default handling should be suppressed.
func (d *Dispatcher) Resolve(ev KeyEvent) (Action, bool) {
	if ev.Type != "" && ev.Type != "keyDown" && ev.Type != "rawKeyDown" {
		return "", false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.enabled {
		for _, e := range d.remappable {
			if e.binding.Matches(ev) {
				return e.action, true
			}
		}
	}
	for _, e := range d.fixed {
		if e.binding.Matches(ev) {
			return e.action, true
		}
	}
	return "", false
}

// Bindings returns the effective binding string for every action.
func (d *Dispatcher) Bindings() map[Action][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[Action][]string, len(d.remappable)+len(fixedBindings))
	for _, e := range d.remappable {
		out[e.action] = append(out[e.action], e.binding.Raw)
	}
	for _, e := range d.fixed {
		out[e.action] = append(out[e.action], e.binding.Raw)
	}
	return out
}
