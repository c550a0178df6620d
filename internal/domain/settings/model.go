package settings

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Settings is the user-editable settings blob shared by the host components.
type Settings struct {
	Keybinds         map[string]string `json:"keybinds" yaml:"keybinds"`
	AdBlockEnabled   bool              `json:"ad_block_enabled" yaml:"ad_block_enabled"`
	AdBlockWhitelist []string          `json:"ad_block_whitelist" yaml:"ad_block_whitelist"`
	TabSleepEnabled  bool              `json:"tab_sleep_enabled" yaml:"tab_sleep_enabled"`
	FreezeMinutes    int               `json:"freeze_minutes" yaml:"freeze_minutes"`
}

// DefaultFreezeMinutes is the idle time after which a tab is put to sleep.
const DefaultFreezeMinutes = 5

// Defaults returns the settings used when nothing has been persisted yet.
func Defaults() Settings {
	return Settings{
		Keybinds:        map[string]string{},
		AdBlockEnabled:  true,
		TabSleepEnabled: true,
		FreezeMinutes:   DefaultFreezeMinutes,
	}
}

// SleepThreshold returns the idle duration before a tab is slept, or zero when
// tab sleeping is turned off.
func (s Settings) SleepThreshold() time.Duration {
	if !s.TabSleepEnabled {
		return 0
	}
	minutes := s.FreezeMinutes
	if minutes <= 0 {
		minutes = DefaultFreezeMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Whitelist returns the normalized, de-duplicated whitelist domains.
func (s Settings) Whitelist() []string {
	seen := make(map[string]struct{}, len(s.AdBlockWhitelist))
	out := make([]string, 0, len(s.AdBlockWhitelist))
	for _, d := range s.AdBlockWhitelist {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "www.")
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.Keybinds = maps.Clone(s.Keybinds)
	if out.Keybinds == nil {
		out.Keybinds = map[string]string{}
	}
	out.AdBlockWhitelist = slices.Clone(s.AdBlockWhitelist)
	return out
}

// Equal reports whether two settings blobs are identical.
func (s Settings) Equal(o Settings) bool {
	return s.AdBlockEnabled == o.AdBlockEnabled &&
		s.TabSleepEnabled == o.TabSleepEnabled &&
		s.FreezeMinutes == o.FreezeMinutes &&
		maps.Equal(s.Keybinds, o.Keybinds) &&
		slices.Equal(s.AdBlockWhitelist, o.AdBlockWhitelist)
}
