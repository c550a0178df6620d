// Package ipctest provides a configurable ipc.API for transport tests.
package ipctest

import (
	"context"
	"sync"

	"github.com/rpggio/browserhost/internal/domain/download"
	"github.com/rpggio/browserhost/internal/domain/profile"
	"github.com/rpggio/browserhost/internal/domain/session"
	"github.com/rpggio/browserhost/internal/domain/settings"
	"github.com/rpggio/browserhost/internal/domain/shortcut"
	"github.com/rpggio/browserhost/internal/host"
	"github.com/rpggio/browserhost/internal/updater"
)

// API is an in-memory ipc.API. Zero value is ready to use; set Err to make
// fallible methods fail.
type API struct {
	mu sync.Mutex

	Err       error
	Launch    host.LaunchState
	Profiles  []profile.Profile
	Active    string
	Current   settings.Settings
	Storage   map[string]string
	Bindings  map[shortcut.Action][]string
	Accessed  []string
	Woken     []string
	Closed    []string
	Enabled   bool
	Selected  string
	Controls  []download.Action
	Argv      [][]string
}

func (a *API) LaunchState() host.LaunchState { return a.Launch }

func (a *API) ListProfiles(ctx context.Context) host.ProfileList {
	a.mu.Lock()
	defer a.mu.Unlock()
	return host.ProfileList{Profiles: append([]profile.Profile(nil), a.Profiles...), Active: a.Active}
}

func (a *API) CreateProfile(ctx context.Context, name, avatar string) (*profile.Profile, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	p := profile.Profile{ID: "p" + name, Name: name, Avatar: avatar}
	a.Profiles = append(a.Profiles, p)
	return &p, nil
}

func (a *API) DeleteProfile(ctx context.Context, id string) error { return a.Err }

func (a *API) RenameProfile(ctx context.Context, id, name string) (*profile.Profile, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	return &profile.Profile{ID: id, Name: name}, nil
}

func (a *API) SelectProfile(ctx context.Context, id string, alwaysOpen bool) error {
	if a.Err != nil {
		return a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Selected = id
	return nil
}

func (a *API) DownloadControl(id string, action download.Action) error {
	if a.Err != nil {
		return a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Controls = append(a.Controls, action)
	return nil
}

func (a *API) SaveAs(url, path string) error  { return a.Err }
func (a *API) ListDownloads() []download.Item { return []download.Item{} }

func (a *API) DownloadHistory(ctx context.Context) ([]download.Record, error) {
	return []download.Record{}, a.Err
}

func (a *API) UpdateAdblockerSettings(ctx context.Context) (settings.Settings, error) {
	return a.Current, a.Err
}

func (a *API) RefreshFilterLists(ctx context.Context) (int, error) { return 42, a.Err }

func (a *API) GetExtensionStorage(ctx context.Context, key string) (*string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.Storage[key]
	if !ok {
		return nil, a.Err
	}
	return &v, a.Err
}

func (a *API) SetExtensionStorage(ctx context.Context, key string, value *string) error {
	if a.Err != nil {
		return a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Storage == nil {
		a.Storage = map[string]string{}
	}
	if value == nil {
		delete(a.Storage, key)
	} else {
		a.Storage[key] = *value
	}
	return nil
}

func (a *API) TabAccessed(tabID string) { a.record(&a.Accessed, tabID) }
func (a *API) WakeTab(tabID string)     { a.record(&a.Woken, tabID) }
func (a *API) TabClosed(tabID string)   { a.record(&a.Closed, tabID) }

func (a *API) record(dst *[]string, v string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	*dst = append(*dst, v)
}

func (a *API) KeyEvent(tabID string, ev shortcut.KeyEvent) (shortcut.Action, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for action, accels := range a.Bindings {
		for _, accel := range accels {
			b, err := shortcut.ParseBinding(accel, false)
			if err == nil && b.Matches(ev) {
				return action, true
			}
		}
	}
	return "", false
}

func (a *API) SetShortcutsEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Enabled = enabled
}

func (a *API) Shortcuts() map[shortcut.Action][]string { return a.Bindings }

func (a *API) Settings() settings.Settings { return a.Current }

func (a *API) SaveSettings(ctx context.Context, s settings.Settings) (settings.Settings, error) {
	if a.Err != nil {
		return settings.Settings{}, a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Current = s
	return s, nil
}

func (a *API) Sessions() []session.Info {
	return []session.Info{{Key: "persist:default", Blocking: true}}
}

func (a *API) OpenTab(ctx context.Context, partition session.PartitionKey, url string) (string, error) {
	if a.Err != nil {
		return "", a.Err
	}
	return "tab-1", nil
}

func (a *API) InstallUpdate() (*updater.Release, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	return &updater.Release{Version: "1.2.0"}, nil
}

func (a *API) HandleSecondInstance(argv []string) error {
	if a.Err != nil {
		return a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Argv = append(a.Argv, argv)
	return nil
}
