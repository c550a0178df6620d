package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpggio/browserhost/internal/domain/download"
	"github.com/rpggio/browserhost/internal/domain/profile"
	"github.com/rpggio/browserhost/internal/domain/session"
	"github.com/rpggio/browserhost/internal/domain/settings"
	"github.com/rpggio/browserhost/internal/domain/shortcut"
	"github.com/rpggio/browserhost/internal/launch"
	"github.com/rpggio/browserhost/internal/repository"
	"github.com/rpggio/browserhost/internal/updater"
	"go.uber.org/zap"
)

// Notification names published by the host itself.
const (
	EventOpenURL = "open-url"
)

var (
	// ErrRestartUnavailable indicates a profile switch without a restarter.
	ErrRestartUnavailable = errors.New("restart unavailable")
	// ErrLaunchMismatch indicates a second launch that needs a storage root
	// other than this process's, so it has to run as its own host.
	ErrLaunchMismatch = errors.New("launch needs its own host")
)

// OpenURL asks the presentation layer to open a tab.
type OpenURL struct {
	URL       string               `json:"url"`
	Partition session.PartitionKey `json:"partition,omitempty"`
	Source    string               `json:"source"`
}

// ShortcutFired is the payload of a triggered key binding.
type ShortcutFired struct {
	Action shortcut.Action `json:"action"`
	TabID  string          `json:"tab_id,omitempty"`
}

// LaunchState describes how this process was started.
type LaunchState struct {
	Decision    profile.Decision     `json:"decision"`
	Partition   session.PartitionKey `json:"partition"`
	StorageRoot string               `json:"storage_root"`
	URLs        []string             `json:"urls"`
}

// ProfileList is the profile picker's view of the registry.
type ProfileList struct {
	Profiles []profile.Profile `json:"profiles"`
	Active   string            `json:"active,omitempty"`
}

// LaunchState returns the launch decision and the URLs to open first.
func (a *App) LaunchState() LaunchState {
	urls := make([]string, 0, len(a.args.URLs))
	for _, u := range a.args.URLs {
		if a.protocols.Handles(u) {
			urls = append(urls, u)
		}
	}
	return LaunchState{
		Decision:    a.decision,
		Partition:   a.PrimaryPartition(),
		StorageRoot: a.storageRoot,
		URLs:        urls,
	}
}

// ListProfiles returns every profile and the active one.
func (a *App) ListProfiles(ctx context.Context) ProfileList {
	return ProfileList{Profiles: a.profiles.List(ctx), Active: a.profiles.Active()}
}

func (a *App) CreateProfile(ctx context.Context, name, avatar string) (*profile.Profile, error) {
	return a.profiles.Create(ctx, profile.CreateRequest{Name: name, Avatar: avatar})
}

func (a *App) DeleteProfile(ctx context.Context, id string) error {
	return a.profiles.Delete(ctx, id)
}

func (a *App) RenameProfile(ctx context.Context, id, name string) (*profile.Profile, error) {
	return a.profiles.Rename(ctx, id, name)
}

// SelectProfile persists the choice and relaunches into the profile.
func (a *App) SelectProfile(ctx context.Context, id string, alwaysOpen bool) error {
	if err := a.profiles.Select(ctx, id, alwaysOpen); err != nil {
		return err
	}
	if a.restarter == nil {
		return ErrRestartUnavailable
	}
	a.logger.Info("restarting into profile", zap.String("profile", id))
	if err := a.restarter.Restart([]string{"--profile", id}); err != nil {
		return fmt.Errorf("restarting: %w", err)
	}
	return nil
}

func (a *App) DownloadControl(id string, action download.Action) error {
	return a.downloads.Control(id, action)
}

// SaveAs arranges for the next download of url to be written to path.
func (a *App) SaveAs(url, path string) error {
	return a.downloads.SaveAs(url, path)
}

func (a *App) ListDownloads() []download.Item {
	return a.downloads.List()
}

func (a *App) DownloadHistory(ctx context.Context) ([]download.Record, error) {
	return a.downloads.History(ctx)
}

// UpdateAdblockerSettings re-reads the settings file and re-attaches filter
// engines with the current whitelist.
func (a *App) UpdateAdblockerSettings(ctx context.Context) (settings.Settings, error) {
	prev := a.settings.Current()
	if err := a.settings.Reload(ctx); err != nil {
		a.logger.Warn("settings reload failed", zap.Error(err))
	}
	next := a.settings.Current()
	// A change already refreshed the engines through the subscription.
	if prev.Equal(next) {
		a.sessions.RefreshFilters(ctx)
	}
	return next, nil
}

// RefreshFilterLists downloads the filter lists again and returns the rule
// count of the new engine.
func (a *App) RefreshFilterLists(ctx context.Context) (int, error) {
	e, err := a.filters.Refresh(ctx)
	if err != nil {
		return 0, err
	}
	a.sessions.ReapplyFilters(ctx)
	return e.Len(), nil
}

// GetExtensionStorage returns the stored value, or nil when unset.
func (a *App) GetExtensionStorage(ctx context.Context, key string) (*string, error) {
	if key == "" {
		return nil, repository.ErrInvalidInput
	}
	v, err := a.kv.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SetExtensionStorage stores value under key; nil deletes it.
func (a *App) SetExtensionStorage(ctx context.Context, key string, value *string) error {
	if key == "" {
		return repository.ErrInvalidInput
	}
	if value == nil {
		return a.kv.Delete(ctx, key)
	}
	return a.kv.Set(ctx, key, *value)
}

func (a *App) TabAccessed(tabID string) { a.scheduler.TabAccessed(tabID) }
func (a *App) WakeTab(tabID string)     { a.scheduler.Wake(tabID) }
func (a *App) TabClosed(tabID string)   { a.scheduler.Forget(tabID) }

// KeyEvent resolves a key press from tabID. A match publishes the action and
// tells the caller to suppress the event.
func (a *App) KeyEvent(tabID string, ev shortcut.KeyEvent) (shortcut.Action, bool) {
	if tabID != "" {
		a.scheduler.TabAccessed(tabID)
	}
	action, ok := a.shortcuts.Resolve(ev)
	if !ok {
		return "", false
	}
	a.hub.Publish(action.Event(), ShortcutFired{Action: action, TabID: tabID})
	return action, true
}

func (a *App) SetShortcutsEnabled(enabled bool) { a.shortcuts.SetEnabled(enabled) }

func (a *App) Shortcuts() map[shortcut.Action][]string { return a.shortcuts.Bindings() }

func (a *App) Settings() settings.Settings { return a.settings.Current() }

func (a *App) SaveSettings(ctx context.Context, s settings.Settings) (settings.Settings, error) {
	return a.settings.Save(ctx, s)
}

func (a *App) Sessions() []session.Info { return a.sessions.Sessions() }

// OpenTab opens url in a partition, the primary one when empty.
func (a *App) OpenTab(ctx context.Context, partition session.PartitionKey, url string) (string, error) {
	if partition == "" {
		partition = a.PrimaryPartition()
	}
	s, err := a.sessions.CreateOrGetSession(ctx, partition)
	if err != nil {
		return "", err
	}
	tabID, err := s.Engine().OpenPage(ctx, url)
	if err != nil {
		return "", err
	}
	a.scheduler.TabAccessed(tabID)
	return tabID, nil
}

func (a *App) InstallUpdate() (*updater.Release, error) {
	return a.updates.Install()
}

// HandleKey receives key presses captured inside pages.
func (a *App) HandleKey(key session.PartitionKey, tabID string, ev shortcut.KeyEvent) {
	if action, ok := a.KeyEvent(tabID, ev); ok {
		a.logger.Debug("shortcut", zap.String("partition", string(key)), zap.String("action", string(action)))
	}
}

// HandleWindowOpen forwards a page's request for a new window as a tab.
func (a *App) HandleWindowOpen(key session.PartitionKey, url string) {
	a.hub.Publish(EventOpenURL, OpenURL{URL: url, Partition: key, Source: "window-open"})
}

// HandleOrganicSession applies policies to a session the engine created.
func (a *App) HandleOrganicSession(key session.PartitionKey, es session.EngineSession) {
	if _, err := a.sessions.Adopt(context.Background(), key, es); err != nil {
		a.logger.Warn("adopting session", zap.String("partition", string(key)), zap.Error(err))
	}
}

// HandleSecondInstance opens the URLs another launch was given. Launches that
// resolve to a different storage root are refused with ErrLaunchMismatch so
// the caller starts its own host instead.
func (a *App) HandleSecondInstance(argv []string) error {
	args, err := launch.ParseSecondInstance(argv)
	if err != nil {
		return err
	}
	if reason := a.launchMismatch(args); reason != "" {
		a.logger.Info("second launch refused", zap.String("reason", reason))
		return fmt.Errorf("%w: %s", ErrLaunchMismatch, reason)
	}
	for _, u := range args.URLs {
		if !a.protocols.Handles(u) {
			a.logger.Debug("ignoring url with unregistered scheme", zap.String("url", u))
			continue
		}
		a.hub.Publish(EventOpenURL, OpenURL{URL: u, Source: "second-instance"})
	}
	return nil
}

// launchMismatch reports why args cannot be served by this process, or "".
func (a *App) launchMismatch(args launch.Args) string {
	switch {
	case args.Incognito:
		return "incognito launches get a fresh storage root"
	case a.decision.Kind == profile.UseIncognito:
		return "this host is incognito"
	case args.SelectProfile:
		return "profile selection requested"
	case args.ProfileID != "" && args.ProfileID != a.decision.ProfileID:
		return "launch names profile " + args.ProfileID
	}
	return ""
}
