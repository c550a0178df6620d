// Package ipc maps the presentation layer's request/response methods onto
// the host API. Transports decode requests and call Handler.Handle.
package ipc

import (
	"context"

	"github.com/rpggio/browserhost/internal/domain/download"
	"github.com/rpggio/browserhost/internal/domain/profile"
	"github.com/rpggio/browserhost/internal/domain/session"
	"github.com/rpggio/browserhost/internal/domain/settings"
	"github.com/rpggio/browserhost/internal/domain/shortcut"
	"github.com/rpggio/browserhost/internal/host"
	"github.com/rpggio/browserhost/internal/updater"
)

// API is the host surface exposed over IPC.
type API interface {
	LaunchState() host.LaunchState

	ListProfiles(ctx context.Context) host.ProfileList
	CreateProfile(ctx context.Context, name, avatar string) (*profile.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
	RenameProfile(ctx context.Context, id, name string) (*profile.Profile, error)
	SelectProfile(ctx context.Context, id string, alwaysOpen bool) error

	DownloadControl(id string, action download.Action) error
	SaveAs(url, path string) error
	ListDownloads() []download.Item
	DownloadHistory(ctx context.Context) ([]download.Record, error)

	UpdateAdblockerSettings(ctx context.Context) (settings.Settings, error)
	RefreshFilterLists(ctx context.Context) (int, error)

	GetExtensionStorage(ctx context.Context, key string) (*string, error)
	SetExtensionStorage(ctx context.Context, key string, value *string) error

	TabAccessed(tabID string)
	WakeTab(tabID string)
	TabClosed(tabID string)

	KeyEvent(tabID string, ev shortcut.KeyEvent) (shortcut.Action, bool)
	SetShortcutsEnabled(enabled bool)
	Shortcuts() map[shortcut.Action][]string

	Settings() settings.Settings
	SaveSettings(ctx context.Context, s settings.Settings) (settings.Settings, error)

	Sessions() []session.Info
	OpenTab(ctx context.Context, partition session.PartitionKey, url string) (string, error)
	InstallUpdate() (*updater.Release, error)
	HandleSecondInstance(argv []string) error
}
