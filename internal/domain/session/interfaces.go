package session

import (
	"context"

	"github.com/rpggio/browserhost/internal/domain/download"
	"github.com/rpggio/browserhost/internal/domain/filter"
	"github.com/rpggio/browserhost/internal/domain/settings"
)

// Engine opens isolated sessions in the content engine. An empty storageDir
// means in-memory storage.
type Engine interface {
	OpenSession(ctx context.Context, key PartitionKey, storageDir string) (EngineSession, error)
}

// EngineSession is the per-session surface policies are applied through.
// Every setter replaces the previous value, so repeating one has no further
// effect.
type EngineSession interface {
	SetUserAgent(ua string) error
	SetBlocker(b Blocker) error
	SetPreloads(paths []string) error
	SetDownloadHandler(fn func(download.Handle)) error
	// OpenPage opens a tab in the session and returns its tab id.
	OpenPage(ctx context.Context, url string) (string, error)
	Close() error
}

// Blocker decides whether a request is blocked; nil disables blocking.
type Blocker interface {
	Check(req filter.Request) filter.Decision
}

// ProtocolRegistrar registers the host as the handler for URL schemes.
type ProtocolRegistrar interface {
	RegisterProtocols(schemes []string) error
}

// FilterSource supplies the shared filter engine.
type FilterSource interface {
	EnsureWhitelist(ctx context.Context, domains []string) (*filter.Engine, error)
	Invalidate()
}

// SettingsSource supplies the current settings.
type SettingsSource interface {
	Current() settings.Settings
}

// DownloadTracker takes ownership of downloads started in a session.
type DownloadTracker interface {
	Start(partition string, h download.Handle) download.Item
}
