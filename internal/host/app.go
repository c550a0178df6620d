// Package host builds the orchestrator from configuration and exposes the
// request/response operations the presentation layer calls.
package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/rpggio/browserhost/internal/config"
	"github.com/rpggio/browserhost/internal/domain/download"
	"github.com/rpggio/browserhost/internal/domain/filter"
	"github.com/rpggio/browserhost/internal/domain/hibernate"
	"github.com/rpggio/browserhost/internal/domain/profile"
	"github.com/rpggio/browserhost/internal/domain/session"
	"github.com/rpggio/browserhost/internal/domain/settings"
	"github.com/rpggio/browserhost/internal/domain/shortcut"
	"github.com/rpggio/browserhost/internal/events"
	"github.com/rpggio/browserhost/internal/filestore"
	"github.com/rpggio/browserhost/internal/launch"
	"github.com/rpggio/browserhost/internal/repository"
	"github.com/rpggio/browserhost/internal/sqlite"
	"github.com/rpggio/browserhost/internal/updater"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine is the content engine the host drives.
type Engine interface {
	session.Engine
	Start(ctx context.Context) error
	Close() error
}

// Restarter relaunches the process with new arguments.
type Restarter interface {
	Restart(args []string) error
}

// Options configures New.
type Options struct {
	Config config.Config
	Args   launch.Args
	Engine Engine
	// Fetcher overrides the HTTP filter-list fetcher.
	Fetcher   filter.Fetcher
	Restarter Restarter
	Logger    *zap.Logger
}

// App is the running orchestrator.
type App struct {
	cfg       config.Config
	args      launch.Args
	logger    *zap.Logger
	engine    Engine
	restarter Restarter

	decision    profile.Decision
	storageRoot string

	db        *sqlite.DB
	kv        repository.KVStore
	hub       *events.Hub
	profiles  *profile.Service
	settings  *settings.Service
	watcher   *filestore.Watcher
	filters   *filter.Cache
	downloads *download.Manager
	sessions  *session.Manager
	scheduler *hibernate.Scheduler
	shortcuts *shortcut.Dispatcher
	updates   *updater.Updater
	protocols *protocolRegistry

	unsubscribe func()
	closeOnce   sync.Once
	closeErr    error
}

// New resolves the launch profile, opens its storage and builds every
// component. Nothing runs until Run.
func New(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Engine == nil {
		return nil, errors.New("host: engine is required")
	}
	cfg := opts.Config
	a := &App{
		cfg:       cfg,
		args:      opts.Args,
		logger:    logger,
		engine:    opts.Engine,
		restarter: opts.Restarter,
		hub:       events.NewHub(logger.Named("events")),
		protocols: newProtocolRegistry(),
	}

	if err := os.MkdirAll(cfg.Data.Root, 0o700); err != nil {
		return nil, fmt.Errorf("creating data root: %w", err)
	}
	a.profiles = profile.NewService(
		filestore.NewRegistryFile(filepath.Join(cfg.Data.Root, "profiles.yaml")),
		cfg.Data.Root,
		logger.Named("profiles"),
	)
	a.decision = a.profiles.Resolve(ctx, profile.LaunchRequest{
		ProfileID:     opts.Args.ProfileID,
		SelectProfile: opts.Args.SelectProfile,
		Incognito:     opts.Args.Incognito,
	})
	root, err := a.profiles.StorageRoot(a.decision)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	a.storageRoot = root
	if a.decision.Kind == profile.UseProfile {
		if err := a.profiles.Activate(ctx, a.decision.ProfileID); err != nil {
			logger.Warn("recording active profile", zap.Error(err))
		}
	}
	logger.Info("launch resolved",
		zap.String("decision", string(a.decision.Kind)),
		zap.String("profile", a.decision.ProfileID),
		zap.String("storage_root", root))

	settingsFile := filestore.NewSettingsFile(filepath.Join(root, "settings.yaml"))
	a.settings = settings.NewService(settingsFile, logger.Named("settings"))
	current := a.settings.Load(ctx)
	a.watcher = filestore.NewWatcher(settingsFile.Path(), func(ctx context.Context) {
		if err := a.settings.Reload(ctx); err != nil {
			logger.Warn("settings file unreadable, keeping current", zap.Error(err))
		}
	}, logger.Named("watcher"))

	db, err := sqlite.Open(filepath.Join(root, "host.db"))
	if err != nil {
		return nil, fmt.Errorf("opening host database: %w", err)
	}
	a.db = db
	a.kv = sqlite.NewKVRepository(db)

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = filter.NewHTTPFetcher(cfg.Filter.ListURLs, cfg.Filter.FetchTimeout, logger.Named("filter"))
	}
	a.filters = filter.NewCache(underRoot(root, cfg.Filter.CacheFile), fetcher, logger.Named("filter"))

	a.downloads = download.NewManager(sqlite.NewHistoryRepository(db), a.hub, download.Options{
		Dir:          cfg.Downloads.Dir,
		HistoryLimit: cfg.Downloads.HistoryLimit,
	}, logger.Named("downloads"))

	var preloads []string
	if cfg.Engine.PreloadPath != "" {
		preloads = []string{cfg.Engine.PreloadPath}
	}
	a.sessions = session.NewManager(a.engine, a.settings, a.filters, a.downloads, a.protocols, session.Options{
		UserAgent:   cfg.Engine.UserAgent,
		Preloads:    preloads,
		Schemes:     schemes(cfg.Protocol.Scheme),
		StorageRoot: root,
	}, logger.Named("sessions"))

	a.scheduler = hibernate.NewScheduler(a.hub, func() time.Duration {
		return a.settings.Current().SleepThreshold()
	}, hibernate.Options{Interval: cfg.Hibernation.SweepInterval}, logger.Named("hibernate"))

	a.shortcuts = shortcut.NewDispatcher(cfg.Platform, current.Keybinds, logger.Named("shortcuts"))

	a.updates = updater.New(updater.Options{
		FeedURL:        cfg.Updates.FeedURL,
		CurrentVersion: cfg.Updates.CurrentVersion,
		DataRoot:       cfg.Data.Root,
		StartupDelay:   cfg.Updates.StartupDelay,
		Interval:       cfg.Updates.Interval,
	}, a.hub, logger.Named("updater"))

	a.unsubscribe = a.settings.Subscribe(a.settingsChanged)
	return a, nil
}

// Run starts the engine, opens the primary session and runs the background
// loops until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	if _, err := a.sessions.CreateOrGetSession(ctx, a.PrimaryPartition()); err != nil {
		return fmt.Errorf("opening primary session: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scheduler.Run(gctx) })
	g.Go(func() error { return a.updates.Run(gctx) })
	g.Go(func() error {
		if err := a.watcher.Start(gctx); err != nil {
			a.logger.Warn("settings hot reload disabled", zap.Error(err))
			return nil
		}
		<-gctx.Done()
		a.watcher.Stop()
		return nil
	})
	return g.Wait()
}

// Close releases every resource. An incognito storage root is deleted.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.unsubscribe()
		var errs []error
		errs = append(errs, a.sessions.Close(), a.engine.Close())
		a.hub.Close()
		errs = append(errs, a.db.Close())
		if a.decision.Kind == profile.UseIncognito {
			if err := os.RemoveAll(a.storageRoot); err != nil {
				errs = append(errs, fmt.Errorf("removing incognito storage: %w", err))
			}
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// Events returns the notification hub.
func (a *App) Events() *events.Hub { return a.hub }

// PrimaryPartition is the partition the launch decision runs in.
func (a *App) PrimaryPartition() session.PartitionKey {
	return session.PartitionFor(a.decision)
}

// settingsChanged keeps the dispatcher and filter engines in step with the
// settings, whichever way they were changed.
func (a *App) settingsChanged(prev, next settings.Settings) {
	a.shortcuts.Reload(next.Keybinds)
	if prev.AdBlockEnabled != next.AdBlockEnabled || !slices.Equal(prev.AdBlockWhitelist, next.AdBlockWhitelist) {
		a.sessions.RefreshFilters(context.Background())
	}
}

func underRoot(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func schemes(custom string) []string {
	out := []string{"http", "https"}
	if custom != "" {
		out = append(out, custom)
	}
	return out
}
