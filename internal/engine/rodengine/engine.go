// Package rodengine drives Chromium over the DevTools protocol with go-rod and
// implements the content-engine port of the session manager.
package rodengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rpggio/browserhost/internal/domain/session"
	"github.com/rpggio/browserhost/internal/domain/shortcut"
	"go.uber.org/zap"
)

// ErrNotStarted indicates a session was requested before Start.
var ErrNotStarted = errors.New("engine not started")

// Config configures the browser the engine drives.
type Config struct {
	// DebuggerURL connects to a running browser instead of launching one.
	// Every session is then an in-memory context of that browser.
	DebuggerURL string
	Bin         string
	Headless    bool
	// DownloadDir receives in-flight downloads before they are moved to
	// their save path.
	DownloadDir string
}

// Hooks receive engine events. Nil fields are skipped.
type Hooks struct {
	KeyPressed     func(key session.PartitionKey, tabID string, ev shortcut.KeyEvent)
	WindowOpened   func(key session.PartitionKey, url string)
	OrganicSession func(key session.PartitionKey, es session.EngineSession)
}

// Engine owns the shared browser and any per-partition browser processes.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	hooks    Hooks
	sessions map[*Session]struct{}
}

// New creates an engine. Call Start before opening sessions.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = os.TempDir()
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[*Session]struct{}),
	}
}

// SetHooks replaces the event hooks.
func (e *Engine) SetHooks(h Hooks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = h
}

// Start connects to the configured browser or launches one.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser != nil {
		return nil
	}
	e.ctx, e.cancel = context.WithCancel(ctx)

	controlURL := e.cfg.DebuggerURL
	if controlURL == "" {
		l := e.newLauncher()
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launching browser: %w", err)
		}
		e.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(e.ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connecting to browser: %w", err)
	}
	if err := prepareBrowser(browser); err != nil {
		return err
	}
	e.browser = browser

	wait := browser.EachEvent(func(ev *proto.TargetTargetCreated) { e.targetCreated(ev) })
	go wait()

	e.logger.Info("browser connected", zap.Bool("launched", e.launcher != nil))
	return nil
}

// prepareBrowser trusts every certificate and turns on target discovery.
func prepareBrowser(b *rod.Browser) error {
	if err := (proto.SecuritySetIgnoreCertificateErrors{Ignore: true}).Call(b); err != nil {
		return fmt.Errorf("ignoring certificate errors: %w", err)
	}
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		return fmt.Errorf("discovering targets: %w", err)
	}
	return nil
}

func (e *Engine) newLauncher() *launcher.Launcher {
	l := launcher.New().Headless(e.cfg.Headless)
	if e.cfg.Bin != "" {
		l = l.Bin(e.cfg.Bin)
	}
	return l
}

// OpenSession opens an isolated session. A non-empty storageDir gets a
// dedicated browser process using it as the profile directory, unless the
// engine is attached to an external browser.
func (e *Engine) OpenSession(ctx context.Context, key session.PartitionKey, storageDir string) (session.EngineSession, error) {
	e.mu.Lock()
	shared := e.browser
	e.mu.Unlock()
	if shared == nil {
		return nil, ErrNotStarted
	}

	var s *Session
	if storageDir != "" && e.cfg.DebuggerURL == "" {
		if err := os.MkdirAll(storageDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage dir: %w", err)
		}
		l := e.newLauncher().UserDataDir(storageDir)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launching browser for %s: %w", key, err)
		}
		b := rod.New().ControlURL(u).Context(e.ctx)
		if err := b.Connect(); err != nil {
			l.Kill()
			return nil, fmt.Errorf("connecting to browser for %s: %w", key, err)
		}
		s = newSession(e, key, b, l, true)
	} else {
		if storageDir != "" {
			e.logger.Warn("external browser keeps partition in memory", zap.String("partition", string(key)))
		}
		b, err := shared.Incognito()
		if err != nil {
			return nil, fmt.Errorf("creating browser context for %s: %w", key, err)
		}
		s = newSession(e, key, b, nil, false)
	}

	e.mu.Lock()
	e.sessions[s] = struct{}{}
	e.mu.Unlock()

	if err := s.start(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes every session and the shared browser.
func (e *Engine) Close() error {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for s := range e.sessions {
		sessions = append(sessions, s)
	}
	browser, l, cancel := e.browser, e.launcher, e.cancel
	e.browser, e.launcher = nil, nil
	e.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.Close())
	}
	if browser != nil {
		errs = append(errs, browser.Close())
	}
	if l != nil {
		l.Kill()
	}
	if cancel != nil {
		cancel()
	}
	return errors.Join(errs...)
}

func (e *Engine) forget(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, s)
}

// targetCreated adopts pages that appear in a browser context no session
// owns, such as ones created by an attached debugger client.
func (e *Engine) targetCreated(ev *proto.TargetTargetCreated) {
	info := ev.TargetInfo
	if info == nil || info.Type != proto.TargetTargetInfoTypePage || !navigable(info.URL) {
		return
	}

	e.mu.Lock()
	for s := range e.sessions {
		if s.claims(info.BrowserContextID) {
			e.mu.Unlock()
			return
		}
	}
	shared := e.browser
	hook := e.hooks.OrganicSession
	e.mu.Unlock()
	if shared == nil || hook == nil {
		return
	}

	b := shared.Context(e.ctx)
	b.BrowserContextID = info.BrowserContextID
	key := session.PartitionKey("temp:" + string(info.BrowserContextID))
	s := newSession(e, key, b, nil, false)

	e.mu.Lock()
	e.sessions[s] = struct{}{}
	e.mu.Unlock()

	if err := s.start(); err != nil {
		e.logger.Warn("adopting browser context", zap.String("partition", string(key)), zap.Error(err))
		e.forget(s)
		return
	}
	if page, err := shared.PageFromTarget(info.TargetID); err == nil {
		if err := s.attach(page); err != nil {
			e.logger.Warn("applying page policies", zap.Error(err))
		}
	}
	hook(key, s)
}

func (e *Engine) keyPressed(key session.PartitionKey, tabID string, ev shortcut.KeyEvent) {
	e.mu.Lock()
	hook := e.hooks.KeyPressed
	e.mu.Unlock()
	if hook != nil {
		hook(key, tabID, ev)
	}
}

func (e *Engine) windowOpened(key session.PartitionKey, url string) {
	e.mu.Lock()
	hook := e.hooks.WindowOpened
	e.mu.Unlock()
	if hook != nil {
		hook(key, url)
	}
}
