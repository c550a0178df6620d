package session

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rpggio/browserhost/internal/domain/download"
	"go.uber.org/zap"
)

// Options configures the policies applied to every session.
type Options struct {
	UserAgent   string
	Preloads    []string
	Schemes     []string
	StorageRoot string
}

// Session is a live content session with policies applied.
type Session struct {
	key     PartitionKey
	dir     string
	es      EngineSession
	organic bool

	mu       sync.Mutex
	blocking bool
}

// Key returns the partition key.
func (s *Session) Key() PartitionKey { return s.key }

// StorageDir returns the on-disk storage directory, empty for in-memory.
func (s *Session) StorageDir() string { return s.dir }

// Engine returns the underlying engine session.
func (s *Session) Engine() EngineSession { return s.es }

// Blocking reports whether a filter engine is attached.
func (s *Session) Blocking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocking
}

func (s *Session) info() Info {
	return Info{Key: s.key, StorageDir: s.dir, Blocking: s.Blocking(), Organic: s.organic}
}

type entry struct {
	ready chan struct{}
	sess  *Session
	err   error
}

// Manager keeps exactly one session per partition key and applies the
// host policies to each before handing it out.
type Manager struct {
	engine    Engine
	settings  SettingsSource
	filters   FilterSource
	downloads DownloadTracker
	protocols ProtocolRegistrar
	opts      Options
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[PartitionKey]*entry
	closed   bool
}

// NewManager creates a session manager. protocols may be nil.
func NewManager(
	engine Engine,
	settings SettingsSource,
	filters FilterSource,
	downloads DownloadTracker,
	protocols ProtocolRegistrar,
	opts Options,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		engine:    engine,
		settings:  settings,
		filters:   filters,
		downloads: downloads,
		protocols: protocols,
		opts:      opts,
		logger:    logger,
		sessions:  make(map[PartitionKey]*entry),
	}
}

// CreateOrGetSession returns the session for key, opening it and applying
// policies on first use. Concurrent callers for the same key wait for the
// first one and share its result.
func (m *Manager) CreateOrGetSession(ctx context.Context, key PartitionKey) (*Session, error) {
	return m.getOrInit(ctx, key, func(ctx context.Context) (*Session, error) {
		dir := m.storageDir(key)
		es, err := m.engine.OpenSession(ctx, key, dir)
		if err != nil {
			return nil, fmt.Errorf("opening session %s: %w", key, err)
		}
		return &Session{key: key, dir: dir, es: es}, nil
	})
}

// Adopt registers a session the engine created on its own, such as a popup's,
// and applies policies to it. If the partition already has a session that one
// is returned instead.
func (m *Manager) Adopt(ctx context.Context, key PartitionKey, es EngineSession) (*Session, error) {
	return m.getOrInit(ctx, key, func(context.Context) (*Session, error) {
		return &Session{key: key, dir: m.storageDir(key), es: es, organic: true}, nil
	})
}

func (m *Manager) getOrInit(ctx context.Context, key PartitionKey, open func(context.Context) (*Session, error)) (*Session, error) {
	if key == "" {
		return nil, ErrInvalidPartition
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		select {
		case <-e.ready:
			return e.sess, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e := &entry{ready: make(chan struct{})}
	m.sessions[key] = e
	m.mu.Unlock()

	sess, err := open(ctx)
	if err == nil {
		err = m.ApplyPolicies(ctx, sess)
		if err != nil {
			if cerr := sess.es.Close(); cerr != nil {
				m.logger.Warn("closing failed session", zap.String("partition", string(key)), zap.Error(cerr))
			}
		}
	}

	m.mu.Lock()
	if err != nil {
		delete(m.sessions, key)
		e.err = err
	} else {
		e.sess = sess
	}
	m.mu.Unlock()
	close(e.ready)

	if err != nil {
		return nil, err
	}
	m.logger.Info("session ready",
		zap.String("partition", string(key)),
		zap.Bool("organic", sess.organic),
		zap.Bool("blocking", sess.Blocking()))
	return sess, nil
}

// ApplyPolicies installs the user-agent override, filter engine, preload
// scripts, download hook and protocol registration on a session. Each step
// replaces earlier state, so applying twice equals applying once. A filter
// engine that cannot be loaded leaves the session without blocking.
func (m *Manager) ApplyPolicies(ctx context.Context, s *Session) error {
	if m.opts.UserAgent != "" {
		if err := s.es.SetUserAgent(m.opts.UserAgent); err != nil {
			return fmt.Errorf("setting user agent: %w", err)
		}
	}

	m.applyFilter(ctx, s)

	if err := s.es.SetPreloads(slices.Clone(m.opts.Preloads)); err != nil {
		return fmt.Errorf("registering preloads: %w", err)
	}

	if m.downloads != nil {
		partition := string(s.key)
		if err := s.es.SetDownloadHandler(func(h download.Handle) {
			m.downloads.Start(partition, h)
		}); err != nil {
			return fmt.Errorf("wiring downloads: %w", err)
		}
	}

	if m.protocols != nil && len(m.opts.Schemes) > 0 {
		if err := m.protocols.RegisterProtocols(m.opts.Schemes); err != nil {
			m.logger.Warn("protocol registration failed", zap.Error(err))
		}
	}
	return nil
}

// applyFilter attaches the current engine, waiting for it to load, or
// detaches blocking when it is turned off or unavailable.
func (m *Manager) applyFilter(ctx context.Context, s *Session) {
	st := m.settings.Current()
	var blocker Blocker
	if st.AdBlockEnabled && m.filters != nil {
		eng, err := m.filters.EnsureWhitelist(ctx, st.Whitelist())
		if err != nil {
			m.logger.Warn("filter engine unavailable, blocking disabled",
				zap.String("partition", string(s.key)), zap.Error(err))
		} else if eng != nil {
			blocker = eng
		}
	}

	if err := s.es.SetBlocker(blocker); err != nil {
		m.logger.Warn("attaching filter engine", zap.String("partition", string(s.key)), zap.Error(err))
		blocker = nil
	}
	s.mu.Lock()
	s.blocking = blocker != nil
	s.mu.Unlock()
}

// RefreshFilters drops the current engine and re-attaches a rebuilt one,
// with the current whitelist, to every live session.
func (m *Manager) RefreshFilters(ctx context.Context) {
	if m.filters != nil {
		m.filters.Invalidate()
	}
	m.ReapplyFilters(ctx)
}

// ReapplyFilters re-attaches the current engine to every live session.
func (m *Manager) ReapplyFilters(ctx context.Context) {
	for _, s := range m.ready() {
		m.applyFilter(ctx, s)
	}
}

// Get returns a live session.
func (m *Manager) Get(key PartitionKey) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[key]
	if !ok || e.sess == nil {
		return nil, false
	}
	return e.sess, true
}

// Sessions describes every live session, ordered by key.
func (m *Manager) Sessions() []Info {
	sessions := m.ready()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	slices.SortFunc(out, func(a, b Info) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return out
}

// Close closes every session. Later calls fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	var firstErr error
	for _, s := range m.ready() {
		if err := s.es.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing session %s: %w", s.key, err)
		}
	}
	return firstErr
}

func (m *Manager) ready() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		if e.sess != nil {
			out = append(out, e.sess)
		}
	}
	return out
}

func (m *Manager) storageDir(key PartitionKey) string {
	if !key.Persistent() || m.opts.StorageRoot == "" {
		return ""
	}
	return filepath.Join(m.opts.StorageRoot, "partitions", key.dirName())
}
