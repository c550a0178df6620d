package session_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rpggio/browserhost/internal/domain/download"
	"github.com/rpggio/browserhost/internal/domain/filter"
	"github.com/rpggio/browserhost/internal/domain/profile"
	"github.com/rpggio/browserhost/internal/domain/session"
	"github.com/rpggio/browserhost/internal/domain/settings"
	"github.com/stretchr/testify/require"
)

type fakeEngineSession struct {
	mu        sync.Mutex
	userAgent []string
	blockers  []session.Blocker
	preloads  [][]string
	handler   func(download.Handle)
	closed    bool
}

func (s *fakeEngineSession) SetUserAgent(ua string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userAgent = append(s.userAgent, ua)
	return nil
}

func (s *fakeEngineSession) SetBlocker(b session.Blocker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockers = append(s.blockers, b)
	return nil
}

func (s *fakeEngineSession) SetPreloads(paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preloads = append(s.preloads, paths)
	return nil
}

func (s *fakeEngineSession) SetDownloadHandler(fn func(download.Handle)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
	return nil
}

func (s *fakeEngineSession) OpenPage(ctx context.Context, url string) (string, error) {
	return "tab-1", nil
}

func (s *fakeEngineSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// lastBlocker is the effective blocker, since each call replaces the last.
func (s *fakeEngineSession) lastBlocker() session.Blocker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockers[len(s.blockers)-1]
}

type fakeEngine struct {
	opens atomic.Int32
	dirs  sync.Map
	gate  chan struct{}
	err   error
}

func (e *fakeEngine) OpenSession(ctx context.Context, key session.PartitionKey, dir string) (session.EngineSession, error) {
	e.opens.Add(1)
	if e.gate != nil {
		<-e.gate
	}
	if e.err != nil {
		return nil, e.err
	}
	e.dirs.Store(key, dir)
	return &fakeEngineSession{}, nil
}

type staticSettings struct{ s settings.Settings }

func (s *staticSettings) Current() settings.Settings { return s.s }

type fakeFilters struct {
	mu          sync.Mutex
	engine      *filter.Engine
	err         error
	invalidates int
	whitelists  [][]string
}

func (f *fakeFilters) EnsureWhitelist(ctx context.Context, domains []string) (*filter.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.whitelists = append(f.whitelists, domains)
	return f.engine, f.err
}

func (f *fakeFilters) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidates++
	f.engine = filter.New("||ads.example^")
}

type fakeDownloads struct {
	partitions []string
}

func (d *fakeDownloads) Start(partition string, h download.Handle) download.Item {
	d.partitions = append(d.partitions, partition)
	return download.Item{}
}

type fakeProtocols struct{ calls int }

func (p *fakeProtocols) RegisterProtocols(schemes []string) error {
	p.calls++
	return nil
}

func newManager(t *testing.T, eng *fakeEngine, filters *fakeFilters, st settings.Settings) (*session.Manager, *fakeDownloads, *fakeProtocols) {
	t.Helper()
	dl := &fakeDownloads{}
	protos := &fakeProtocols{}
	m := session.NewManager(eng, &staticSettings{s: st}, filters, dl, protos, session.Options{
		UserAgent:   "TestAgent/1.0",
		Preloads:    []string{"/app/preload.js"},
		Schemes:     []string{"browserhost", "http", "https"},
		StorageRoot: t.TempDir(),
	}, nil)
	return m, dl, protos
}

func TestManager_OneSessionPerKey(t *testing.T) {
	eng := &fakeEngine{gate: make(chan struct{})}
	filters := &fakeFilters{engine: filter.New("||ads.example^")}
	m, _, _ := newManager(t, eng, filters, settings.Defaults())

	ctx := context.Background()
	var wg sync.WaitGroup
	got := make([]*session.Session, 6)
	errs := make([]error, 6)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = m.CreateOrGetSession(ctx, session.ProfilePartition("a"))
		}(i)
	}
	close(eng.gate)
	wg.Wait()

	for i := range got {
		require.NoError(t, errs[i])
		require.Same(t, got[0], got[i])
	}
	require.EqualValues(t, 1, eng.opens.Load())

	again, err := m.CreateOrGetSession(ctx, session.ProfilePartition("a"))
	require.NoError(t, err)
	require.Same(t, got[0], again)

	other, err := m.CreateOrGetSession(ctx, session.IncognitoPartition)
	require.NoError(t, err)
	require.NotSame(t, got[0], other)
}

func TestManager_AppliesPolicies(t *testing.T) {
	eng := &fakeEngine{}
	engine := filter.New("||ads.example^")
	filters := &fakeFilters{engine: engine}
	st := settings.Defaults()
	st.AdBlockWhitelist = []string{"news.example"}
	m, dl, protos := newManager(t, eng, filters, st)

	s, err := m.CreateOrGetSession(context.Background(), session.ProfilePartition("a"))
	require.NoError(t, err)
	es := s.Engine().(*fakeEngineSession)

	require.Equal(t, []string{"TestAgent/1.0"}, es.userAgent)
	require.Same(t, engine, es.lastBlocker())
	require.True(t, s.Blocking())
	require.Equal(t, [][]string{{"/app/preload.js"}}, es.preloads)
	require.Equal(t, [][]string{{"news.example"}}, filters.whitelists)
	require.Equal(t, 1, protos.calls)

	es.handler(nil)
	require.Equal(t, []string{"persist:a"}, dl.partitions)

	dir, _ := eng.dirs.Load(session.ProfilePartition("a"))
	require.Equal(t, "persist_3aa", filepath.Base(dir.(string)))
}

func TestManager_ApplyPoliciesIdempotent(t *testing.T) {
	eng := &fakeEngine{}
	filters := &fakeFilters{engine: filter.New("||ads.example^")}
	m, _, _ := newManager(t, eng, filters, settings.Defaults())

	s, err := m.CreateOrGetSession(context.Background(), session.DefaultPartition)
	require.NoError(t, err)
	require.NoError(t, m.ApplyPolicies(context.Background(), s))

	es := s.Engine().(*fakeEngineSession)
	// Every call replaces rather than accumulates, so the final state is the
	// same single user agent, blocker and preload set.
	require.Equal(t, es.userAgent[0], es.userAgent[1])
	require.Equal(t, es.preloads[0], es.preloads[1])
	require.Same(t, es.blockers[0], es.blockers[1])
}

func TestManager_FilterFailureDegrades(t *testing.T) {
	eng := &fakeEngine{}
	filters := &fakeFilters{err: filter.ErrEngineUnavailable}
	m, _, _ := newManager(t, eng, filters, settings.Defaults())

	s, err := m.CreateOrGetSession(context.Background(), session.DefaultPartition)
	require.NoError(t, err)
	require.False(t, s.Blocking())
	require.Nil(t, s.Engine().(*fakeEngineSession).lastBlocker())
}

func TestManager_AdBlockDisabled(t *testing.T) {
	eng := &fakeEngine{}
	filters := &fakeFilters{engine: filter.New("||ads.example^")}
	st := settings.Defaults()
	st.AdBlockEnabled = false
	m, _, _ := newManager(t, eng, filters, st)

	s, err := m.CreateOrGetSession(context.Background(), session.DefaultPartition)
	require.NoError(t, err)
	require.False(t, s.Blocking())
	require.Empty(t, filters.whitelists)
}

func TestManager_OpenFailureAllowsRetry(t *testing.T) {
	eng := &fakeEngine{err: errors.New("browser gone")}
	m, _, _ := newManager(t, eng, &fakeFilters{}, settings.Defaults())

	_, err := m.CreateOrGetSession(context.Background(), session.DefaultPartition)
	require.Error(t, err)

	eng.err = nil
	_, err = m.CreateOrGetSession(context.Background(), session.DefaultPartition)
	require.NoError(t, err)
	require.EqualValues(t, 2, eng.opens.Load())
}

func TestManager_AdoptOrganicSession(t *testing.T) {
	eng := &fakeEngine{}
	filters := &fakeFilters{engine: filter.New("||ads.example^")}
	m, _, _ := newManager(t, eng, filters, settings.Defaults())
	ctx := context.Background()

	popup := &fakeEngineSession{}
	s, err := m.Adopt(ctx, "temp:popup-1", popup)
	require.NoError(t, err)
	require.Same(t, popup, s.Engine())
	require.Len(t, popup.userAgent, 1)
	require.Empty(t, s.StorageDir())

	// Adopting into an existing partition returns the existing session.
	again, err := m.Adopt(ctx, "temp:popup-1", &fakeEngineSession{})
	require.NoError(t, err)
	require.Same(t, s, again)
	require.Zero(t, eng.opens.Load())
}

func TestManager_RefreshFilters(t *testing.T) {
	eng := &fakeEngine{}
	first := filter.New("||ads.example^")
	filters := &fakeFilters{engine: first}
	m, _, _ := newManager(t, eng, filters, settings.Defaults())
	ctx := context.Background()

	a, err := m.CreateOrGetSession(ctx, session.DefaultPartition)
	require.NoError(t, err)
	b, err := m.CreateOrGetSession(ctx, session.IncognitoPartition)
	require.NoError(t, err)

	m.RefreshFilters(ctx)
	require.Equal(t, 1, filters.invalidates)
	for _, s := range []*session.Session{a, b} {
		require.NotSame(t, first, s.Engine().(*fakeEngineSession).lastBlocker())
	}
}

func TestManager_Close(t *testing.T) {
	eng := &fakeEngine{}
	m, _, _ := newManager(t, eng, &fakeFilters{}, settings.Defaults())
	s, err := m.CreateOrGetSession(context.Background(), session.DefaultPartition)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.True(t, s.Engine().(*fakeEngineSession).closed)
	_, err = m.CreateOrGetSession(context.Background(), session.DefaultPartition)
	require.ErrorIs(t, err, session.ErrClosed)
}

func TestManager_StorageDirsNeverCollide(t *testing.T) {
	eng := &fakeEngine{}
	m, _, _ := newManager(t, eng, &fakeFilters{engine: filter.New()}, settings.Defaults())

	keys := []session.PartitionKey{
		session.ProfilePartition("a.b"),
		session.ProfilePartition("a_b"),
		session.ProfilePartition("A.b"),
		session.ProfilePartition("a:b"),
		session.DefaultPartition,
	}
	seen := map[string]session.PartitionKey{}
	for _, key := range keys {
		_, err := m.CreateOrGetSession(context.Background(), key)
		require.NoError(t, err)
		dir, ok := eng.dirs.Load(key)
		require.True(t, ok)
		base := filepath.Base(dir.(string))
		require.NotContains(t, seen, base, "%s and %s share a directory", key, seen[base])
		seen[base] = key
	}
}

func TestPartitionFor(t *testing.T) {
	require.Equal(t, session.IncognitoPartition, session.PartitionFor(profile.Decision{Kind: profile.UseIncognito}))
	require.Equal(t, session.PartitionKey("persist:a"), session.PartitionFor(profile.Decision{Kind: profile.UseProfile, ProfileID: "a"}))
	require.Equal(t, session.DefaultPartition, session.PartitionFor(profile.Decision{Kind: profile.PromptSelection}))
	require.False(t, session.IncognitoPartition.Persistent())
	require.True(t, session.DefaultPartition.Persistent())
}
