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
	"github.com/rpggio/browserhost/internal/domain/download"
	"github.com/rpggio/browserhost/internal/domain/session"
	"github.com/ysmood/gson"
	"go.uber.org/zap"
)

type pageState struct {
	page           *rod.Page
	router         *rod.HijackRouter
	removePreloads []func() error
}

// Session is one isolated browser context. A session with its own storage
// directory runs in a dedicated browser process; the rest are contexts of the
// shared browser.
type Session struct {
	engine    *Engine
	key       session.PartitionKey
	browser   *rod.Browser
	launcher  *launcher.Launcher
	contextID proto.BrowserBrowserContextID
	owned     bool
	dlDir     string
	logger    *zap.Logger
	cancel    context.CancelFunc

	mu         sync.Mutex
	userAgent  string
	blocker    session.Blocker
	preloads   []string
	onDownload func(download.Handle)
	pages      map[proto.TargetTargetID]*pageState
	downloads  map[string]*downloadHandle
	closed     bool
}

func newSession(e *Engine, key session.PartitionKey, b *rod.Browser, l *launcher.Launcher, owned bool) *Session {
	ctx, cancel := context.WithCancel(e.ctx)
	return &Session{
		engine:    e,
		key:       key,
		browser:   b.Context(ctx),
		launcher:  l,
		contextID: b.BrowserContextID,
		owned:     owned,
		dlDir:     e.cfg.DownloadDir,
		logger:    e.logger.With(zap.String("partition", string(key))),
		cancel:    cancel,
		pages:     make(map[proto.TargetTargetID]*pageState),
		downloads: make(map[string]*downloadHandle),
	}
}

// start enables downloads and, for a dedicated browser, the process-wide
// settings the shared browser receives in Engine.Start.
func (s *Session) start() error {
	if err := os.MkdirAll(s.dlDir, 0o755); err != nil {
		return fmt.Errorf("creating download dir: %w", err)
	}
	if err := (proto.BrowserSetDownloadBehavior{
		Behavior:         proto.BrowserSetDownloadBehaviorBehaviorAllowAndName,
		BrowserContextID: s.contextID,
		DownloadPath:     s.dlDir,
		EventsEnabled:    true,
	}).Call(s.browser); err != nil {
		return fmt.Errorf("enabling downloads: %w", err)
	}
	if s.owned {
		if err := prepareBrowser(s.browser); err != nil {
			return err
		}
	}

	wait := s.browser.EachEvent(
		func(ev *proto.BrowserDownloadWillBegin) { s.downloadStarted(ev) },
		func(ev *proto.BrowserDownloadProgress) { s.downloadProgress(ev) },
		func(ev *proto.TargetTargetCreated) { s.targetCreated(ev) },
	)
	go wait()
	return nil
}

// claims reports whether a target in browser context id belongs here.
func (s *Session) claims(id proto.BrowserBrowserContextID) bool {
	return s.owned || (s.contextID != "" && id == s.contextID)
}

func (s *Session) SetUserAgent(ua string) error {
	s.mu.Lock()
	s.userAgent = ua
	pages := s.pageList()
	s.mu.Unlock()

	var errs []error
	for _, ps := range pages {
		errs = append(errs, ps.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}))
	}
	return errors.Join(errs...)
}

func (s *Session) SetBlocker(b session.Blocker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocker = b
	return nil
}

// SetPreloads reads the scripts and installs them on every page, replacing
// the previous set.
func (s *Session) SetPreloads(paths []string) error {
	scripts := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading preload %s: %w", p, err)
		}
		scripts = append(scripts, string(data))
	}

	s.mu.Lock()
	s.preloads = scripts
	pages := s.pageList()
	s.mu.Unlock()

	var errs []error
	for _, ps := range pages {
		errs = append(errs, s.installPreloads(ps, scripts))
	}
	return errors.Join(errs...)
}

func (s *Session) SetDownloadHandler(fn func(download.Handle)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDownload = fn
	return nil
}

// OpenPage opens a tab with every session policy in place before navigation.
func (s *Session) OpenPage(ctx context.Context, url string) (string, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("creating page: %w", err)
	}
	if err := s.attach(page); err != nil {
		_ = page.Close()
		return "", err
	}
	if url != "" {
		if err := page.Context(ctx).Navigate(url); err != nil {
			return string(page.TargetID), fmt.Errorf("navigating to %s: %w", url, err)
		}
	}
	return string(page.TargetID), nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pages := s.pageList()
	s.pages = map[proto.TargetTargetID]*pageState{}
	s.mu.Unlock()

	for _, ps := range pages {
		_ = ps.router.Stop()
	}
	s.engine.forget(s)

	var err error
	switch {
	case s.launcher != nil:
		err = s.browser.Close()
		s.launcher.Kill()
	case s.contextID != "":
		err = s.browser.Close()
	}
	s.cancel()
	return err
}

// attach applies policies to a page and tracks it.
func (s *Session) attach(page *rod.Page) error {
	s.mu.Lock()
	ua := s.userAgent
	scripts := s.preloads
	s.mu.Unlock()

	ps := &pageState{page: page}
	if ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			return fmt.Errorf("setting user agent: %w", err)
		}
	}
	if err := s.installPreloads(ps, scripts); err != nil {
		return err
	}

	tabID := string(page.TargetID)
	if _, err := page.Expose(keyBinding, func(j gson.JSON) (interface{}, error) {
		s.engine.keyPressed(s.key, tabID, decodeKeyEvent(j))
		return nil, nil
	}); err != nil {
		return fmt.Errorf("exposing key binding: %w", err)
	}
	if _, err := page.EvalOnNewDocument(keyListener); err != nil {
		return fmt.Errorf("installing key listener: %w", err)
	}

	ps.router = page.HijackRequests()
	if err := ps.router.Add("*", "", s.hijack); err != nil {
		return fmt.Errorf("intercepting requests: %w", err)
	}
	go ps.router.Run()

	s.mu.Lock()
	s.pages[page.TargetID] = ps
	s.mu.Unlock()
	return nil
}

func (s *Session) installPreloads(ps *pageState, scripts []string) error {
	for _, remove := range ps.removePreloads {
		_ = remove()
	}
	ps.removePreloads = ps.removePreloads[:0]
	for _, js := range scripts {
		remove, err := ps.page.EvalOnNewDocument(js)
		if err != nil {
			return fmt.Errorf("installing preload: %w", err)
		}
		ps.removePreloads = append(ps.removePreloads, remove)
	}
	return nil
}

func (s *Session) hijack(h *rod.Hijack) {
	s.mu.Lock()
	b := s.blocker
	s.mu.Unlock()

	if b != nil {
		req := filterRequest(h.Request.URL().String(), h.Request.Header("Referer"), h.Request.Type())
		if dec := b.Check(req); dec.Blocked {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
	}
	h.ContinueRequest(&proto.FetchContinueRequest{})
}

func (s *Session) targetCreated(ev *proto.TargetTargetCreated) {
	info := ev.TargetInfo
	if info == nil || info.Type != proto.TargetTargetInfoTypePage || !s.claims(info.BrowserContextID) {
		return
	}
	s.mu.Lock()
	_, known := s.pages[info.TargetID]
	s.mu.Unlock()
	if known {
		return
	}

	// Popups become open requests for the presentation layer.
	if isPopup(info) && navigable(info.URL) {
		if err := (proto.TargetCloseTarget{TargetID: info.TargetID}).Call(s.browser); err != nil {
			s.logger.Debug("closing popup", zap.Error(err))
		}
		s.engine.windowOpened(s.key, info.URL)
		return
	}

	page, err := s.browser.PageFromTarget(info.TargetID)
	if err != nil {
		s.logger.Debug("attaching page", zap.String("target", string(info.TargetID)), zap.Error(err))
		return
	}
	if err := s.attach(page); err != nil {
		s.logger.Warn("applying page policies", zap.Error(err))
	}
}

func (s *Session) downloadStarted(ev *proto.BrowserDownloadWillBegin) {
	if !s.owned && !s.ownsFrame(ev.FrameID) {
		return
	}

	guid := ev.GUID
	h := newDownloadHandle(ev, s.dlDir, func() error {
		return proto.BrowserCancelDownload{GUID: guid, BrowserContextID: s.contextID}.Call(s.browser)
	}, s.logger)

	s.mu.Lock()
	s.downloads[guid] = h
	fn := s.onDownload
	s.mu.Unlock()

	if fn == nil {
		s.logger.Warn("download without handler", zap.String("url", ev.URL))
		return
	}
	fn(h)
}

// ownsFrame reports whether frame id belongs to this session. Main frames and
// out-of-process iframes are targets of their own; other iframes are found in
// the frame trees of this session's pages.
func (s *Session) ownsFrame(id proto.PageFrameID) bool {
	res, err := proto.TargetGetTargetInfo{TargetID: proto.TargetTargetID(id)}.Call(s.browser)
	if err == nil && res.TargetInfo != nil {
		return s.claims(res.TargetInfo.BrowserContextID)
	}

	s.mu.Lock()
	pages := s.pageList()
	s.mu.Unlock()
	for _, ps := range pages {
		tree, err := proto.PageGetFrameTree{}.Call(ps.page)
		if err != nil {
			continue
		}
		if frameInTree(tree.FrameTree, id) {
			return true
		}
	}
	return false
}

func frameInTree(tree *proto.PageFrameTree, id proto.PageFrameID) bool {
	if tree == nil {
		return false
	}
	if tree.Frame != nil && tree.Frame.ID == id {
		return true
	}
	for _, child := range tree.ChildFrames {
		if frameInTree(child, id) {
			return true
		}
	}
	return false
}

func (s *Session) downloadProgress(ev *proto.BrowserDownloadProgress) {
	s.mu.Lock()
	h, ok := s.downloads[ev.GUID]
	if ok && ev.State != proto.BrowserDownloadProgressStateInProgress {
		delete(s.downloads, ev.GUID)
	}
	s.mu.Unlock()
	if ok {
		h.progress(ev)
	}
}

func (s *Session) pageList() []*pageState {
	out := make([]*pageState, 0, len(s.pages))
	for _, ps := range s.pages {
		out = append(out, ps)
	}
	return out
}
