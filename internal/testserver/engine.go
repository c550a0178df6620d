package testserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/rpggio/browserhost/internal/domain/download"
	"github.com/rpggio/browserhost/internal/domain/filter"
	"github.com/rpggio/browserhost/internal/domain/session"
)

// Engine is an in-memory content engine. Sessions record the policies applied
// to them and can simulate downloads.
type Engine struct {
	mu       sync.Mutex
	started  bool
	sessions map[session.PartitionKey]*Session
}

func (e *Engine) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	return nil
}

func (e *Engine) Close() error { return nil }

func (e *Engine) OpenSession(_ context.Context, key session.PartitionKey, dir string) (session.EngineSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessions == nil {
		e.sessions = map[session.PartitionKey]*Session{}
	}
	s := &Session{key: key, dir: dir}
	e.sessions[key] = s
	return s, nil
}

// Session returns the engine session opened for key, or nil.
func (e *Engine) Session(key session.PartitionKey) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[key]
}

// Session is one fake engine session.
type Session struct {
	key session.PartitionKey
	dir string

	mu         sync.Mutex
	userAgent  string
	blocker    session.Blocker
	onDownload func(download.Handle)
	pages      int
}

func (s *Session) SetUserAgent(ua string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userAgent = ua
	return nil
}

func (s *Session) SetBlocker(b session.Blocker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocker = b
	return nil
}

func (s *Session) SetPreloads([]string) error { return nil }

func (s *Session) SetDownloadHandler(fn func(download.Handle)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDownload = fn
	return nil
}

func (s *Session) OpenPage(_ context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages++
	return fmt.Sprintf("%s/%d", s.key, s.pages), nil
}

func (s *Session) Close() error { return nil }

// Blocks reports whether the session's blocker rejects url as a third-party
// script loaded by pageURL.
func (s *Session) Blocks(url, pageURL string) bool {
	s.mu.Lock()
	b := s.blocker
	s.mu.Unlock()
	if b == nil {
		return false
	}
	return b.Check(filter.Request{URL: url, SourceURL: pageURL, Type: filter.TypeScript}).Blocked
}

// StartDownload hands a new download to the host as if the page requested it.
func (s *Session) StartDownload(url, filename string, total int64) *Download {
	d := &Download{chain: []string{url}, filename: filename, total: total}
	s.mu.Lock()
	fn := s.onDownload
	s.mu.Unlock()
	if fn != nil {
		fn(d)
	}
	return d
}

// Download is a scripted download.Handle.
type Download struct {
	mu        sync.Mutex
	chain     []string
	filename  string
	total     int64
	received  int64
	savePath  string
	onUpdated []func(download.Progress)
	onDone    []func(download.State)
}

func (d *Download) URLChain() []string        { return d.chain }
func (d *Download) SuggestedFilename() string { return d.filename }
func (d *Download) MIMEType() string          { return "" }
func (d *Download) TotalBytes() int64         { return d.total }

func (d *Download) ReceivedBytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.received
}

func (d *Download) SavePath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.savePath
}

func (d *Download) SetSavePath(p string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.savePath = p
}

func (d *Download) Pause() error  { return nil }
func (d *Download) Resume() error { return nil }

func (d *Download) Cancel() error {
	d.Finish(download.StateCancelled)
	return nil
}

func (d *Download) OnUpdated(fn func(download.Progress)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUpdated = append(d.onUpdated, fn)
}

func (d *Download) OnDone(fn func(download.State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDone = append(d.onDone, fn)
}

// Progress reports received bytes to the host.
func (d *Download) Progress(received int64) {
	d.mu.Lock()
	d.received = received
	p := download.Progress{ReceivedBytes: received, TotalBytes: d.total}
	fns := append([]func(download.Progress)(nil), d.onUpdated...)
	d.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

// Finish reports a terminal state to the host.
func (d *Download) Finish(state download.State) {
	d.mu.Lock()
	if state == download.StateCompleted {
		d.received = d.total
	}
	fns := append([]func(download.State)(nil), d.onDone...)
	d.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}
