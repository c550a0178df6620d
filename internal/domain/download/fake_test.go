package download_test

import (
	"sync"
	"time"

	"github.com/rpggio/browserhost/internal/domain/download"
)

type fakeHandle struct {
	mu        sync.Mutex
	chain     []string
	suggested string
	mimeType  string
	total     int64
	received  int64
	savePath  string
	cancelled bool
	paused    bool
	onUpdated []func(download.Progress)
	onDone    []func(download.State)
}

func (h *fakeHandle) URLChain() []string        { return h.chain }
func (h *fakeHandle) SuggestedFilename() string { return h.suggested }
func (h *fakeHandle) MIMEType() string          { return h.mimeType }
func (h *fakeHandle) TotalBytes() int64         { h.mu.Lock(); defer h.mu.Unlock(); return h.total }
func (h *fakeHandle) ReceivedBytes() int64      { h.mu.Lock(); defer h.mu.Unlock(); return h.received }
func (h *fakeHandle) SavePath() string          { h.mu.Lock(); defer h.mu.Unlock(); return h.savePath }
func (h *fakeHandle) SetSavePath(p string)      { h.mu.Lock(); defer h.mu.Unlock(); h.savePath = p }
func (h *fakeHandle) Pause() error              { h.paused = true; return nil }
func (h *fakeHandle) Resume() error             { h.paused = false; return nil }
func (h *fakeHandle) Cancel() error {
	h.cancelled = true
	h.done(download.StateCancelled)
	return nil
}

func (h *fakeHandle) OnUpdated(fn func(download.Progress)) { h.onUpdated = append(h.onUpdated, fn) }
func (h *fakeHandle) OnDone(fn func(download.State))       { h.onDone = append(h.onDone, fn) }

func (h *fakeHandle) progress(received int64) {
	h.mu.Lock()
	h.received = received
	p := download.Progress{ReceivedBytes: received, TotalBytes: h.total}
	h.mu.Unlock()
	for _, fn := range h.onUpdated {
		fn(p)
	}
}

func (h *fakeHandle) done(s download.State) {
	for _, fn := range h.onDone {
		fn(s)
	}
}

type published struct {
	name string
	item download.Item
}

type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(name string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{name: name, item: data.(download.Item)})
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.name
	}
	return out
}

func (r *recorder) last() download.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1].item
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
