package rodengine

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-rod/rod/lib/proto"
	"github.com/rpggio/browserhost/internal/domain/download"
	"go.uber.org/zap"
)

// ErrPauseUnsupported is returned for pause and resume, which the DevTools
// protocol does not offer.
var ErrPauseUnsupported = fmt.Errorf("pausing downloads: %w", errors.ErrUnsupported)

// downloadHandle adapts one browser download to download.Handle. The browser
// writes to tmpPath, named by the download GUID, and the file is moved to the
// chosen save path on completion.
type downloadHandle struct {
	guid      string
	urlChain  []string
	suggested string
	tmpPath   string
	cancel    func() error
	logger    *zap.Logger

	mu        sync.Mutex
	savePath  string
	total     int64
	received  int64
	final     download.State
	onUpdated []func(download.Progress)
	onDone    []func(download.State)
}

func newDownloadHandle(ev *proto.BrowserDownloadWillBegin, dir string, cancel func() error, logger *zap.Logger) *downloadHandle {
	return &downloadHandle{
		guid:      ev.GUID,
		urlChain:  []string{ev.URL},
		suggested: ev.SuggestedFilename,
		tmpPath:   filepath.Join(dir, ev.GUID),
		cancel:    cancel,
		logger:    logger,
	}
}

func (h *downloadHandle) URLChain() []string        { return h.urlChain }
func (h *downloadHandle) SuggestedFilename() string { return h.suggested }

func (h *downloadHandle) MIMEType() string {
	return mime.TypeByExtension(filepath.Ext(h.suggested))
}

func (h *downloadHandle) TotalBytes() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func (h *downloadHandle) ReceivedBytes() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.received
}

func (h *downloadHandle) SavePath() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.savePath
}

func (h *downloadHandle) SetSavePath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.savePath = path
}

func (h *downloadHandle) Pause() error  { return ErrPauseUnsupported }
func (h *downloadHandle) Resume() error { return ErrPauseUnsupported }

func (h *downloadHandle) Cancel() error {
	if h.cancel == nil {
		return nil
	}
	return h.cancel()
}

func (h *downloadHandle) OnUpdated(fn func(download.Progress)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onUpdated = append(h.onUpdated, fn)
}

// OnDone registers fn. A download that already finished reports at once.
func (h *downloadHandle) OnDone(fn func(download.State)) {
	h.mu.Lock()
	final := h.final
	if final == "" {
		h.onDone = append(h.onDone, fn)
	}
	h.mu.Unlock()
	if final != "" {
		fn(final)
	}
}

// progress applies a DownloadProgress event.
func (h *downloadHandle) progress(ev *proto.BrowserDownloadProgress) {
	h.mu.Lock()
	if h.final != "" {
		h.mu.Unlock()
		return
	}
	h.total = int64(ev.TotalBytes)
	h.received = int64(ev.ReceivedBytes)

	var final download.State
	switch ev.State {
	case proto.BrowserDownloadProgressStateCompleted:
		final = download.StateCompleted
		if err := h.moveLocked(); err != nil {
			h.logger.Warn("moving finished download", zap.String("guid", h.guid), zap.Error(err))
			final = download.StateInterrupted
		}
	case proto.BrowserDownloadProgressStateCanceled:
		final = download.StateCancelled
	}

	if final == "" {
		p := download.Progress{ReceivedBytes: h.received, TotalBytes: h.total}
		listeners := append([]func(download.Progress)(nil), h.onUpdated...)
		h.mu.Unlock()
		for _, fn := range listeners {
			fn(p)
		}
		return
	}

	h.final = final
	listeners := h.onDone
	h.onDone = nil
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(final)
	}
}

func (h *downloadHandle) moveLocked() error {
	if h.savePath == "" || h.savePath == h.tmpPath {
		h.savePath = h.tmpPath
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.savePath), 0o755); err != nil {
		return err
	}
	return os.Rename(h.tmpPath, h.savePath)
}
