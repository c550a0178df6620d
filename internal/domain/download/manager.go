package download

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification names.
const (
	EventStarted  = "download-started"
	EventProgress = "download-progress"
	EventComplete = "download-complete"
)

// DefaultHistoryLimit is the number of history records kept.
const DefaultHistoryLimit = 50

// Options configures a Manager.
type Options struct {
	Dir            string
	HistoryLimit   int
	Extensions     ExtensionPolicy
	SampleInterval time.Duration
	Now            func() time.Time
}

// Manager owns every in-flight download across all sessions.
type Manager struct {
	history HistoryRepository
	pub     Publisher
	logger  *zap.Logger
	opts    Options

	mu     sync.Mutex
	live   map[string]*tracker
	saveAs map[string]string
}

// tracker is the state machine for one live download.
type tracker struct {
	item       Item
	handle     Handle
	lastSample time.Time
	lastBytes  int64
}

// NewManager creates a download manager.
func NewManager(history HistoryRepository, pub Publisher, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Extensions == nil {
		opts.Extensions = ImageExtensions()
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		history: history,
		pub:     pub,
		logger:  logger,
		opts:    opts,
		live:    make(map[string]*tracker),
		saveAs:  make(map[string]string),
	}
}

// SaveAs records a destination the user picked for the next download of
// url. It is used once and then forgotten.
func (m *Manager) SaveAs(url, path string) error {
	if url == "" || path == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveAs[url] = path
	return nil
}

// Start begins tracking a download the engine just reported. Listeners are
// attached before Start returns so no progress or completion is missed.
func (m *Manager) Start(partition string, h Handle) Item {
	now := m.opts.Now()
	chain := h.URLChain()
	var original, final string
	if len(chain) > 0 {
		original, final = chain[0], chain[len(chain)-1]
	}

	m.mu.Lock()
	savePath, picked := m.takeSaveAs(original, final)
	filename := DeriveFilename(h.SuggestedFilename(), final, h.MIMEType(), now, m.opts.Extensions)
	if picked {
		filename = filepath.Base(savePath)
	} else {
		savePath = uniquePath(filepath.Join(m.opts.Dir, filename), m.reservedLocked)
		filename = filepath.Base(savePath)
	}

	t := &tracker{
		item: Item{
			ID:            uuid.NewString(),
			Filename:      filename,
			URLChain:      slices.Clone(chain),
			SavePath:      savePath,
			TotalBytes:    h.TotalBytes(),
			ReceivedBytes: h.ReceivedBytes(),
			State:         StateProgressing,
			StartTime:     now,
		},
		handle:     h,
		lastSample: now,
		lastBytes:  h.ReceivedBytes(),
	}
	m.live[t.item.ID] = t
	item := t.item
	m.mu.Unlock()

	h.SetSavePath(savePath)
	id := item.ID
	h.OnUpdated(func(p Progress) { m.updated(id, p) })
	h.OnDone(func(s State) { m.done(id, s) })

	m.logger.Info("download started",
		zap.String("download_id", id),
		zap.String("partition", partition),
		zap.String("filename", filename))
	m.publish(EventStarted, item)
	return item
}

// reservedLocked reports whether a live download already targets p.
func (m *Manager) reservedLocked(p string) bool {
	for _, t := range m.live {
		if t.item.SavePath == p {
			return true
		}
	}
	return false
}

func (m *Manager) takeSaveAs(urls ...string) (string, bool) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		if p, ok := m.saveAs[u]; ok {
			delete(m.saveAs, u)
			return p, true
		}
	}
	return "", false
}

func (m *Manager) updated(id string, p Progress) {
	m.mu.Lock()
	t, ok := m.live[id]
	if !ok || t.item.State.Terminal() {
		m.mu.Unlock()
		return
	}

	now := m.opts.Now()
	if p.TotalBytes > 0 {
		t.item.TotalBytes = p.TotalBytes
	}
	t.item.ReceivedBytes = p.ReceivedBytes
	if t.item.TotalBytes > 0 && t.item.ReceivedBytes > t.item.TotalBytes {
		t.item.ReceivedBytes = t.item.TotalBytes
	}
	if p.Paused {
		t.item.State = StatePaused
	} else {
		t.item.State = StateProgressing
	}
	t.item.IsPaused = p.Paused

	if elapsed := now.Sub(t.lastSample); elapsed >= m.opts.SampleInterval {
		speed := float64(t.item.ReceivedBytes-t.lastBytes) / elapsed.Seconds()
		if speed < 0 {
			speed = 0
		}
		t.item.Speed = speed
		t.item.ETA = 0
		if speed > 0 && t.item.TotalBytes > 0 {
			t.item.ETA = float64(t.item.TotalBytes-t.item.ReceivedBytes) / speed
		}
		t.lastSample = now
		t.lastBytes = t.item.ReceivedBytes
	}
	item := t.item
	m.mu.Unlock()

	m.publish(EventProgress, item)
}

func (m *Manager) done(id string, s State) {
	if !s.Terminal() {
		m.logger.Warn("ignoring non-terminal done state", zap.String("download_id", id), zap.String("state", string(s)))
		return
	}
	m.mu.Lock()
	t, ok := m.live[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if s == StateCompleted {
		// The engine may have moved the file after the path was set.
		if p := t.handle.SavePath(); p != "" {
			t.item.SavePath = p
			t.item.Filename = filepath.Base(p)
		}
		if total := t.handle.TotalBytes(); total > 0 {
			t.item.TotalBytes = total
		}
		t.item.ReceivedBytes = t.handle.ReceivedBytes()
		if t.item.TotalBytes > 0 && t.item.ReceivedBytes > t.item.TotalBytes {
			t.item.ReceivedBytes = t.item.TotalBytes
		}
	}
	item := m.finishLocked(t, s)
	m.mu.Unlock()

	m.record(item)
}

// finishLocked moves t out of the live table into its terminal state.
func (m *Manager) finishLocked(t *tracker, s State) Item {
	t.item.State = s
	t.item.IsPaused = false
	t.item.Speed = 0
	t.item.ETA = 0
	t.item.EndTime = m.opts.Now()
	delete(m.live, t.item.ID)
	return t.item
}

func (m *Manager) record(item Item) {
	m.logger.Info("download finished",
		zap.String("download_id", item.ID),
		zap.String("state", string(item.State)))
	m.publish(EventComplete, item)

	rec := Record{
		ID:            item.ID,
		Filename:      item.Filename,
		URL:           item.URL(),
		SavePath:      item.SavePath,
		TotalBytes:    item.TotalBytes,
		ReceivedBytes: item.ReceivedBytes,
		State:         item.State,
		StartTime:     item.StartTime,
		EndTime:       item.EndTime,
	}
	if m.history == nil {
		return
	}
	if err := m.history.Append(context.Background(), rec, m.opts.HistoryLimit); err != nil {
		m.logger.Warn("download history not saved", zap.String("download_id", item.ID), zap.Error(err))
	}
}

// Control applies a user action. Unknown ids and finished downloads are
// ignored.
func (m *Manager) Control(id string, action Action) error {
	switch action {
	case ActionPause, ActionResume, ActionCancel:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	m.mu.Lock()
	t, ok := m.live[id]
	if !ok || t.item.State.Terminal() {
		m.mu.Unlock()
		return nil
	}

	switch action {
	case ActionCancel:
		h := t.handle
		item := m.finishLocked(t, StateCancelled)
		m.mu.Unlock()
		if err := h.Cancel(); err != nil {
			m.logger.Warn("engine cancel failed", zap.String("download_id", id), zap.Error(err))
		}
		m.record(item)
		return nil

	case ActionPause:
		if t.item.State != StateProgressing {
			m.mu.Unlock()
			return nil
		}
		if err := t.handle.Pause(); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("pausing download: %w", err)
		}
		t.item.State = StatePaused
		t.item.IsPaused = true

	case ActionResume:
		if t.item.State != StatePaused {
			m.mu.Unlock()
			return nil
		}
		if err := t.handle.Resume(); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("resuming download: %w", err)
		}
		t.item.State = StateProgressing
		t.item.IsPaused = false
		t.lastSample = m.opts.Now()
		t.lastBytes = t.item.ReceivedBytes
	}
	item := t.item
	m.mu.Unlock()

	m.publish(EventProgress, item)
	return nil
}

// Get returns a live download.
func (m *Manager) Get(id string) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.live[id]
	if !ok {
		return Item{}, false
	}
	return t.item, true
}

// List returns the live downloads, oldest first.
func (m *Manager) List() []Item {
	m.mu.Lock()
	items := make([]Item, 0, len(m.live))
	for _, t := range m.live {
		items = append(items, t.item)
	}
	m.mu.Unlock()

	slices.SortFunc(items, func(a, b Item) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return items
}

// History returns persisted records, most recent first.
func (m *Manager) History(ctx context.Context) ([]Record, error) {
	if m.history == nil {
		return []Record{}, nil
	}
	recs, err := m.history.List(ctx, m.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("listing download history: %w", err)
	}
	return recs, nil
}

func (m *Manager) publish(name string, item Item) {
	if m.pub == nil {
		return
	}
	m.pub.Publish(name, item)
}
