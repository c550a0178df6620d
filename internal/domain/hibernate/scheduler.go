// Package hibernate puts idle tabs to sleep.
package hibernate

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventSleepTab is published once per tab that should be slept.
const EventSleepTab = "sleep-tab"

// DefaultInterval is the sweep period.
const DefaultInterval = 30 * time.Second

// SleepSignal is the payload of EventSleepTab.
type SleepSignal struct {
	TabID string `json:"tab_id"`
}

// Publisher receives sleep signals.
type Publisher interface {
	Publish(name string, data any)
}

// Options configures a Scheduler.
type Options struct {
	Interval time.Duration
	Now      func() time.Time
}

// Scheduler tracks when each tab was last accessed and periodically signals
// the tabs idle for longer than the threshold. A signalled tab is dropped
// from the table until it is accessed or woken again.
type Scheduler struct {
	pub       Publisher
	threshold func() time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu     sync.Mutex
	access map[string]time.Time
}

// NewScheduler creates a scheduler. threshold is consulted on every sweep; a
// zero threshold disables sleeping.
func NewScheduler(pub Publisher, threshold func() time.Duration, opts Options, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		pub:       pub,
		threshold: threshold,
		interval:  opts.Interval,
		now:       opts.Now,
		logger:    logger,
		access:    make(map[string]time.Time),
	}
}

// TabAccessed records that a tab became the active tab.
func (s *Scheduler) TabAccessed(tabID string) {
	if tabID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access[tabID] = s.now()
}

// Wake records that a previously slept tab regained focus.
func (s *Scheduler) Wake(tabID string) {
	s.TabAccessed(tabID)
}

// Forget drops a closed tab.
func (s *Scheduler) Forget(tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, tabID)
}

// Tracked returns the number of tabs in the access table.
func (s *Scheduler) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.access)
}

// Sweep signals every tab idle for longer than the threshold and returns
// their ids in order.
func (s *Scheduler) Sweep() []string {
	threshold := s.threshold()
	if threshold <= 0 {
		return nil
	}

	s.mu.Lock()
	now := s.now()
	var idle []string
	for id, last := range s.access {
		if now.Sub(last) > threshold {
			idle = append(idle, id)
		}
	}
	for _, id := range idle {
		delete(s.access, id)
	}
	s.mu.Unlock()

	slices.Sort(idle)
	for _, id := range idle {
		s.logger.Debug("tab idle, sleeping", zap.String("tab_id", id))
		if s.pub != nil {
			s.pub.Publish(EventSleepTab, SleepSignal{TabID: id})
		}
	}
	return idle
}

// Run sweeps on every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}
