package hibernate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type signals struct {
	mu  sync.Mutex
	ids []string
}

func (s *signals) Publish(name string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, data.(SleepSignal).TabID)
}

func (s *signals) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestScheduler_ThresholdBoundaries(t *testing.T) {
	const T = 5 * time.Minute
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := &fakeClock{now: t0}
	pub := &signals{}
	s := NewScheduler(pub, func() time.Duration { return T }, Options{Now: clk.Now}, nil)

	s.TabAccessed("tab-1")

	clk.Set(t0.Add(T - time.Millisecond))
	require.Empty(t, s.Sweep())

	clk.Set(t0.Add(T + time.Millisecond))
	require.Equal(t, []string{"tab-1"}, s.Sweep())
	require.Zero(t, s.Tracked())

	clk.Set(t0.Add(2 * T))
	require.Empty(t, s.Sweep())
	require.Equal(t, []string{"tab-1"}, pub.list())
}

func TestScheduler_WakeReinserts(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := &fakeClock{now: t0}
	pub := &signals{}
	s := NewScheduler(pub, func() time.Duration { return time.Minute }, Options{Now: clk.Now}, nil)

	s.TabAccessed("a")
	s.TabAccessed("b")
	clk.Set(t0.Add(2 * time.Minute))
	s.TabAccessed("b")
	require.Equal(t, []string{"a"}, s.Sweep())

	s.Wake("a")
	clk.Set(t0.Add(4 * time.Minute))
	require.Equal(t, []string{"a", "b"}, s.Sweep())
	require.Equal(t, []string{"a", "a", "b"}, pub.list())
}

func TestScheduler_DisabledKeepsEntries(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	s := NewScheduler(nil, func() time.Duration { return 0 }, Options{Now: clk.Now}, nil)
	s.TabAccessed("a")
	clk.Set(clk.Now().Add(time.Hour))
	require.Empty(t, s.Sweep())
	require.Equal(t, 1, s.Tracked())

	s.Forget("a")
	require.Zero(t, s.Tracked())
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := &signals{}
	s := NewScheduler(pub, func() time.Duration { return time.Nanosecond }, Options{Interval: 5 * time.Millisecond}, nil)
	s.TabAccessed("a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(pub.list()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
