package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// ErrInvalidInput indicates a settings blob that fails validation.
var ErrInvalidInput = errors.New("invalid settings")

// ChangeFunc observes a settings change.
type ChangeFunc func(prev, next Settings)

// Service caches the current settings and notifies subscribers when they
// change, whether through Save or an on-disk edit picked up by Reload.
type Service struct {
	repo   Repository
	logger *zap.Logger

	mu      sync.Mutex
	current Settings
	subs    map[int]ChangeFunc
	nextSub int
}

// NewService creates a settings service holding defaults until Load is called.
func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		logger:  logger,
		current: Defaults(),
		subs:    make(map[int]ChangeFunc),
	}
}

// Load reads the persisted settings. Missing or unreadable settings leave the
// defaults in place.
func (s *Service) Load(ctx context.Context) Settings {
	loaded, err := s.repo.Load(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil && !errors.Is(err, os.ErrNotExist):
		s.logger.Warn("settings unreadable, using defaults", zap.Error(err))
	case err == nil && loaded != nil:
		s.current = normalize(*loaded)
	}
	return s.current.Clone()
}

// Current returns a copy of the cached settings.
func (s *Service) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Save validates, persists and publishes new settings.
func (s *Service) Save(ctx context.Context, next Settings) (Settings, error) {
	if next.FreezeMinutes < 0 {
		return Settings{}, fmt.Errorf("%w: freeze_minutes must not be negative", ErrInvalidInput)
	}
	next = normalize(next)
	if err := s.repo.Save(ctx, &next); err != nil {
		return Settings{}, fmt.Errorf("saving settings: %w", err)
	}
	s.publish(next)
	return next.Clone(), nil
}

// Reload re-reads persisted settings and publishes them if they differ from
// the cached copy. A parse failure keeps the cached settings.
func (s *Service) Reload(ctx context.Context) error {
	loaded, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("reloading settings: %w", err)
	}
	if loaded == nil {
		return nil
	}
	s.publish(normalize(*loaded))
	return nil
}

// Subscribe registers fn for future changes and returns a function removing it.
func (s *Service) Subscribe(fn ChangeFunc) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Service) publish(next Settings) {
	s.mu.Lock()
	prev := s.current
	if prev.Equal(next) {
		s.mu.Unlock()
		return
	}
	s.current = next
	subs := make([]ChangeFunc, 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	s.logger.Debug("settings changed")
	for _, fn := range subs {
		fn(prev.Clone(), next.Clone())
	}
}

func normalize(in Settings) Settings {
	out := in.Clone()
	if out.FreezeMinutes <= 0 {
		out.FreezeMinutes = DefaultFreezeMinutes
	}
	out.AdBlockWhitelist = in.Whitelist()
	return out
}
