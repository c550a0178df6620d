package filter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrEngineUnavailable indicates the engine could neither be loaded from the
// cache file nor fetched.
var ErrEngineUnavailable = errors.New("filter engine unavailable")

// Fetcher builds a fresh engine from a remote source.
type Fetcher interface {
	Fetch(ctx context.Context) (*Engine, error)
}

// Cache owns the process-wide engine. The first GetEngine reads the cache
// file or falls back to the fetcher; later calls return the memoized engine.
// Concurrent loads are collapsed into one.
type Cache struct {
	path    string
	fetcher Fetcher
	logger  *zap.Logger

	group singleflight.Group

	mu          sync.Mutex
	engine      *Engine
	generation  uint64
	whitelisted map[string]struct{}
}

// NewCache creates a cache persisting the serialized engine at path.
func NewCache(path string, fetcher Fetcher, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		path:        path,
		fetcher:     fetcher,
		logger:      logger,
		whitelisted: make(map[string]struct{}),
	}
}

// GetEngine returns the engine, loading or fetching it on first use.
func (c *Cache) GetEngine(ctx context.Context) (*Engine, error) {
	c.mu.Lock()
	if c.engine != nil {
		e := c.engine
		c.mu.Unlock()
		return e, nil
	}
	gen := c.generation
	c.mu.Unlock()

	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		c.mu.Lock()
		if c.engine != nil {
			e := c.engine
			c.mu.Unlock()
			return e, nil
		}
		c.mu.Unlock()

		e, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation == gen && c.engine == nil {
			c.engine = e
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Engine), nil
}

// Current returns the loaded engine without loading it; nil when absent.
func (c *Cache) Current() *Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// Generation increases every time the engine is invalidated or replaced.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Invalidate drops the live engine so the next GetEngine rebuilds it from
// the cache file without previously added rules.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine = nil
	c.generation++
	c.whitelisted = make(map[string]struct{})
	c.logger.Debug("filter engine invalidated", zap.Uint64("generation", c.generation))
}

// AddRules adds rules to the live engine, loading it first if needed.
func (c *Cache) AddRules(ctx context.Context, rules []string) error {
	e, err := c.GetEngine(ctx)
	if err != nil {
		return err
	}
	e.AddRules(rules)
	return nil
}

// EnsureWhitelist loads the engine and adds page exceptions for the domains
// not yet whitelisted in this engine generation. It returns the engine.
func (c *Cache) EnsureWhitelist(ctx context.Context, domains []string) (*Engine, error) {
	e, err := c.GetEngine(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.engine != e {
		// Invalidated while loading; the next caller whitelists the new engine.
		c.mu.Unlock()
		return e, nil
	}
	var pending []string
	for _, d := range domains {
		if _, ok := c.whitelisted[d]; ok {
			continue
		}
		c.whitelisted[d] = struct{}{}
		pending = append(pending, d)
	}
	c.mu.Unlock()

	if len(pending) > 0 {
		n := e.AddRules(ExceptionRules(pending))
		c.logger.Debug("whitelist rules added", zap.Int("count", n))
	}
	return e, nil
}

// Refresh fetches a new engine, persists it and makes it current.
func (c *Cache) Refresh(ctx context.Context) (*Engine, error) {
	e, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.engine = e
	c.generation++
	c.whitelisted = make(map[string]struct{})
	c.mu.Unlock()
	return e, nil
}

func (c *Cache) load(ctx context.Context) (*Engine, error) {
	blob, err := os.ReadFile(c.path)
	switch {
	case err == nil:
		e, derr := Deserialize(blob)
		if derr == nil {
			c.logger.Info("filter engine loaded from cache", zap.Int("rules", e.Len()))
			return e, nil
		}
		c.logger.Warn("cached filter engine unusable, fetching", zap.Error(derr))
	case !errors.Is(err, os.ErrNotExist):
		c.logger.Warn("reading cached filter engine", zap.Error(err))
	}
	return c.fetch(ctx)
}

func (c *Cache) fetch(ctx context.Context) (*Engine, error) {
	if c.fetcher == nil {
		return nil, ErrEngineUnavailable
	}
	e, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	c.logger.Info("filter engine fetched", zap.Int("rules", e.Len()))

	if err := c.write(e); err != nil {
		c.logger.Warn("filter engine not cached", zap.Error(err))
	}
	return e, nil
}

func (c *Cache) write(e *Engine) error {
	blob, err := e.Serialize()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
