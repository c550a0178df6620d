package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxListSize = 32 << 20

// HTTPFetcher downloads filter lists and compiles them into an engine.
type HTTPFetcher struct {
	client *http.Client
	urls   []string
	logger *zap.Logger
}

// NewHTTPFetcher creates a fetcher for the given list URLs.
func NewHTTPFetcher(urls []string, timeout time.Duration, logger *zap.Logger) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		urls:   urls,
		logger: logger,
	}
}

// Fetch downloads every list. Lists that fail are skipped; it is an error
// only when none could be downloaded.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*Engine, error) {
	if len(f.urls) == 0 {
		return nil, errors.New("no filter lists configured")
	}
	lists := make([]string, 0, len(f.urls))
	var errs []error
	for _, u := range f.urls {
		body, err := f.get(ctx, u)
		if err != nil {
			f.logger.Warn("filter list fetch failed", zap.String("url", u), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		lists = append(lists, body)
	}
	if len(lists) == 0 {
		return nil, errors.Join(errs...)
	}
	return New(lists...), nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, io.LimitReader(resp.Body, maxListSize)); err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	return b.String(), nil
}
