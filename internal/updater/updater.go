// Package updater checks a release feed, downloads newer releases into the
// data root and marks them for installation on the next launch.
package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// Notification names.
const (
	EventUpdateAvailable  = "update-available"
	EventUpdateDownloaded = "update-downloaded"
)

const maxReleaseBytes = 512 << 20

var (
	// ErrNoUpdate indicates the feed has nothing newer than the running version.
	ErrNoUpdate = errors.New("no update available")
	// ErrChecksum indicates a downloaded release does not match the feed digest.
	ErrChecksum = errors.New("release checksum mismatch")
	// ErrNotDownloaded indicates Install was called before a release was fetched.
	ErrNotDownloaded = errors.New("no downloaded release")
)

// Release is one entry of the update feed.
type Release struct {
	Version string `json:"version" yaml:"version"`
	URL     string `json:"url" yaml:"url"`
	SHA256  string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Notes   string `json:"notes,omitempty" yaml:"notes,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Publisher receives update notifications.
type Publisher interface {
	Publish(name string, data any)
}

// Options configures an Updater.
type Options struct {
	FeedURL        string
	CurrentVersion string
	DataRoot       string
	StartupDelay   time.Duration
	Interval       time.Duration
	Client         *http.Client
}

// Updater polls the feed on a fixed schedule. All failures are logged and
// retried at the next tick.
type Updater struct {
	opts   Options
	pub    Publisher
	logger *zap.Logger

	mu         sync.Mutex
	downloaded *Release
}

// New creates an updater.
func New(opts Options, pub Publisher, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Minute}
	}
	if opts.StartupDelay <= 0 {
		opts.StartupDelay = 10 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	return &Updater{opts: opts, pub: pub, logger: logger}
}

// Run checks once after the startup delay and then on every interval until
// ctx is done. It returns nil immediately when no feed is configured.
func (u *Updater) Run(ctx context.Context) error {
	if u.opts.FeedURL == "" {
		u.logger.Debug("update feed not configured")
		return nil
	}

	timer := time.NewTimer(u.opts.StartupDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}
	u.tick(ctx)

	ticker := time.NewTicker(u.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			u.tick(ctx)
		}
	}
}

func (u *Updater) tick(ctx context.Context) {
	if _, err := u.CheckAndDownload(ctx); err != nil && !errors.Is(err, ErrNoUpdate) {
		u.logger.Warn("update check failed", zap.Error(err))
	}
}

// CheckAndDownload fetches the feed and, when it names a newer release,
// downloads it. A release already downloaded is not fetched again.
func (u *Updater) CheckAndDownload(ctx context.Context) (*Release, error) {
	rel, err := u.Check(ctx)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	done := u.downloaded != nil && u.downloaded.Version == rel.Version
	u.mu.Unlock()
	if done {
		return rel, nil
	}

	u.pub.Publish(EventUpdateAvailable, rel)
	got, err := u.Download(ctx, *rel)
	if err != nil {
		return nil, err
	}
	u.pub.Publish(EventUpdateDownloaded, got)
	return got, nil
}

// Check reads the feed and returns the advertised release if it is newer than
// the running version.
func (u *Updater) Check(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.opts.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}
	resp, err := u.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching feed: status %d", resp.StatusCode)
	}

	var rel Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}
	if rel.Version == "" || rel.URL == "" {
		return nil, fmt.Errorf("decoding feed: release needs version and url")
	}
	if !Newer(rel.Version, u.opts.CurrentVersion) {
		return nil, ErrNoUpdate
	}
	u.logger.Info("update available",
		zap.String("current", u.opts.CurrentVersion),
		zap.String("version", rel.Version))
	return &rel, nil
}

// Download fetches the release into <data>/updates and verifies its digest
// when the feed provides one.
func (u *Updater) Download(ctx context.Context, rel Release) (*Release, error) {
	dir := filepath.Join(u.opts.DataRoot, "updates")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating updates dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rel.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}
	resp, err := u.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading release: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, ".release-*")
	if err != nil {
		return nil, fmt.Errorf("creating release file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, hash), io.LimitReader(resp.Body, maxReleaseBytes))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("writing release: %w", err)
	}
	if want := strings.ToLower(rel.SHA256); want != "" && want != hex.EncodeToString(hash.Sum(nil)) {
		return nil, ErrChecksum
	}

	rel.Path = filepath.Join(dir, releaseFileName(rel))
	if err := os.Rename(tmp.Name(), rel.Path); err != nil {
		return nil, fmt.Errorf("storing release: %w", err)
	}

	u.mu.Lock()
	u.downloaded = &rel
	u.mu.Unlock()
	u.logger.Info("update downloaded", zap.String("version", rel.Version), zap.String("path", rel.Path))
	return &rel, nil
}

// Install marks the downloaded release to be applied on the next launch.
func (u *Updater) Install() (*Release, error) {
	u.mu.Lock()
	rel := u.downloaded
	u.mu.Unlock()
	if rel == nil {
		return nil, ErrNotDownloaded
	}

	data, err := yaml.Marshal(rel)
	if err != nil {
		return nil, fmt.Errorf("encoding pending release: %w", err)
	}
	if err := os.WriteFile(pendingPath(u.opts.DataRoot), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing pending release: %w", err)
	}
	out := *rel
	return &out, nil
}

// Pending returns the release marked for installation under dataRoot, or nil.
func Pending(dataRoot string) (*Release, error) {
	data, err := os.ReadFile(pendingPath(dataRoot))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading pending release: %w", err)
	}
	var rel Release
	if err := yaml.Unmarshal(data, &rel); err != nil {
		return nil, fmt.Errorf("decoding pending release: %w", err)
	}
	return &rel, nil
}

// Newer reports whether version is a later semantic version than current.
// Versions may omit the leading "v".
func Newer(version, current string) bool {
	v, c := canonical(version), canonical(current)
	if !semver.IsValid(v) {
		return false
	}
	if !semver.IsValid(c) {
		return true
	}
	return semver.Compare(v, c) > 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func pendingPath(dataRoot string) string {
	return filepath.Join(dataRoot, "updates", "pending.yaml")
}

func releaseFileName(rel Release) string {
	name := "release"
	if base := filepath.Base(strings.SplitN(rel.URL, "?", 2)[0]); base != "." && base != "/" && base != "" {
		name = base
	}
	return canonical(rel.Version) + "-" + name
}
