package updater_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rpggio/browserhost/internal/updater"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(name string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newFeed(t *testing.T, version string, payload []byte, digest string) (*httptest.Server, *int) {
	t.Helper()
	var downloads int
	var mu sync.Mutex
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/feed.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"version":%q,"url":%q,"sha256":%q}`, version, srv.URL+"/app.tar.gz", digest)
	})
	mux.HandleFunc("/app.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		downloads++
		mu.Unlock()
		_, _ = w.Write(payload)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &downloads
}

func digestOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestNewer(t *testing.T) {
	require.True(t, updater.Newer("1.2.0", "1.1.9"))
	require.True(t, updater.Newer("v2.0.0", "1.9.9"))
	require.False(t, updater.Newer("1.0.0", "1.0.0"))
	require.False(t, updater.Newer("0.9.0", "1.0.0"))
	require.False(t, updater.Newer("garbage", "1.0.0"))
	require.True(t, updater.Newer("1.0.0", ""))
}

func TestUpdater_CheckAndDownload(t *testing.T) {
	payload := []byte("release-bytes")
	srv, downloads := newFeed(t, "0.2.0", payload, digestOf(payload))
	dataRoot := t.TempDir()
	rec := &recorder{}

	u := updater.New(updater.Options{
		FeedURL:        srv.URL + "/feed.json",
		CurrentVersion: "0.1.0",
		DataRoot:       dataRoot,
	}, rec, nil)

	rel, err := u.CheckAndDownload(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0.2.0", rel.Version)
	got, err := os.ReadFile(rel.Path)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.Equal(t, []string{updater.EventUpdateAvailable, updater.EventUpdateDownloaded}, rec.names())

	// A second check for the same release does not download again.
	_, err = u.CheckAndDownload(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, *downloads)
	require.Len(t, rec.names(), 2)

	pending, err := updater.Pending(dataRoot)
	require.NoError(t, err)
	require.Nil(t, pending)

	installed, err := u.Install()
	require.NoError(t, err)
	pending, err = updater.Pending(dataRoot)
	require.NoError(t, err)
	require.Equal(t, installed.Version, pending.Version)
	require.Equal(t, installed.Path, pending.Path)
}

func TestUpdater_NoUpdate(t *testing.T) {
	srv, _ := newFeed(t, "0.1.0", nil, "")
	rec := &recorder{}
	u := updater.New(updater.Options{
		FeedURL:        srv.URL + "/feed.json",
		CurrentVersion: "0.1.0",
		DataRoot:       t.TempDir(),
	}, rec, nil)

	_, err := u.CheckAndDownload(context.Background())
	require.ErrorIs(t, err, updater.ErrNoUpdate)
	require.Empty(t, rec.names())
}

func TestUpdater_ChecksumMismatch(t *testing.T) {
	srv, _ := newFeed(t, "0.2.0", []byte("tampered"), digestOf([]byte("original")))
	u := updater.New(updater.Options{
		FeedURL:        srv.URL + "/feed.json",
		CurrentVersion: "0.1.0",
		DataRoot:       t.TempDir(),
	}, &recorder{}, nil)

	_, err := u.CheckAndDownload(context.Background())
	require.ErrorIs(t, err, updater.ErrChecksum)

	_, err = u.Install()
	require.ErrorIs(t, err, updater.ErrNotDownloaded)
}

func TestUpdater_FeedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	u := updater.New(updater.Options{FeedURL: srv.URL, CurrentVersion: "0.1.0", DataRoot: t.TempDir()}, &recorder{}, nil)
	_, err := u.Check(context.Background())
	require.Error(t, err)
}

func TestUpdater_RunChecksAfterDelay(t *testing.T) {
	payload := []byte("release-bytes")
	srv, _ := newFeed(t, "0.2.0", payload, "")
	rec := &recorder{}
	u := updater.New(updater.Options{
		FeedURL:        srv.URL + "/feed.json",
		CurrentVersion: "0.1.0",
		DataRoot:       t.TempDir(),
		StartupDelay:   10 * time.Millisecond,
		Interval:       time.Hour,
	}, rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(rec.names()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestUpdater_RunWithoutFeed(t *testing.T) {
	u := updater.New(updater.Options{}, &recorder{}, nil)
	require.NoError(t, u.Run(context.Background()))
}
