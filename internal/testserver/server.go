// Package testserver runs a complete host behind the HTTP transport with an
// in-memory content engine.
package testserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rpggio/browserhost/internal/config"
	"github.com/rpggio/browserhost/internal/domain/filter"
	"github.com/rpggio/browserhost/internal/host"
	"github.com/rpggio/browserhost/internal/ipc"
	"github.com/rpggio/browserhost/internal/launch"
	"github.com/rpggio/browserhost/internal/transport"
	"github.com/stretchr/testify/require"
)

// FilterRules is the filter list every test server starts with.
const FilterRules = "||ads.example^\n||tracker.example^$third-party"

type staticFetcher struct{}

func (staticFetcher) Fetch(context.Context) (*filter.Engine, error) {
	return filter.New(FilterRules), nil
}

// Restarter records restart requests instead of relaunching.
type Restarter struct {
	Args [][]string
}

func (r *Restarter) Restart(args []string) error {
	r.Args = append(r.Args, args)
	return nil
}

type TestServer struct {
	Server    *httptest.Server
	App       *host.App
	Engine    *Engine
	Restarter *Restarter
	Config    config.Config
	Token     string
}

// Options tweaks the configuration before the host starts.
type Options struct {
	Config func(*config.Config)
	Args   launch.Args
}

// New starts a host and serves it. The host is stopped when the test ends.
func New(t *testing.T, token string, opts Options) *TestServer {
	t.Helper()

	cfg := config.Default()
	cfg.Data.Root = t.TempDir()
	cfg.Downloads.Dir = t.TempDir()
	cfg.Updates.FeedURL = ""
	cfg.Platform = "linux"
	cfg.Transport.Token = token
	if opts.Config != nil {
		opts.Config(&cfg)
	}

	engine := &Engine{}
	restarter := &Restarter{}
	app, err := host.New(context.Background(), host.Options{
		Config:    cfg,
		Args:      opts.Args,
		Engine:    engine,
		Fetcher:   staticFetcher{},
		Restarter: restarter,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	require.Eventually(t, func() bool { return len(app.Sessions()) > 0 }, 2*time.Second, 5*time.Millisecond)

	server := httptest.NewServer(transport.NewServer(transport.Options{
		Handler: ipc.NewHandler(app, nil),
		Hub:     app.Events(),
		Token:   token,
	}))

	t.Cleanup(func() {
		server.Close()
		cancel()
		require.NoError(t, <-done)
		require.NoError(t, app.Close())
	})

	return &TestServer{
		Server:    server,
		App:       app,
		Engine:    engine,
		Restarter: restarter,
		Config:    cfg,
		Token:     token,
	}
}

// Call invokes method over JSON-RPC and decodes the result into out when
// non-nil. A JSON-RPC error is returned as *transport.Error.
func (ts *TestServer) Call(t *testing.T, method string, params any, out any) *transport.Error {
	t.Helper()

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		require.NoError(t, err)
		raw = data
	}
	body, err := json.Marshal(transport.Request{JSONRPC: "2.0", Method: method, Params: raw, ID: 1})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+"/rpc", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if ts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.Token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Result json.RawMessage  `json:"result"`
		Error  *transport.Error `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	if envelope.Error != nil {
		return envelope.Error
	}
	if out != nil {
		require.NoError(t, json.Unmarshal(envelope.Result, out))
	}
	return nil
}

// MustCall is Call that fails the test on a JSON-RPC error.
func (ts *TestServer) MustCall(t *testing.T, method string, params any, out any) {
	t.Helper()
	rpcErr := ts.Call(t, method, params, out)
	require.Nil(t, rpcErr, "%s failed: %+v", method, rpcErr)
}
