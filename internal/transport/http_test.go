package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rpggio/browserhost/internal/events"
	"github.com/rpggio/browserhost/internal/ipc"
	"github.com/rpggio/browserhost/internal/ipc/ipctest"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, hub *events.Hub, token string) *httptest.Server {
	t.Helper()
	api := &ipctest.API{}
	server := httptest.NewServer(NewServer(Options{
		Handler: ipc.NewHandler(api, nil),
		Hub:     hub,
		Token:   token,
	}))
	t.Cleanup(server.Close)
	return server
}

func rpc(t *testing.T, url, token, body string) Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/rpc", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHTTPServer_RPC(t *testing.T) {
	server := newTestServer(t, events.NewHub(nil), "tok")

	out := rpc(t, server.URL, "tok", `{"jsonrpc":"2.0","method":"create-profile","params":{"name":"Work"},"id":1}`)
	require.Nil(t, out.Error)
	require.Equal(t, float64(1), out.ID)
	require.Equal(t, "Work", out.Result.(map[string]any)["name"])
}

func TestHTTPServer_RPCErrors(t *testing.T) {
	server := newTestServer(t, events.NewHub(nil), "")

	out := rpc(t, server.URL, "", `{"jsonrpc":"2.0","method":"nope","id":2}`)
	require.NotNil(t, out.Error)
	require.Equal(t, ErrMethodNotFound, out.Error.Code)

	out = rpc(t, server.URL, "", `{"jsonrpc":"2.0","method":"delete-profile","params":{},"id":3}`)
	require.NotNil(t, out.Error)
	require.Equal(t, ErrInvalidParams, out.Error.Code)
	require.Equal(t, "INVALID_INPUT", out.Error.IPCCode())

	out = rpc(t, server.URL, "", `{"jsonrpc":`)
	require.Equal(t, ErrParseCode, out.Error.Code)
	require.Equal(t, CodeParseError, out.Error.IPCCode())

	out = rpc(t, server.URL, "", `{"jsonrpc":"1.0","method":"get-settings","id":4}`)
	require.Equal(t, ErrInvalidReq, out.Error.Code)
	require.Equal(t, CodeInvalidRequest, out.Error.IPCCode())
}

func TestHTTPServer_Unauthorized(t *testing.T) {
	server := newTestServer(t, events.NewHub(nil), "tok")

	resp, err := http.Post(server.URL+"/rpc", "application/json",
		bytes.NewBufferString(`{"jsonrpc":"2.0","method":"get-settings","id":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPServer_Health(t *testing.T) {
	server := newTestServer(t, nil, "tok")

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServer_Events(t *testing.T) {
	hub := events.NewHub(nil)
	server := newTestServer(t, hub, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	// The subscription exists once headers are flushed.
	hub.Publish("sleep-tab", map[string]string{"tab_id": "t1"})

	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())
	var ev events.Event
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
	require.Equal(t, "sleep-tab", ev.Name)
	require.Equal(t, uint64(1), ev.Seq)

	hub.Close()
	require.False(t, scanner.Scan())
}
