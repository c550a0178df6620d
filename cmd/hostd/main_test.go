package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rpggio/browserhost/internal/events"
	"github.com/rpggio/browserhost/internal/host"
	"github.com/rpggio/browserhost/internal/ipc"
	"github.com/rpggio/browserhost/internal/ipc/ipctest"
	"github.com/rpggio/browserhost/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestLogFileWriter_KeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hostd.log")
	w, file, err := newLogFileWriter(path)
	require.NoError(t, err)
	defer file.Close()

	line := []byte(strings.Repeat("x", 1023) + "\n")
	for i := 0; i < 7*1024; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.LessOrEqual(t, info.Size(), int64(maxLogSizeBytes))
	require.Greater(t, info.Size(), int64(keepLogSizeBytes)-1)
}

func TestNewLogger_Levels(t *testing.T) {
	var buf strings.Builder
	logger := newLogger("warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	require.Equal(t, "shown", entry["msg"])
	require.Equal(t, "hostd", entry["logger"])
}

func serveInstance(t *testing.T, root string, api *ipctest.API) {
	t.Helper()
	server := httptest.NewServer(transport.NewServer(transport.Options{
		Handler: ipc.NewHandler(api, nil),
		Hub:     events.NewHub(nil),
		Token:   "tok",
	}))
	t.Cleanup(server.Close)

	addr := strings.TrimPrefix(server.URL, "http://")
	require.NoError(t, writeInstance(instanceFile(root), instanceInfo{Addr: addr, Token: "tok", PID: 1}))
}

func TestForwardToRunning(t *testing.T) {
	root := t.TempDir()

	outcome, err := forwardToRunning(root, []string{"hostd"})
	require.NoError(t, err)
	require.Equal(t, noHost, outcome)

	api := &ipctest.API{}
	serveInstance(t, root, api)

	outcome, err = forwardToRunning(root, []string{"hostd", "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, handedOver, outcome)
	require.Equal(t, [][]string{{"hostd", "https://example.com"}}, api.Argv)
}

func TestForwardToRunning_RefusedLaunchRunsAlongside(t *testing.T) {
	root := t.TempDir()
	serveInstance(t, root, &ipctest.API{Err: fmt.Errorf("%w: incognito launches get a fresh storage root", host.ErrLaunchMismatch)})

	outcome, err := forwardToRunning(root, []string{"hostd", "--incognito"})
	require.NoError(t, err)
	require.Equal(t, runAlongside, outcome)
}

func TestForwardToRunning_LiveHostErrorRunsAlongside(t *testing.T) {
	root := t.TempDir()
	serveInstance(t, root, &ipctest.API{Err: errors.New("disk on fire")})

	outcome, err := forwardToRunning(root, []string{"hostd"})
	require.Error(t, err)
	require.Equal(t, runAlongside, outcome)
}

func TestForwardToRunning_StaleFile(t *testing.T) {
	root := t.TempDir()
	server := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(server.URL, "http://")
	server.Close()

	require.NoError(t, writeInstance(instanceFile(root), instanceInfo{Addr: addr}))
	outcome, err := forwardToRunning(root, []string{"hostd"})
	require.NoError(t, err)
	require.Equal(t, noHost, outcome)
}
