package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rpggio/browserhost/internal/ipc"
	"github.com/rpggio/browserhost/internal/transport"
)

// instanceInfo is written by the HTTP-mode host so later launches can hand
// their arguments over instead of starting a second host.
type instanceInfo struct {
	Addr  string `json:"addr"`
	Token string `json:"token,omitempty"`
	PID   int    `json:"pid"`
}

func instanceFile(dataRoot string) string {
	return filepath.Join(dataRoot, "instance.json")
}

func writeInstance(path string, info instanceInfo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// handoff is the outcome of offering a launch to the running host.
type handoff int

const (
	// noHost means no live host is recorded; this process becomes the host.
	noHost handoff = iota
	// handedOver means the running host took the launch.
	handedOver
	// runAlongside means a host is running but this launch needs its own
	// storage root, so it runs without taking over the instance file.
	runAlongside
)

// forwardToRunning offers argv to the host recorded in the instance file.
func forwardToRunning(dataRoot string, argv []string) (handoff, error) {
	data, err := os.ReadFile(instanceFile(dataRoot))
	if errors.Is(err, os.ErrNotExist) {
		return noHost, nil
	}
	if err != nil {
		return noHost, err
	}
	var info instanceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return noHost, fmt.Errorf("reading instance file: %w", err)
	}

	params, err := json.Marshal(ipc.SecondInstanceParams{Argv: argv})
	if err != nil {
		return noHost, err
	}
	body, err := json.Marshal(transport.Request{
		JSONRPC: "2.0",
		Method:  ipc.MethodSecondInstance,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return noHost, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+info.Addr+"/rpc", bytes.NewReader(body))
	if err != nil {
		return noHost, err
	}
	req.Header.Set("Content-Type", "application/json")
	if info.Token != "" {
		req.Header.Set("Authorization", "Bearer "+info.Token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		// Stale file from a host that did not shut down cleanly.
		return noHost, nil
	}
	defer resp.Body.Close()

	// From here on a host is listening, so this process must not take its port.
	if resp.StatusCode != http.StatusOK {
		return runAlongside, fmt.Errorf("running instance answered %s", resp.Status)
	}
	var out transport.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return runAlongside, err
	}
	switch {
	case out.Error == nil:
		return handedOver, nil
	case out.Error.IPCCode() == "LAUNCH_MISMATCH":
		return runAlongside, nil
	default:
		return runAlongside, fmt.Errorf("running instance rejected arguments: %s", out.Error.Message)
	}
}
