package mcp

import (
	"context"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/browserhost/internal/ipc"
	"github.com/rpggio/browserhost/internal/ipc/ipctest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTrafficLogging_ToolCalls(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	server := NewServer(Config{Handler: ipc.NewHandler(&ipctest.API{}, nil), Logger: zap.New(core)})
	cs := connect(t, server, nil)
	ctx := context.Background()

	_, err := cs.CallTool(ctx, &sdkmcp.CallToolParams{Name: ipc.MethodListProfiles, Arguments: map[string]any{}})
	require.NoError(t, err)
	_, err = cs.CallTool(ctx, &sdkmcp.CallToolParams{Name: ipc.MethodDeleteProfile, Arguments: map[string]any{}})
	require.NoError(t, err)

	var ok, failed []observer.LoggedEntry
	for _, e := range logs.FilterField(zap.String("direction", "inbound")).All() {
		switch e.Message {
		case "mcp request":
			if e.ContextMap()["ipc_method"] == ipc.MethodListProfiles {
				ok = append(ok, e)
			}
		case "ipc call failed":
			failed = append(failed, e)
		}
	}
	require.Len(t, ok, 1)
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	require.Equal(t, ipc.MethodDeleteProfile, fields["ipc_method"])
	require.Equal(t, "INVALID_INPUT", fields["code"])
	require.Equal(t, "tools/call", fields["mcp_method"])
}

func TestTrafficLogging_SkippedAboveDebug(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	server := NewServer(Config{Handler: ipc.NewHandler(&ipctest.API{}, nil), Logger: zap.New(core)})
	cs := connect(t, server, nil)

	_, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: ipc.MethodListProfiles, Arguments: map[string]any{}})
	require.NoError(t, err)
	require.Zero(t, logs.FilterMessage("mcp request").Len())
}

func TestToolError(t *testing.T) {
	require.Nil(t, toolError(&sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "{}"}}}))
	require.Nil(t, toolError(&sdkmcp.ListToolsResult{}))

	got := toolError(errorResult(&ipc.APIError{Code: "PROFILE_ACTIVE", Message: "profile is in use"}))
	require.NotNil(t, got)
	require.Equal(t, "PROFILE_ACTIVE", got.Code)
}
