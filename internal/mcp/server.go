// Package mcp exposes the IPC methods as MCP tools over stdio and pushes host
// events to connected clients as logging notifications.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/browserhost/internal/events"
	"github.com/rpggio/browserhost/internal/ipc"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

// Handler dispatches IPC methods.
type Handler interface {
	Handle(ctx context.Context, method string, params json.RawMessage) (any, error)
}

// Config contains server configuration.
type Config struct {
	Handler Handler
	Version string
	Logger  *zap.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "browserhost",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       sdkLogger(logger),
	})

	registerDocResources(server)

	traffic := logger.Named("mcp")
	server.AddReceivingMiddleware(trafficLoggingMiddleware(traffic, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(traffic, "outbound"))

	registerTools(server, cfg.Handler)

	return server
}

// sdkLogger routes the SDK's own slog output into the host's zap core.
func sdkLogger(logger *zap.Logger) *slog.Logger {
	return slog.New(zapslog.NewHandler(logger.Core(), zapslog.WithName("mcp.sdk")))
}

func registerTools(server *sdkmcp.Server, h Handler) {
	for _, m := range ipc.Catalog() {
		server.AddTool(&sdkmcp.Tool{
			Name:        m.Name,
			Description: m.Description,
			InputSchema: m.InputSchema,
		}, toolHandler(h, m.Name))
	}
}

func toolHandler(h Handler, method string) sdkmcp.ToolHandler {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		var args json.RawMessage
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		result, err := h.Handle(ctx, method, args)
		if err != nil {
			return errorResult(err), nil
		}
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encoding %s result: %w", method, err)
		}
		return &sdkmcp.CallToolResult{
			Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
		}, nil
	}
}

func errorResult(err error) *sdkmcp.CallToolResult {
	var apiErr *ipc.APIError
	if !errors.As(err, &apiErr) {
		apiErr = &ipc.APIError{Code: ipc.CodeInternal, Message: err.Error()}
	}
	data, _ := json.Marshal(apiErr)
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}
}

// ForwardEvents sends every hub event to each connected session as an info
// log notification. It returns when ctx is done or the hub closes.
func ForwardEvents(ctx context.Context, server *sdkmcp.Server, hub *events.Hub, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ch, cancel := hub.Subscribe(0)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			for ss := range server.Sessions() {
				err := ss.Log(ctx, &sdkmcp.LoggingMessageParams{
					Level:  "info",
					Logger: "browserhost",
					Data:   ev,
				})
				if err != nil {
					logger.Debug("event not delivered", zap.String("event", ev.Name), zap.Error(err))
				}
			}
		}
	}
}
