package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/browserhost/internal/events"
	"github.com/rpggio/browserhost/internal/ipc"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// trafficLoggingMiddleware logs MCP traffic at debug level in IPC terms.
// Tool calls are logged by IPC method, failed calls by their IPC error code,
// and forwarded events by name and sequence number.
func trafficLoggingMiddleware(logger *zap.Logger, direction string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if logger == nil || !logger.Core().Enabled(zapcore.DebugLevel) {
				return next(ctx, method, req)
			}

			fields := append([]zap.Field{
				zap.String("direction", direction),
				zap.String("mcp_method", method),
				zap.String("session_id", safeSessionID(req)),
			}, requestFields(req)...)

			start := time.Now()
			result, err := next(ctx, method, req)
			if strings.HasPrefix(method, "notifications/") {
				logger.Debug("mcp notification", append(fields, zap.Error(err))...)
				return result, err
			}

			fields = append(fields, zap.Duration("elapsed", time.Since(start)))
			switch apiErr := toolError(result); {
			case err != nil:
				logger.Debug("mcp request failed", append(fields, zap.Error(err))...)
			case apiErr != nil:
				logger.Debug("ipc call failed", append(fields,
					zap.String("code", apiErr.Code),
					zap.String("message", apiErr.Message))...)
			default:
				logger.Debug("mcp request", fields...)
			}
			return result, err
		}
	}
}

// requestFields names what a request carries: the IPC method behind a tool
// call, or the hub event inside a logging notification.
func requestFields(req sdkmcp.Request) []zap.Field {
	switch p := safeParams(req).(type) {
	case *sdkmcp.CallToolParamsRaw:
		if p == nil {
			return nil
		}
		return []zap.Field{
			zap.String("ipc_method", p.Name),
			zap.Int("params_bytes", len(p.Arguments)),
		}
	case *sdkmcp.LoggingMessageParams:
		if p == nil {
			return nil
		}
		if ev, ok := p.Data.(events.Event); ok {
			return []zap.Field{zap.String("event", ev.Name), zap.Uint64("seq", ev.Seq)}
		}
	}
	return nil
}

// toolError decodes the IPC error carried by a failed tool result.
func toolError(result sdkmcp.Result) *ipc.APIError {
	res, ok := result.(*sdkmcp.CallToolResult)
	if !ok || res == nil || !res.IsError || len(res.Content) == 0 {
		return nil
	}
	text, ok := res.Content[0].(*sdkmcp.TextContent)
	if !ok {
		return nil
	}
	var apiErr ipc.APIError
	if err := json.Unmarshal([]byte(text.Text), &apiErr); err != nil || apiErr.Code == "" {
		return nil
	}
	return &apiErr
}

func safeSessionID(req sdkmcp.Request) string {
	if req == nil {
		return ""
	}
	defer func() { recover() }()
	session := req.GetSession()
	if session == nil {
		return ""
	}
	return session.ID()
}

func safeParams(req sdkmcp.Request) any {
	if req == nil {
		return nil
	}
	defer func() { recover() }()
	return req.GetParams()
}
