package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rpggio/browserhost/internal/ipc"
)

// JSON-RPC 2.0 error codes.
const (
	ErrParseCode      = -32700
	ErrInvalidReq     = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

// IPC codes for failures caught before a call reaches the handler.
const (
	CodeParseError     = "PARSE_ERROR"
	CodeInvalidRequest = "INVALID_REQUEST"
)

// maxRequestBytes bounds one call. Extension storage values are the largest
// payloads clients send.
const maxRequestBytes = 4 << 20

var (
	errParse          = errors.New("parse error")
	errInvalidRequest = errors.New("invalid request")
)

// Request is one IPC call in a JSON-RPC 2.0 envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// Response carries either a method result or an IPC error.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id,omitempty"`
}

// Error is the JSON-RPC error object. Data holds the IPC error body so clients
// can branch on its code and show the recovery hint.
type Error struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    *ipc.APIError `json:"data,omitempty"`
}

// IPCCode returns the IPC error code, or "" when the error has none.
func (e *Error) IPCCode() string {
	if e == nil || e.Data == nil {
		return ""
	}
	return e.Data.Code
}

// ParseRequest decodes a single call. Batches and trailing values are
// rejected since every IPC method answers exactly one caller.
func ParseRequest(body io.Reader) (Request, error) {
	var req Request
	dec := json.NewDecoder(io.LimitReader(body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", errParse, err)
	}
	switch {
	case dec.More():
		return Request{}, fmt.Errorf("%w: trailing data after call", errInvalidRequest)
	case req.JSONRPC != "2.0":
		return Request{}, fmt.Errorf("%w: jsonrpc must be \"2.0\"", errInvalidRequest)
	case req.Method == "":
		return Request{}, fmt.Errorf("%w: method is required", errInvalidRequest)
	}
	return req, nil
}

// requestError turns a ParseRequest failure into an IPC error body.
func requestError(err error) *ipc.APIError {
	if errors.Is(err, errParse) {
		return &ipc.APIError{Code: CodeParseError, Message: err.Error(), RecoveryHint: "Send one JSON object per request"}
	}
	return &ipc.APIError{Code: CodeInvalidRequest, Message: err.Error(), RecoveryHint: "Set jsonrpc to \"2.0\" and name a method"}
}

// callError turns a handler failure into an IPC error body. Errors the IPC
// layer does not know are reported as internal.
func callError(err error) (*ipc.APIError, bool) {
	if apiErr := ipc.MapError(err); apiErr != nil {
		return apiErr, true
	}
	return &ipc.APIError{Code: ipc.CodeInternal, Message: err.Error()}, false
}

// rpcCode places an IPC error code in the JSON-RPC numeric range.
func rpcCode(code string) int {
	switch code {
	case CodeParseError:
		return ErrParseCode
	case CodeInvalidRequest:
		return ErrInvalidReq
	case "METHOD_NOT_FOUND":
		return ErrMethodNotFound
	case "INVALID_INPUT", "INVALID_ACTION":
		return ErrInvalidParams
	default:
		return ErrInternal
	}
}

// WriteResult writes a method result.
func WriteResult(w http.ResponseWriter, id any, result any) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	})
}

// WriteError writes apiErr as a JSON-RPC error. Errors travel with HTTP 200
// like results; only authentication failures use HTTP status codes.
func WriteError(w http.ResponseWriter, id any, apiErr *ipc.APIError) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    rpcCode(apiErr.Code),
			Message: apiErr.Message,
			Data:    apiErr,
		},
		ID: id,
	})
}

func writeJSON(w http.ResponseWriter, payload Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}
