package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/rpggio/browserhost/internal/domain/profile"
	"github.com/rpggio/browserhost/internal/ipc"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	body := bytes.NewBufferString(`{"jsonrpc":"2.0","method":"rename-profile","params":{"id":"p1","name":"Work"},"id":1}`)
	req, err := ParseRequest(body)
	require.NoError(t, err)
	require.Equal(t, "2.0", req.JSONRPC)
	require.Equal(t, ipc.MethodRenameProfile, req.Method)
	require.Equal(t, json.RawMessage(`{"id":"p1","name":"Work"}`), req.Params)
}

func TestParseRequest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no method", body: `{"jsonrpc":"2.0","id":1}`},
		{name: "wrong version", body: `{"jsonrpc":"1.0","method":"get-settings","id":1}`},
		{name: "two calls", body: `{"jsonrpc":"2.0","method":"get-settings","id":1} {"jsonrpc":"2.0","method":"get-settings","id":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(bytes.NewBufferString(tt.body))
			require.ErrorIs(t, err, errInvalidRequest)
			require.Equal(t, CodeInvalidRequest, requestError(err).Code)
		})
	}
}

func TestParseRequest_Malformed(t *testing.T) {
	_, err := ParseRequest(bytes.NewBufferString(`{"jsonrpc":`))
	require.ErrorIs(t, err, errParse)
	require.Equal(t, CodeParseError, requestError(err).Code)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, 1, &ipc.APIError{Code: "INVALID_INPUT", Message: "id is required", RecoveryHint: "Fix the request parameters"})

	require.Equal(t, 200, rec.Code)
	var out Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, ErrInvalidParams, out.Error.Code)
	require.Equal(t, "INVALID_INPUT", out.Error.IPCCode())
	require.Equal(t, "Fix the request parameters", out.Error.Data.RecoveryHint)
}

func TestCallError(t *testing.T) {
	apiErr, known := callError(profile.ErrProfileNotFound)
	require.True(t, known)
	require.Equal(t, "PROFILE_NOT_FOUND", apiErr.Code)
	require.Equal(t, ErrInternal, rpcCode(apiErr.Code))

	apiErr, known = callError(errors.New("disk on fire"))
	require.False(t, known)
	require.Equal(t, ipc.CodeInternal, apiErr.Code)
}
