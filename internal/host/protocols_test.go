package host

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProtocolRegistry(t *testing.T) {
	r := newProtocolRegistry()
	require.False(t, r.Handles("https://example.com"))

	require.NoError(t, r.RegisterProtocols([]string{"https", "BrowserHost"}))
	require.True(t, r.Handles("https://example.com"))
	require.True(t, r.Handles("browserhost://open?url=x"))
	require.False(t, r.Handles("ftp://example.com"))
	require.False(t, r.Handles("not a url"))

	require.Error(t, r.RegisterProtocols([]string{"1bad"}))
}
