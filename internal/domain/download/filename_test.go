package download

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeriveFilename(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	images := ImageExtensions()

	cases := []struct {
		name, suggested, url, mime, want string
	}{
		{"suggestion wins", "Quarterly Report.pdf", "https://x.example/dl?id=1", "application/pdf", "Quarterly Report.pdf"},
		{"suggestion sanitized", "../../etc/passwd", "", "", "_.._etc_passwd"},
		{"url segment", "", "https://x.example/files/photo%20one.png?x=1", "", "photo one.png"},
		{"image mime fallback", "", "https://x.example/", "image/png; charset=binary", "download-1700000000000.png"},
		{"non image gets no extension", "", "https://x.example/", "application/zip", "download-1700000000000"},
		{"unparseable url", "", "::", "image/jpeg", "download-1700000000000.jpg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveFilename(tc.suggested, tc.url, tc.mime, now, images))
		})
	}
}

func TestExtensionPolicy_Configurable(t *testing.T) {
	p := ExtensionPolicy{"application/zip": ".zip"}
	require.Equal(t, ".zip", p.Extension("application/zip"))
	require.Empty(t, p.Extension("image/png"))
}
