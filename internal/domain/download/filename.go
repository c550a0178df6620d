package download

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ExtensionPolicy maps MIME types to the extension given to synthesized
// filenames. Types not in the policy get no extension.
type ExtensionPolicy map[string]string

// ImageExtensions is the default policy: common image types only.
func ImageExtensions() ExtensionPolicy {
	return ExtensionPolicy{
		"image/png":     ".png",
		"image/jpeg":    ".jpg",
		"image/jpg":     ".jpg",
		"image/gif":     ".gif",
		"image/webp":    ".webp",
		"image/svg+xml": ".svg",
	}
}

// Extension returns the extension for a Content-Type value.
func (p ExtensionPolicy) Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	return p[mediaType]
}

// DeriveFilename picks the name a download is saved under: the engine's
// suggestion, else the last path segment of the URL, else a timestamp-based
// name with an extension from the policy.
func DeriveFilename(suggested, rawURL, contentType string, now time.Time, policy ExtensionPolicy) string {
	if name := sanitizeFilename(suggested); name != "" {
		return name
	}
	if u, err := url.Parse(rawURL); err == nil {
		seg := path.Base(u.Path)
		if unescaped, err := url.PathUnescape(seg); err == nil {
			seg = unescaped
		}
		if name := sanitizeFilename(seg); name != "" {
			return name
		}
	}
	return fmt.Sprintf("download-%d%s", now.UnixMilli(), policy.Extension(contentType))
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	if name == "" || name == "_" {
		return ""
	}
	return name
}

// uniquePath returns path, or "name (n).ext" beside it when path exists on
// disk or is reserved by a live download.
func uniquePath(p string, reserved func(string) bool) string {
	free := func(candidate string) bool {
		if reserved != nil && reserved(candidate) {
			return false
		}
		_, err := os.Stat(candidate)
		return os.IsNotExist(err)
	}
	if free(p) {
		return p
	}
	dir, base := filepath.Split(p)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if free(candidate) {
			return candidate
		}
	}
	return p
}
