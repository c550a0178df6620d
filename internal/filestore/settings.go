package filestore

import (
	"context"
	"sync"

	"github.com/rpggio/browserhost/internal/domain/settings"
)

// SettingsFile implements settings.Repository on a YAML file. Keys absent
// from the file keep their default values.
type SettingsFile struct {
	mu   sync.Mutex
	path string
}

// NewSettingsFile creates a settings store at path.
func NewSettingsFile(path string) *SettingsFile {
	return &SettingsFile{path: path}
}

// Path returns the file location.
func (f *SettingsFile) Path() string {
	return f.path
}

// Load reads the settings on top of the defaults.
func (f *SettingsFile) Load(ctx context.Context) (*settings.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := settings.Defaults()
	if err := readYAML(f.path, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes the settings.
func (f *SettingsFile) Save(ctx context.Context, s *settings.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeYAML(f.path, s)
}
