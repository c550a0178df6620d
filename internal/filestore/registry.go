package filestore

import (
	"context"
	"sync"

	"github.com/rpggio/browserhost/internal/domain/profile"
)

// RegistryFile implements profile.Repository on a YAML file.
type RegistryFile struct {
	mu   sync.Mutex
	path string
}

// NewRegistryFile creates a registry store at path.
func NewRegistryFile(path string) *RegistryFile {
	return &RegistryFile{path: path}
}

// Load reads the registry.
func (f *RegistryFile) Load(ctx context.Context) (*profile.Registry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var reg profile.Registry
	if err := readYAML(f.path, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Save writes the registry.
func (f *RegistryFile) Save(ctx context.Context, reg *profile.Registry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeYAML(f.path, reg)
}
