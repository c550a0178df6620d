package profile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service handles profile registry operations and storage-root resolution.
type Service struct {
	repo     Repository
	dataRoot string
	logger   *zap.Logger

	mu     sync.Mutex
	active string
}

// NewService creates a new profile service rooted at dataRoot.
func NewService(repo Repository, dataRoot string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, dataRoot: dataRoot, logger: logger}
}

// CreateRequest defines profile creation inputs.
type CreateRequest struct {
	Name   string
	Avatar string
}

// Resolve loads the registry and decides which identity to run as. Registry
// failures are logged and treated as an empty registry.
func (s *Service) Resolve(ctx context.Context, req LaunchRequest) Decision {
	return Resolve(req, s.load(ctx))
}

// StorageRoot returns, and creates, the directory that durable state lives in
// for the decision. Incognito roots get a fresh namespace on every call.
func (s *Service) StorageRoot(dec Decision) (string, error) {
	var dir string
	switch dec.Kind {
	case UseProfile:
		if !validID(dec.ProfileID) {
			return "", ErrInvalidInput
		}
		dir = s.profileDir(dec.ProfileID)
	case UseIncognito:
		dir = filepath.Join(s.dataRoot, "incognito", uuid.NewString())
	default:
		dir = s.dataRoot
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating storage root: %w", err)
	}
	return dir, nil
}

// Activate records the profile this process runs as. The active profile
// cannot be deleted and is persisted as the last active one.
func (s *Service) Activate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = id
	reg := s.load(ctx)
	if _, ok := reg.Find(id); !ok {
		return nil
	}
	reg.LastActiveProfile = id
	if err := s.repo.Save(ctx, reg); err != nil {
		return fmt.Errorf("saving registry: %w", err)
	}
	return nil
}

// Active returns the id of the profile this process runs as, if any.
func (s *Service) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// List returns all registered profiles.
func (s *Service) List(ctx context.Context) []Profile {
	reg := s.load(ctx)
	out := make([]Profile, len(reg.Profiles))
	copy(out, reg.Profiles)
	return out
}

// Create registers a new profile.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Profile, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.load(ctx)
	prof := Profile{
		ID:     uuid.NewString(),
		Name:   name,
		Avatar: req.Avatar,
	}
	reg.Profiles = append(reg.Profiles, prof)
	if err := s.repo.Save(ctx, reg); err != nil {
		return nil, fmt.Errorf("saving registry: %w", err)
	}

	s.logger.Info("profile created", zap.String("profile_id", prof.ID))
	return &prof, nil
}

// Rename changes a profile's display name.
func (s *Service) Rename(ctx context.Context, id, name string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return nil, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.load(ctx)
	for i := range reg.Profiles {
		if reg.Profiles[i].ID != id {
			continue
		}
		reg.Profiles[i].Name = name
		if err := s.repo.Save(ctx, reg); err != nil {
			return nil, fmt.Errorf("saving registry: %w", err)
		}
		prof := reg.Profiles[i]
		return &prof, nil
	}
	return nil, ErrProfileNotFound
}

// Delete removes a profile from the registry and purges its storage. Launch
// preferences pointing at it are cleared.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id == s.active {
		return ErrProfileActive
	}

	reg := s.load(ctx)
	kept := reg.Profiles[:0]
	found := false
	for _, p := range reg.Profiles {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return ErrProfileNotFound
	}
	reg.Profiles = kept
	if reg.LastActiveProfile == id {
		reg.LastActiveProfile = ""
	}
	if reg.AlwaysOpenProfile == id {
		reg.AlwaysOpenProfile = ""
	}
	if err := s.repo.Save(ctx, reg); err != nil {
		return fmt.Errorf("saving registry: %w", err)
	}

	if validID(id) {
		if err := os.RemoveAll(s.profileDir(id)); err != nil {
			s.logger.Warn("profile storage not purged", zap.String("profile_id", id), zap.Error(err))
			return fmt.Errorf("%w: %v", ErrPurgeFailed, err)
		}
	}

	s.logger.Info("profile deleted", zap.String("profile_id", id))
	return nil
}

// Select persists the user's choice from the picker. With alwaysOpen the
// profile also becomes the always-open profile; without it that preference
// is cleared.
func (s *Service) Select(ctx context.Context, id string, alwaysOpen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.load(ctx)
	if _, ok := reg.Find(id); !ok {
		return ErrProfileNotFound
	}
	reg.LastActiveProfile = id
	if alwaysOpen {
		reg.AlwaysOpenProfile = id
	} else {
		reg.AlwaysOpenProfile = ""
	}
	if err := s.repo.Save(ctx, reg); err != nil {
		return fmt.Errorf("saving registry: %w", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context) *Registry {
	reg, err := s.repo.Load(ctx)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("profile registry unreadable, treating as empty", zap.Error(err))
		}
		return &Registry{}
	}
	if reg == nil {
		return &Registry{}
	}
	return reg
}

func (s *Service) profileDir(id string) string {
	return filepath.Join(s.dataRoot, "profiles", id)
}

// validID rejects ids that would escape the profiles directory.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}
