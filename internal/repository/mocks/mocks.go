package mocks

import (
	"context"

	"github.com/rpggio/browserhost/internal/domain/download"
	"github.com/rpggio/browserhost/internal/domain/profile"
	"github.com/rpggio/browserhost/internal/domain/settings"
	"github.com/stretchr/testify/mock"
)

// ProfileRepository is a mock for profile.Repository.
type ProfileRepository struct {
	mock.Mock
}

func (m *ProfileRepository) Load(ctx context.Context) (*profile.Registry, error) {
	args := m.Called(ctx)
	if reg, ok := args.Get(0).(*profile.Registry); ok {
		return reg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProfileRepository) Save(ctx context.Context, reg *profile.Registry) error {
	args := m.Called(ctx, reg)
	return args.Error(0)
}

// SettingsRepository is a mock for settings.Repository.
type SettingsRepository struct {
	mock.Mock
}

func (m *SettingsRepository) Load(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if s, ok := args.Get(0).(*settings.Settings); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SettingsRepository) Save(ctx context.Context, s *settings.Settings) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

// HistoryRepository is a mock for download.HistoryRepository.
type HistoryRepository struct {
	mock.Mock
}

func (m *HistoryRepository) Append(ctx context.Context, rec download.Record, limit int) error {
	args := m.Called(ctx, rec, limit)
	return args.Error(0)
}

func (m *HistoryRepository) List(ctx context.Context, limit int) ([]download.Record, error) {
	args := m.Called(ctx, limit)
	if list, ok := args.Get(0).([]download.Record); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// KVStore is a mock for repository.KVStore.
type KVStore struct {
	mock.Mock
}

func (m *KVStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *KVStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *KVStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
