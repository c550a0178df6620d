package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpggio/browserhost/internal/domain/profile"
	"github.com/rpggio/browserhost/internal/domain/settings"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRegistryFile_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := NewRegistryFile(filepath.Join(t.TempDir(), "profiles.yaml"))

	_, err := f.Load(ctx)
	require.ErrorIs(t, err, os.ErrNotExist)

	reg := &profile.Registry{
		Profiles:          []profile.Profile{{ID: "a", Name: "Home", Avatar: "fox"}},
		AlwaysOpenProfile: "a",
	}
	require.NoError(t, f.Save(ctx, reg))

	got, err := f.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, reg, got)
}

func TestRegistryFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: [\n"), 0o600))

	_, err := NewRegistryFile(path).Load(context.Background())
	require.Error(t, err)
}

func TestSettingsFile_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("freeze_minutes: 12\nad_block_whitelist: [example.com]\n"), 0o600))

	got, err := NewSettingsFile(path).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 12, got.FreezeMinutes)
	require.True(t, got.AdBlockEnabled)
	require.True(t, got.TabSleepEnabled)
	require.Equal(t, []string{"example.com"}, got.AdBlockWhitelist)
}

func TestSettingsFile_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f := NewSettingsFile(filepath.Join(dir, "settings.yaml"))
	s := settings.Defaults()
	require.NoError(t, f.Save(context.Background(), &s))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "settings.yaml", entries[0].Name())
}

func TestWatcher_CollapsesBursts(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "settings.yaml")
	changes := make(chan struct{}, 10)
	w := NewWatcher(path, func(context.Context) { changes <- struct{}{} }, nil)
	w.SetDebounce(150 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("freeze_minutes: 7\n"), 0o600))
	}
	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0o600))

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}
	select {
	case <-changes:
		t.Fatal("burst reported more than once")
	case <-time.After(400 * time.Millisecond):
	}

	w.Stop()
}
