package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rpggio/browserhost/internal/domain/download"
	"github.com/stretchr/testify/require"
)

func TestHistoryRepository_AppendList(t *testing.T) {
	db := NewTestDB(t)
	repo := NewHistoryRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := download.Record{
		ID:            "d1",
		Filename:      "report.pdf",
		URL:           "https://example.com/report.pdf",
		SavePath:      "/home/u/Downloads/report.pdf",
		TotalBytes:    2048,
		ReceivedBytes: 2048,
		State:         download.StateCompleted,
		StartTime:     start,
		EndTime:       start.Add(3 * time.Second),
	}
	require.NoError(t, repo.Append(ctx, rec, 50))

	got, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, rec.ID, got[0].ID)
	require.Equal(t, rec.SavePath, got[0].SavePath)
	require.Equal(t, download.StateCompleted, got[0].State)
	require.True(t, rec.StartTime.Equal(got[0].StartTime))
	require.True(t, rec.EndTime.Equal(got[0].EndTime))
}

func TestHistoryRepository_CapsAndOrdersNewestFirst(t *testing.T) {
	db := NewTestDB(t)
	repo := NewHistoryRepository(db)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 60; i++ {
		require.NoError(t, repo.Append(ctx, download.Record{
			ID:        fmt.Sprintf("d%02d", i),
			Filename:  "f",
			URL:       "https://example.com/f",
			SavePath:  "/tmp/f",
			State:     download.StateCompleted,
			StartTime: now,
			EndTime:   now,
		}, 50))
	}

	got, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 50)
	require.Equal(t, "d59", got[0].ID)
	require.Equal(t, "d10", got[49].ID)

	top, err := repo.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	require.Equal(t, "d57", top[2].ID)
}

func TestHistoryRepository_RejectsLiveStates(t *testing.T) {
	db := NewTestDB(t)
	repo := NewHistoryRepository(db)

	err := repo.Append(context.Background(), download.Record{
		ID:        "live",
		State:     download.StateProgressing,
		StartTime: time.Now(),
		EndTime:   time.Now(),
	}, 50)
	require.Error(t, err)
}
