package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevN0mad/SprintGantt/internal/models"
)

func newTestStorage(t *testing.T) *ExportStorage {
	t.Helper()
	s, err := NewExportStorage(filepath.Join(t.TempDir(), "db", "gantt.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestExportRuns(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, s.SaveRun(ctx, &models.ExportResult{
			ID:         id,
			Kind:       "sprint",
			Dir:        "/out/export_2024-03-01",
			Workbook:   "/out/export_2024-03-01/" + id + ".xlsx",
			Rows:       5,
			TotalHours: 11.5,
			Sheets:     []models.SheetSummary{{Name: "Sprint 1"}, {Name: "Sprint 2"}},
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "third", runs[0].ID)
	assert.Equal(t, "first", runs[2].ID)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	run, err := s.GetRun(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, "sprint", run.Kind)
	assert.Equal(t, 5, run.Rows)
	assert.Equal(t, 2, run.Sheets)
	assert.Equal(t, 11.5, run.TotalHours)
	assert.Equal(t, "/out/export_2024-03-01/second.xlsx", run.Workbook)
	assert.WithinDuration(t, base.Add(time.Hour), run.CreatedAt, time.Second)

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = s.SaveRun(ctx, &models.ExportResult{ID: "first", Kind: "sprint", Dir: "d", Workbook: "w"})
	assert.Error(t, err)
}

func TestSubscriptions(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChat(ctx, 300, "PSR team"))
	require.NoError(t, s.SaveChat(ctx, 100, "@amber"))
	require.NoError(t, s.SaveChat(ctx, 300, "PSR team renamed"))

	ids, err := s.ListChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{300, 100}, ids)

	var sub models.Subscription
	require.NoError(t, s.db.Where("chat_id = ?", 300).First(&sub).Error)
	assert.Equal(t, "PSR team renamed", sub.Title)

	require.NoError(t, s.RemoveChat(ctx, 300))
	require.NoError(t, s.RemoveChat(ctx, 999))

	ids, err = s.ListChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, ids)
}
