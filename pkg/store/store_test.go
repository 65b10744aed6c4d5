package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roilifetime/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func summaries() []models.MouseSummaryRecord {
	return []models.MouseSummaryRecord{
		{
			Level:        models.LevelLeaf,
			ROIName:      "VISp_1",
			Side:         models.SideLeft,
			ParentName:   models.String("Isocortex"),
			OrigID:       models.Int64(2),
			ParentID:     models.Int64(1),
			TotPixels:    12,
			MeanPulse:    101.5,
			MeanChase:    202.25,
			MeanLifetime: 3.125,
		},
		{
			Level:        models.LevelLeaf,
			ROIName:      "MOp_5",
			ParentName:   models.String("Isocortex"),
			OrigID:       models.Int64(3),
			ParentID:     models.Int64(1),
			MeanLifetime: math.NaN(),
		},
		{
			Level:        models.LevelOrphan,
			ROIName:      "stray",
			TotPixels:    4,
			MeanPulse:    1,
			MeanChase:    2,
			MeanLifetime: 0.5,
		},
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := setupTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	// already at the latest version
	require.NoError(t, s.MigrateUp())
}

func TestSaveAndLoadRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	want := summaries()
	runID, err := s.SaveRun(ctx, "m1", want, RunStats{SliceCount: 3, FailedSlices: 1})
	require.NoError(t, err)
	_, err = uuid.Parse(runID)
	require.NoError(t, err)

	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "m1", run.Mouse)
	assert.Equal(t, 3, run.SliceCount)
	assert.Equal(t, 1, run.FailedSlices)

	got, err := s.LoadRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, len(want))

	assert.Equal(t, want[0], got[0])

	mop := got[1]
	assert.Equal(t, "MOp_5", mop.ROIName)
	assert.Equal(t, models.SideUnspecified, mop.Side)
	assert.Equal(t, 0, mop.TotPixels)
	assert.True(t, math.IsNaN(mop.MeanLifetime))
	assert.Equal(t, 0.0, mop.MeanPulse)

	stray := got[2]
	assert.Nil(t, stray.ParentName)
	assert.Nil(t, stray.OrigID)
	assert.Nil(t, stray.ParentID)
	assert.Equal(t, models.LevelOrphan, stray.Level)
}

func TestLatestRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.LatestRun(ctx, "m1")
	assert.ErrorIs(t, err, ErrRunNotFound)

	first, err := s.SaveRun(ctx, "m1", summaries(), RunStats{SliceCount: 1})
	require.NoError(t, err)
	second, err := s.SaveRun(ctx, "m1", summaries()[:1], RunStats{SliceCount: 2})
	require.NoError(t, err)
	_, err = s.SaveRun(ctx, "m2", nil, RunStats{})
	require.NoError(t, err)

	run, err := s.LatestRun(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, second, run.ID)
	assert.NotEqual(t, first, run.ID)

	rows, err := s.LoadRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestGetRunUnknown(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetRun(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestFindRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, err := s.SaveRun(ctx, "m1", summaries(), RunStats{SliceCount: 1})
	require.NoError(t, err)
	second, err := s.SaveRun(ctx, "m1", summaries(), RunStats{SliceCount: 2})
	require.NoError(t, err)

	byID, err := s.FindRun(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first, byID.ID)

	byMouse, err := s.FindRun(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, second, byMouse.ID)

	_, err = s.FindRun(ctx, "m9")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestDeleteRunCascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	runID, err := s.SaveRun(ctx, "m1", summaries(), RunStats{})
	require.NoError(t, err)

	_, err = s.ExecContext(ctx, `DELETE FROM analysis_runs WHERE run_id = ?`, runID)
	require.NoError(t, err)

	var n int
	require.NoError(t, s.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM region_summaries WHERE run_id = ?`, runID).Scan(&n))
	assert.Zero(t, n)
}
