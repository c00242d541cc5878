package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "profiles.json"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestFileStore_UpsertIsCaseInsensitive(t *testing.T) {
	// -- Setup --
	s := newFileStore(t)
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	// -- Execution --
	first, err := s.SaveProfile(ctx, schemas.Profile{Name: " Farm ", Interval: 1000, Points: []schemas.ClickPoint{{OffsetPoint: schemas.OffsetPoint{OffsetX: 1, OffsetY: 1}}}})
	require.NoError(t, err)
	clock = clock.Add(time.Minute)
	second, err := s.SaveProfile(ctx, schemas.Profile{Name: "FARM", Interval: 2500})
	require.NoError(t, err)

	// -- Assertions --
	assert.Equal(t, "Farm", first.Name)
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "createdAt survives the upsert")
	assert.Equal(t, clock, second.UpdatedAt)

	profiles, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	want := []schemas.Profile{{Name: "FARM", Interval: 2500, Points: []schemas.ClickPoint{}, CreatedAt: first.CreatedAt, UpdatedAt: clock}}
	if diff := cmp.Diff(want, profiles, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("profiles mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStore_GetAndDelete(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()
	target := &schemas.WindowTarget{ProcessID: 4, Title: "Game", Handle: 99}
	_, err := s.SaveProfile(ctx, schemas.Profile{Name: "a", Target: target})
	require.NoError(t, err)
	_, err = s.SaveProfile(ctx, schemas.Profile{Name: "b"})
	require.NoError(t, err)

	got, err := s.GetProfile(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, target, got.Target)

	require.NoError(t, s.DeleteProfile(ctx, "a"))
	_, err = s.GetProfile(ctx, "a")
	assert.ErrorIs(t, err, schemas.ErrProfileNotFound)
	assert.ErrorIs(t, s.DeleteProfile(ctx, "a"), schemas.ErrProfileNotFound)

	profiles, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "b", profiles[0].Name)
}

func TestFileStore_EmptyAndMissingFiles(t *testing.T) {
	s := newFileStore(t)

	profiles, err := s.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, profiles)

	require.NoError(t, os.WriteFile(s.path, []byte("  \n"), 0o644))
	profiles, err = s.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, profiles)

	require.NoError(t, os.WriteFile(s.path, []byte("{broken"), 0o644))
	_, err = s.ListProfiles(context.Background())
	assert.ErrorContains(t, err, "failed to parse")
}

func TestFileStore_RejectsInvalidProfiles(t *testing.T) {
	s := newFileStore(t)

	_, err := s.SaveProfile(context.Background(), schemas.Profile{Name: ""})
	assert.True(t, schemas.IsValidation(err))
	_, err = s.SaveProfile(context.Background(), schemas.Profile{Name: "x", Interval: -5})
	assert.True(t, schemas.IsValidation(err))

	_, statErr := os.Stat(s.path)
	assert.True(t, os.IsNotExist(statErr), "nothing is written for rejected input")
}

func TestNewFileStore_Validation(t *testing.T) {
	_, err := NewFileStore("", zap.NewNop())
	assert.Error(t, err)
	_, err = NewFileStore("x.json", nil)
	assert.EqualError(t, err, "logger cannot be nil")
}

func newWorkingSet(t *testing.T) *WorkingSetStore {
	t.Helper()
	s, err := NewWorkingSetStore(filepath.Join(t.TempDir(), "nested", "snap-config.json"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func snapPoint(x, y int) schemas.ClickPoint {
	return schemas.ClickPoint{OffsetPoint: schemas.OffsetPoint{OffsetX: x, OffsetY: y}}
}

func TestWorkingSet_PointLifecycle(t *testing.T) {
	// -- Setup --
	s := newWorkingSet(t)

	// -- Execution --
	i0, p0, err := s.AppendPoint(snapPoint(1, 2))
	require.NoError(t, err)
	i1, p1, err := s.AppendPoint(snapPoint(3, 4))
	require.NoError(t, err)

	old, err := s.ReplacePoint(0, snapPoint(10, 20))
	require.NoError(t, err)

	removed, err := s.RemovePoint(1)
	require.NoError(t, err)

	// -- Assertions --
	assert.Equal(t, 0, i0)
	assert.Equal(t, 1, i1)
	assert.Equal(t, int64(1), p0.ID)
	assert.Equal(t, int64(2), p1.ID)
	assert.Equal(t, schemas.OffsetPoint{OffsetX: 1, OffsetY: 2}, old.OffsetPoint)
	assert.Equal(t, int64(2), removed.ID)

	got, err := s.Point(0)
	require.NoError(t, err)
	assert.Equal(t, schemas.ClickPoint{ID: 1, OffsetPoint: schemas.OffsetPoint{OffsetX: 10, OffsetY: 20}}, got, "replace keeps the id")

	ws, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, ws.Points, 1)
}

func TestWorkingSet_InvalidIndex(t *testing.T) {
	s := newWorkingSet(t)
	_, _, err := s.AppendPoint(snapPoint(1, 1))
	require.NoError(t, err)

	for _, idx := range []int{-1, 1, 99} {
		_, err := s.Point(idx)
		assert.ErrorIs(t, err, schemas.ErrInvalidIndex)
		_, err = s.ReplacePoint(idx, snapPoint(0, 0))
		assert.ErrorIs(t, err, schemas.ErrInvalidIndex)
		_, err = s.RemovePoint(idx)
		assert.ErrorIs(t, err, schemas.ErrInvalidIndex)
	}

	ws, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, ws.Points, 1, "failed edits leave the document untouched")
}

func TestWorkingSet_ReplaceAndPersist(t *testing.T) {
	s := newWorkingSet(t)
	target := &schemas.WindowTarget{Handle: 5, Title: "Game"}

	require.NoError(t, s.Replace(schemas.WorkingSet{Target: target, Interval: 750}))

	reopened, err := NewWorkingSetStore(s.path, zap.NewNop())
	require.NoError(t, err)
	ws, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, schemas.WorkingSet{Target: target, Interval: 750, Points: []schemas.ClickPoint{}}, ws)

	data, err := os.ReadFile(s.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"interval": 750`)
}
