package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/mocks"
)

func TestController_Commands(t *testing.T) {
	comps, _ := newComponents(t)

	names := comps.Controller.Commands()

	assert.Len(t, names, 22)
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, CmdUpdateSnapSet)
}

func TestController_RejectsUnknownCommandsAndBadParams(t *testing.T) {
	comps, _ := newComponents(t)
	c := comps.Controller

	res := execute(t, c, "launch-rockets", nil)
	assert.False(t, res.Success)
	assert.Equal(t, `unknown command "launch-rockets"`, res.Error)

	res = c.Execute(context.Background(), Command{Name: CmdDetectByTitle, Params: []byte(`{"title": 12`)})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid params")
}

func TestController_DetectWindow(t *testing.T) {
	comps, _ := newComponents(t)
	c := comps.Controller
	want := schemas.WindowTarget{ProcessID: 7, Title: "Game", Handle: gameWindow}

	assert.Equal(t, want, mustOK(t, execute(t, c, CmdDetectByPoint, map[string]float64{"x": 150.2, "y": 60.7})))
	assert.Equal(t, want, mustOK(t, execute(t, c, CmdDetectByTitle, map[string]string{"title": "Gam"})))
	assert.Equal(t, want, mustOK(t, execute(t, c, CmdDetectByPID, map[string]int{"pid": 7})))

	res := execute(t, c, CmdDetectByTitle, map[string]string{"title": "Spreadsheet"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, schemas.ErrNotFound.Error())
}

func TestController_ComputeOffset(t *testing.T) {
	comps, _ := newComponents(t)
	c := comps.Controller

	got, err := c.ComputeOffset(gameWindow, 130.4, 70.6)
	require.NoError(t, err)
	assert.Equal(t, schemas.OffsetPoint{OffsetX: 30, OffsetY: 21}, got)

	_, err = c.ComputeOffset(gameWindow, 10, 10)
	assert.ErrorIs(t, err, schemas.ErrOutOfBounds)

	_, err = c.ComputeOffset(0, 10, 10)
	assert.True(t, schemas.IsValidation(err))
}

func TestController_SnapPointLifecycle(t *testing.T) {
	// -- Setup --
	comps, _ := newComponents(t)
	c := comps.Controller
	c.now = steppingClock()

	// -- Execution --
	snap, err := c.CaptureWindow(gameWindow)
	require.NoError(t, err)

	selections := []map[string]any{
		{"x": 5.0, "y": 5.0, "width": 20.0, "height": 10.0},
		{"x": 1.0, "y": 1.0}, // no size, skipped
	}
	saved, err := c.SaveSnapPoint(SnapPointRequest{OffsetX: 10.6, OffsetY: 20.2, ImagePath: snap.ImagePath, Selections: &selections})
	require.NoError(t, err)

	// -- Assertions --
	assert.Equal(t, 400, snap.Width)
	assert.Equal(t, 300, snap.Height)
	assert.FileExists(t, snap.ImagePath)
	assert.Equal(t, comps.WorkingSet, c.deps.WorkingSet)

	assert.Equal(t, 0, saved.Index)
	assert.Equal(t, int64(1), saved.ID)
	assert.Equal(t, schemas.OffsetPoint{OffsetX: 11, OffsetY: 20}, saved.OffsetPoint)
	require.Len(t, saved.Regions, 1)
	assert.Equal(t, schemas.SelectionRect{Left: 5, Top: 5, Width: 20, Height: 10}, saved.Regions[0].Selection)
	oldTemplate := saved.Regions[0].TemplatePath
	assert.FileExists(t, oldTemplate)
	assert.Equal(t, c.storage.TemplateDir(), filepath.Dir(oldTemplate))

	// Edit with new selections recuts the templates and drops the old ones.
	resel := []map[string]any{{"left": 0.0, "top": 0.0, "width": 8.0, "height": 8.0}}
	edited, err := c.EditSnapPoint(SnapPointRequest{Index: 0, OffsetX: 1, OffsetY: 2, Selections: &resel})
	require.NoError(t, err)
	assert.Equal(t, int64(1), edited.ID)
	assert.Equal(t, snap.ImagePath, edited.ImagePath, "image path is kept when omitted")
	require.Len(t, edited.Regions, 1)
	assert.FileExists(t, edited.Regions[0].TemplatePath)
	assert.NoFileExists(t, oldTemplate)

	// Edit without selections keeps the regions.
	moved, err := c.EditSnapPoint(SnapPointRequest{Index: 0, OffsetX: 3, OffsetY: 4})
	require.NoError(t, err)
	assert.Equal(t, edited.Regions, moved.Regions)

	got, err := c.GetSnapPoint(0)
	require.NoError(t, err)
	assert.Equal(t, schemas.OffsetPoint{OffsetX: 3, OffsetY: 4}, got.OffsetPoint)

	removed, err := c.DeleteSnapPoint(0)
	require.NoError(t, err)
	assert.NoFileExists(t, removed.Regions[0].TemplatePath)
	assert.NoFileExists(t, snap.ImagePath, "unshared snapshot is removed")

	ws, err := c.ListSnapPoints()
	require.NoError(t, err)
	assert.Empty(t, ws.Points)
}

func TestController_DeleteKeepsSharedSnapshot(t *testing.T) {
	comps, _ := newComponents(t)
	c := comps.Controller
	c.now = steppingClock()

	snap, err := c.CaptureWindow(gameWindow)
	require.NoError(t, err)
	_, err = c.SaveSnapPoint(SnapPointRequest{OffsetX: 1, OffsetY: 1, ImagePath: snap.ImagePath})
	require.NoError(t, err)
	_, err = c.SaveSnapPoint(SnapPointRequest{OffsetX: 2, OffsetY: 2, ImagePath: snap.ImagePath})
	require.NoError(t, err)

	_, err = c.DeleteSnapPoint(0)
	require.NoError(t, err)

	assert.FileExists(t, snap.ImagePath)
}

func TestController_SnapPointValidation(t *testing.T) {
	comps, _ := newComponents(t)
	c := comps.Controller

	_, err := c.SaveSnapPoint(SnapPointRequest{OffsetX: -1, OffsetY: 0})
	assert.True(t, schemas.IsValidation(err))

	res := execute(t, c, CmdGetSnapPoint, map[string]int{"index": 3})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, schemas.ErrInvalidIndex.Error())

	res = execute(t, c, CmdEditSnapPoint, map[string]interface{}{"index": 0, "offsetX": 1, "offsetY": 1})
	assert.False(t, res.Success)

	_, err = c.CaptureWindow(0)
	assert.True(t, schemas.IsValidation(err))
}

func TestController_CaptureFailure(t *testing.T) {
	comps, desk := newComponents(t)
	desk.FailCapture(gameWindow, errors.New("device lost"))

	_, err := comps.Controller.CaptureWindow(gameWindow)

	assert.ErrorContains(t, err, "device lost")
	entries, _ := os.ReadDir(comps.Controller.storage.SnapshotDir())
	assert.Empty(t, entries)
}

func TestController_StartDefaultFromWorkingSet(t *testing.T) {
	// -- Setup --
	comps, desk := newComponents(t)
	c := comps.Controller

	res := execute(t, c, CmdStartDefault, nil)
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "no target window selected")

	_, err := c.SaveSnapPoint(SnapPointRequest{OffsetX: 5, OffsetY: 6})
	require.NoError(t, err)
	interval := schemas.Millis(10)
	_, err = c.UpdateSnapSettings(SnapSettings{
		Target:   &schemas.WindowTarget{ProcessID: 7, Title: "Game", Handle: gameWindow},
		Interval: &interval,
	})
	require.NoError(t, err)

	// -- Execution --
	info, ok := mustOK(t, execute(t, c, CmdStartDefault, map[string]interface{}{})).(schemas.TaskInfo)
	require.True(t, ok)
	require.Eventually(t, func() bool { return len(desk.Events()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	mustOK(t, execute(t, c, CmdStopDefault, map[string]bool{"silent": true}))

	// -- Assertions --
	assert.Equal(t, schemas.DefaultTaskID, info.TaskID)
	ev := desk.Events()
	assert.Equal(t, gameWindow, ev[0].Window)
	assert.True(t, ev[0].Down)
	assert.Equal(t, 5, ev[0].X)
	assert.Equal(t, 6, ev[0].Y)
	assert.Empty(t, comps.Supervisor.List())
}

func TestController_UpdateSnapSettingsRejectsNegativeInterval(t *testing.T) {
	comps, _ := newComponents(t)
	bad := schemas.Millis(-1)

	_, err := comps.Controller.UpdateSnapSettings(SnapSettings{Interval: &bad})

	assert.True(t, schemas.IsValidation(err))
}

func TestController_ProfileRoundTrip(t *testing.T) {
	// -- Setup --
	comps, _ := newComponents(t)
	c := comps.Controller
	ctx := context.Background()
	target := &schemas.WindowTarget{ProcessID: 7, Title: "Game", Handle: gameWindow}

	_, err := c.SaveSnapPoint(SnapPointRequest{OffsetX: 5, OffsetY: 6})
	require.NoError(t, err)
	interval := schemas.Millis(1500)
	_, err = c.UpdateSnapSettings(SnapSettings{Target: target, Interval: &interval})
	require.NoError(t, err)

	// -- Execution --
	saved, err := c.SaveProfile(ctx, SaveProfileParams{Name: "Farm"})
	require.NoError(t, err)

	require.NoError(t, comps.WorkingSet.Replace(schemas.WorkingSet{}))
	loaded, err := c.LoadProfile(ctx, "FARM")
	require.NoError(t, err)

	// -- Assertions --
	assert.Equal(t, "Farm", saved.Name)
	assert.Equal(t, interval, saved.Interval)
	assert.Equal(t, target, saved.Target)
	assert.Equal(t, saved.Points, loaded.Points)

	ws, err := c.ListSnapPoints()
	require.NoError(t, err)
	assert.Equal(t, target, ws.Target)
	assert.Equal(t, interval, ws.Interval)
	require.Len(t, ws.Points, 1)

	profiles, ok := mustOK(t, execute(t, c, CmdListProfiles, nil)).([]schemas.Profile)
	require.True(t, ok)
	assert.Len(t, profiles, 1)

	mustOK(t, execute(t, c, CmdDeleteProfile, map[string]string{"name": "farm"}))
	res := execute(t, c, CmdLoadProfile, map[string]string{"name": "farm"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, schemas.ErrProfileNotFound.Error())

	res = execute(t, c, CmdSaveProfile, map[string]string{"name": "  "})
	assert.False(t, res.Success)
}

func TestController_ProfileRepositoryErrors(t *testing.T) {
	comps, _ := newComponents(t)
	c := comps.Controller
	repo := new(mocks.MockProfileRepository)
	c.deps.Profiles = repo

	repo.On("DeleteProfile", mock.Anything, "ghost").Return(schemas.ErrProfileNotFound)
	repo.On("ListProfiles", mock.Anything).Run(func(mock.Arguments) { panic("boom") })

	err := c.DeleteProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, schemas.ErrProfileNotFound)

	res := execute(t, c, CmdListProfiles, nil)
	assert.False(t, res.Success)
	assert.Equal(t, "internal error while running list-profiles", res.Error)
	repo.AssertExpectations(t)
}

func TestController_RecorderCommands(t *testing.T) {
	comps, desk := newComponents(t)
	c := comps.Controller
	target := schemas.WindowTarget{ProcessID: 7, Title: "Game", Handle: gameWindow}

	mustOK(t, execute(t, c, CmdStartRecorder, map[string]interface{}{"targetWindow": target}))
	assert.Equal(t, 1, desk.Hooks())
	active, ok := comps.Recorder.Active()
	assert.True(t, ok)
	assert.Equal(t, target, active)

	mustOK(t, execute(t, c, CmdStopRecorder, map[string]bool{"silent": true}))
	assert.Equal(t, 0, desk.Hooks())

	res := execute(t, c, CmdStartRecorder, map[string]interface{}{"targetWindow": schemas.WindowTarget{Handle: 999}})
	assert.False(t, res.Success)
}

func TestNewController_Validation(t *testing.T) {
	comps, _ := newComponents(t)
	cfg := testConfig(t)
	full := comps.Controller.deps

	_, err := NewController(nil, full, zap.NewNop())
	assert.EqualError(t, err, "config cannot be nil")

	missing := full
	missing.Supervisor = nil
	_, err = NewController(cfg, missing, zap.NewNop())
	assert.EqualError(t, err, "supervisor cannot be nil")

	missing = full
	missing.Templates = nil
	_, err = NewController(cfg, missing, zap.NewNop())
	assert.EqualError(t, err, "template store cannot be nil")

	_, err = NewController(cfg, full, nil)
	assert.EqualError(t, err, "logger cannot be nil")
}
