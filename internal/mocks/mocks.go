// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"image"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/dispatch"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Engine() config.EngineConfig {
	args := m.Called()
	return args.Get(0).(config.EngineConfig)
}

func (m *MockConfig) Matcher() config.MatcherConfig {
	args := m.Called()
	return args.Get(0).(config.MatcherConfig)
}

func (m *MockConfig) Storage() config.StorageConfig {
	args := m.Called()
	return args.Get(0).(config.StorageConfig)
}

func (m *MockConfig) Control() config.ControlConfig {
	args := m.Called()
	return args.Get(0).(config.ControlConfig)
}

func (m *MockConfig) Recorder() config.RecorderConfig {
	args := m.Called()
	return args.Get(0).(config.RecorderConfig)
}

// --- Setters ---

func (m *MockConfig) SetStorageBackend(b string) {
	m.Called(b)
}

func (m *MockConfig) SetStorageDataDir(d string) {
	m.Called(d)
}

func (m *MockConfig) SetControlAddr(a string) {
	m.Called(a)
}

func (m *MockConfig) SetMatcherThreshold(t float64) {
	m.Called(t)
}

// -- Engine Collaborator Mocks --

// MockEvaluator mocks engine.Evaluator.
type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Match(snapshot image.Image, regions []schemas.MatchRegion) (bool, error) {
	args := m.Called(snapshot, regions)
	return args.Bool(0), args.Error(1)
}

// MockClicker mocks engine.Clicker.
type MockClicker struct {
	mock.Mock
}

func (m *MockClicker) Dispatch(ctx context.Context, id schemas.WindowID, points []schemas.OffsetPoint) (dispatch.Result, error) {
	args := m.Called(ctx, id, points)
	return args.Get(0).(dispatch.Result), args.Error(1)
}

// -- Event Publisher Mock --

// MockPublisher mocks events.Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(t schemas.EventType, payload interface{}) error {
	args := m.Called(t, payload)
	return args.Error(0)
}

// -- Repository Mock --

// MockProfileRepository mocks schemas.ProfileRepository.
type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) ListProfiles(ctx context.Context) ([]schemas.Profile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Profile), args.Error(1)
}

func (m *MockProfileRepository) GetProfile(ctx context.Context, name string) (schemas.Profile, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(schemas.Profile), args.Error(1)
}

func (m *MockProfileRepository) SaveProfile(ctx context.Context, p schemas.Profile) (schemas.Profile, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(schemas.Profile), args.Error(1)
}

func (m *MockProfileRepository) DeleteProfile(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockProfileRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
