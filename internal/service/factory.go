// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/dispatch"
	"github.com/xkilldash9x/snapclick/internal/engine"
	"github.com/xkilldash9x/snapclick/internal/events"
	"github.com/xkilldash9x/snapclick/internal/matcher"
	"github.com/xkilldash9x/snapclick/internal/platform"
	"github.com/xkilldash9x/snapclick/internal/recorder"
	"github.com/xkilldash9x/snapclick/internal/store"
	"github.com/xkilldash9x/snapclick/internal/window"
)

// ComponentFactory creates the set of components a command needs. The
// abstraction lets commands be tested without a real desktop.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	desktop platform.Desktop
}

// NewComponentFactory creates a factory backed by the native desktop.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// NewComponentFactoryWithDesktop creates a factory that drives d instead of
// the native desktop.
func NewComponentFactoryWithDesktop(d platform.Desktop) ComponentFactory {
	return &concreteFactory{desktop: d}
}

// Create handles the full dependency injection and initialization of the
// engine components.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	components := &Components{watchWG: &sync.WaitGroup{}}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Desktop
	desktop := f.desktop
	if desktop == nil {
		d, err := platform.New(logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize desktop backend: %w", err)
			return nil, initializationErr
		}
		desktop = d
	}
	components.Desktop = desktop

	// 2. Data directories and stores
	if err := EnsureDataDirs(cfg.Storage()); err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	repo, err := InitializeProfileRepository(ctx, cfg, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize profile repository: %w", err)
		return nil, initializationErr
	}
	components.Profiles = repo

	workingSet, err := store.NewWorkingSetStore(cfg.Storage().WorkingSetFile(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize working set: %w", err)
		return nil, initializationErr
	}
	components.WorkingSet = workingSet
	logger.Debug("Stores initialized.")

	// 3. Event bus
	components.Bus = events.NewBus(logger, cfg.Control().SendBuffer)

	// 4. Matcher
	templates, err := matcher.NewTemplateStore(logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create template store: %w", err)
		return nil, initializationErr
	}
	components.Templates = templates

	mc := cfg.Matcher()
	m, err := matcher.New(templates, matcher.NewScorer(mc.Threshold, mc.SubsampleCutoff, mc.CheckEvery))
	if err != nil {
		initializationErr = fmt.Errorf("failed to create matcher: %w", err)
		return nil, initializationErr
	}
	components.Matcher = m

	if mc.WatchTemplates {
		watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		components.watchCancel = cancel
		StartTemplateWatcher(watchCtx, components.watchWG, templates, cfg.Storage().TemplateDir(), logger)
	}
	logger.Debug("Matcher initialized.", zap.Float64("threshold", mc.Threshold))

	// 5. Window helpers
	resolver, err := window.NewResolver(desktop, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create window resolver: %w", err)
		return nil, initializationErr
	}
	components.Resolver = resolver

	mapper, err := window.NewMapper(desktop)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create coordinate mapper: %w", err)
		return nil, initializationErr
	}
	components.Mapper = mapper

	// 6. Dispatcher and task supervisor
	ec := cfg.Engine()
	dispatcher, err := dispatch.New(desktop, desktop, logger, ec.PressDelay, ec.PointGap)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create click dispatcher: %w", err)
		return nil, initializationErr
	}
	components.Dispatcher = dispatcher

	supervisor, err := engine.NewSupervisor(cfg, engine.Deps{
		Window:    desktop,
		Capturer:  desktop,
		Evaluator: m,
		Clicker:   dispatcher,
	}, components.Bus, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create task supervisor: %w", err)
		return nil, initializationErr
	}
	components.Supervisor = supervisor
	logger.Debug("Task supervisor initialized.")

	// 7. Recorder
	rec, err := recorder.New(desktop, desktop, components.Bus, cfg.Recorder(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create recorder: %w", err)
		return nil, initializationErr
	}
	components.Recorder = rec

	// 8. Command surface
	controller, err := NewController(cfg, Deps{
		Resolver:   resolver,
		Mapper:     mapper,
		Capturer:   desktop,
		Supervisor: supervisor,
		Recorder:   rec,
		Profiles:   repo,
		WorkingSet: workingSet,
		Templates:  templates,
	}, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create controller: %w", err)
		return nil, initializationErr
	}
	components.Controller = controller

	logger.Info("All engine components initialized successfully.")
	return components, nil
}
