//go:build windows

package platform

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/internal/platform/hook"
	"github.com/xkilldash9x/snapclick/internal/platform/win32"
)

type windowsDesktop struct {
	*win32.Desktop
	*hook.Hook
}

// New returns the native desktop backend.
func New(logger *zap.Logger) (Desktop, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	d, err := win32.New(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize win32 backend: %w", err)
	}
	return &windowsDesktop{Desktop: d, Hook: hook.New(logger)}, nil
}
