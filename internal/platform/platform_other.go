//go:build !windows

package platform

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// New reports ErrUnsupported: window message posting needs the Win32 API.
func New(logger *zap.Logger) (Desktop, error) {
	return nil, fmt.Errorf("%w: %s", schemas.ErrUnsupported, runtime.GOOS)
}
