package matcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TemplateStore caches decoded, normalized templates keyed by file path.
// Lookups take a shared lock. Decode-and-insert, overwrite and invalidate are
// serialized per path so no reader observes a half-updated entry, and
// concurrent misses on the same path share a single decode.
type TemplateStore struct {
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*image.Gray

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	group singleflight.Group
}

// NewTemplateStore creates an empty store.
func NewTemplateStore(logger *zap.Logger) (*TemplateStore, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &TemplateStore{
		logger: logger.Named("template-store"),
		cache:  make(map[string]*image.Gray),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func (s *TemplateStore) pathLock(path string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

func (s *TemplateStore) cached(path string) (*image.Gray, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.cache[path]
	return g, ok
}

// Load returns the cached template for path, decoding it on a miss. The
// returned raster is shared and must not be modified.
func (s *TemplateStore) Load(path string) (*image.Gray, error) {
	if path == "" {
		return nil, errors.New("template path is empty")
	}
	key := filepath.Clean(path)
	if g, ok := s.cached(key); ok {
		return g, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		l := s.pathLock(key)
		l.Lock()
		defer l.Unlock()

		if g, ok := s.cached(key); ok {
			return g, nil
		}
		g, err := decodeTemplate(key)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[key] = g
		s.mu.Unlock()
		s.logger.Debug("Template decoded", zap.String("path", key), zap.Int("width", g.Rect.Dx()), zap.Int("height", g.Rect.Dy()))
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*image.Gray), nil
}

// Save writes g to path as PNG, replacing any existing file atomically, and
// drops the cached entry for path.
func (s *TemplateStore) Save(path string, g *image.Gray) error {
	key := filepath.Clean(path)
	l := s.pathLock(key)
	l.Lock()
	defer l.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, g); err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}
	if err := writeFileAtomic(key, buf.Bytes()); err != nil {
		return err
	}
	s.evict(key)
	return nil
}

// Remove deletes the template file and its cache entry. A missing file is
// not an error.
func (s *TemplateStore) Remove(path string) error {
	key := filepath.Clean(path)
	l := s.pathLock(key)
	l.Lock()
	defer l.Unlock()

	s.evict(key)
	if err := os.Remove(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove template %s: %w", key, err)
	}
	return nil
}

// Invalidate drops the cached entry for path so the next Load decodes the
// file again.
func (s *TemplateStore) Invalidate(path string) {
	key := filepath.Clean(path)
	l := s.pathLock(key)
	l.Lock()
	defer l.Unlock()
	s.evict(key)
}

func (s *TemplateStore) evict(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	s.group.Forget(key)
}

// Len reports the number of cached templates.
func (s *TemplateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Watch invalidates cached entries whenever a PNG in dir is written,
// replaced or removed by another process. It blocks until ctx is cancelled.
func (s *TemplateStore) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create template watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch template directory %s: %w", dir, err)
	}
	s.logger.Info("Watching template directory.", zap.String("dir", dir))

	const changed = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(changed) || !strings.EqualFold(filepath.Ext(ev.Name), ".png") {
				continue
			}
			s.Invalidate(ev.Name)
			s.logger.Debug("Template changed on disk.", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Template watcher error.", zap.Error(err))
		}
	}
}

func decodeTemplate(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", path, err)
	}
	g := Grayscale(img)
	if g == img {
		cp := image.NewGray(g.Rect)
		copy(cp.Pix, g.Pix)
		g = cp
	}
	Stretch(g)
	return g, nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
