package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// FileStore keeps every profile in one JSON document. Writes replace the
// document atomically.
type FileStore struct {
	path string
	log  *zap.Logger
	now  func() time.Time

	mu sync.Mutex
}

var _ schemas.ProfileRepository = (*FileStore)(nil)

// NewFileStore creates a FileStore backed by path. The file is created on
// the first save.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("profiles path cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &FileStore{
		path: path,
		log:  logger.Named("profile_store"),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *FileStore) ListProfiles(_ context.Context) ([]schemas.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) GetProfile(_ context.Context, name string) (schemas.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles, err := s.read()
	if err != nil {
		return schemas.Profile{}, err
	}
	if i := indexOf(profiles, name); i >= 0 {
		return profiles[i], nil
	}
	return schemas.Profile{}, fmt.Errorf("%w: %q", schemas.ErrProfileNotFound, strings.TrimSpace(name))
}

func (s *FileStore) SaveProfile(_ context.Context, p schemas.Profile) (schemas.Profile, error) {
	p, err := normalizeProfile(p)
	if err != nil {
		return schemas.Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	profiles, err := s.read()
	if err != nil {
		return schemas.Profile{}, err
	}

	now := s.now()
	p.UpdatedAt = now
	if i := indexOf(profiles, p.Name); i >= 0 {
		p.CreatedAt = profiles[i].CreatedAt
		profiles[i] = p
	} else {
		p.CreatedAt = now
		profiles = append(profiles, p)
	}

	if err := s.write(profiles); err != nil {
		return schemas.Profile{}, err
	}
	s.log.Debug("Profile saved.", zap.String("name", p.Name), zap.Int("points", len(p.Points)))
	return p, nil
}

func (s *FileStore) DeleteProfile(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles, err := s.read()
	if err != nil {
		return err
	}
	i := indexOf(profiles, name)
	if i < 0 {
		return fmt.Errorf("%w: %q", schemas.ErrProfileNotFound, strings.TrimSpace(name))
	}
	return s.write(append(profiles[:i], profiles[i+1:]...))
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) read() ([]schemas.Profile, error) {
	profiles := []schemas.Profile{}
	if err := readJSON(s.path, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *FileStore) write(profiles []schemas.Profile) error {
	return writeJSON(s.path, profiles)
}

func indexOf(profiles []schemas.Profile, name string) int {
	key := schemas.ProfileKey(name)
	for i, p := range profiles {
		if schemas.ProfileKey(p.Name) == key {
			return i
		}
	}
	return -1
}

// readJSON decodes path into v. A missing or empty file leaves v untouched.
func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
