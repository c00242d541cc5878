package store

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// WorkingSetStore persists the snap working set (snap-config.json). Every
// mutation is a locked read-modify-write of the whole document.
type WorkingSetStore struct {
	path string
	log  *zap.Logger

	mu sync.Mutex
}

// NewWorkingSetStore creates a store backed by path.
func NewWorkingSetStore(path string, logger *zap.Logger) (*WorkingSetStore, error) {
	if path == "" {
		return nil, errors.New("working set path cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &WorkingSetStore{path: path, log: logger.Named("working_set")}, nil
}

// Load returns the persisted working set, or an empty one.
func (s *WorkingSetStore) Load() (schemas.WorkingSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Update applies fn to the current working set and persists the result.
// Nothing is written when fn fails.
func (s *WorkingSetStore) Update(fn func(ws *schemas.WorkingSet) error) (schemas.WorkingSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, err := s.read()
	if err != nil {
		return ws, err
	}
	if err := fn(&ws); err != nil {
		return ws, err
	}
	if err := writeJSON(s.path, ws); err != nil {
		return ws, err
	}
	return ws, nil
}

// Point returns the point at index.
func (s *WorkingSetStore) Point(index int) (schemas.ClickPoint, error) {
	ws, err := s.Load()
	if err != nil {
		return schemas.ClickPoint{}, err
	}
	if err := checkIndex(ws, index); err != nil {
		return schemas.ClickPoint{}, err
	}
	return ws.Points[index], nil
}

// AppendPoint adds p to the end of the list, assigning it the next id, and
// returns its index.
func (s *WorkingSetStore) AppendPoint(p schemas.ClickPoint) (int, schemas.ClickPoint, error) {
	var index int
	_, err := s.Update(func(ws *schemas.WorkingSet) error {
		p.ID = nextID(ws.Points)
		ws.Points = append(ws.Points, p)
		index = len(ws.Points) - 1
		return nil
	})
	if err != nil {
		return 0, schemas.ClickPoint{}, err
	}
	s.log.Debug("Point added.", zap.Int("index", index), zap.Int64("id", p.ID))
	return index, p, nil
}

// ReplacePoint overwrites the point at index, keeping its id, and returns the
// previous value.
func (s *WorkingSetStore) ReplacePoint(index int, p schemas.ClickPoint) (old schemas.ClickPoint, err error) {
	_, err = s.Update(func(ws *schemas.WorkingSet) error {
		if err := checkIndex(*ws, index); err != nil {
			return err
		}
		old = ws.Points[index]
		p.ID = old.ID
		ws.Points[index] = p
		return nil
	})
	return old, err
}

// RemovePoint deletes the point at index and returns it.
func (s *WorkingSetStore) RemovePoint(index int) (removed schemas.ClickPoint, err error) {
	_, err = s.Update(func(ws *schemas.WorkingSet) error {
		if err := checkIndex(*ws, index); err != nil {
			return err
		}
		removed = ws.Points[index]
		ws.Points = append(ws.Points[:index], ws.Points[index+1:]...)
		return nil
	})
	return removed, err
}

// Replace overwrites the whole working set.
func (s *WorkingSetStore) Replace(next schemas.WorkingSet) error {
	_, err := s.Update(func(ws *schemas.WorkingSet) error {
		*ws = next
		if ws.Points == nil {
			ws.Points = []schemas.ClickPoint{}
		}
		return nil
	})
	return err
}

func (s *WorkingSetStore) read() (schemas.WorkingSet, error) {
	ws := schemas.WorkingSet{Points: []schemas.ClickPoint{}}
	if err := readJSON(s.path, &ws); err != nil {
		return schemas.WorkingSet{}, err
	}
	if ws.Points == nil {
		ws.Points = []schemas.ClickPoint{}
	}
	return ws, nil
}

func checkIndex(ws schemas.WorkingSet, index int) error {
	if index < 0 || index >= len(ws.Points) {
		return fmt.Errorf("%w: %d (have %d points)", schemas.ErrInvalidIndex, index, len(ws.Points))
	}
	return nil
}

func nextID(points []schemas.ClickPoint) int64 {
	var id int64
	for _, p := range points {
		id = max(id, p.ID)
	}
	return id + 1
}
