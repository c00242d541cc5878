package matcher

import (
	"errors"
	"fmt"
	"image"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// Matcher evaluates match regions against a window snapshot.
type Matcher struct {
	store  *TemplateStore
	scorer Scorer
}

// New creates a Matcher backed by store.
func New(store *TemplateStore, scorer Scorer) (*Matcher, error) {
	if store == nil {
		return nil, errors.New("template store cannot be nil")
	}
	return &Matcher{store: store, scorer: scorer}, nil
}

// Score extracts the region's selection from snapshot, resamples it to the
// template's dimensions and compares the two.
func (m *Matcher) Score(snapshot image.Image, region schemas.MatchRegion) (float64, error) {
	if snapshot == nil {
		return 0, errors.New("snapshot is nil")
	}
	if region.TemplatePath == "" {
		return 0, schemas.Invalid("templateImagePath", "missing")
	}
	tpl, err := m.store.Load(region.TemplatePath)
	if err != nil {
		return 0, err
	}
	live, err := Extract(snapshot, region.Selection)
	if err != nil {
		return 0, fmt.Errorf("selection %s: %w", region.Selection, err)
	}
	live = Resize(live, tpl.Rect.Dx(), tpl.Rect.Dy())
	return m.scorer.Compare(Pixels(live), Pixels(tpl)), nil
}

// Match reports whether any region matches, stopping at the first that does.
// A region that fails to evaluate counts as a non-match; the first such
// error is returned alongside the result.
func (m *Matcher) Match(snapshot image.Image, regions []schemas.MatchRegion) (bool, error) {
	var firstErr error
	for i, r := range regions {
		score, err := m.Score(snapshot, r)
		if err != nil {
			if firstErr == nil {
				firstErr = &schemas.MatchError{PointIndex: -1, RegionIndex: i, Err: err}
			}
			continue
		}
		if m.scorer.Matches(score) {
			return true, firstErr
		}
	}
	return false, firstErr
}

// Threshold returns the active similarity threshold.
func (m *Matcher) Threshold() float64 {
	return m.scorer.Threshold
}

// Templates exposes the backing store.
func (m *Matcher) Templates() *TemplateStore {
	return m.store
}
