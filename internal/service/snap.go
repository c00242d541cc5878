// File: internal/service/snap.go
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/matcher"
)

// Snapshot describes a captured window image on disk.
type Snapshot struct {
	ImagePath string `json:"imagePath"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// SnapPointRequest is the input of save-snap-point and edit-snap-point.
// Selections stay loosely typed because clients spell the keys differently.
type SnapPointRequest struct {
	Index      int               `json:"index"`
	OffsetX    float64           `json:"offsetX"`
	OffsetY    float64           `json:"offsetY"`
	ImagePath  string            `json:"imagePath,omitempty"`
	Selections *[]map[string]any `json:"selections,omitempty"`
}

// IndexedPoint pairs a working set point with its position.
type IndexedPoint struct {
	Index int `json:"index"`
	schemas.ClickPoint
}

// CaptureWindow grabs the window's contents into snap-<unix-ms>.png.
func (c *Controller) CaptureWindow(handle schemas.WindowID) (Snapshot, error) {
	if handle == 0 {
		return Snapshot{}, schemas.Invalid("handle", "is required")
	}
	img, err := c.deps.Capturer.CaptureWindow(handle)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to capture window: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Snapshot{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	dir := c.storage.SnapshotDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("snap-%d.png", c.now().UnixMilli()))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return Snapshot{}, fmt.Errorf("failed to write snapshot: %w", err)
	}

	b := img.Bounds()
	c.logger.Info("Window captured.", zap.String("path", path), zap.Int("width", b.Dx()), zap.Int("height", b.Dy()))
	return Snapshot{ImagePath: path, Width: b.Dx(), Height: b.Dy()}, nil
}

func roundOffset(x, y float64) (schemas.OffsetPoint, error) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return schemas.OffsetPoint{}, schemas.Invalid("offset", "must be finite numbers")
	}
	o := schemas.OffsetPoint{OffsetX: int(math.Round(x)), OffsetY: int(math.Round(y))}
	if !o.Valid() {
		return schemas.OffsetPoint{}, schemas.Invalid("offset", "must not be negative")
	}
	return o, nil
}

// cutRegions turns raw selections over imagePath into stored templates. A
// selection that cannot be cut is logged and skipped.
func (c *Controller) cutRegions(imagePath string, raw []map[string]any, pointIndex int) []schemas.MatchRegion {
	if len(raw) == 0 {
		return nil
	}
	if imagePath == "" {
		c.logger.Warn("Selections given without a source image, skipping them.", zap.Int("selections", len(raw)))
		return nil
	}
	src, err := loadImage(imagePath)
	if err != nil {
		c.logger.Warn("Source image unreadable, skipping selections.", zap.String("path", imagePath), zap.Error(err))
		return nil
	}
	b := src.Bounds()
	bounds := &matcher.Bounds{Width: b.Dx(), Height: b.Dy()}
	stamp := c.now().UnixMilli()

	regions := make([]schemas.MatchRegion, 0, len(raw))
	for i, r := range raw {
		sel, err := matcher.ParseSelection(r, bounds)
		if err != nil {
			c.logger.Warn("Selection rejected.", zap.Int("selection", i), zap.Error(err))
			continue
		}
		tpl, err := matcher.CutTemplate(src, sel, c.sharpen)
		if err != nil {
			c.logger.Warn("Template cut failed.", zap.Int("selection", i), zap.Error(err))
			continue
		}
		path := filepath.Join(c.storage.TemplateDir(), fmt.Sprintf("template-%d-%d-%d.png", stamp, pointIndex, i))
		if err := c.deps.Templates.Save(path, tpl); err != nil {
			c.logger.Warn("Template save failed.", zap.String("path", path), zap.Error(err))
			continue
		}
		regions = append(regions, schemas.MatchRegion{Selection: sel, TemplatePath: path})
	}
	return regions
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func (c *Controller) removeTemplates(regions []schemas.MatchRegion) {
	for _, r := range regions {
		if err := c.deps.Templates.Remove(r.TemplatePath); err != nil {
			c.logger.Warn("Failed to remove template.", zap.String("path", r.TemplatePath), zap.Error(err))
		}
	}
}

// stale returns the regions of old whose template file is not reused by next.
func stale(old, next []schemas.MatchRegion) []schemas.MatchRegion {
	keep := make(map[string]struct{}, len(next))
	for _, r := range next {
		keep[filepath.Clean(r.TemplatePath)] = struct{}{}
	}
	var out []schemas.MatchRegion
	for _, r := range old {
		if _, ok := keep[filepath.Clean(r.TemplatePath)]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// SaveSnapPoint appends a point, cutting a template for every selection.
func (c *Controller) SaveSnapPoint(req SnapPointRequest) (IndexedPoint, error) {
	offset, err := roundOffset(req.OffsetX, req.OffsetY)
	if err != nil {
		return IndexedPoint{}, err
	}
	ws, err := c.deps.WorkingSet.Load()
	if err != nil {
		return IndexedPoint{}, err
	}

	p := schemas.ClickPoint{OffsetPoint: offset, ImagePath: req.ImagePath}
	if req.Selections != nil {
		p.Regions = c.cutRegions(req.ImagePath, *req.Selections, len(ws.Points))
	}
	index, saved, err := c.deps.WorkingSet.AppendPoint(p)
	if err != nil {
		c.removeTemplates(p.Regions)
		return IndexedPoint{}, err
	}
	return IndexedPoint{Index: index, ClickPoint: saved}, nil
}

// EditSnapPoint replaces a point's offsets. When selections are supplied the
// templates are recut and the old ones removed.
func (c *Controller) EditSnapPoint(req SnapPointRequest) (IndexedPoint, error) {
	offset, err := roundOffset(req.OffsetX, req.OffsetY)
	if err != nil {
		return IndexedPoint{}, err
	}
	current, err := c.deps.WorkingSet.Point(req.Index)
	if err != nil {
		return IndexedPoint{}, err
	}

	next := current
	next.OffsetPoint = offset
	if req.ImagePath != "" {
		next.ImagePath = req.ImagePath
	}
	if req.Selections != nil {
		next.Regions = c.cutRegions(next.ImagePath, *req.Selections, req.Index)
	}

	old, err := c.deps.WorkingSet.ReplacePoint(req.Index, next)
	if err != nil {
		if req.Selections != nil {
			c.removeTemplates(next.Regions)
		}
		return IndexedPoint{}, err
	}
	if req.Selections != nil {
		c.removeTemplates(stale(old.Regions, next.Regions))
	}
	next.ID = old.ID
	return IndexedPoint{Index: req.Index, ClickPoint: next}, nil
}

// DeleteSnapPoint removes a point together with its templates and, when no
// other point uses it, its snapshot image.
func (c *Controller) DeleteSnapPoint(index int) (IndexedPoint, error) {
	removed, err := c.deps.WorkingSet.RemovePoint(index)
	if err != nil {
		return IndexedPoint{}, err
	}
	c.removeTemplates(removed.Regions)

	if removed.ImagePath != "" {
		ws, err := c.deps.WorkingSet.Load()
		if err != nil {
			return IndexedPoint{}, err
		}
		shared := false
		for _, p := range ws.Points {
			if p.ImagePath == removed.ImagePath {
				shared = true
				break
			}
		}
		if !shared {
			if err := os.Remove(removed.ImagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
				c.logger.Warn("Failed to remove snapshot.", zap.String("path", removed.ImagePath), zap.Error(err))
			}
		}
	}
	return IndexedPoint{Index: index, ClickPoint: removed}, nil
}

// GetSnapPoint returns the point at index.
func (c *Controller) GetSnapPoint(index int) (IndexedPoint, error) {
	p, err := c.deps.WorkingSet.Point(index)
	if err != nil {
		return IndexedPoint{}, err
	}
	return IndexedPoint{Index: index, ClickPoint: p}, nil
}

// ListSnapPoints returns the whole working set.
func (c *Controller) ListSnapPoints() (schemas.WorkingSet, error) {
	return c.deps.WorkingSet.Load()
}

// SnapSettings updates the working set's target and interval.
type SnapSettings struct {
	Target   *schemas.WindowTarget `json:"targetWindow,omitempty"`
	Interval *schemas.Millis       `json:"interval,omitempty"`
}

// UpdateSnapSettings changes the working set's target and/or interval.
func (c *Controller) UpdateSnapSettings(s SnapSettings) (schemas.WorkingSet, error) {
	if s.Interval != nil && *s.Interval < 0 {
		return schemas.WorkingSet{}, schemas.Invalid("interval", "must not be negative")
	}
	return c.deps.WorkingSet.Update(func(ws *schemas.WorkingSet) error {
		if s.Target != nil {
			ws.Target = s.Target
		}
		if s.Interval != nil {
			ws.Interval = *s.Interval
		}
		return nil
	})
}

func (c *Controller) handleCaptureWindow(_ context.Context, params []byte) (interface{}, error) {
	var p struct {
		Handle schemas.WindowID `json:"handle"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return c.CaptureWindow(p.Handle)
}

func (c *Controller) handleSaveSnapPoint(_ context.Context, params []byte) (interface{}, error) {
	var req SnapPointRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	return c.SaveSnapPoint(req)
}

func (c *Controller) handleEditSnapPoint(_ context.Context, params []byte) (interface{}, error) {
	var req SnapPointRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	return c.EditSnapPoint(req)
}

type indexParams struct {
	Index int `json:"index"`
}

func (c *Controller) handleDeleteSnapPoint(_ context.Context, params []byte) (interface{}, error) {
	var p indexParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return c.DeleteSnapPoint(p.Index)
}

func (c *Controller) handleGetSnapPoint(_ context.Context, params []byte) (interface{}, error) {
	var p indexParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return c.GetSnapPoint(p.Index)
}

func (c *Controller) handleListSnapPoints(context.Context, []byte) (interface{}, error) {
	return c.ListSnapPoints()
}

func (c *Controller) handleUpdateSnapSettings(_ context.Context, params []byte) (interface{}, error) {
	var s SnapSettings
	if err := decode(params, &s); err != nil {
		return nil, err
	}
	return c.UpdateSnapSettings(s)
}
