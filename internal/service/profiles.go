// File: internal/service/profiles.go
package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
)

// SaveProfileParams names a profile; omitted fields come from the working set.
type SaveProfileParams struct {
	Name     string                `json:"name"`
	Interval *schemas.Millis       `json:"interval,omitempty"`
	Points   []schemas.ClickPoint  `json:"points,omitempty"`
	Target   *schemas.WindowTarget `json:"targetWindow,omitempty"`
}

// ListProfiles returns every stored profile.
func (c *Controller) ListProfiles(ctx context.Context) ([]schemas.Profile, error) {
	profiles, err := c.deps.Profiles.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	if profiles == nil {
		profiles = []schemas.Profile{}
	}
	return profiles, nil
}

// SaveProfile upserts a profile by case-insensitive name.
func (c *Controller) SaveProfile(ctx context.Context, p SaveProfileParams) (schemas.Profile, error) {
	if strings.TrimSpace(p.Name) == "" {
		return schemas.Profile{}, schemas.Invalid("name", "is required")
	}
	ws, err := c.deps.WorkingSet.Load()
	if err != nil {
		return schemas.Profile{}, err
	}

	profile := schemas.Profile{Name: p.Name, Interval: ws.Interval, Points: ws.Points, Target: ws.Target}
	if p.Interval != nil {
		profile.Interval = *p.Interval
	}
	if p.Points != nil {
		profile.Points = p.Points
	}
	if p.Target != nil {
		profile.Target = p.Target
	}

	saved, err := c.deps.Profiles.SaveProfile(ctx, profile)
	if err != nil {
		return schemas.Profile{}, err
	}
	c.logger.Info("Profile saved.", zap.String("name", saved.Name), zap.Int("points", len(saved.Points)))
	return saved, nil
}

// DeleteProfile removes a profile by name.
func (c *Controller) DeleteProfile(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return schemas.Invalid("name", "is required")
	}
	return c.deps.Profiles.DeleteProfile(ctx, name)
}

// LoadProfile copies a stored profile into the working set.
func (c *Controller) LoadProfile(ctx context.Context, name string) (schemas.Profile, error) {
	if strings.TrimSpace(name) == "" {
		return schemas.Profile{}, schemas.Invalid("name", "is required")
	}
	p, err := c.deps.Profiles.GetProfile(ctx, name)
	if err != nil {
		return schemas.Profile{}, err
	}
	if err := c.deps.WorkingSet.Replace(schemas.WorkingSet{Target: p.Target, Interval: p.Interval, Points: p.Points}); err != nil {
		return schemas.Profile{}, err
	}
	c.logger.Info("Profile loaded.", zap.String("name", p.Name))
	return p, nil
}

type nameParams struct {
	Name string `json:"name"`
}

func (c *Controller) handleListProfiles(ctx context.Context, _ []byte) (interface{}, error) {
	return c.ListProfiles(ctx)
}

func (c *Controller) handleSaveProfile(ctx context.Context, params []byte) (interface{}, error) {
	var p SaveProfileParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return c.SaveProfile(ctx, p)
}

func (c *Controller) handleDeleteProfile(ctx context.Context, params []byte) (interface{}, error) {
	var p nameParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return nil, c.DeleteProfile(ctx, p.Name)
}

func (c *Controller) handleLoadProfile(ctx context.Context, params []byte) (interface{}, error) {
	var p nameParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return c.LoadProfile(ctx, p.Name)
}
