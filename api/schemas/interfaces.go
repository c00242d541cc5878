package schemas

import "context"

// -- Store Interfaces --

// ProfileRepository persists named profiles. Names are matched
// case-insensitively (see ProfileKey); SaveProfile is an upsert that keeps
// the original CreatedAt and stamps UpdatedAt.
//
//go:generate mockery --name ProfileRepository --output ../../internal/mocks --outpkg mocks
type ProfileRepository interface {
	ListProfiles(ctx context.Context) ([]Profile, error)
	// GetProfile returns ErrProfileNotFound for an unknown name.
	GetProfile(ctx context.Context, name string) (Profile, error)
	SaveProfile(ctx context.Context, p Profile) (Profile, error)
	// DeleteProfile returns ErrProfileNotFound for an unknown name.
	DeleteProfile(ctx context.Context, name string) error
	Close() error
}

// WorkingSet is the mutable snap configuration being edited: the bound
// target, the interval and the ordered point list.
type WorkingSet struct {
	Target   *WindowTarget `json:"target,omitempty"`
	Interval Millis        `json:"interval"`
	Points   []ClickPoint  `json:"points"`
}
