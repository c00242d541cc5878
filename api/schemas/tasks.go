package schemas

import (
	"strings"
	"time"
)

// -- Point Schemas --

// MatchRegion gates a click point on a stored template.
type MatchRegion struct {
	Selection    SelectionRect `json:"selection"`
	TemplatePath string        `json:"templateImagePath"`
}

// ClickPoint is a window-relative click location with zero or more match
// regions. A point without regions fires every tick; otherwise it fires when
// any region matches.
type ClickPoint struct {
	ID int64 `json:"id,omitempty"`
	OffsetPoint
	// ImagePath is the snapshot the regions were cut from.
	ImagePath string        `json:"imagePath,omitempty"`
	Regions   []MatchRegion `json:"selections,omitempty"`
}

// Unconditional reports whether the point has no match regions.
func (p ClickPoint) Unconditional() bool {
	return len(p.Regions) == 0
}

// -- Profile Schemas --

// Profile is the durable configuration unit: a named interval and point list,
// optionally bound to the window it was recorded against.
type Profile struct {
	Name      string        `json:"name"`
	Interval  Millis        `json:"interval"`
	Points    []ClickPoint  `json:"points"`
	Target    *WindowTarget `json:"targetWindow,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// ProfileKey folds a profile name into its case-insensitive identity.
func ProfileKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// -- Task Schemas --

// DefaultTaskID is the reserved id used by the single default task.
const DefaultTaskID = "default"

// TaskSpec is everything needed to start one automation task.
type TaskSpec struct {
	TaskID   string       `json:"taskId"`
	Target   WindowTarget `json:"targetWindow"`
	Points   []ClickPoint `json:"points"`
	Interval Millis       `json:"interval"`
}

// Conditional reports whether any point carries match regions.
func (s TaskSpec) Conditional() bool {
	for _, p := range s.Points {
		if !p.Unconditional() {
			return true
		}
	}
	return false
}

// TaskState is the lifecycle state of an automation task.
type TaskState int

const (
	TaskIdle TaskState = iota
	TaskRunning
	TaskStopping
	TaskStopped
	TaskTargetLost
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskIdle:
		return "idle"
	case TaskRunning:
		return "running"
	case TaskStopping:
		return "stopping"
	case TaskStopped:
		return "stopped"
	case TaskTargetLost:
		return "target_lost"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s TaskState) Terminal() bool {
	return s == TaskStopped || s == TaskTargetLost || s == TaskFailed
}

// TaskInfo is a point-in-time view of a supervised task.
type TaskInfo struct {
	TaskID    string       `json:"taskId"`
	RunID     string       `json:"runId"`
	State     string       `json:"state"`
	Target    WindowTarget `json:"targetWindow"`
	Points    int          `json:"points"`
	Interval  Millis       `json:"interval"`
	StartedAt time.Time    `json:"startedAt"`
	Ticks     uint64       `json:"ticks"`
	Clicks    uint64       `json:"clicks"`
}
