package schemas

// -- Event Schemas --

// EventType tags an asynchronous notification.
type EventType string

const (
	// EventTaskStatus reports the default task.
	EventTaskStatus EventType = "task-status"
	// EventItemStatus reports a task keyed by its id.
	EventItemStatus EventType = "task-status-for-item"
	// EventRecordedPoint carries a click captured by the recorder.
	EventRecordedPoint EventType = "record-click-point"
	// EventRecorderError carries a recorder failure.
	EventRecorderError EventType = "record-click-error"
	// EventRecorderInfo carries informational recorder messages.
	EventRecorderInfo EventType = "record-click-info"
	// EventRecorderStopped is emitted on an explicit recorder stop.
	EventRecorderStopped EventType = "record-click-stopped"
)

// StatusKind classifies a TaskStatus for display.
type StatusKind string

const (
	StatusSuccess StatusKind = "success"
	StatusError   StatusKind = "error"
	StatusInfo    StatusKind = "info"
)

// TaskStatus is the payload of task status events.
type TaskStatus struct {
	TaskID     string     `json:"itemId"`
	Running    bool       `json:"running"`
	Message    string     `json:"message"`
	Type       StatusKind `json:"type"`
	TargetLost bool       `json:"targetLost,omitempty"`
}

// RecordedPoint is the payload of EventRecordedPoint.
type RecordedPoint struct {
	OffsetPoint
	ScreenX int `json:"screenX"`
	ScreenY int `json:"screenY"`
}

// RecorderNotice is the payload of recorder info, error and stopped events.
type RecorderNotice struct {
	Message string       `json:"message,omitempty"`
	Target  WindowTarget `json:"targetWindow"`
}
