package tasks

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a media task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ActiveStatuses returns the statuses that count against the admission quota.
func ActiveStatuses() []Status {
	return []Status{StatusQueued, StatusProcessing}
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return normalized, true
	default:
		return "", false
	}
}

// IsTerminal reports whether a status absorbs all further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Variant is one resolution-specific published rendition of the source media.
type Variant struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Outputs is the published result set assembled by the finalize stage.
type Outputs struct {
	Thumbnail string    `json:"thumbnail"`
	Variants  []Variant `json:"variants"`
}

// IsZero reports whether no outputs have been recorded.
func (o Outputs) IsZero() bool {
	return o.Thumbnail == "" && len(o.Variants) == 0
}

// ParseOutputs decodes the stored outputs JSON; empty input yields zero outputs.
func ParseOutputs(raw string) (Outputs, error) {
	var out Outputs
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Outputs{}, err
	}
	return out, nil
}

// Task represents a media task persisted in SQLite.
type Task struct {
	ID               string
	UserID           string
	OriginalFilename string
	Status           Status
	Progress         int
	JobHandle        string
	SourcePath       string
	ThumbnailPath    string
	OutputsJSON      string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Outputs decodes the stored outputs payload.
func (t *Task) Outputs() (Outputs, error) {
	return ParseOutputs(t.OutputsJSON)
}

// IsActive reports whether the task counts against the admission quota.
func (t *Task) IsActive() bool {
	return t.Status == StatusQueued || t.Status == StatusProcessing
}

// Patch carries a partial update for a task row. Nil fields are left
// untouched. Apply ignores the entire patch when the stored status is
// already terminal.
type Patch struct {
	Status        *Status
	Progress      *int
	JobHandle     *string
	SourcePath    *string
	ThumbnailPath *string
	Outputs       *Outputs
	ErrorMessage  *string
}

// StatusOf is a convenience constructor for Patch status fields.
func StatusOf(s Status) *Status { return &s }

// IntOf is a convenience constructor for Patch integer fields.
func IntOf(v int) *int { return &v }

// StringOf is a convenience constructor for Patch string fields.
func StringOf(v string) *string { return &v }
