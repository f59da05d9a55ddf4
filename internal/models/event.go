package models

import "time"

type EventStatus string

const (
	EventStatusOpen   EventStatus = "open"
	EventStatusClosed EventStatus = "closed"
)

const (
	AssignmentCritical    = "critical"
	AssignmentNonCritical = "non-critical"
)

// Assignment is the responsible-party result for an event. Critical
// categories carry a distance-ranked list of agency IDs; non-critical
// categories carry a single ID, or none when no jurisdiction claimed the
// location.
type Assignment struct {
	Kind     string   `json:"type"`
	Agencies []string `json:"agencies"`
}

func CriticalAssignment(agencies []string) Assignment {
	return Assignment{Kind: AssignmentCritical, Agencies: agencies}
}

func NonCriticalAssignment(agencyID string) Assignment {
	return Assignment{Kind: AssignmentNonCritical, Agencies: []string{agencyID}}
}

func Unassigned() Assignment {
	return Assignment{Kind: AssignmentNonCritical}
}

func (a Assignment) IsUnassigned() bool {
	return len(a.Agencies) == 0
}

// Event is a deduplicated aggregate of detections sharing one category
// within a spatio-temporal window. Category is fixed at creation; the
// Detections sequence is append-only from the pipeline's perspective.
// AssignmentTime and GroundStaff are set only by the external dispatch
// workflow, never here.
type Event struct {
	ID             string      `json:"event_id"`
	Category       string      `json:"category"`
	Description    string      `json:"description,omitempty"`
	Status         EventStatus `json:"status"`
	Assignment     Assignment  `json:"assigned_agency"`
	AssignmentTime *time.Time  `json:"assignment_time"`
	GroundStaff    *string     `json:"ground_staff"`
	Detections     []Detection `json:"incidents"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Anchor returns the most recent constituent detection, the sole
// comparison point for merge decisions. Nil when the event is empty.
func (e *Event) Anchor() *Detection {
	var anchor *Detection
	for i := range e.Detections {
		d := &e.Detections[i]
		if anchor == nil || d.Timestamp.After(anchor.Timestamp.Time) {
			anchor = d
		}
	}
	return anchor
}
