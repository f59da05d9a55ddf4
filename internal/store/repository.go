package store

import (
	"context"
	"time"

	"github.com/billion-eyes/incident-pipeline/internal/models"
)

type EventFilter struct {
	Status   models.EventStatus
	Category string
	Limit    int
	Offset   int
}

type EventRepository interface {
	AddEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context, f EventFilter) ([]models.Event, error)
	// OpenEventsWithCategory returns every non-closed event holding at
	// least one detection of the category, in a deterministic
	// (created_at, id) order. Merge candidates come from here.
	OpenEventsWithCategory(ctx context.Context, category string) ([]models.Event, error)
	// AssignDetection appends an already-persisted detection to an event.
	AssignDetection(ctx context.Context, incidentID, eventID string) error
	CloseEvent(ctx context.Context, id string) error
}

type DetectionRepository interface {
	AddDetection(ctx context.Context, d *models.Detection) error
	GetDetection(ctx context.Context, incidentID string) (*models.Detection, error)
}

type AgencyRepository interface {
	AddAgency(ctx context.Context, a *models.Agency) error
	ListAgencies(ctx context.Context) ([]models.Agency, error)
	// AgenciesResponsibleFor matches the responsibility set exactly but
	// case-insensitively (the critical-path rule).
	AgenciesResponsibleFor(ctx context.Context, category string) ([]models.Agency, error)
	AgenciesWithJurisdiction(ctx context.Context) ([]models.Agency, error)
}

// SequenceAllocator issues human-readable sequential identifiers keyed by
// (day, code). Concurrent calls for the same key never receive the same
// value; counters reset daily per key.
type SequenceAllocator interface {
	NextEventID(ctx context.Context, day time.Time, code string) (string, error)
	NextIncidentID(ctx context.Context, day time.Time) (string, error)
}
