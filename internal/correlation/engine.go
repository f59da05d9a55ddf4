// Package correlation is the deduplication core: a classified detection
// either merges into a matching open event or starts a new one.
package correlation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/billion-eyes/incident-pipeline/internal/geo"
	"github.com/billion-eyes/incident-pipeline/internal/models"
	"github.com/billion-eyes/incident-pipeline/internal/responsibility"
	"github.com/billion-eyes/incident-pipeline/internal/store"
)

const (
	// DefaultWindow is the maximum anchor age for a merge.
	DefaultWindow = 2 * time.Hour
	// DefaultRadius is the maximum anchor distance for a merge, meters.
	DefaultRadius = 200.0
)

const (
	StatusUpdated = "updated"
	StatusNew     = "new"
)

// Result reports where a detection landed.
type Result struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// IncidentCodes maps categories to the short codes used in event IDs.
type IncidentCodes map[string]string

// LoadIncidentCodes degrades to an empty table on failure; unknown
// categories then fall back to store.FallbackCode.
func LoadIncidentCodes(path string) IncidentCodes {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("incident codes unavailable, using fallback code", "path", path, "error", err)
		return IncidentCodes{}
	}
	var codes IncidentCodes
	if err := json.Unmarshal(data, &codes); err != nil {
		slog.Warn("incident codes invalid, using fallback code", "path", path, "error", err)
		return IncidentCodes{}
	}
	return codes
}

func (c IncidentCodes) Code(category string) string {
	if code, ok := c[category]; ok {
		return code
	}
	return store.FallbackCode
}

type Engine struct {
	events store.EventRepository
	seq    store.SequenceAllocator
	resp   *responsibility.Resolver
	codes  IncidentCodes
	window time.Duration
	radius float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(events store.EventRepository, seq store.SequenceAllocator, resp *responsibility.Resolver, codes IncidentCodes, window time.Duration, radius float64) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	if radius <= 0 {
		radius = DefaultRadius
	}
	return &Engine{
		events: events,
		seq:    seq,
		resp:   resp,
		codes:  codes,
		window: window,
		radius: radius,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Correlate merges the detection into the first matching open event of the
// category, or creates a new event. The whole find-or-create runs under a
// per-category lock: two concurrent detections in the same window must
// never both miss and create duplicate events.
func (e *Engine) Correlate(ctx context.Context, d *models.Detection, category string) (Result, error) {
	unlock := e.lockCategory(category)
	defer unlock()

	candidates, err := e.events.OpenEventsWithCategory(ctx, category)
	if err != nil {
		return Result{}, fmt.Errorf("error fetching candidate events: %w", err)
	}

	for i := range candidates {
		ev := &candidates[i]
		anchor := ev.Anchor()
		if anchor == nil {
			continue
		}
		if !e.matches(d, anchor) {
			continue
		}
		// First match wins; no ranking among passing candidates.
		if err := e.events.AssignDetection(ctx, d.IncidentID, ev.ID); err != nil {
			return Result{}, fmt.Errorf("error appending detection to event %s: %w", ev.ID, err)
		}
		d.EventID = ev.ID
		slog.Info("detection merged into event", "incident", d.IncidentID, "event", ev.ID, "category", category)
		return Result{EventID: ev.ID, Status: StatusUpdated}, nil
	}

	return e.create(ctx, d, category)
}

// matches applies the similarity test against the event anchor only: the
// timestamps must be under the window apart and the locations under the
// radius apart. Both boundaries are exclusive; a detection at exactly the
// window or radius is outside.
func (e *Engine) matches(d *models.Detection, anchor *models.Detection) bool {
	delta := d.Timestamp.Sub(anchor.Timestamp.Time)
	if delta < 0 {
		delta = -delta
	}
	if delta >= e.window {
		return false
	}

	// Both locations transpose from GeoJSON [lon, lat] to (lat, lon)
	// through the same accessor; distance math never mixes orderings.
	distance := geo.Distance(d.Location.LatLon(), anchor.Location.LatLon())
	return distance < e.radius
}

func (e *Engine) create(ctx context.Context, d *models.Detection, category string) (Result, error) {
	assignment, err := e.resp.Resolve(ctx, category, d.Location.LatLon())
	if err != nil {
		return Result{}, fmt.Errorf("error resolving responsibility: %w", err)
	}

	id, err := e.seq.NextEventID(ctx, time.Now(), e.codes.Code(category))
	if err != nil {
		return Result{}, fmt.Errorf("error allocating event id: %w", err)
	}

	d.EventID = id
	event := &models.Event{
		ID:          id,
		Category:    category,
		Description: fmt.Sprintf("%s event", category),
		Status:      models.EventStatusOpen,
		Assignment:  assignment,
		Detections:  []models.Detection{*d},
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.events.AddEvent(ctx, event); err != nil {
		return Result{}, fmt.Errorf("error creating event: %w", err)
	}

	slog.Info("new event created", "event", id, "category", category, "assignment", assignment.Kind, "agencies", assignment.Agencies)
	return Result{EventID: id, Status: StatusNew}, nil
}

func (e *Engine) lockCategory(category string) func() {
	e.mu.Lock()
	lock, ok := e.locks[category]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[category] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
