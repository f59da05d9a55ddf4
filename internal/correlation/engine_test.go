package correlation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/billion-eyes/incident-pipeline/internal/models"
	"github.com/billion-eyes/incident-pipeline/internal/responsibility"
	"github.com/billion-eyes/incident-pipeline/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteDB) {
	t.Helper()
	db, err := store.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	resp := responsibility.NewResolver(db, responsibility.CriticalityTable{}, 0, 0)
	codes := IncidentCodes{"Road Damage": "RDM", "Environmental Violation": "ENV"}
	return NewEngine(db, db, resp, codes, DefaultWindow, DefaultRadius), db
}

func detectionAt(id string, ts time.Time, lat, lon float64) *models.Detection {
	return &models.Detection{
		IncidentID: id,
		UserID:     "user-1",
		RawLabels:  models.Labels{"pothole"},
		Category:   "Road Damage",
		Location:   models.NewGeoPoint(lat, lon),
		Timestamp:  models.NewFlexTime(ts),
		CreatedAt:  ts,
	}
}

// ingest mirrors the pipeline: the detection row exists before correlation.
func ingest(t *testing.T, e *Engine, db *store.SQLiteDB, d *models.Detection) Result {
	t.Helper()
	if err := db.AddDetection(context.Background(), d); err != nil {
		t.Fatalf("AddDetection failed: %v", err)
	}
	res, err := e.Correlate(context.Background(), d, d.Category)
	if err != nil {
		t.Fatalf("Correlate failed: %v", err)
	}
	return res
}

func TestCorrelate_CreatesNewEvent(t *testing.T) {
	engine, db := newTestEngine(t)
	ts := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)

	d := detectionAt("I-20250307-001", ts, 20.705, 86.205)
	res := ingest(t, engine, db, d)

	if res.Status != StatusNew {
		t.Errorf("expected new event, got %q", res.Status)
	}
	if !strings.HasPrefix(res.EventID, "E-") || !strings.Contains(res.EventID, "-RDM-") {
		t.Errorf("unexpected event id: %s", res.EventID)
	}
	if d.EventID != res.EventID {
		t.Errorf("detection should point at the new event, got %q", d.EventID)
	}

	ev, err := db.GetEvent(context.Background(), res.EventID)
	if err != nil {
		t.Fatal(err)
	}
	if ev == nil {
		t.Fatal("event not persisted")
	}
	if ev.Status != models.EventStatusOpen || ev.Category != "Road Damage" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !ev.Assignment.IsUnassigned() {
		t.Errorf("no agencies registered, expected unassigned, got %+v", ev.Assignment)
	}
	if len(ev.Detections) != 1 {
		t.Errorf("expected 1 detection, got %d", len(ev.Detections))
	}
}

func TestCorrelate_MergesWithinWindow(t *testing.T) {
	engine, db := newTestEngine(t)
	ts := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)

	first := ingest(t, engine, db, detectionAt("I-20250307-001", ts, 20.705, 86.205))

	// 30 minutes later, ~120m north: inside both bounds.
	second := ingest(t, engine, db,
		detectionAt("I-20250307-002", ts.Add(30*time.Minute), 20.705+0.00108, 86.205))

	if second.Status != StatusUpdated {
		t.Errorf("expected merge, got %q", second.Status)
	}
	if second.EventID != first.EventID {
		t.Errorf("merge should target the existing event: %s vs %s", second.EventID, first.EventID)
	}

	ev, err := db.GetEvent(context.Background(), first.EventID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Detections) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(ev.Detections))
	}
	// The newest detection becomes the anchor for future merges.
	if anchor := ev.Anchor(); anchor.IncidentID != "I-20250307-002" {
		t.Errorf("expected newest detection as anchor, got %s", anchor.IncidentID)
	}
}

// Detections are keyed by incident id, so re-correlating one that already
// belongs to an event re-points the same row instead of appending a copy.
func TestCorrelate_ReplaySameDetection(t *testing.T) {
	engine, db := newTestEngine(t)
	ts := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()

	first := ingest(t, engine, db, detectionAt("I-20250307-001", ts, 20.705, 86.205))
	second := detectionAt("I-20250307-002", ts.Add(30*time.Minute), 20.705, 86.205)
	ingest(t, engine, db, second)

	replay, err := engine.Correlate(ctx, second, second.Category)
	if err != nil {
		t.Fatalf("Correlate replay failed: %v", err)
	}
	if replay.Status != StatusUpdated || replay.EventID != first.EventID {
		t.Errorf("replay should land in the same event, got %+v", replay)
	}

	ev, err := db.GetEvent(ctx, first.EventID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Detections) != 2 {
		t.Errorf("replay must not duplicate the detection, got %d rows", len(ev.Detections))
	}
}

func TestCorrelate_WindowBoundaryIsExclusive(t *testing.T) {
	engine, db := newTestEngine(t)
	ts := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)

	first := ingest(t, engine, db, detectionAt("I-20250307-001", ts, 20.705, 86.205))

	// Exactly two hours apart at the same location: outside the window.
	boundary := ingest(t, engine, db,
		detectionAt("I-20250307-002", ts.Add(2*time.Hour), 20.705, 86.205))
	if boundary.Status != StatusNew {
		t.Errorf("detection at exactly the window should start a new event, got %q", boundary.Status)
	}
	if boundary.EventID == first.EventID {
		t.Error("boundary detection merged into the old event")
	}

	// One second under the window merges, and the first candidate in
	// creation order takes it even though the newer event also matches.
	inside := ingest(t, engine, db,
		detectionAt("I-20250307-003", ts.Add(2*time.Hour-time.Second), 20.705, 86.205))
	if inside.Status != StatusUpdated || inside.EventID != first.EventID {
		t.Errorf("detection just inside the window should merge into the first event, got %+v", inside)
	}
}

func TestCorrelate_RadiusBoundaryIsExclusive(t *testing.T) {
	engine, db := newTestEngine(t)
	ts := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)

	first := ingest(t, engine, db, detectionAt("I-20250307-001", ts, 20.705, 86.205))

	// One degree of latitude is ~111.195km under the haversine earth
	// radius, so 0.0018 degrees is ~200.2m: just outside the 200m radius.
	far := ingest(t, engine, db,
		detectionAt("I-20250307-002", ts.Add(time.Minute), 20.705+0.0018, 86.205))
	if far.Status != StatusNew {
		t.Errorf("detection ~200.2m away should start a new event, got %q", far.Status)
	}

	// ~199.8m south of the first anchor: just inside its radius, well
	// clear of the second event.
	near := ingest(t, engine, db,
		detectionAt("I-20250307-003", ts.Add(2*time.Minute), 20.705-0.001797, 86.205))
	if near.Status != StatusUpdated || near.EventID != first.EventID {
		t.Errorf("detection ~199.8m away should merge into the first event, got %+v", near)
	}
}

func TestCorrelate_CategoriesDoNotMix(t *testing.T) {
	engine, db := newTestEngine(t)
	ts := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)

	road := ingest(t, engine, db, detectionAt("I-20250307-001", ts, 20.705, 86.205))

	litter := detectionAt("I-20250307-002", ts.Add(time.Minute), 20.705, 86.205)
	litter.Category = "Environmental Violation"
	litter.RawLabels = models.Labels{"litter"}
	res := ingest(t, engine, db, litter)

	if res.Status != StatusNew || res.EventID == road.EventID {
		t.Errorf("same spot, different category must not merge: %+v", res)
	}
	if !strings.Contains(res.EventID, "-ENV-") {
		t.Errorf("expected ENV code in id, got %s", res.EventID)
	}
}

func TestCorrelate_FirstMatchWins(t *testing.T) {
	engine, db := newTestEngine(t)
	ts := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)

	// Two open events whose anchors both sit within range of the probe.
	// They were born far apart in time so they never merged with each
	// other; the probe lands between their windows.
	older := testStoredEvent(t, db, "E-20250307-RDM-900", ts, 20.705, 86.205)
	newer := testStoredEvent(t, db, "E-20250307-RDM-901", ts.Add(time.Hour), 20.705, 86.205)

	probe := detectionAt("I-20250307-010", ts.Add(90*time.Minute), 20.705, 86.205)
	res := ingest(t, engine, db, probe)

	if res.Status != StatusUpdated {
		t.Fatalf("expected merge, got %q", res.Status)
	}
	if res.EventID != older {
		t.Errorf("first candidate in creation order should win, got %s (other: %s)", res.EventID, newer)
	}
}

func testStoredEvent(t *testing.T, db *store.SQLiteDB, id string, ts time.Time, lat, lon float64) string {
	t.Helper()
	d := detectionAt("I-"+id, ts, lat, lon)
	ev := &models.Event{
		ID:         id,
		Category:   d.Category,
		Status:     models.EventStatusOpen,
		Assignment: models.Unassigned(),
		Detections: []models.Detection{*d},
		CreatedAt:  ts,
	}
	if err := db.AddEvent(context.Background(), ev); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	return id
}

func TestCorrelate_ClosedEventsIgnored(t *testing.T) {
	engine, db := newTestEngine(t)
	ts := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)

	first := ingest(t, engine, db, detectionAt("I-20250307-001", ts, 20.705, 86.205))
	if err := db.CloseEvent(context.Background(), first.EventID); err != nil {
		t.Fatal(err)
	}

	res := ingest(t, engine, db,
		detectionAt("I-20250307-002", ts.Add(time.Minute), 20.705, 86.205))
	if res.Status != StatusNew || res.EventID == first.EventID {
		t.Errorf("closed events must not attract detections: %+v", res)
	}
}

// Concurrent detections of the same incident must collapse into a single
// event: exactly one goroutine creates, the rest merge.
func TestCorrelate_ConcurrentSameWindow(t *testing.T) {
	engine, db := newTestEngine(t)
	ts := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		d := detectionAt("I-20250307-"+string(rune('1'+i))+"00", ts, 20.705, 86.205)
		if err := db.AddDetection(ctx, d); err != nil {
			t.Fatal(err)
		}
		ids[i] = d.IncidentID
	}

	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := db.GetDetection(ctx, ids[i])
			if err != nil || d == nil {
				t.Errorf("GetDetection failed: %v", err)
				return
			}
			res, err := engine.Correlate(ctx, d, d.Category)
			if err != nil {
				t.Errorf("Correlate failed: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	created := 0
	eventIDs := map[string]bool{}
	for _, res := range results {
		if res.Status == StatusNew {
			created++
		}
		eventIDs[res.EventID] = true
	}
	if created != 1 {
		t.Errorf("expected exactly 1 created event, got %d", created)
	}
	if len(eventIDs) != 1 {
		t.Errorf("expected all detections in one event, got %v", eventIDs)
	}

	events, err := db.OpenEventsWithCategory(ctx, "Road Damage")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || len(events[0].Detections) != n {
		t.Errorf("expected 1 event holding %d detections, got %d events", n, len(events))
	}
}

func TestIncidentCodes(t *testing.T) {
	codes := IncidentCodes{"Road Damage": "RDM"}
	if codes.Code("Road Damage") != "RDM" {
		t.Error("known category should map to its code")
	}
	if codes.Code("Unknown") != store.FallbackCode {
		t.Error("unknown category should fall back")
	}

	empty := LoadIncidentCodes("/does/not/exist.json")
	if empty.Code("Road Damage") != store.FallbackCode {
		t.Error("missing config should degrade to fallback")
	}
}
