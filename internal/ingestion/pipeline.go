package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/billion-eyes/incident-pipeline/internal/bus"
	"github.com/billion-eyes/incident-pipeline/internal/classify"
	"github.com/billion-eyes/incident-pipeline/internal/correlation"
	"github.com/billion-eyes/incident-pipeline/internal/imagestore"
	"github.com/billion-eyes/incident-pipeline/internal/models"
	"github.com/billion-eyes/incident-pipeline/internal/store"
)

// message is one unit of work as it arrives from the queue (or the debug
// HTTP endpoint).
type message struct {
	UserID          string          `json:"userId"`
	DetectedObjects models.Labels   `json:"detected_objects"`
	Timestamp       json.RawMessage `json:"timestamp"`
	Location        models.GeoPoint `json:"location"`
	Base64Image     string          `json:"base64String"`
}

// Outcome reports what happened to one detection.
type Outcome struct {
	IncidentID string              `json:"incident_id,omitempty"`
	Category   string              `json:"category,omitempty"`
	Skipped    bool                `json:"skipped,omitempty"`
	Result     *correlation.Result `json:"result,omitempty"`
}

// Pipeline processes one detection end to end: validate, classify, upload
// the snapshot, persist, correlate, broadcast.
type Pipeline struct {
	classifier *classify.Classifier
	engine     *correlation.Engine
	detections store.DetectionRepository
	events     store.EventRepository
	seq        store.SequenceAllocator
	images     imagestore.Store
	bus        *bus.Broadcaster
}

func NewPipeline(
	classifier *classify.Classifier,
	engine *correlation.Engine,
	detections store.DetectionRepository,
	events store.EventRepository,
	seq store.SequenceAllocator,
	images imagestore.Store,
	broadcaster *bus.Broadcaster,
) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		engine:     engine,
		detections: detections,
		events:     events,
		seq:        seq,
		images:     images,
		bus:        broadcaster,
	}
}

func (p *Pipeline) Handle(ctx context.Context, body []byte) (*Outcome, error) {
	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	if msg.DetectedObjects.Empty() || !msg.Location.Valid() || msg.Base64Image == "" || len(msg.Timestamp) == 0 {
		return nil, fmt.Errorf("%w: labels, location, timestamp and image are all required", ErrMissingField)
	}

	ts, err := parseTimestampField(msg.Timestamp)
	if err != nil {
		return nil, err
	}

	category, ok := p.classifier.Process(msg.DetectedObjects, ts)
	if !ok {
		slog.Info("not an incident, skipping", "labels", msg.DetectedObjects)
		return &Outcome{Skipped: true}, nil
	}

	now := time.Now()
	incidentID, err := p.seq.NextIncidentID(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("error allocating incident id: %w", err)
	}

	image, err := imagestore.DecodeBase64Image(msg.Base64Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	// An unuploadable image drops the detection rather than requeueing:
	// the snapshot is part of the record, and without it the report is
	// unactionable.
	imageURL, err := p.images.Upload(ctx, imagestore.ObjectKey(incidentID, now), image, "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUpload, err)
	}

	detection := models.Detection{
		IncidentID: incidentID,
		UserID:     msg.UserID,
		RawLabels:  msg.DetectedObjects,
		Category:   category,
		Location:   msg.Location,
		Timestamp:  models.NewFlexTime(ts),
		ImageURL:   imageURL,
		CreatedAt:  now.UTC(),
	}
	if err := p.detections.AddDetection(ctx, &detection); err != nil {
		return nil, fmt.Errorf("error persisting detection: %w", err)
	}

	result, err := p.engine.Correlate(ctx, &detection, category)
	if err != nil {
		return nil, err
	}

	p.broadcast(ctx, result)

	slog.Info("detection processed",
		"incident", incidentID, "category", category,
		"event", result.EventID, "status", result.Status)

	return &Outcome{
		IncidentID: incidentID,
		Category:   category,
		Result:     &result,
	}, nil
}

func (p *Pipeline) broadcast(ctx context.Context, result correlation.Result) {
	if p.bus == nil {
		return
	}
	event, err := p.events.GetEvent(ctx, result.EventID)
	if err != nil || event == nil {
		slog.Error("error loading event for broadcast", "event", result.EventID, "error", err)
		return
	}
	p.bus.Broadcast(bus.Update{Event: event, Status: result.Status})
}

func parseTimestampField(raw json.RawMessage) (time.Time, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
	}
	ts, err := models.ParseTimestamp(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
	}
	return ts, nil
}
