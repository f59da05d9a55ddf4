package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/billion-eyes/incident-pipeline/internal/models"
)

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteDB) AddDetection(ctx context.Context, d *models.Detection) error {
	return insertDetection(ctx, s.db, d, d.EventID)
}

func upsertDetection(ctx context.Context, ex execer, d *models.Detection, eventID string) error {
	// Existing detections are re-pointed at the event; new ones (an event
	// created with inline detections) are inserted outright.
	res, err := ex.ExecContext(ctx,
		`UPDATE detections SET event_id = ? WHERE incident_id = ?`, eventID, d.IncidentID)
	if err != nil {
		return fmt.Errorf("error assigning detection: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}
	return insertDetection(ctx, ex, d, eventID)
}

func insertDetection(ctx context.Context, ex execer, d *models.Detection, eventID string) error {
	labels, err := json.Marshal(d.RawLabels)
	if err != nil {
		return fmt.Errorf("error marshaling labels: %w", err)
	}

	var evID any
	if eventID != "" {
		evID = eventID
	}

	latlon := d.Location.LatLon()
	_, err = ex.ExecContext(ctx, `
		INSERT INTO detections (incident_id, event_id, user_id, labels, category, longitude, latitude, timestamp, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.IncidentID, evID, d.UserID, string(labels), d.Category,
		latlon.Longitude, latlon.Latitude,
		d.Timestamp.UTC().Format(timeLayout), d.ImageURL,
		d.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("error inserting detection: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetDetection(ctx context.Context, incidentID string) (*models.Detection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT incident_id, event_id, user_id, labels, category, longitude, latitude, timestamp, image_url, created_at
		FROM detections WHERE incident_id = ?`, incidentID)

	d, err := scanDetection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning detection: %w", err)
	}
	return d, nil
}

func (s *SQLiteDB) eventDetections(ctx context.Context, eventID string) ([]models.Detection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT incident_id, event_id, user_id, labels, category, longitude, latitude, timestamp, image_url, created_at
		FROM detections WHERE event_id = ?
		ORDER BY created_at, incident_id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("error querying detections: %w", err)
	}
	defer rows.Close()

	var detections []models.Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning detection: %w", err)
		}
		detections = append(detections, *d)
	}
	return detections, rows.Err()
}

func scanDetection(r rowScanner) (*models.Detection, error) {
	var (
		d         models.Detection
		eventID   sql.NullString
		userID    sql.NullString
		labels    string
		lon, lat  float64
		timestamp string
		imageURL  sql.NullString
		createdAt string
	)
	if err := r.Scan(&d.IncidentID, &eventID, &userID, &labels, &d.Category,
		&lon, &lat, &timestamp, &imageURL, &createdAt); err != nil {
		return nil, err
	}

	d.EventID = eventID.String
	d.UserID = userID.String
	d.ImageURL = imageURL.String
	if err := json.Unmarshal([]byte(labels), &d.RawLabels); err != nil {
		return nil, fmt.Errorf("error unmarshaling labels: %w", err)
	}
	d.Location = models.NewGeoPoint(lat, lon)

	ts, err := time.Parse(timeLayout, timestamp)
	if err != nil {
		return nil, fmt.Errorf("error parsing timestamp: %w", err)
	}
	d.Timestamp = models.NewFlexTime(ts)

	ca, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("error parsing created_at: %w", err)
	}
	d.CreatedAt = ca

	return &d, nil
}
