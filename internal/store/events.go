package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/billion-eyes/incident-pipeline/internal/models"
)

const timeLayout = time.RFC3339Nano

func (s *SQLiteDB) AddEvent(ctx context.Context, e *models.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	assignment, err := json.Marshal(e.Assignment)
	if err != nil {
		return fmt.Errorf("error marshaling assignment: %w", err)
	}

	var assignmentTime, groundStaff any
	if e.AssignmentTime != nil {
		assignmentTime = e.AssignmentTime.UTC().Format(timeLayout)
	}
	if e.GroundStaff != nil {
		groundStaff = *e.GroundStaff
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, category, description, status, assignment, assignment_time, ground_staff, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Category, e.Description, string(e.Status), string(assignment),
		assignmentTime, groundStaff, e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("error inserting event: %w", err)
	}

	for i := range e.Detections {
		if err := upsertDetection(ctx, tx, &e.Detections[i], e.ID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteDB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, category, description, status, assignment, assignment_time, ground_staff, created_at
		FROM events WHERE id = ?`, id)

	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning event: %w", err)
	}

	if e.Detections, err = s.eventDetections(ctx, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLiteDB) ListEvents(ctx context.Context, f EventFilter) ([]models.Event, error) {
	query := `
		SELECT id, category, description, status, assignment, assignment_time, ground_staff, created_at
		FROM events WHERE 1=1`
	args := []any{}

	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		query += " AND category = ?"
		args = append(args, f.Category)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	return s.queryEvents(ctx, query, args...)
}

func (s *SQLiteDB) OpenEventsWithCategory(ctx context.Context, category string) ([]models.Event, error) {
	// Retrieval order is a deliberate design hazard: the correlation
	// policy is first-match-wins, so the order here is pinned to
	// (created_at, id) to keep it deterministic per store state.
	return s.queryEvents(ctx, `
		SELECT e.id, e.category, e.description, e.status, e.assignment, e.assignment_time, e.ground_staff, e.created_at
		FROM events e
		WHERE e.status != ?
		  AND EXISTS (SELECT 1 FROM detections d WHERE d.event_id = e.id AND d.category = ?)
		ORDER BY e.created_at, e.id`,
		string(models.EventStatusClosed), category)
}

func (s *SQLiteDB) AssignDetection(ctx context.Context, incidentID, eventID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE detections SET event_id = ? WHERE incident_id = ?`, eventID, incidentID)
	if err != nil {
		return fmt.Errorf("error assigning detection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("detection not found: %s", incidentID)
	}
	return nil
}

func (s *SQLiteDB) CloseEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = ? WHERE id = ?`, string(models.EventStatusClosed), id)
	if err != nil {
		return fmt.Errorf("error closing event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("event not found: %s", id)
	}
	return nil
}

func (s *SQLiteDB) queryEvents(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range events {
		if events[i].Detections, err = s.eventDetections(ctx, events[i].ID); err != nil {
			return nil, err
		}
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*models.Event, error) {
	var (
		e              models.Event
		description    sql.NullString
		status         string
		assignment     string
		assignmentTime sql.NullString
		groundStaff    sql.NullString
		createdAt      string
	)
	if err := r.Scan(&e.ID, &e.Category, &description, &status, &assignment,
		&assignmentTime, &groundStaff, &createdAt); err != nil {
		return nil, err
	}

	e.Description = description.String
	e.Status = models.EventStatus(status)
	if err := json.Unmarshal([]byte(assignment), &e.Assignment); err != nil {
		return nil, fmt.Errorf("error unmarshaling assignment: %w", err)
	}
	if assignmentTime.Valid {
		t, err := time.Parse(timeLayout, assignmentTime.String)
		if err != nil {
			return nil, fmt.Errorf("error parsing assignment_time: %w", err)
		}
		e.AssignmentTime = &t
	}
	if groundStaff.Valid {
		gs := groundStaff.String
		e.GroundStaff = &gs
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("error parsing created_at: %w", err)
	}
	e.CreatedAt = t

	return &e, nil
}
