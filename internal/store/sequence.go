package store

import (
	"context"
	"fmt"
	"time"
)

// FallbackCode is used for categories with no registered incident code.
const FallbackCode = "UNK"

// incident IDs share the counter table under a reserved code so they never
// collide with per-category event counters.
const incidentCounterCode = "I"

const dayLayout = "20060102"

// nextSeq atomically increments and returns the counter for (day, code).
// The upsert runs as a single statement, so two concurrent allocators for
// the same key can never observe the same value. This replaces the
// file-backed read-increment-write counters of earlier deployments, which
// race under concurrent workers.
func (s *SQLiteDB) nextSeq(ctx context.Context, day, code string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sequence_counters (day, code, value) VALUES (?, ?, 1)
		ON CONFLICT(day, code) DO UPDATE SET value = value + 1
		RETURNING value`, day, code).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("error allocating sequence %s/%s: %w", day, code, err)
	}
	return value, nil
}

// NextEventID issues an event identifier E-<YYYYMMDD>-<code>-<seq>.
func (s *SQLiteDB) NextEventID(ctx context.Context, day time.Time, code string) (string, error) {
	if code == "" {
		code = FallbackCode
	}
	d := day.UTC().Format(dayLayout)
	seq, err := s.nextSeq(ctx, d, code)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("E-%s-%s-%03d", d, code, seq), nil
}

// NextIncidentID issues a detection identifier I-<YYYYMMDD>-<seq>.
func (s *SQLiteDB) NextIncidentID(ctx context.Context, day time.Time) (string, error) {
	d := day.UTC().Format(dayLayout)
	seq, err := s.nextSeq(ctx, d, incidentCounterCode)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("I-%s-%03d", d, seq), nil
}
