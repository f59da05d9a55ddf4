package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// One connection serializes writers and keeps :memory: databases
	// coherent across goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL,
			assignment TEXT NOT NULL,
			assignment_time DATETIME,
			ground_staff TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS detections (
			incident_id TEXT PRIMARY KEY,
			event_id TEXT REFERENCES events(id),
			user_id TEXT,
			labels TEXT NOT NULL,
			category TEXT NOT NULL,
			longitude REAL NOT NULL,
			latitude REAL NOT NULL,
			timestamp DATETIME NOT NULL,
			image_url TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS agencies (
			id TEXT PRIMARY KEY,
			latitude REAL,
			longitude REAL,
			responsibilities TEXT NOT NULL,
			jurisdiction TEXT
		);

		CREATE TABLE IF NOT EXISTS sequence_counters (
			day TEXT NOT NULL,
			code TEXT NOT NULL,
			value INTEGER NOT NULL,
			PRIMARY KEY (day, code)
		);

		CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
		CREATE INDEX IF NOT EXISTS idx_detections_event_id ON detections(event_id);
		CREATE INDEX IF NOT EXISTS idx_detections_category ON detections(category);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
