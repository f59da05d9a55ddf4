package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/billion-eyes/incident-pipeline/internal/models"
)

// SeedAgencies loads agency registrations from a JSON file and inserts the
// ones not yet present. A missing file is fine; deployments without a seed
// start empty and register agencies over the API.
func SeedAgencies(ctx context.Context, repo AgencyRepository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Info("no agency seed file, skipping", "path", path)
		return nil
	}

	var agencies []models.Agency
	if err := json.Unmarshal(data, &agencies); err != nil {
		return fmt.Errorf("error parsing agency seed: %w", err)
	}

	existing, err := repo.ListAgencies(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, a := range existing {
		known[a.ID] = true
	}

	seeded := 0
	for i := range agencies {
		if agencies[i].ID == "" || known[agencies[i].ID] {
			continue
		}
		if err := repo.AddAgency(ctx, &agencies[i]); err != nil {
			return fmt.Errorf("error seeding agency %s: %w", agencies[i].ID, err)
		}
		seeded++
	}
	if seeded > 0 {
		slog.Info("seeded agencies", "count", seeded, "path", path)
	}
	return nil
}

func (s *SQLiteDB) AddAgency(ctx context.Context, a *models.Agency) error {
	responsibilities, err := json.Marshal(a.Responsibilities)
	if err != nil {
		return fmt.Errorf("error marshaling responsibilities: %w", err)
	}

	var lat, lon, jurisdiction any
	if a.Location != nil {
		lat, lon = a.Location.Latitude, a.Location.Longitude
	}
	if a.Jurisdiction != nil {
		j, err := json.Marshal(a.Jurisdiction)
		if err != nil {
			return fmt.Errorf("error marshaling jurisdiction: %w", err)
		}
		jurisdiction = string(j)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agencies (id, latitude, longitude, responsibilities, jurisdiction)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, lat, lon, string(responsibilities), jurisdiction,
	)
	if err != nil {
		return fmt.Errorf("error inserting agency: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListAgencies(ctx context.Context) ([]models.Agency, error) {
	return s.queryAgencies(ctx, `
		SELECT id, latitude, longitude, responsibilities, jurisdiction
		FROM agencies ORDER BY id`)
}

// Agency counts stay small enough for linear scans, so responsibility and
// jurisdiction filtering happen in Go rather than SQL.
func (s *SQLiteDB) AgenciesResponsibleFor(ctx context.Context, category string) ([]models.Agency, error) {
	all, err := s.ListAgencies(ctx)
	if err != nil {
		return nil, err
	}
	var matched []models.Agency
	for _, a := range all {
		for _, r := range a.Responsibilities {
			if strings.EqualFold(r, category) {
				matched = append(matched, a)
				break
			}
		}
	}
	return matched, nil
}

func (s *SQLiteDB) AgenciesWithJurisdiction(ctx context.Context) ([]models.Agency, error) {
	all, err := s.ListAgencies(ctx)
	if err != nil {
		return nil, err
	}
	var matched []models.Agency
	for _, a := range all {
		if a.Jurisdiction != nil {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

func (s *SQLiteDB) queryAgencies(ctx context.Context, query string, args ...any) ([]models.Agency, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying agencies: %w", err)
	}
	defer rows.Close()

	var agencies []models.Agency
	for rows.Next() {
		var (
			a                models.Agency
			lat, lon         sql.NullFloat64
			responsibilities string
			jurisdiction     sql.NullString
		)
		if err := rows.Scan(&a.ID, &lat, &lon, &responsibilities, &jurisdiction); err != nil {
			return nil, fmt.Errorf("error scanning agency: %w", err)
		}
		if lat.Valid && lon.Valid {
			a.Location = &models.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		if err := json.Unmarshal([]byte(responsibilities), &a.Responsibilities); err != nil {
			return nil, fmt.Errorf("error unmarshaling responsibilities: %w", err)
		}
		if jurisdiction.Valid {
			var j models.Jurisdiction
			if err := json.Unmarshal([]byte(jurisdiction.String), &j); err != nil {
				return nil, fmt.Errorf("error unmarshaling jurisdiction: %w", err)
			}
			a.Jurisdiction = &j
		}
		agencies = append(agencies, a)
	}
	return agencies, rows.Err()
}
