package api

import (
	"github.com/billion-eyes/incident-pipeline/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// toGeoJSON renders events as point features at their anchor detection's
// location. Events are created with at least one detection, so the anchor
// is only nil for pathological store states; those render at the origin
// rather than being dropped.
func toGeoJSON(events []models.Event) FeatureCollection {
	features := make([]Feature, 0, len(events))

	for i := range events {
		e := &events[i]
		var coords []float64
		if anchor := e.Anchor(); anchor != nil {
			latlon := anchor.Location.LatLon()
			coords = []float64{latlon.Longitude, latlon.Latitude}
		} else {
			coords = []float64{0, 0}
		}

		f := Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: coords,
			},
			Properties: map[string]any{
				"id":              e.ID,
				"category":        e.Category,
				"description":     e.Description,
				"status":          string(e.Status),
				"assigned_agency": e.Assignment,
				"detections":      len(e.Detections),
				"created_at":      e.CreatedAt,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
