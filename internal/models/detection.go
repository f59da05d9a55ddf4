package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Labels is the detected-objects field as it arrives on the wire: either a
// single string ("car accident") or a list of label strings.
type Labels []string

func (l *Labels) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*l = Labels{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = Labels(many)
	return nil
}

func (l Labels) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(l))
}

// Raw joins the labels back into one space-separated string for the
// resolver's free-text path.
func (l Labels) Raw() string {
	return strings.Join(l, " ")
}

// IsList reports whether the input arrived as an already-tokenized list
// rather than free text.
func (l Labels) IsList() bool {
	return len(l) > 1
}

func (l Labels) Empty() bool {
	return len(l) == 0 || strings.TrimSpace(l.Raw()) == ""
}

// Coordinates is a (latitude, longitude) pair. All distance math in the
// pipeline goes through this type; GeoJSON's [lon, lat] ordering is
// transposed exactly once, at the GeoPoint boundary.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Point returns the orb representation, which is (lon, lat).
func (c Coordinates) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// GeoPoint is the GeoJSON point as persisted and received:
// {"type":"Point","coordinates":[lon, lat]}.
type GeoPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func NewGeoPoint(lat, lon float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lon, lat}}
}

func (p GeoPoint) Valid() bool {
	return len(p.Coordinates) == 2
}

// LatLon transposes the GeoJSON [lon, lat] pair into the internal
// (latitude, longitude) convention.
func (p GeoPoint) LatLon() Coordinates {
	if !p.Valid() {
		return Coordinates{}
	}
	return Coordinates{Latitude: p.Coordinates[1], Longitude: p.Coordinates[0]}
}

// Detection is one raw geotagged object report after boundary
// normalization. Category and EventID are filled in during processing.
type Detection struct {
	IncidentID string    `json:"incident_id"`
	UserID     string    `json:"userId,omitempty"`
	RawLabels  Labels    `json:"detected_objects"`
	Category   string    `json:"incident_type,omitempty"`
	Location   GeoPoint  `json:"location"`
	Timestamp  FlexTime  `json:"timestamp"`
	ImageURL   string    `json:"image_url,omitempty"`
	EventID    string    `json:"event_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
