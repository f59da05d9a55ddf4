package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestLabels_UnmarshalString(t *testing.T) {
	var l Labels
	if err := json.Unmarshal([]byte(`"car accident"`), &l); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(l) != 1 || l[0] != "car accident" {
		t.Errorf("expected single label, got %v", l)
	}
	if l.IsList() {
		t.Error("single string should not report as list")
	}
}

func TestLabels_UnmarshalList(t *testing.T) {
	var l Labels
	if err := json.Unmarshal([]byte(`["street light","car accident"]`), &l); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(l) != 2 {
		t.Fatalf("expected 2 labels, got %v", l)
	}
	if !l.IsList() {
		t.Error("expected list")
	}
	if l.Raw() != "street light car accident" {
		t.Errorf("unexpected raw form: %q", l.Raw())
	}
}

func TestLabels_Empty(t *testing.T) {
	cases := []Labels{nil, {}, {""}, {"  "}}
	for _, l := range cases {
		if !l.Empty() {
			t.Errorf("expected %v to be empty", l)
		}
	}
	if (Labels{"pothole"}).Empty() {
		t.Error("non-empty labels reported empty")
	}
}

// GeoJSON stores [lon, lat]; everything internal is (lat, lon). The
// transpose happens exactly once, here.
func TestGeoPoint_LatLonTranspose(t *testing.T) {
	var p GeoPoint
	if err := json.Unmarshal([]byte(`{"type":"Point","coordinates":[86.205,20.705]}`), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	latlon := p.LatLon()
	if latlon.Latitude != 20.705 || latlon.Longitude != 86.205 {
		t.Errorf("transpose wrong: got lat=%v lon=%v", latlon.Latitude, latlon.Longitude)
	}

	roundtrip := NewGeoPoint(latlon.Latitude, latlon.Longitude)
	if roundtrip.Coordinates[0] != 86.205 || roundtrip.Coordinates[1] != 20.705 {
		t.Errorf("NewGeoPoint ordering wrong: %v", roundtrip.Coordinates)
	}
}

func TestGeoPoint_Valid(t *testing.T) {
	if (GeoPoint{}).Valid() {
		t.Error("empty point should be invalid")
	}
	if !(NewGeoPoint(20.7, 86.2)).Valid() {
		t.Error("expected valid point")
	}
}

func TestEvent_Anchor(t *testing.T) {
	base := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)
	e := Event{
		Detections: []Detection{
			{IncidentID: "a", Timestamp: NewFlexTime(base)},
			{IncidentID: "c", Timestamp: NewFlexTime(base.Add(2 * time.Hour))},
			{IncidentID: "b", Timestamp: NewFlexTime(base.Add(time.Hour))},
		},
	}
	anchor := e.Anchor()
	if anchor == nil || anchor.IncidentID != "c" {
		t.Errorf("expected anchor c, got %+v", anchor)
	}

	empty := Event{}
	if empty.Anchor() != nil {
		t.Error("empty event should have no anchor")
	}
}
