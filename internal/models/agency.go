package models

import "github.com/paulmach/orb"

// Jurisdiction is an agency's polygonal area of responsibility, stored as
// an ordered [lon, lat] vertex list like the rest of the GeoJSON surface.
type Jurisdiction struct {
	Coordinates [][]float64 `json:"coordinates"`
}

// Ring returns the jurisdiction as an orb ring, closed if the source data
// left it open.
func (j *Jurisdiction) Ring() orb.Ring {
	ring := make(orb.Ring, 0, len(j.Coordinates)+1)
	for _, c := range j.Coordinates {
		if len(c) != 2 {
			continue
		}
		ring = append(ring, orb.Point{c[0], c[1]})
	}
	if len(ring) > 2 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// Vertices returns the jurisdiction corners in the internal (lat, lon)
// convention, without the synthetic closing vertex.
func (j *Jurisdiction) Vertices() []Coordinates {
	out := make([]Coordinates, 0, len(j.Coordinates))
	for _, c := range j.Coordinates {
		if len(c) != 2 {
			continue
		}
		out = append(out, Coordinates{Latitude: c[1], Longitude: c[0]})
	}
	return out
}

// Agency is a responder registration. A registered point location makes it
// eligible for critical (nearest-distance) resolution; a jurisdiction
// polygon makes it eligible for non-critical resolution.
type Agency struct {
	ID               string        `json:"id"`
	Location         *Coordinates  `json:"location,omitempty"`
	Responsibilities []string      `json:"responsibilities"`
	Jurisdiction     *Jurisdiction `json:"jurisdiction,omitempty"`
}
