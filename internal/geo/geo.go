// Package geo wraps the orb primitives behind the single coordinate
// convention the pipeline uses internally: (latitude, longitude).
package geo

import (
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/billion-eyes/incident-pipeline/internal/models"
)

// Distance returns the great-circle distance between two points in meters.
func Distance(a, b models.Coordinates) float64 {
	return orbgeo.DistanceHaversine(a.Point(), b.Point())
}

// InRing reports whether p falls inside the polygon ring. Planar
// containment is a deliberate approximation; jurisdiction polygons are
// city-scale, where it holds fine.
func InRing(p models.Coordinates, ring orb.Ring) bool {
	if len(ring) < 4 {
		return false
	}
	return planar.RingContains(ring, p.Point())
}

// NearAnyVertex reports whether p lies within threshold meters of any
// polygon vertex. Vertex proximity, not edge distance: the fallback is an
// approximation for points just outside a jurisdiction boundary.
func NearAnyVertex(p models.Coordinates, vertices []models.Coordinates, threshold float64) bool {
	for _, v := range vertices {
		if Distance(p, v) < threshold {
			return true
		}
	}
	return false
}
