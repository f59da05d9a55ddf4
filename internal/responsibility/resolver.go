// Package responsibility decides which agency answers for a new event.
// Critical categories rank agencies by distance; non-critical categories
// walk jurisdiction polygons. The two policies are asymmetric on purpose.
package responsibility

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"

	"github.com/billion-eyes/incident-pipeline/internal/geo"
	"github.com/billion-eyes/incident-pipeline/internal/models"
	"github.com/billion-eyes/incident-pipeline/internal/store"
)

const (
	// DefaultTopN caps the critical-path agency list.
	DefaultTopN = 3
	// DefaultVertexProximity is the non-critical fallback radius in
	// meters around jurisdiction vertices.
	DefaultVertexProximity = 50.0
)

// CriticalityTable maps category -> critical flag. Absent categories are
// non-critical.
type CriticalityTable map[string]bool

// LoadCriticalityTable degrades to an empty table on any load failure;
// everything then resolves through the non-critical path.
func LoadCriticalityTable(path string) CriticalityTable {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("criticality config unavailable, using empty table", "path", path, "error", err)
		return CriticalityTable{}
	}
	var table CriticalityTable
	if err := json.Unmarshal(data, &table); err != nil {
		slog.Warn("criticality config invalid, using empty table", "path", path, "error", err)
		return CriticalityTable{}
	}
	return table
}

func (t CriticalityTable) IsCritical(category string) bool {
	return t[category]
}

type Resolver struct {
	agencies        store.AgencyRepository
	critical        CriticalityTable
	topN            int
	vertexProximity float64
}

func NewResolver(agencies store.AgencyRepository, critical CriticalityTable, topN int, vertexProximity float64) *Resolver {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if vertexProximity <= 0 {
		vertexProximity = DefaultVertexProximity
	}
	return &Resolver{
		agencies:        agencies,
		critical:        critical,
		topN:            topN,
		vertexProximity: vertexProximity,
	}
}

// Resolve determines the assigned agency for a category at a location.
func (r *Resolver) Resolve(ctx context.Context, category string, loc models.Coordinates) (models.Assignment, error) {
	if r.critical.IsCritical(category) {
		return r.resolveCritical(ctx, category, loc)
	}
	return r.resolveNonCritical(ctx, category, loc)
}

// resolveCritical ranks responsible agencies by great-circle distance and
// returns up to topN IDs, nearest first. Agencies without a registered
// location can't be ranked and are skipped.
func (r *Resolver) resolveCritical(ctx context.Context, category string, loc models.Coordinates) (models.Assignment, error) {
	agencies, err := r.agencies.AgenciesResponsibleFor(ctx, category)
	if err != nil {
		return models.Assignment{}, fmt.Errorf("error fetching responsible agencies: %w", err)
	}

	type ranked struct {
		id       string
		distance float64
	}
	candidates := make([]ranked, 0, len(agencies))
	for _, a := range agencies {
		if a.Location == nil {
			continue
		}
		candidates = append(candidates, ranked{id: a.ID, distance: geo.Distance(loc, *a.Location)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].id < candidates[j].id
	})

	ids := make([]string, 0, r.topN)
	for _, c := range candidates {
		if len(ids) == r.topN {
			break
		}
		slog.Info("ranked agency", "agency", c.id, "distance_m", c.distance, "category", category)
		ids = append(ids, c.id)
	}
	return models.CriticalAssignment(ids), nil
}

// resolveNonCritical returns the first agency whose jurisdiction contains
// the location (or has a vertex within the proximity threshold) and whose
// responsibility set holds the category exactly. No distance ranking here:
// first qualifying agency in iteration order wins.
func (r *Resolver) resolveNonCritical(ctx context.Context, category string, loc models.Coordinates) (models.Assignment, error) {
	agencies, err := r.agencies.AgenciesWithJurisdiction(ctx)
	if err != nil {
		return models.Assignment{}, fmt.Errorf("error fetching jurisdiction agencies: %w", err)
	}

	for _, a := range agencies {
		if !r.inJurisdiction(loc, a.Jurisdiction) {
			continue
		}
		if !slices.Contains(a.Responsibilities, category) {
			slog.Debug("jurisdiction matched but agency not responsible", "agency", a.ID, "category", category)
			continue
		}
		slog.Info("jurisdiction assigned", "agency", a.ID, "category", category)
		return models.NonCriticalAssignment(a.ID), nil
	}

	slog.Warn("no jurisdiction matched, event unassigned", "category", category)
	return models.Unassigned(), nil
}

func (r *Resolver) inJurisdiction(loc models.Coordinates, j *models.Jurisdiction) bool {
	if j == nil {
		return false
	}
	if geo.InRing(loc, j.Ring()) {
		return true
	}
	return geo.NearAnyVertex(loc, j.Vertices(), r.vertexProximity)
}
