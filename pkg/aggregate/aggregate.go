// Package aggregate combines the per-slice region tables of one mouse into
// a single summary row per anatomical region.
package aggregate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"roilifetime/internal/models"
)

type group struct {
	first     models.RegionRecord
	totPixels int
	pulse     []float64
	chase     []float64
	life      []float64
}

// Aggregate groups the records of all slices by region key. TotPixels is
// the pixel sum; the means are averages of the per-slice means with NaN
// slices skipped. The result is sorted so input order does not matter.
func Aggregate(slices [][]models.RegionRecord) []models.MouseSummaryRecord {
	groups := make(map[models.RegionKey]*group)
	var order []models.RegionKey

	for _, rows := range slices {
		for _, r := range rows {
			k := r.Key()
			g, ok := groups[k]
			if !ok {
				g = &group{first: r}
				groups[k] = g
				order = append(order, k)
			}
			g.totPixels += r.NPixels
			g.pulse = append(g.pulse, r.MeanPulse)
			g.chase = append(g.chase, r.MeanChase)
			g.life = append(g.life, r.MeanLifetime)
		}
	}

	out := make([]models.MouseSummaryRecord, 0, len(order))
	for _, k := range order {
		g := groups[k]
		out = append(out, models.MouseSummaryRecord{
			Level:        g.first.Level,
			ROIName:      g.first.ROIName,
			Side:         g.first.Side,
			ParentName:   g.first.ParentName,
			OrigID:       g.first.OrigID,
			ParentID:     g.first.ParentID,
			TotPixels:    g.totPixels,
			MeanPulse:    nanMean(g.pulse),
			MeanChase:    nanMean(g.chase),
			MeanLifetime: nanMean(g.life),
		})
	}

	Sort(out)
	return out
}

// Sort orders summaries by level, parent name, name, side, then ids.
// Absent values sort last.
func Sort(rows []models.MouseSummaryRecord) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if c := compareString(a.ParentName, b.ParentName); c != 0 {
			return c < 0
		}
		if a.ROIName != b.ROIName {
			return a.ROIName < b.ROIName
		}
		if a.Side != b.Side {
			if a.Side == models.SideUnspecified || b.Side == models.SideUnspecified {
				return b.Side == models.SideUnspecified
			}
			return a.Side < b.Side
		}
		if c := compareInt(a.OrigID, b.OrigID); c != 0 {
			return c < 0
		}
		return compareInt(a.ParentID, b.ParentID) < 0
	})
}

func nanMean(vals []float64) float64 {
	finite := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	return stat.Mean(finite, nil)
}

func compareString(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

func compareInt(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}
