// Package regions extracts per-region lifetime statistics from a derived
// image and its atlas annotation, and prunes excluded branches of the
// region hierarchy.
package regions

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"roilifetime/internal/logger"
	"roilifetime/internal/models"
	"roilifetime/pkg/atlas"
	"roilifetime/pkg/geometry"
	"roilifetime/pkg/lifetime"
)

// DefaultExclusions are the super-regions whose subtrees never reach the output
var DefaultExclusions = []string{"fiber tracts", "VS"}

// DefaultRootLabel is the name of the atlas root region
const DefaultRootLabel = "Root"

// ErrNoImage is returned when Extract is called without a derived image
var ErrNoImage = errors.New("no derived image")

// Extractor turns one slice into a region table
type Extractor struct {
	// Exclusions are pruned recursively, in order
	Exclusions []string

	// RootLabel rows are dropped after pruning
	RootLabel string

	log *logger.Logger
}

// NewExtractor creates an extractor. A nil logger discards output.
func NewExtractor(exclusions []string, rootLabel string, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{
		Exclusions: exclusions,
		RootLabel:  rootLabel,
		log:        log.Component("regions"),
	}
}

// Extract produces one record per polygonal feature of coll, annotated
// with its hierarchy level and parent name, pruned and sorted
func (e *Extractor) Extract(img *lifetime.Derived, coll *atlas.Collection) ([]models.RegionRecord, error) {
	if img == nil {
		return nil, ErrNoImage
	}
	if coll == nil {
		return nil, atlas.ErrMissingFeatures
	}

	features := coll.Polygonal()
	ix := BuildIndex(features)

	rows := make([]models.RegionRecord, len(features))
	empty := 0
	for i, f := range features {
		rows[i] = measure(img, f, ix.Identities[i])
		if rows[i].NPixels == 0 {
			empty++
		}
	}

	rows = ix.Annotate(rows)
	for _, label := range e.Exclusions {
		rows = Prune(rows, label, true)
	}
	rows = filter(rows, func(r models.RegionRecord) bool { return r.ROIName != e.RootLabel })
	SortRecords(rows)

	e.log.Debug("extracted regions", logger.Fields{
		"features": len(features),
		"leaves":   len(ix.Hierarchy.Leaves()),
		"parents":  len(ix.Hierarchy.Parents()),
		"empty":    empty,
		"kept":     len(rows),
	})

	return rows, nil
}

// measure computes the statistics of a single region. Regions clipped away
// entirely or rasterizing to no pixels get the empty record.
func measure(img *lifetime.Derived, f atlas.Feature, id models.RegionIdentity) models.RegionRecord {
	g := geometry.FixClip(f.Geometry, img.Width, img.Height)
	if g == nil {
		return models.EmptyRecord(id)
	}

	mask := geometry.MaskFromGeometry(g, img.Height, img.Width)
	idx := mask.Indices()
	if len(idx) == 0 {
		return models.EmptyRecord(id)
	}

	rec := models.EmptyRecord(id)
	rec.NPixels = len(idx)
	rec.MeanPulse = maskedMean(img.Pulse, idx)
	rec.MeanChase = maskedMean(img.Chase, idx)
	rec.MeanLifetime = maskedMean(img.Lifetime, idx)
	return rec
}

// maskedMean averages plane over idx, skipping NaN and infinite values.
// It returns NaN when nothing finite remains.
func maskedMean(plane []float64, idx []int) float64 {
	vals := make([]float64, 0, len(idx))
	for _, i := range idx {
		v := plane[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

// SortRecords orders rows by level, parent name, name and side. Missing
// parent names and unspecified sides sort last; equal keys keep their order.
func SortRecords(rows []models.RegionRecord) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if c := compareOptional(a.ParentName, b.ParentName); c != 0 {
			return c < 0
		}
		if a.ROIName != b.ROIName {
			return a.ROIName < b.ROIName
		}
		return compareSide(a.Side, b.Side) < 0
	})
}

// compareOptional orders present strings before absent ones
func compareOptional(a, b *string) int {
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

func compareSide(a, b models.Side) int {
	switch {
	case a == b:
		return 0
	case a == models.SideUnspecified:
		return 1
	case b == models.SideUnspecified:
		return -1
	case a < b:
		return -1
	}
	return 1
}
