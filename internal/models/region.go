package models

import "math"

// Side is the hemisphere a region belongs to
type Side string

const (
	SideLeft        Side = "L"
	SideRight       Side = "R"
	SideUnspecified Side = ""
)

// Level is the position of a region within one slice's atlas tree
type Level string

const (
	LevelLeaf   Level = "leaf"
	LevelParent Level = "parent"
	LevelOrphan Level = "orphan"
)

// RegionIdentity is the identity derived from one atlas feature
type RegionIdentity struct {
	// OrigID is the atlas "ID" measurement, nil when the feature has none
	OrigID *int64

	// ParentID is the atlas "Parent ID" measurement, nil when absent
	ParentID *int64

	// Name is the normalized region name and is never empty
	Name string

	Side Side
}

// RegionRecord is one row of a per-slice region table
type RegionRecord struct {
	Level      Level
	ROIName    string
	Side       Side
	ParentName *string
	OrigID     *int64
	ParentID   *int64

	// NPixels is the number of pixels covered by the region's mask
	NPixels int

	MeanPulse    float64
	MeanChase    float64
	MeanLifetime float64
}

// EmptyRecord returns the record emitted for a region with no pixels.
// MeanLifetime is NaN, which is distinct from the zero pulse/chase means.
func EmptyRecord(id RegionIdentity) RegionRecord {
	return RegionRecord{
		ROIName:      id.Name,
		Side:         id.Side,
		OrigID:       id.OrigID,
		ParentID:     id.ParentID,
		MeanLifetime: math.NaN(),
	}
}

// Key returns the grouping key of the record
func (r RegionRecord) Key() RegionKey {
	k := RegionKey{
		Level:   r.Level,
		ROIName: r.ROIName,
		Side:    r.Side,
	}
	if r.ParentName != nil {
		k.ParentName, k.HasParentName = *r.ParentName, true
	}
	if r.OrigID != nil {
		k.OrigID, k.HasOrigID = *r.OrigID, true
	}
	if r.ParentID != nil {
		k.ParentID, k.HasParentID = *r.ParentID, true
	}
	return k
}

// RegionKey identifies an anatomical region across slices of one mouse.
// Absent values are kept as their own key value rather than dropped.
type RegionKey struct {
	Level         Level
	ROIName       string
	Side          Side
	ParentName    string
	HasParentName bool
	OrigID        int64
	HasOrigID     bool
	ParentID      int64
	HasParentID   bool
}

// MouseSummaryRecord is one row of the per-mouse aggregated table
type MouseSummaryRecord struct {
	Level      Level
	ROIName    string
	Side       Side
	ParentName *string
	OrigID     *int64
	ParentID   *int64

	// TotPixels is the sum of NPixels over all slices
	TotPixels int

	// The means are averages of per-slice means, not pixel weighted
	MeanPulse    float64
	MeanChase    float64
	MeanLifetime float64
}

// Int64 returns a pointer to v
func Int64(v int64) *int64 { return &v }

// String returns a pointer to s
func String(s string) *string { return &s }
