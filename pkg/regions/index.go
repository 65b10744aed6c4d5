package regions

import (
	"roilifetime/internal/models"
	"roilifetime/pkg/atlas"
	"roilifetime/pkg/geometry"
)

// Index holds the identities of one slice's polygonal features together
// with the id to name map and the region hierarchy
type Index struct {
	// Identities is aligned with the features passed to BuildIndex
	Identities []models.RegionIdentity

	Hierarchy *Hierarchy

	names map[int64]string
}

// BuildIndex resolves the identity of every feature
func BuildIndex(features []atlas.Feature) *Index {
	ix := &Index{
		Identities: make([]models.RegionIdentity, len(features)),
		names:      make(map[int64]string),
	}

	for i, f := range features {
		area, side := geometry.ParseAreaSide(f.Properties)
		id := models.RegionIdentity{
			OrigID:   f.ID(),
			ParentID: f.ParentID(),
			Name:     geometry.NormalizeName(area),
			Side:     side,
		}
		if id.Name == "" {
			id.Name = geometry.UnknownArea
		}
		if id.OrigID != nil {
			ix.names[*id.OrigID] = id.Name
		}
		ix.Identities[i] = id
	}

	ix.Hierarchy = BuildHierarchy(ix.Identities)
	return ix
}

// Name returns the name of region id, or nil when id is nil or unknown
func (ix *Index) Name(id *int64) *string {
	if id == nil {
		return nil
	}
	name, ok := ix.names[*id]
	if !ok {
		return nil
	}
	return &name
}

// Annotate returns a copy of rows with level and parent name filled in
func (ix *Index) Annotate(rows []models.RegionRecord) []models.RegionRecord {
	out := make([]models.RegionRecord, len(rows))
	for i, r := range rows {
		r.Level = ix.Hierarchy.Level(r.OrigID)
		r.ParentName = ix.Name(r.ParentID)
		out[i] = r
	}
	return out
}
