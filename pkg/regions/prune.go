package regions

import "roilifetime/internal/models"

// Prune removes the regions filed under label. Without recursion only rows
// whose immediate parent is label go. With recursion the whole subtree is
// dropped: every id reachable from the parents of those rows, and from any
// row named label, including the seeds themselves.
// The input slice is left untouched.
func Prune(rows []models.RegionRecord, label string, recursive bool) []models.RegionRecord {
	immediate := func(r models.RegionRecord) bool {
		return r.ParentName != nil && *r.ParentName == label
	}

	if !recursive {
		return filter(rows, func(r models.RegionRecord) bool { return !immediate(r) })
	}

	var seeds []int64
	for _, r := range rows {
		if immediate(r) && r.ParentID != nil {
			seeds = append(seeds, *r.ParentID)
		}
		if r.ROIName == label && r.OrigID != nil {
			seeds = append(seeds, *r.OrigID)
		}
	}

	drop := hierarchyFromRecords(rows).Descendants(seeds)

	return filter(rows, func(r models.RegionRecord) bool {
		if immediate(r) {
			return false
		}
		if r.OrigID != nil {
			if _, ok := drop[*r.OrigID]; ok {
				return false
			}
		}
		return true
	})
}

func filter(rows []models.RegionRecord, keep func(models.RegionRecord) bool) []models.RegionRecord {
	out := make([]models.RegionRecord, 0, len(rows))
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
