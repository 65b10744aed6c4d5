package regions

import (
	"sort"

	"roilifetime/internal/models"
)

// Hierarchy is the parent/child graph of one slice's regions, rebuilt from
// flat ID/parent-ID pairs every time it is needed and never shared across
// slices
type Hierarchy struct {
	// ids holds every observed region id
	ids map[int64]struct{}

	// children maps each id referenced as a parent to its child ids
	children map[int64][]int64
}

func newHierarchy() *Hierarchy {
	return &Hierarchy{
		ids:      make(map[int64]struct{}),
		children: make(map[int64][]int64),
	}
}

// add records one (id, parent id) pair. A parent id makes its value a
// parent even when the child itself has no id.
func (h *Hierarchy) add(origID, parentID *int64) {
	if origID != nil {
		h.ids[*origID] = struct{}{}
	}
	if parentID == nil {
		return
	}
	kids := h.children[*parentID]
	if origID != nil {
		kids = append(kids, *origID)
	}
	h.children[*parentID] = kids
}

// BuildHierarchy constructs the graph from region identities
func BuildHierarchy(identities []models.RegionIdentity) *Hierarchy {
	h := newHierarchy()
	for _, id := range identities {
		h.add(id.OrigID, id.ParentID)
	}
	return h
}

// hierarchyFromRecords constructs the graph from the rows of a region table
func hierarchyFromRecords(rows []models.RegionRecord) *Hierarchy {
	h := newHierarchy()
	for _, r := range rows {
		h.add(r.OrigID, r.ParentID)
	}
	return h
}

// IsParent reports whether id is referenced as some region's parent
func (h *Hierarchy) IsParent(id int64) bool {
	_, ok := h.children[id]
	return ok
}

// Level classifies a region: orphan without an id, parent when referenced
// as a parent, leaf otherwise
func (h *Hierarchy) Level(origID *int64) models.Level {
	if origID == nil {
		return models.LevelOrphan
	}
	if h.IsParent(*origID) {
		return models.LevelParent
	}
	return models.LevelLeaf
}

// Leaves returns the observed ids that are nobody's parent, ascending
func (h *Hierarchy) Leaves() []int64 {
	var out []int64
	for id := range h.ids {
		if !h.IsParent(id) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parents returns the ids referenced as a parent, ascending
func (h *Hierarchy) Parents() []int64 {
	out := make([]int64, 0, len(h.children))
	for id := range h.children {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Descendants returns the seeds and every id reachable from them. Each id
// is expanded at most once, so cycles terminate.
func (h *Hierarchy) Descendants(seeds []int64) map[int64]struct{} {
	visited := make(map[int64]struct{}, len(seeds))
	stack := make([]int64, 0, len(seeds))
	for _, s := range seeds {
		if _, ok := visited[s]; ok {
			continue
		}
		visited[s] = struct{}{}
		stack = append(stack, s)
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range h.children[id] {
			if _, ok := visited[child]; ok {
				continue
			}
			visited[child] = struct{}{}
			stack = append(stack, child)
		}
	}
	return visited
}
