package regions

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"roilifetime/internal/models"
)

// row builds a table row. A parentName of "" means the parent is unknown.
func row(name string, id, parentID int64, parentName string) models.RegionRecord {
	r := models.RegionRecord{ROIName: name, OrigID: models.Int64(id)}
	if parentID != 0 {
		r.ParentID = models.Int64(parentID)
	}
	if parentName != "" {
		r.ParentName = models.String(parentName)
	}
	return r
}

func names(rows []models.RegionRecord) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ROIName
	}
	return out
}

func chain() []models.RegionRecord {
	return []models.RegionRecord{
		row("fiber tracts", 1, 0, ""),
		row("A", 2, 1, "fiber tracts"),
		row("B", 3, 2, "A"),
		row("C", 4, 3, "B"),
		row("D", 5, 10, "Isocortex"),
	}
}

func TestPruneRecursiveRemovesSubtree(t *testing.T) {
	got := Prune(chain(), "fiber tracts", true)
	assert.Equal(t, []string{"D"}, names(got))
}

func TestPruneNonRecursiveRemovesImmediateChildren(t *testing.T) {
	got := Prune(chain(), "fiber tracts", false)
	assert.Equal(t, []string{"fiber tracts", "B", "C", "D"}, names(got))
}

func TestPruneIsIdempotent(t *testing.T) {
	for _, recursive := range []bool{true, false} {
		once := Prune(chain(), "fiber tracts", recursive)
		twice := Prune(once, "fiber tracts", recursive)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("recursive=%v: second prune changed the table (-once +twice):\n%s", recursive, diff)
		}
	}
}

func TestPruneLeavesInputUntouched(t *testing.T) {
	rows := chain()
	_ = Prune(rows, "fiber tracts", true)
	assert.Equal(t, []string{"fiber tracts", "A", "B", "C", "D"}, names(rows))
}

func TestPruneSeedsFromParentIDWithoutLabelRow(t *testing.T) {
	// the labelled region itself is not in the table
	rows := []models.RegionRecord{
		row("A", 2, 1, "VS"),
		row("B", 3, 2, "A"),
		row("E", 6, 7, "Isocortex"),
	}
	got := Prune(rows, "VS", true)
	assert.Equal(t, []string{"E"}, names(got))
}

func TestPruneToleratesCycles(t *testing.T) {
	rows := []models.RegionRecord{
		row("VS", 1, 3, "Y"),
		row("Y", 2, 1, "VS"),
		row("Z", 3, 2, "Y"),
		row("W", 9, 0, ""),
	}
	got := Prune(rows, "VS", true)
	assert.Equal(t, []string{"W"}, names(got))
}

func TestPruneKeepsRowsWithoutIDs(t *testing.T) {
	orphan := models.RegionRecord{ROIName: "stray"}
	rows := append(chain(), orphan)

	got := Prune(rows, "fiber tracts", true)
	assert.Equal(t, []string{"D", "stray"}, names(got))
}

func TestPruneUnknownLabel(t *testing.T) {
	got := Prune(chain(), "not a region", true)
	assert.Equal(t, names(chain()), names(got))
}
