package store

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strconv"

	"github.com/invopop/jsonschema"

	"roilifetime/internal/models"
)

// CSVHeader lists the export columns in order
var CSVHeader = []string{
	"level", "roi_name", "side", "parent_name", "orig_id", "parent_id",
	"tot_pixels", "mean_pulse", "mean_chase", "mean_lifetime",
}

// ExportRow is the JSON form of a summary row. Absent values are null.
type ExportRow struct {
	Level        string   `json:"level" jsonschema:"enum=leaf,enum=parent,enum=orphan"`
	ROIName      string   `json:"roi_name"`
	Side         *string  `json:"side" jsonschema:"enum=L,enum=R"`
	ParentName   *string  `json:"parent_name"`
	OrigID       *int64   `json:"orig_id"`
	ParentID     *int64   `json:"parent_id"`
	TotPixels    int      `json:"tot_pixels" jsonschema:"minimum=0"`
	MeanPulse    *float64 `json:"mean_pulse"`
	MeanChase    *float64 `json:"mean_chase"`
	MeanLifetime *float64 `json:"mean_lifetime"`
}

// NewExportRow converts a summary row, mapping NaN to null
func NewExportRow(r models.MouseSummaryRecord) ExportRow {
	row := ExportRow{
		Level:        string(r.Level),
		ROIName:      r.ROIName,
		ParentName:   r.ParentName,
		OrigID:       r.OrigID,
		ParentID:     r.ParentID,
		TotPixels:    r.TotPixels,
		MeanPulse:    finite(r.MeanPulse),
		MeanChase:    finite(r.MeanChase),
		MeanLifetime: finite(r.MeanLifetime),
	}
	if r.Side != models.SideUnspecified {
		side := string(r.Side)
		row.Side = &side
	}
	return row
}

// WriteCSV writes the summaries as CSV with a header row. Absent values are
// empty cells.
func WriteCSV(w io.Writer, rows []models.MouseSummaryRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			string(r.Level),
			r.ROIName,
			string(r.Side),
			optString(r.ParentName),
			optInt(r.OrigID),
			optInt(r.ParentID),
			strconv.Itoa(r.TotPixels),
			optFloat(r.MeanPulse),
			optFloat(r.MeanChase),
			optFloat(r.MeanLifetime),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the summaries as an indented JSON array
func WriteJSON(w io.Writer, rows []models.MouseSummaryRecord) error {
	out := make([]ExportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, NewExportRow(r))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Schema returns the JSON Schema of the JSON export
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect([]ExportRow{})
	schema.Title = "Region lifetime summary"
	return schema
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func optFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
