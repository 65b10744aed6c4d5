package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"roilifetime/internal/models"
	"roilifetime/pkg/lifetime"
)

// ErrNothingToPlot is returned when no summary row has a finite lifetime
var ErrNothingToPlot = errors.New("no leaf region with a finite lifetime")

// Channels lists the planes of a derived image in output order
var Channels = []string{"pulse", "chase", "lifetime"}

// Viewer renders the planes of a derived lifetime image for quality control.
// Each plane is scaled independently to its finite range.
type Viewer struct {
	// img holds the derived pulse, chase and lifetime planes
	img *lifetime.Derived
}

// NewViewer creates a new viewer over a derived image
func NewViewer(img *lifetime.Derived) *Viewer {
	return &Viewer{img: img}
}

// ExtractChannel renders one plane as a 16-bit grayscale image. The plane's
// finite minimum maps to 0 and its maximum to 65535; NaN and Inf pixels are 0.
func (v *Viewer) ExtractChannel(channel string) (image.Image, error) {
	if v.img == nil {
		return nil, fmt.Errorf("viewer has no image")
	}

	var plane []float64
	switch channel {
	case "pulse":
		plane = v.img.Pulse
	case "chase":
		plane = v.img.Chase
	case "lifetime":
		plane = v.img.Lifetime
	default:
		return nil, fmt.Errorf("invalid channel: %s (must be pulse, chase, or lifetime)", channel)
	}

	lo, hi := finiteRange(plane)
	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}

	out := image.NewGray16(image.Rect(0, 0, v.img.Width, v.img.Height))
	for y := 0; y < v.img.Height; y++ {
		for x := 0; x < v.img.Width; x++ {
			val := plane[y*v.img.Width+x]
			if math.IsNaN(val) || math.IsInf(val, 0) {
				continue
			}
			level := uint16(math.Max(0, math.Min(65535, math.Round((val-lo)*scale))))
			out.SetGray16(x, y, color.Gray16{Y: level})
		}
	}
	return out, nil
}

// SaveImage saves an extracted plane as a PNG image
func (v *Viewer) SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return err
	}
	return file.Close()
}

// SaveChannels writes the named planes to outputDir as
// <prefix>_<channel>.png, every plane when channels is empty, and returns
// the written paths
func (v *Viewer) SaveChannels(outputDir, prefix string, channels ...string) ([]string, error) {
	if len(channels) == 0 {
		channels = Channels
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(channels))
	for _, ch := range channels {
		img, err := v.ExtractChannel(ch)
		if err != nil {
			return paths, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.png", prefix, ch))
		if err := v.SaveImage(img, filename); err != nil {
			return paths, err
		}
		paths = append(paths, filename)
	}

	return paths, nil
}

// SaveRegionChart draws a bar chart of the mean lifetime of each leaf region
// and saves it to path. The format follows the file extension.
func SaveRegionChart(rows []models.MouseSummaryRecord, title, path string) error {
	var (
		values plotter.Values
		labels []string
	)
	for _, r := range rows {
		if r.Level != models.LevelLeaf || math.IsNaN(r.MeanLifetime) || math.IsInf(r.MeanLifetime, 0) {
			continue
		}
		values = append(values, r.MeanLifetime)
		labels = append(labels, regionLabel(r))
	}
	if len(values) == 0 {
		return ErrNothingToPlot
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Mean lifetime (days)"
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = -1.2
	p.X.Tick.Label.YAlign = -0.5

	bars, err := plotter.NewBarChart(values, vg.Points(8))
	if err != nil {
		return fmt.Errorf("failed to create bar chart: %w", err)
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(bars)
	p.NominalX(labels...)

	width := vg.Length(len(values))*12*vg.Millimeter/4 + 2*vg.Inch
	if width < 6*vg.Inch {
		width = 6 * vg.Inch
	}
	if err := p.Save(width, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save chart %s: %w", path, err)
	}
	return nil
}

func regionLabel(r models.MouseSummaryRecord) string {
	if r.Side == models.SideUnspecified {
		return r.ROIName
	}
	return r.ROIName + " " + string(r.Side)
}

func finiteRange(vals []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}
