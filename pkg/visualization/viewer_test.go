package visualization

import (
	"errors"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"roilifetime/internal/models"
	"roilifetime/pkg/lifetime"
)

// createDerived builds a 4x3 derived image whose planes hold a ramp
func createDerived() *lifetime.Derived {
	width, height := 4, 3
	d := &lifetime.Derived{
		Width:    width,
		Height:   height,
		Pulse:    make([]float64, width*height),
		Chase:    make([]float64, width*height),
		Lifetime: make([]float64, width*height),
	}
	for i := range d.Lifetime {
		d.Pulse[i] = float64(i)
		d.Chase[i] = 7
		d.Lifetime[i] = 2 + float64(i)
	}
	return d
}

// TestExtractChannel verifies the finite range is stretched over 16 bits
func TestExtractChannel(t *testing.T) {
	d := createDerived()
	d.Lifetime[5] = math.NaN()
	d.Lifetime[6] = math.Inf(1)

	img, err := NewViewer(d).ExtractChannel("lifetime")
	if err != nil {
		t.Fatalf("Failed to extract lifetime channel: %v", err)
	}

	gray, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("Expected *image.Gray16, got %T", img)
	}

	if b := gray.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("Expected 4x3 image, got %dx%d", b.Dx(), b.Dy())
	}

	if got := gray.Gray16At(0, 0).Y; got != 0 {
		t.Errorf("Expected minimum to map to 0, got %d", got)
	}

	if got := gray.Gray16At(3, 2).Y; got != 65535 {
		t.Errorf("Expected maximum to map to 65535, got %d", got)
	}

	// pixel 5 is (1,1), pixel 6 is (2,1)
	if got := gray.Gray16At(1, 1).Y; got != 0 {
		t.Errorf("Expected NaN pixel to be 0, got %d", got)
	}
	if got := gray.Gray16At(2, 1).Y; got != 0 {
		t.Errorf("Expected Inf pixel to be 0, got %d", got)
	}
}

// TestExtractChannelConstant verifies a flat plane renders black
func TestExtractChannelConstant(t *testing.T) {
	img, err := NewViewer(createDerived()).ExtractChannel("chase")
	if err != nil {
		t.Fatalf("Failed to extract chase channel: %v", err)
	}

	gray := img.(*image.Gray16)
	for _, v := range gray.Pix {
		if v != 0 {
			t.Fatalf("Expected constant plane to be all zero")
		}
	}
}

// TestExtractChannelInvalid verifies unknown channels are rejected
func TestExtractChannelInvalid(t *testing.T) {
	if _, err := NewViewer(createDerived()).ExtractChannel("alpha"); err == nil {
		t.Error("Expected error for invalid channel, got nil")
	}

	if _, err := NewViewer(nil).ExtractChannel("lifetime"); err == nil {
		t.Error("Expected error for missing image, got nil")
	}
}

// TestSaveChannels verifies one PNG is written per channel
func TestSaveChannels(t *testing.T) {
	dir := t.TempDir()

	paths, err := NewViewer(createDerived()).SaveChannels(dir, "slice_01")
	if err != nil {
		t.Fatalf("Failed to save channels: %v", err)
	}
	if len(paths) != len(Channels) {
		t.Fatalf("Expected %d paths, got %d", len(Channels), len(paths))
	}

	for _, ch := range Channels {
		path := filepath.Join(dir, "slice_01_"+ch+".png")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected %s to exist: %v", path, err)
		}
	}
}

// TestSaveChannelsSubset verifies the written PNG decodes to the image size
func TestSaveChannelsSubset(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "maps")

	paths, err := NewViewer(createDerived()).SaveChannels(dir, "s", "lifetime")
	if err != nil {
		t.Fatalf("Failed to save lifetime map: %v", err)
	}
	if len(paths) != 1 || paths[0] != filepath.Join(dir, "s_lifetime.png") {
		t.Fatalf("Unexpected paths %v", paths)
	}

	f, err := os.Open(paths[0])
	if err != nil {
		t.Fatalf("Failed to open lifetime map: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode lifetime map: %v", err)
	}

	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("Expected 4x3 image, got %dx%d", b.Dx(), b.Dy())
	}

	if _, err := os.Stat(filepath.Join(dir, "s_pulse.png")); !os.IsNotExist(err) {
		t.Error("Expected only the requested channel to be written")
	}

	if _, err := NewViewer(createDerived()).SaveChannels(dir, "s", "alpha"); err == nil {
		t.Error("Expected error for invalid channel, got nil")
	}
}

// TestSaveRegionChart verifies a chart is written for leaf regions
func TestSaveRegionChart(t *testing.T) {
	rows := []models.MouseSummaryRecord{
		{Level: models.LevelLeaf, ROIName: "VISp_1", Side: models.SideLeft, MeanLifetime: 3.2},
		{Level: models.LevelLeaf, ROIName: "MOp_5", MeanLifetime: 2.7},
		{Level: models.LevelLeaf, ROIName: "empty", MeanLifetime: math.NaN()},
		{Level: models.LevelParent, ROIName: "Isocortex", MeanLifetime: 3.0},
	}
	path := filepath.Join(t.TempDir(), "regions.png")

	if err := SaveRegionChart(rows, "m1", path); err != nil {
		t.Fatalf("Failed to save region chart: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Expected chart to exist: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Expected non-empty chart file")
	}
}

// TestSaveRegionChartNoLeaves verifies nothing is drawn without finite leaves
func TestSaveRegionChartNoLeaves(t *testing.T) {
	rows := []models.MouseSummaryRecord{
		{Level: models.LevelParent, ROIName: "Isocortex", MeanLifetime: 3.0},
		{Level: models.LevelLeaf, ROIName: "empty", MeanLifetime: math.NaN()},
	}
	path := filepath.Join(t.TempDir(), "regions.png")

	err := SaveRegionChart(rows, "m1", path)
	if !errors.Is(err, ErrNothingToPlot) {
		t.Fatalf("Expected ErrNothingToPlot, got %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected no chart file to be written")
	}
}
