// Package analysis runs the per-mouse pipeline: every registered slice is
// transformed into a lifetime image, split into atlas regions and the
// resulting tables are aggregated into one summary per mouse.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"roilifetime/internal/logger"
	"roilifetime/internal/models"
	"roilifetime/pkg/aggregate"
	"roilifetime/pkg/atlas"
	"roilifetime/pkg/config"
	"roilifetime/pkg/imageio"
	"roilifetime/pkg/lifetime"
	"roilifetime/pkg/regions"
	"roilifetime/pkg/store"
	"roilifetime/pkg/visualization"
)

// ErrNoSlices is returned when a mouse has no slice that could be processed
var ErrNoSlices = errors.New("no slices to analyze")

// SliceError reports a structural failure of one slice
type SliceError struct {
	Mouse string
	Slice string
	Err   error
}

func (e *SliceError) Error() string {
	return fmt.Sprintf("mouse %s slice %s: %v", e.Mouse, e.Slice, e.Err)
}

func (e *SliceError) Unwrap() error { return e.Err }

// Params holds the run configuration
type Params struct {
	// DataRoot contains one directory per mouse
	DataRoot string

	// Mice lists the mouse directories to analyze, in order
	Mice []string

	// Save persists results to Store and writes the configured exports
	Save bool

	// NumCores bounds how many slices of a mouse are processed at once
	NumCores int

	// Config supplies calibration, exclusions, paths and output options
	Config *config.Config

	// Store receives every saved run. May be nil, in which case only the
	// flat exports are written.
	Store *store.Store
}

// MouseResult is the outcome of analyzing one mouse
type MouseResult struct {
	Mouse     string
	Summaries []models.MouseSummaryRecord

	// Slices is the number of slices found, Failed those that were skipped
	Slices int
	Failed []*SliceError

	// RunID is set when the summaries were saved to the store
	RunID string

	// Outputs lists the files written for this mouse
	Outputs []string
}

// Analyzer runs the pipeline for a list of mice
type Analyzer struct {
	params    *Params
	cal       lifetime.Calibration
	extractor *regions.Extractor
	log       *logger.Logger
}

// NewAnalyzer creates an analyzer. A nil config selects the defaults and a
// nil logger discards output.
func NewAnalyzer(params *Params, log *logger.Logger) *Analyzer {
	if params.Config == nil {
		params.Config = config.DefaultConfig()
	}
	if params.NumCores < 1 {
		params.NumCores = params.Config.Processing.NumCores
	}
	if log == nil {
		log = logger.Nop()
	}

	cfg := params.Config
	return &Analyzer{
		params:    params,
		cal:       calibrationFromConfig(cfg),
		extractor: regions.NewExtractor(cfg.Processing.ExcludedSubtrees, cfg.Processing.RootLabel, log),
		log:       log.Component("analysis"),
	}
}

// Process analyzes every mouse in order and stops at the first mouse that
// fails
func (a *Analyzer) Process(ctx context.Context) ([]*MouseResult, error) {
	results := make([]*MouseResult, 0, len(a.params.Mice))
	for _, mouse := range a.params.Mice {
		res, err := a.ProcessMouse(ctx, mouse)
		if err != nil {
			return results, fmt.Errorf("mouse %s: %w", mouse, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// ProcessMouse analyzes the slices of one mouse, aggregates them and, when
// saving is enabled, persists the summary
func (a *Analyzer) ProcessMouse(ctx context.Context, mouse string) (*MouseResult, error) {
	start := time.Now()

	slices, err := a.listSlices(mouse)
	if err != nil {
		return nil, err
	}
	if len(slices) == 0 {
		return nil, ErrNoSlices
	}
	log := a.log.With(logger.Fields{"mouse": mouse})
	log.Info("analyzing mouse", logger.Fields{"slices": len(slices)})

	sliceResults, err := a.processSlices(ctx, slices, log)
	if err != nil {
		return nil, err
	}

	res := &MouseResult{Mouse: mouse, Slices: len(slices)}
	tables := make([][]models.RegionRecord, 0, len(sliceResults))
	for _, sr := range sliceResults {
		if sr.Err != nil {
			var se *SliceError
			if errors.As(sr.Err, &se) {
				res.Failed = append(res.Failed, se)
			}
			continue
		}
		tables = append(tables, sr.Records)
	}
	if len(tables) == 0 {
		return nil, ErrNoSlices
	}

	res.Summaries = aggregate.Aggregate(tables)

	if a.params.Save {
		if err := a.save(ctx, res, log); err != nil {
			return nil, err
		}
	}

	log.Info("mouse analyzed", logger.Fields{
		"regions":  len(res.Summaries),
		"failed":   len(res.Failed),
		"duration": time.Since(start).String(),
	})
	return res, nil
}

// listSlices pairs every atlas file of a mouse with the image sharing its
// base name. The base name ends at the first dot.
func (a *Analyzer) listSlices(mouse string) ([]models.Slice, error) {
	paths := a.params.Config.Paths
	mouseDir := filepath.Join(a.params.DataRoot, mouse)
	atlasDir := filepath.Join(mouseDir, paths.AtlasDir)
	imageDir := filepath.Join(mouseDir, paths.ImageDir)

	entries, err := os.ReadDir(atlasDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read atlas directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	slices := make([]models.Slice, 0, len(names))
	for i, name := range names {
		base, _, _ := strings.Cut(name, ".")
		slices = append(slices, models.Slice{
			Mouse:     mouse,
			Name:      base,
			Index:     i,
			ImagePath: filepath.Join(imageDir, base+paths.ImageExt),
			AtlasPath: filepath.Join(atlasDir, name),
		})
	}
	return slices, nil
}

// processSlices runs the slices concurrently. Results keep the slice order.
// A failed slice aborts the mouse unless SkipFailedSlices is set, in which
// case its result carries the error.
func (a *Analyzer) processSlices(ctx context.Context, slices []models.Slice, log *logger.Logger) ([]models.SliceResult, error) {
	results := make([]models.SliceResult, len(slices))
	skip := a.params.Config.Processing.SkipFailedSlices

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.params.NumCores)

	for i, s := range slices {
		i, s := i, s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			sliceLog := log.With(logger.Fields{"slice": s.Name})
			records, err := a.processSlice(s, sliceLog)
			if err != nil {
				se := &SliceError{Mouse: s.Mouse, Slice: s.Name, Err: err}
				if !skip {
					return se
				}
				sliceLog.Warn("skipping slice", logger.Fields{"error": err.Error()})
				results[i] = models.SliceResult{Slice: s, Err: se}
				return nil
			}

			results[i] = models.SliceResult{Slice: s, Records: records}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// processSlice loads, transforms and extracts one slice
func (a *Analyzer) processSlice(s models.Slice, log *logger.Logger) ([]models.RegionRecord, error) {
	raw, err := imageio.Load(s.ImagePath)
	if err != nil {
		return nil, err
	}

	derived, err := lifetime.Transform(raw, a.cal)
	if err != nil {
		return nil, err
	}

	coll, err := atlas.Load(s.AtlasPath)
	if err != nil {
		return nil, err
	}

	records, err := a.extractor.Extract(derived, coll)
	if err != nil {
		return nil, err
	}

	log.Debug("slice processed", logger.Fields{"regions": len(records)})

	if out := a.params.Config.Output; a.params.Save && out.SaveLifetimeMaps {
		dir := filepath.Join(a.outputDir(s.Mouse), "lifetime_maps")
		viewer := visualization.NewViewer(derived)
		if _, err := viewer.SaveChannels(dir, s.Name, out.MapChannels...); err != nil {
			log.Warn("failed to save lifetime maps", logger.Fields{"error": err.Error()})
		}
	}

	return records, nil
}

// calibrationFromConfig extracts the calibration section of cfg
func calibrationFromConfig(cfg *config.Config) lifetime.Calibration {
	c := cfg.Calibration
	return lifetime.Calibration{
		PulseCorrection: c.PulseCorrection,
		PulseSlope:      c.PulseSlope,
		ChaseCorrection: c.ChaseCorrection,
		ChaseSlope:      c.ChaseSlope,
		TimeConstant:    c.TimeConstant,
		Epsilon:         c.Epsilon,
		PulseChannel:    c.PulseChannel,
		ChaseChannel:    c.ChaseChannel,
	}
}

func (a *Analyzer) outputDir(mouse string) string {
	return filepath.Join(a.params.DataRoot, mouse, a.params.Config.Paths.OutputDir)
}

// save persists the summaries to the store and writes the flat exports
func (a *Analyzer) save(ctx context.Context, res *MouseResult, log *logger.Logger) error {
	out := a.params.Config.Output

	if a.params.Store != nil {
		runID, err := a.params.Store.SaveRun(ctx, res.Mouse, res.Summaries, store.RunStats{
			SliceCount:   res.Slices,
			FailedSlices: len(res.Failed),
		})
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		res.RunID = runID
		log.Info("run saved", logger.Fields{"run_id": runID})
	}

	dir := a.outputDir(res.Mouse)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, format := range out.Formats {
		path := filepath.Join(dir, fmt.Sprintf("%s_analyzed_data.%s", res.Mouse, format))
		if err := writeExport(path, format, res.Summaries); err != nil {
			return err
		}
		res.Outputs = append(res.Outputs, path)
	}

	if out.SaveCharts {
		path := filepath.Join(dir, fmt.Sprintf("%s_lifetimes.png", res.Mouse))
		err := visualization.SaveRegionChart(res.Summaries, res.Mouse, path)
		switch {
		case errors.Is(err, visualization.ErrNothingToPlot):
			log.Warn("no leaf regions to chart", nil)
		case err != nil:
			return err
		default:
			res.Outputs = append(res.Outputs, path)
		}
	}

	return nil
}

func writeExport(path, format string, rows []models.MouseSummaryRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	switch format {
	case "csv":
		err = store.WriteCSV(f, rows)
	case "json":
		err = store.WriteJSON(f, rows)
	default:
		err = fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
