package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"roilifetime/internal/logger"
	"roilifetime/pkg/analysis"
	"roilifetime/pkg/config"
	"roilifetime/pkg/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse command line arguments
	configPath := flag.String("config", "", "Path to a YAML configuration file (defaults are used when empty)")
	dataRoot := flag.String("root", "", "Directory containing one folder per mouse (overrides paths.dataRoot)")
	mice := flag.String("mice", "", "Comma separated list of mice to analyze")
	save := flag.Bool("save", true, "Persist the per-mouse summaries and write exports")
	numCores := flag.Int("cores", 0, "Number of slices processed concurrently (default: numCores from config)")
	dbPath := flag.String("db", "", "SQLite database receiving every run (overrides output.database)")
	showRun := flag.String("show-run", "", "Print a stored run as CSV and exit; takes a run ID or a mouse for its latest run")
	printSchema := flag.Bool("print-schema", false, "Print the JSON Schema of the JSON export and exit")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this path and exit")
	logFormat := flag.String("log-format", "", "Log output format: console or json (overrides output.logFormat)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *printSchema {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(store.Schema()); err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}
		return nil
	}

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *writeConfig)
		return nil
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Command line flags take precedence over the config file
	if *dataRoot != "" {
		cfg.Paths.DataRoot = *dataRoot
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *dbPath != "" {
		cfg.Output.Database = *dbPath
	}
	if *logFormat != "" {
		cfg.Output.LogFormat = *logFormat
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "save" {
			cfg.Output.Save = *save
		}
	})
	cfg.Output.Verbose = cfg.Output.Verbose || *verbose

	log, err := logger.NewFromConfig(cfg.Output.LogFormat, cfg.Output.Verbose, os.Stderr)
	if err != nil {
		return err
	}
	mainLog := log.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *showRun != "" {
		st, err := openStore(cfg, mainLog)
		if err != nil {
			return err
		}
		defer st.Close()
		return printRun(ctx, st, *showRun)
	}

	mouseList := splitList(*mice)
	if len(mouseList) == 0 {
		flag.Usage()
		return errors.New("no mice given")
	}

	params := &analysis.Params{
		DataRoot: cfg.Paths.DataRoot,
		Mice:     mouseList,
		Save:     cfg.Output.Save,
		NumCores: cfg.Processing.NumCores,
		Config:   cfg,
	}

	if cfg.Output.Save && cfg.Output.Database != "" {
		st, err := openStore(cfg, mainLog)
		if err != nil {
			return err
		}
		defer st.Close()
		params.Store = st
	}

	analyzer := analysis.NewAnalyzer(params, log)

	mainLog.Info("starting analysis", logger.Fields{
		"mice":  mouseList,
		"root":  cfg.Paths.DataRoot,
		"cores": params.NumCores,
		"save":  params.Save,
	})
	startTime := time.Now()

	results, err := analyzer.Process(ctx)
	if err != nil {
		return err
	}

	for _, res := range results {
		fmt.Printf("%s: %d regions from %d slices (%d skipped)\n",
			res.Mouse, len(res.Summaries), res.Slices-len(res.Failed), len(res.Failed))
		if res.RunID != "" {
			fmt.Printf("  run id: %s\n", res.RunID)
		}
		for _, path := range res.Outputs {
			fmt.Printf("  wrote: %s\n", path)
		}
	}
	fmt.Printf("Analysis completed in %.2f seconds\n", time.Since(startTime).Seconds())
	return nil
}

// openStore opens the configured database. Relative paths resolve against
// the data root.
func openStore(cfg *config.Config, log *logger.Logger) (*store.Store, error) {
	path := cfg.Output.Database
	if path == "" {
		return nil, errors.New("no database configured")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Paths.DataRoot, path)
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	version, dirty, err := st.MigrateVersion()
	if err != nil {
		st.Close()
		return nil, err
	}
	log.Debug("database ready", logger.Fields{"path": path, "schema_version": version, "dirty": dirty})
	return st, nil
}

// printRun writes the summaries of a stored run to stdout as CSV
func printRun(ctx context.Context, st *store.Store, ref string) error {
	run, err := st.FindRun(ctx, ref)
	if err != nil {
		return fmt.Errorf("run %s: %w", ref, err)
	}

	rows, err := st.LoadRun(ctx, run.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "run %s of %s at %s: %d slices, %d skipped\n",
		run.ID, run.Mouse, run.CreatedAt.Format(time.RFC3339), run.SliceCount, run.FailedSlices)
	return store.WriteCSV(os.Stdout, rows)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
