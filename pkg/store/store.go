// Package store persists per-mouse region summaries in SQLite and writes
// flat CSV and JSON exports.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"roilifetime/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned when no run matches the query
var ErrRunNotFound = errors.New("analysis run not found")

// Store is a SQLite database holding analysis runs
type Store struct {
	*sql.DB
}

// Run describes one persisted analysis of a mouse
type Run struct {
	ID           string
	Mouse        string
	CreatedAt    time.Time
	SliceCount   int
	FailedSlices int
}

// Open opens (creating if needed) the database at path and applies all
// pending migrations
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// foreign_keys is per connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// MigrateUp runs all pending migrations up to the latest version.
// Returns nil if no migrations were needed (already at latest version).
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the underlying DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty state
func (s *Store) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}

	version, dirty, err = m.Version()
	if err != nil && errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RunStats counts the slices that went into a run
type RunStats struct {
	SliceCount   int
	FailedSlices int
}

// SaveRun stores the summaries of one mouse under a new run id
func (s *Store) SaveRun(ctx context.Context, mouse string, rows []models.MouseSummaryRecord, stats RunStats) (string, error) {
	runID := uuid.NewString()

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analysis_runs (run_id, mouse, created_at, slice_count, failed_slices)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, mouse, time.Now().UTC(), stats.SliceCount, stats.FailedSlices,
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO region_summaries (
			run_id, row_index, level, roi_name, side, parent_name, orig_id, parent_id,
			tot_pixels, mean_pulse, mean_chase, mean_lifetime
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			runID, i, string(r.Level), r.ROIName, nullSide(r.Side), nullString(r.ParentName),
			nullInt(r.OrigID), nullInt(r.ParentID),
			r.TotPixels, nullFloat(r.MeanPulse), nullFloat(r.MeanChase), nullFloat(r.MeanLifetime),
		); err != nil {
			return "", fmt.Errorf("failed to insert region %s: %w", r.ROIName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

// GetRun returns the metadata of a run
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.QueryRowContext(ctx,
		`SELECT run_id, mouse, created_at, slice_count, failed_slices
		 FROM analysis_runs WHERE run_id = ?`, runID)
	return scanRun(row)
}

// LatestRun returns the most recent run of mouse
func (s *Store) LatestRun(ctx context.Context, mouse string) (*Run, error) {
	row := s.QueryRowContext(ctx,
		`SELECT run_id, mouse, created_at, slice_count, failed_slices
		 FROM analysis_runs WHERE mouse = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`, mouse)
	return scanRun(row)
}

// FindRun resolves ref as a run ID when it parses as a UUID and otherwise
// as a mouse whose latest run is returned
func (s *Store) FindRun(ctx context.Context, ref string) (*Run, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return s.GetRun(ctx, ref)
	}
	return s.LatestRun(ctx, ref)
}

// LoadRun returns the summaries of a run in their stored order
func (s *Store) LoadRun(ctx context.Context, runID string) ([]models.MouseSummaryRecord, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT level, roi_name, side, parent_name, orig_id, parent_id,
		        tot_pixels, mean_pulse, mean_chase, mean_lifetime
		 FROM region_summaries WHERE run_id = ? ORDER BY row_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MouseSummaryRecord
	for rows.Next() {
		var (
			level, name            string
			side, parentName       sql.NullString
			origID, parentID       sql.NullInt64
			totPixels              int
			pulse, chase, lifetime sql.NullFloat64
		)
		if err := rows.Scan(&level, &name, &side, &parentName, &origID, &parentID,
			&totPixels, &pulse, &chase, &lifetime); err != nil {
			return nil, err
		}

		r := models.MouseSummaryRecord{
			Level:        models.Level(level),
			ROIName:      name,
			Side:         models.Side(side.String),
			TotPixels:    totPixels,
			MeanPulse:    floatOrNaN(pulse),
			MeanChase:    floatOrNaN(chase),
			MeanLifetime: floatOrNaN(lifetime),
		}
		if parentName.Valid {
			r.ParentName = models.String(parentName.String)
		}
		if origID.Valid {
			r.OrigID = models.Int64(origID.Int64)
		}
		if parentID.Valid {
			r.ParentID = models.Int64(parentID.Int64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRun(row *sql.Row) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Mouse, &r.CreatedAt, &r.SliceCount, &r.FailedSlices)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// NaN is stored as NULL
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullSide(s models.Side) sql.NullString {
	if s == models.SideUnspecified {
		return sql.NullString{}
	}
	return sql.NullString{String: string(s), Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
