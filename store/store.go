// Package store records drive loop runs in a sqlite database so they can be
// summarised and plotted offline.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	control "diffdrive-core/drive_loop/differential_control"
)

//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned when a run id has no row
var ErrRunNotFound = errors.New("run not found")

// Store wraps the sqlite handle
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Run is one recorded drive
type Run struct {
	ID          string          `json:"run_id"`
	Source      string          `json:"source"`
	Config      json.RawMessage `json:"config,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	SampleCount int             `json:"sample_count"`
}

// Sample is one reported odometry record plus the heading read with it
type Sample struct {
	TimestampMS  int64   `json:"t_ms"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Theta        float64 `json:"theta"`
	PathDistance float64 `json:"path_distance"`
	VelLeft      float64 `json:"vel_left"`
	VelRight     float64 `json:"vel_right"`
	HeadingDeg   float64 `json:"heading_deg"`
}

// Open opens or creates the database at path (":memory:" for tests)
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	// one writer; also keeps ":memory:" a single database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "close sqlite")
}

// StartRun creates a run row and returns a Recorder appending to it. cfg is
// stored as JSON for later reference and may be nil.
func (s *Store) StartRun(ctx context.Context, source string, cfg any) (*Recorder, error) {
	var cfgJSON any
	if cfg != nil {
		b, err := json.Marshal(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "marshal run config")
		}
		cfgJSON = string(b)
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, source, config_json, started_at) VALUES (?, ?, ?, ?)`,
		id, source, cfgJSON, s.now().UnixNano())
	if err != nil {
		return nil, errors.Wrap(err, "insert run")
	}
	return &Recorder{store: s, runID: id}, nil
}

// Runs lists every run, newest first
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source, config_json, started_at, ended_at, sample_count
		FROM runs
		ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate runs")
}

// GetRun returns one run by id
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, source, config_json, started_at, ended_at, sample_count
		FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, errors.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	return r, err
}

// LatestRun returns the most recently started run
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	runs, err := s.Runs(ctx)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, errors.Wrap(ErrRunNotFound, "no runs recorded")
	}
	return runs[0], nil
}

// LoadRun returns the samples of a run in report order
func (s *Store) LoadRun(ctx context.Context, runID string) ([]Sample, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT t_ms, x, y, theta, path_distance, vel_left, vel_right, heading_deg
		FROM odometry WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query odometry")
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.TimestampMS, &smp.X, &smp.Y, &smp.Theta,
			&smp.PathDistance, &smp.VelLeft, &smp.VelRight, &smp.HeadingDeg); err != nil {
			return nil, errors.Wrap(err, "scan odometry")
		}
		out = append(out, smp)
	}
	return out, errors.Wrap(rows.Err(), "iterate odometry")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r       Run
		cfg     sql.NullString
		started int64
		ended   sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.Source, &cfg, &started, &ended, &r.SampleCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, errors.Wrap(err, "scan run")
	}
	if cfg.Valid {
		r.Config = json.RawMessage(cfg.String)
	}
	r.StartedAt = time.Unix(0, started)
	if ended.Valid {
		t := time.Unix(0, ended.Int64)
		r.EndedAt = &t
	}
	return r, nil
}

// Recorder appends reported snapshots to one run. It implements
// control.Reporter.
type Recorder struct {
	store *Store
	runID string
	n     int
}

// RunID is the uuid of the run being recorded
func (r *Recorder) RunID() string { return r.runID }

// Samples is the number of rows written so far
func (r *Recorder) Samples() int { return r.n }

func (r *Recorder) Report(ctx context.Context, rec control.OdometryRecord, headingDeg float64) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO odometry (run_id, t_ms, x, y, theta, path_distance, vel_left, vel_right, heading_deg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, rec.Timestamp.Milliseconds(), rec.X, rec.Y, rec.Theta, rec.PathDistance,
		rec.LeftVelocity, rec.RightVelocity, headingDeg)
	if err != nil {
		return errors.Wrapf(err, "record odometry run %s", r.runID)
	}
	r.n++
	return nil
}

// Finish stamps the run's end time and sample count
func (r *Recorder) Finish(ctx context.Context) error {
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, sample_count = ? WHERE run_id = ?`,
		r.store.now().UnixNano(), r.n, r.runID)
	return errors.Wrapf(err, "finish run %s", r.runID)
}
