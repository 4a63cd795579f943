package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/config"
	"github.com/san-kum/stemsim/internal/experiment"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/measure"
	"github.com/san-kum/stemsim/internal/zarr"
)

const (
	catalogFile      = "catalog.db"
	configFile       = "config.yaml"
	measurementsFile = "measurements.zarr"
)

var ErrNotFound = errors.New("storage: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	source         TEXT NOT NULL,
	created_at_ns  INTEGER NOT NULL,
	energy         REAL NOT NULL,
	splits         INTEGER NOT NULL,
	frozen_phonons INTEGER NOT NULL,
	elapsed_ns     INTEGER NOT NULL,
	metrics_json   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS measurements (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	idx        INTEGER NOT NULL,
	name       TEXT NOT NULL,
	units      TEXT NOT NULL,
	shape_json TEXT NOT NULL,
	axes_json  TEXT NOT NULL,
	PRIMARY KEY (run_id, idx)
);
`

// Store keeps a sqlite catalog of runs under baseDir. Each run also gets a
// directory holding its config and its measurements as a zarr group.
type Store struct {
	baseDir string
	db      *sql.DB
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", filepath.Join(s.baseDir, catalogFile))
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("create schema: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type MeasurementInfo struct {
	Name  string      `json:"name"`
	Units string      `json:"units"`
	Shape []int       `json:"shape"`
	Axes  []axes.Axis `json:"axes"`
}

type RunMetadata struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Source        string             `json:"source"`
	Timestamp     time.Time          `json:"timestamp"`
	Energy        float64            `json:"energy"`
	Splits        int                `json:"splits"`
	FrozenPhonons int                `json:"frozen_phonons"`
	Elapsed       time.Duration      `json:"elapsed"`
	Metrics       map[string]float64 `json:"metrics"`
	Measurements  []MeasurementInfo  `json:"measurements,omitempty"`
}

func (s *Store) runDir(id string) string { return filepath.Join(s.baseDir, id) }

func arrayName(i int) string { return fmt.Sprintf("m%d", i) }

// Save records a finished run and writes its measurements. It returns the
// new run id. A failed save leaves neither a catalog row nor a run
// directory behind.
func (s *Store) Save(cfg *config.Config, res *experiment.Result) (_ string, err error) {
	if s.db == nil {
		return "", fmt.Errorf("storage: catalog not initialised")
	}
	runID := uuid.New().String()
	dir := s.runDir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()

	if err := config.Save(filepath.Join(dir, configFile), cfg); err != nil {
		return "", err
	}

	group := filepath.Join(dir, measurementsFile)
	if err := zarr.CreateGroup(group, map[string]string{"run_id": runID}, false); err != nil {
		return "", err
	}
	for i, m := range res.Measurements {
		// zarr needs at least one axis
		if m.Array.NDim() == 0 {
			flat, err := m.Array.Reshape(1)
			if err != nil {
				return "", err
			}
			m = &measure.Measurement{Array: flat, Axes: m.Axes, Name: m.Name, Units: m.Units}
		}
		if err := zarr.WriteArray(group, arrayName(i), m.Array, zarr.DefaultLevel); err != nil {
			return "", fmt.Errorf("write %s: %w", m.Name, err)
		}
	}

	metricsJSON, err := json.Marshal(res.Metrics)
	if err != nil {
		return "", err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, name, source, created_at_ns, energy, splits, frozen_phonons, elapsed_ns, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, cfg.Name, cfg.Source, time.Now().UnixNano(), cfg.Energy, cfg.Splits,
		cfg.Potential.FrozenPhonons, int64(res.Elapsed), string(metricsJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	for i, m := range res.Measurements {
		shapeJSON, err := json.Marshal(m.Shape())
		if err != nil {
			return "", err
		}
		axesJSON, err := json.Marshal(m.Axes)
		if err != nil {
			return "", err
		}
		_, err = tx.Exec(`
			INSERT INTO measurements (run_id, idx, name, units, shape_json, axes_json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, i, m.Name, m.Units, string(shapeJSON), string(axesJSON),
		)
		if err != nil {
			return "", fmt.Errorf("insert measurement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunMetadata, error) {
	var meta RunMetadata
	var createdNs, elapsedNs int64
	var metricsJSON string
	err := row.Scan(&meta.ID, &meta.Name, &meta.Source, &createdNs, &meta.Energy, &meta.Splits,
		&meta.FrozenPhonons, &elapsedNs, &metricsJSON)
	if err != nil {
		return nil, err
	}
	meta.Timestamp = time.Unix(0, createdNs)
	meta.Elapsed = time.Duration(elapsedNs)
	if err := json.Unmarshal([]byte(metricsJSON), &meta.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return &meta, nil
}

const runColumns = `id, name, source, created_at_ns, energy, splits, frozen_phonons, elapsed_ns, metrics_json`

// List returns every run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunMetadata, 0)
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *meta)
	}
	return runs, rows.Err()
}

// Load returns a run with its measurement descriptions.
func (s *Store) Load(runID string) (*RunMetadata, error) {
	meta, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT name, units, shape_json, axes_json FROM measurements
		WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("get measurements: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var info MeasurementInfo
		var shapeJSON, axesJSON string
		if err := rows.Scan(&info.Name, &info.Units, &shapeJSON, &axesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(shapeJSON), &info.Shape); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(axesJSON), &info.Axes); err != nil {
			return nil, err
		}
		meta.Measurements = append(meta.Measurements, info)
	}
	return meta, rows.Err()
}

// LoadMeasurement reads measurement i of a run back from its zarr group.
func (s *Store) LoadMeasurement(runID string, i int) (*measure.Measurement, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(meta.Measurements) {
		return nil, fmt.Errorf("%w: run %s has no measurement %d", ErrNotFound, runID, i)
	}
	info := meta.Measurements[i]

	arr, err := zarr.ReadArray[float64](filepath.Join(s.runDir(runID), measurementsFile), arrayName(i))
	if err != nil {
		return nil, err
	}
	if arr, err = field.Wrap(arr.Data, info.Shape...); err != nil {
		return nil, err
	}
	m, err := measure.New(arr, info.Axes)
	if err != nil {
		return nil, err
	}
	m.Name, m.Units = info.Name, info.Units
	return m, nil
}

// LoadConfig returns the config a run was started with.
func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	cfg, err := config.Load(filepath.Join(s.runDir(runID), configFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return cfg, err
}
