package storage

import (
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/config"
	"github.com/san-kum/stemsim/internal/experiment"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/measure"
)

func measurement(t *testing.T, name string, list []axes.Axis, shape ...int) *measure.Measurement {
	t.Helper()
	arr, err := field.NewReal(shape...)
	if err != nil {
		t.Fatal(err)
	}
	for i := range arr.Data {
		arr.Data[i] = float64(i) / 7
	}
	m, err := measure.New(arr, list)
	if err != nil {
		t.Fatal(err)
	}
	m.Name, m.Units = name, "fraction"
	return m
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer st.Close()

	cfg := config.GetPreset(config.Probe, "haadf")
	res := &experiment.Result{
		Measurements: []*measure.Measurement{
			measurement(t, "annular(70-200)", []axes.Axis{axes.ScanAxis("x", 0.5, 0, false), axes.ScanAxis("y", 0.5, 0, false)}, 3, 4),
			measurement(t, "single", nil),
		},
		Metrics: map[string]float64{"intensity_drift": 1e-4},
		Elapsed: 1500 * time.Millisecond,
	}

	runID, err := st.Save(cfg, res)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Name != "haadf" || meta.Source != config.Probe {
		t.Errorf("unexpected run %+v", meta)
	}
	if meta.FrozenPhonons != 4 {
		t.Errorf("expected 4 frozen phonons, got %d", meta.FrozenPhonons)
	}
	if meta.Metrics["intensity_drift"] != 1e-4 {
		t.Errorf("expected drift 1e-4, got %f", meta.Metrics["intensity_drift"])
	}
	if meta.Elapsed != 1500*time.Millisecond {
		t.Errorf("expected elapsed 1.5s, got %s", meta.Elapsed)
	}
	if len(meta.Measurements) != 2 || meta.Measurements[0].Axes[1].Label != "y" {
		t.Fatalf("unexpected measurements %+v", meta.Measurements)
	}

	m, err := st.LoadMeasurement(runID, 0)
	if err != nil {
		t.Fatalf("load measurement failed: %v", err)
	}
	want := res.Measurements[0]
	if len(m.Array.Data) != 12 || m.Array.Data[11] != want.Array.Data[11] {
		t.Errorf("measurement data changed: %v", m.Array.Data)
	}
	if m.Name != want.Name || m.Units != want.Units {
		t.Errorf("expected %s in %s, got %s in %s", want.Name, want.Units, m.Name, m.Units)
	}

	single, err := st.LoadMeasurement(runID, 1)
	if err != nil {
		t.Fatalf("load scalar measurement failed: %v", err)
	}
	if len(single.Shape()) != 0 || single.Array.Data[0] != 0 {
		t.Errorf("unexpected scalar measurement %v %v", single.Shape(), single.Array.Data)
	}

	loaded, err := st.LoadConfig(runID)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if loaded.Detectors[0].Inner != 70 {
		t.Errorf("expected inner 70, got %f", loaded.Detectors[0].Inner)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("expected empty catalog, got %d runs", len(runs))
	}

	for _, name := range []string{"exit_wave", "vacuum"} {
		cfg := config.GetPreset(config.PlaneWave, name)
		if _, err := st.Save(cfg, &experiment.Result{Metrics: map[string]float64{}}); err != nil {
			t.Fatal(err)
		}
	}
	runs, err = st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Name != "vacuum" {
		t.Errorf("expected newest run first, got %+v", runs)
	}
}

func TestStoreNotFound(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if _, err := st.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.LoadMeasurement("missing", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.LoadConfig("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreSaveFailureLeavesNoRunDir(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer st.Close()

	// a single-point endpoint scan has infinite sampling, which JSON rejects
	res := &experiment.Result{
		Measurements: []*measure.Measurement{
			measurement(t, "annular", []axes.Axis{axes.ScanAxis("x", math.Inf(1), 0, true)}, 1),
		},
	}
	if _, err := st.Save(config.DefaultConfig(), res); err == nil {
		t.Fatal("expected save to fail")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() {
			t.Errorf("orphan run directory %s", e.Name())
		}
	}
	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}
