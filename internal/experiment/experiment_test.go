package experiment

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/stemsim/internal/config"
	"github.com/san-kum/stemsim/internal/waves"
)

func smallConfig(source string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Source = source
	cfg.Potential.Gpts = []int{32, 32}
	cfg.Potential.Extent = []float64{8, 8}
	cfg.Potential.NumSlices = 3
	cfg.Scan.Gpts = []int{2, 3}
	return cfg
}

func quiet(e *Experiment) *Experiment {
	e.SetLogger(log.New(io.Discard, "", 0))
	return e
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"annular", "flexible_annular", "pixelated", "segmented"}, r.ListDetectors())
	assert.Equal(t, []string{"lattice", "zero"}, r.ListPotentials())
	assert.Equal(t, []string{"custom", "grid", "line"}, r.ListScans())

	_, err := r.GetDetector(config.DetectorConfig{Kind: "bright"})
	assert.Error(t, err)
	_, err = r.GetScan(config.ScanConfig{Kind: "spiral"})
	assert.Error(t, err)
	_, err = r.GetPotential(config.PotentialConfig{Kind: "atoms"})
	assert.Error(t, err)

	s, err := r.GetScan(config.ScanConfig{Kind: "line", End: [2]float64{3, 4}, Gpts: []int{5}})
	require.NoError(t, err)
	assert.Equal(t, []int{5}, s.Shape())
}

func TestRunNotSetup(t *testing.T) {
	_, err := quiet(New(smallConfig(config.Probe), nil)).Run(context.Background())
	assert.Error(t, err)
}

func TestPlaneWaveRun(t *testing.T) {
	cfg := smallConfig(config.PlaneWave)
	cfg.Potential.Kind = "zero"
	cfg.Detectors = []config.DetectorConfig{{Kind: "annular"}}
	cfg.Output.Zarr = filepath.Join(t.TempDir(), "exit.zarr")

	e := quiet(New(cfg, nil))
	require.NoError(t, e.Setup())
	var done, total int
	e.OnProgress(func(d, n int) { done, total = d, n })

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, done)
	assert.Equal(t, 3, total)

	require.Len(t, res.Measurements, 3)
	img := res.Measurement("intensity")
	require.NotNil(t, img)
	assert.InDelta(t, 32*32, img.Sum(), 1e-6)
	assert.NotNil(t, res.Measurement("diffraction"))
	assert.InDelta(t, 1, res.Measurements[2].Array.Data[0], 1e-9)
	assert.Less(t, res.Metrics["intensity_drift"], 1e-9)
	assert.Equal(t, 1.0, res.Metrics["stability"])

	saved, err := waves.FromZarr(cfg.Output.Zarr)
	require.NoError(t, err)
	assert.Equal(t, res.Exit.Array().Data, saved.Array().Data)
}

func TestProbeRunAveragesFrozenPhonons(t *testing.T) {
	cfg := smallConfig(config.Probe)
	cfg.Potential.FrozenPhonons = 2
	cfg.Detectors = []config.DetectorConfig{
		{Kind: "annular", Inner: 0, Outer: 0},
		{Kind: "segmented", Inner: 0, Outer: 40, Radial: 1, Azimuthal: 4},
	}

	e := quiet(New(cfg, nil))
	require.NoError(t, e.Setup())
	last := 0
	e.OnProgress(func(d, _ int) { last = max(last, d) })

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, last, "six positions per configuration")
	require.Len(t, res.Measurements, 2)
	assert.Equal(t, []int{2, 3}, res.Measurements[0].Shape())
	assert.Equal(t, []int{2, 3, 1, 4}, res.Measurements[1].Shape())
	for _, v := range res.Measurements[0].Array.Data {
		assert.InDelta(t, 1, v, 1e-6)
	}
	assert.Nil(t, res.Exit)
}

func TestSetupRejectsInvalid(t *testing.T) {
	cfg := smallConfig(config.Probe)
	cfg.Detectors = []config.DetectorConfig{{Kind: "segmented", Inner: 10, Outer: 5}}
	assert.Error(t, quiet(New(cfg, nil)).Setup())

	cfg = smallConfig("laser")
	assert.ErrorIs(t, quiet(New(cfg, nil)).Setup(), config.ErrInvalid)
}
