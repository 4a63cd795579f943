package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/stemsim/internal/potential"
	"github.com/san-kum/stemsim/internal/transfer"
)

const (
	DefaultEnergy    = 200e3
	DefaultSplits    = 1
	DefaultBatchSize = 16
	DefaultCutoff    = 20.0
	DefaultMaxAngle  = "valid"
)

// Sources of the incident wave.
const (
	PlaneWave = "plane_wave"
	Probe     = "probe"
)

var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	Name      string     `yaml:"name"`
	Source    string     `yaml:"source"`
	Energy    float64    `yaml:"energy" env:"STEMSIM_ENERGY"`
	Tilt      [2]float64 `yaml:"tilt"`
	Antialias float64    `yaml:"antialias,omitempty"`
	Splits    int        `yaml:"splits" env:"STEMSIM_SPLITS"`
	Workers   int        `yaml:"workers" env:"STEMSIM_WORKERS"`
	BatchSize int        `yaml:"batch_size" env:"STEMSIM_BATCH_SIZE"`

	Potential PotentialConfig  `yaml:"potential"`
	CTF       transfer.Config  `yaml:"ctf"`
	Scan      ScanConfig       `yaml:"scan"`
	Detectors []DetectorConfig `yaml:"detectors"`
	Output    OutputConfig     `yaml:"output"`
}

// PotentialConfig selects a "lattice" or "zero" potential. Both take the
// grid and slicing from the embedded lattice parameters.
type PotentialConfig struct {
	Kind                    string `yaml:"kind"`
	potential.LatticeConfig `yaml:",inline"`
}

type ScanConfig struct {
	Kind      string       `yaml:"kind"` // grid, line or custom
	Start     [2]float64   `yaml:"start"`
	End       [2]float64   `yaml:"end"`
	Gpts      []int        `yaml:"gpts,omitempty"`
	Sampling  []float64    `yaml:"sampling,omitempty"`
	Endpoint  bool         `yaml:"endpoint"`
	Positions [][2]float64 `yaml:"positions,omitempty"`
}

type DetectorConfig struct {
	Kind      string  `yaml:"kind"` // annular, flexible_annular, segmented or pixelated
	Inner     float64 `yaml:"inner,omitempty"`
	Outer     float64 `yaml:"outer,omitempty"`
	Step      float64 `yaml:"step,omitempty"`
	Radial    int     `yaml:"radial,omitempty"`
	Azimuthal int     `yaml:"azimuthal,omitempty"`
	Rotation  float64 `yaml:"rotation,omitempty"`
}

type OutputConfig struct {
	Dir string `yaml:"dir" env:"STEMSIM_DATA_DIR"`
	// Zarr, when set, receives the exit waves of a plane wave run.
	Zarr string `yaml:"zarr,omitempty"`
	// MaxAngle crops saved diffraction patterns: valid, cutoff, limit or mrad.
	MaxAngle string `yaml:"max_angle"`
}

func DefaultConfig() *Config {
	lattice := potential.DefaultLatticeConfig()
	return &Config{
		Name:      "default",
		Source:    Probe,
		Energy:    DefaultEnergy,
		Splits:    DefaultSplits,
		BatchSize: DefaultBatchSize,
		Potential: PotentialConfig{Kind: "lattice", LatticeConfig: lattice},
		CTF:       transfer.Config{SemiangleCutoff: DefaultCutoff},
		Scan: ScanConfig{
			Kind:  "grid",
			Start: [2]float64{0, 0},
			End:   [2]float64{lattice.Spacing, lattice.Spacing},
			Gpts:  []int{8, 8},
		},
		Detectors: []DetectorConfig{
			{Kind: "annular", Inner: 50, Outer: 150},
			{Kind: "annular", Inner: 0, Outer: DefaultCutoff},
		},
		Output: OutputConfig{Dir: "data", MaxAngle: DefaultMaxAngle},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides fields tagged with an env variable that is set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch {
	case c.Source != PlaneWave && c.Source != Probe:
		return fmt.Errorf("%w: unknown source %q", ErrInvalid, c.Source)
	case c.Energy <= 0:
		return fmt.Errorf("%w: energy must be positive", ErrInvalid)
	case c.Splits < 0:
		return fmt.Errorf("%w: splits must not be negative", ErrInvalid)
	case c.Potential.Kind != "lattice" && c.Potential.Kind != "zero":
		return fmt.Errorf("%w: unknown potential %q", ErrInvalid, c.Potential.Kind)
	case len(c.Potential.Gpts) != 2 || len(c.Potential.Extent) != 2:
		return fmt.Errorf("%w: potential needs 2D gpts and extent", ErrInvalid)
	case c.Source == Probe && len(c.Detectors) == 0:
		return fmt.Errorf("%w: a probe run needs detectors", ErrInvalid)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Potential.Extent = slices.Clone(c.Potential.Extent)
	cp.Potential.Gpts = slices.Clone(c.Potential.Gpts)
	cp.Scan.Gpts = slices.Clone(c.Scan.Gpts)
	cp.Scan.Sampling = slices.Clone(c.Scan.Sampling)
	cp.Scan.Positions = slices.Clone(c.Scan.Positions)
	cp.Detectors = slices.Clone(c.Detectors)
	return &cp
}
