package experiment

import (
	"fmt"
	"slices"

	"github.com/san-kum/stemsim/internal/config"
	"github.com/san-kum/stemsim/internal/detect"
	"github.com/san-kum/stemsim/internal/metrics"
	"github.com/san-kum/stemsim/internal/potential"
	"github.com/san-kum/stemsim/internal/scan"
)

type Registry struct {
	potentials map[string]func(config.PotentialConfig) (potential.Potential, error)
	detectors  map[string]func(config.DetectorConfig) (detect.Detector, error)
	scans      map[string]func(config.ScanConfig) (scan.Scan, error)
}

func NewRegistry() *Registry {
	r := &Registry{
		potentials: make(map[string]func(config.PotentialConfig) (potential.Potential, error)),
		detectors:  make(map[string]func(config.DetectorConfig) (detect.Detector, error)),
		scans:      make(map[string]func(config.ScanConfig) (scan.Scan, error)),
	}

	r.potentials["lattice"] = func(c config.PotentialConfig) (potential.Potential, error) {
		return potential.NewLattice(c.LatticeConfig)
	}
	r.potentials["zero"] = func(c config.PotentialConfig) (potential.Potential, error) {
		return potential.Zero(c.Gpts, c.Extent, c.NumSlices, c.Thickness)
	}

	r.detectors["annular"] = func(c config.DetectorConfig) (detect.Detector, error) {
		return detect.NewAnnular(c.Inner, c.Outer), nil
	}
	r.detectors["flexible_annular"] = func(c config.DetectorConfig) (detect.Detector, error) {
		return detect.NewFlexibleAnnular(c.Step), nil
	}
	r.detectors["segmented"] = func(c config.DetectorConfig) (detect.Detector, error) {
		return detect.NewSegmented(c.Inner, c.Outer, max(c.Radial, 1), max(c.Azimuthal, 1), c.Rotation)
	}
	r.detectors["pixelated"] = func(config.DetectorConfig) (detect.Detector, error) {
		return detect.NewPixelated(), nil
	}

	r.scans["grid"] = func(c config.ScanConfig) (scan.Scan, error) {
		return scan.NewGridScan(c.Start, c.End, c.Gpts, c.Sampling, c.Endpoint)
	}
	r.scans["line"] = func(c config.ScanConfig) (scan.Scan, error) {
		var gpts int
		var sampling float64
		if len(c.Gpts) > 0 {
			gpts = c.Gpts[0]
		}
		if len(c.Sampling) > 0 {
			sampling = c.Sampling[0]
		}
		return scan.NewLineScan(c.Start, c.End, gpts, sampling, c.Endpoint)
	}
	r.scans["custom"] = func(c config.ScanConfig) (scan.Scan, error) {
		return scan.NewCustomScan(c.Positions)
	}

	return r
}

func (r *Registry) GetPotential(c config.PotentialConfig) (potential.Potential, error) {
	fn, ok := r.potentials[c.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown potential: %s", c.Kind)
	}
	return fn(c)
}

func (r *Registry) GetDetector(c config.DetectorConfig) (detect.Detector, error) {
	fn, ok := r.detectors[c.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown detector: %s", c.Kind)
	}
	return fn(c)
}

func (r *Registry) GetScan(c config.ScanConfig) (scan.Scan, error) {
	fn, ok := r.scans[c.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown scan: %s", c.Kind)
	}
	return fn(c)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) ListPotentials() []string { return sortedKeys(r.potentials) }
func (r *Registry) ListDetectors() []string  { return sortedKeys(r.detectors) }
func (r *Registry) ListScans() []string      { return sortedKeys(r.scans) }

// DefaultMetrics are attached to every run.
func (r *Registry) DefaultMetrics() []metrics.Metric {
	return []metrics.Metric{
		metrics.NewIntensity(),
		metrics.NewIntensityDrift(),
		metrics.NewStability(1e3),
		metrics.NewPeakAmplitude(),
	}
}
