package experiment

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/san-kum/stemsim/internal/config"
	"github.com/san-kum/stemsim/internal/detect"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/measure"
	"github.com/san-kum/stemsim/internal/metrics"
	"github.com/san-kum/stemsim/internal/multislice"
	"github.com/san-kum/stemsim/internal/potential"
	"github.com/san-kum/stemsim/internal/scan"
	"github.com/san-kum/stemsim/internal/waves"
)

type Result struct {
	Name         string
	Source       string
	Measurements []*measure.Measurement
	// Exit holds the exit waves of a plane wave run.
	Exit    *waves.Waves
	Metrics map[string]float64
	Elapsed time.Duration
}

// Measurement returns the first measurement with the given name.
func (r *Result) Measurement(name string) *measure.Measurement {
	for _, m := range r.Measurements {
		if m.Name == name {
			return m
		}
	}
	return nil
}

type Experiment struct {
	cfg       *config.Config
	reg       *Registry
	logger    *log.Logger
	engine    *multislice.Engine
	potential potential.Potential
	detectors []detect.Detector
	scan      scan.Scan
	metrics   []metrics.Metric
	observers []multislice.Observer
	progress  func(done, total int)
}

func New(cfg *config.Config, reg *Registry) *Experiment {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Experiment{
		cfg:    cfg,
		reg:    reg,
		logger: log.New(os.Stderr, "stemsim: ", log.LstdFlags),
		engine: multislice.New(nil),
	}
}

func (e *Experiment) SetLogger(l *log.Logger) { e.logger = l }

// AddObserver attaches an observer to every multislice run.
func (e *Experiment) AddObserver(o multislice.Observer) { e.observers = append(e.observers, o) }

// OnProgress reports completed units of work: slices for a plane wave,
// probe positions times frozen phonons for a scan.
func (e *Experiment) OnProgress(fn func(done, total int)) { e.progress = fn }

func (e *Experiment) Potential() potential.Potential { return e.potential }

// MetricValues reports the metrics of the run in progress.
func (e *Experiment) MetricValues() map[string]float64 { return metrics.Values(e.metrics...) }

// Setup builds the potential, detectors and scan named by the config.
func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	pot, err := e.reg.GetPotential(e.cfg.Potential)
	if err != nil {
		return err
	}
	e.potential = pot

	e.detectors = e.detectors[:0]
	for _, dc := range e.cfg.Detectors {
		d, err := e.reg.GetDetector(dc)
		if err != nil {
			return err
		}
		e.detectors = append(e.detectors, d)
	}

	if e.cfg.Source == config.Probe {
		if e.scan, err = e.reg.GetScan(e.cfg.Scan); err != nil {
			return err
		}
	}
	e.metrics = e.reg.DefaultMetrics()
	return nil
}

func (e *Experiment) observer() multislice.Observer {
	list := append([]multislice.Observer{metrics.Observer(e.metrics...)}, e.observers...)
	return multislice.ObserverFunc(func(index, total int, array *field.Complex) {
		for _, o := range list {
			o.OnSlice(index, total, array)
		}
	})
}

func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.potential == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	for _, m := range e.metrics {
		m.Reset()
	}

	start := time.Now()
	e.logger.Printf("run %s: %s through %d slices, %d frozen phonons", e.cfg.Name, e.cfg.Source,
		e.potential.NumSlices(), e.potential.NumFrozenPhonons())

	var res *Result
	var err error
	switch e.cfg.Source {
	case config.PlaneWave:
		res, err = e.runPlaneWave(ctx)
	default:
		res, err = e.runProbe(ctx)
	}
	if err != nil {
		return nil, err
	}

	res.Name, res.Source = e.cfg.Name, e.cfg.Source
	res.Metrics = metrics.Values(e.metrics...)
	res.Elapsed = time.Since(start)
	e.logger.Printf("run %s: %d measurements in %s", e.cfg.Name, len(res.Measurements), res.Elapsed.Round(time.Millisecond))
	return res, nil
}

func (e *Experiment) runPlaneWave(ctx context.Context) (*Result, error) {
	pw, err := waves.NewPlaneWave(waves.PlaneWaveConfig{
		Energy:    e.cfg.Energy,
		Tilt:      e.cfg.Tilt,
		Antialias: e.cfg.Antialias,
	})
	if err != nil {
		return nil, err
	}

	observer := e.observer()
	if e.progress != nil {
		var mu sync.Mutex
		done, total := 0, e.potential.NumSlices()*e.potential.NumFrozenPhonons()
		inner := observer
		observer = multislice.ObserverFunc(func(index, n int, array *field.Complex) {
			inner.OnSlice(index, n, array)
			mu.Lock()
			done++
			e.progress(done, total)
			mu.Unlock()
		})
	}

	exit, err := pw.Multislice(ctx, e.potential, waves.MultisliceOptions{
		Splits:   e.cfg.Splits,
		Observer: observer,
		Workers:  e.cfg.Workers,
		Engine:   e.engine,
	})
	if err != nil {
		return nil, err
	}
	if e.cfg.Output.Zarr != "" {
		if err := exit.ToZarr(e.cfg.Output.Zarr, true); err != nil {
			return nil, err
		}
	}

	res := &Result{Exit: exit}
	img, err := exit.Intensity()
	if err != nil {
		return nil, err
	}
	maxAngle, err := waves.ParseMaxAngle(e.cfg.Output.MaxAngle)
	if err != nil {
		return nil, err
	}
	dp, err := exit.DiffractionPatterns(waves.DiffractionOptions{MaxAngle: maxAngle, FFTShift: true})
	if err != nil {
		return nil, err
	}
	dp.Name = "diffraction"
	found := []*measure.Measurement{img.Measurement, dp.Measurement}
	if len(e.detectors) > 0 {
		ms, err := exit.Detect(e.detectors...)
		if err != nil {
			return nil, err
		}
		found = append(found, ms...)
	}
	for _, m := range found {
		mean, err := m.MeanEnsemble()
		if err != nil {
			return nil, err
		}
		res.Measurements = append(res.Measurements, mean)
	}
	return res, nil
}

func (e *Experiment) runProbe(ctx context.Context) (*Result, error) {
	ctf := e.cfg.CTF
	ctf.Energy = e.cfg.Energy
	probe, err := waves.NewProbe(waves.ProbeConfig{
		Tilt:      e.cfg.Tilt,
		Antialias: e.cfg.Antialias,
		CTF:       ctf,
	})
	if err != nil {
		return nil, err
	}

	ms, err := probe.Scan(ctx, e.scan, e.detectors, e.potential, waves.ScanOptions{
		BatchSize: e.cfg.BatchSize,
		Workers:   e.cfg.Workers,
		Splits:    e.cfg.Splits,
		Observer:  e.observer(),
		Engine:    e.engine,
		Progress:  e.progress,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Measurements: ms}, nil
}
