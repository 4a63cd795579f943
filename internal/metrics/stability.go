package metrics

import (
	"math"
	"math/cmplx"

	"github.com/san-kum/stemsim/internal/field"
)

// Stability is the fraction of slices whose wave stays finite with every
// amplitude at or below threshold. A diverging run, typically from a slice
// too thick for the potential, drops below one.
type Stability struct {
	guarded
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string { return s.name }

func (s *Stability) OnSlice(_, _ int, array *field.Complex) {
	bad := false
	for _, v := range array.Data {
		if cmplx.IsNaN(v) || cmplx.IsInf(v) || cmplx.Abs(v) > s.threshold {
			bad = true
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples++
	if bad {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = 0
	s.samples = 0
}

// PeakAmplitude is the mean over slices of the largest |psi|. Channelling
// along atomic columns raises it above the incident amplitude.
type PeakAmplitude struct {
	guarded
	name    string
	sum     float64
	samples int
}

func NewPeakAmplitude() *PeakAmplitude {
	return &PeakAmplitude{name: "peak_amplitude"}
}

func (p *PeakAmplitude) Name() string { return p.name }

func (p *PeakAmplitude) OnSlice(_, _ int, array *field.Complex) {
	peak := 0.0
	for _, v := range array.Data {
		peak = math.Max(peak, cmplx.Abs(v))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sum += peak
	p.samples++
}

func (p *PeakAmplitude) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.samples == 0 {
		return 0
	}
	return p.sum / float64(p.samples)
}

func (p *PeakAmplitude) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sum = 0
	p.samples = 0
}
