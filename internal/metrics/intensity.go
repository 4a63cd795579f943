package metrics

import (
	"math"

	"github.com/san-kum/stemsim/internal/field"
)

// Intensity is the mean total intensity per wave over every observed slice.
type Intensity struct {
	guarded
	name    string
	sum     float64
	samples int
}

func NewIntensity() *Intensity {
	return &Intensity{name: "intensity"}
}

func (m *Intensity) Name() string { return m.name }

func (m *Intensity) OnSlice(_, _ int, array *field.Complex) {
	v := meanIntensity(array)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sum += v
	m.samples++
}

func (m *Intensity) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *Intensity) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sum = 0
	m.samples = 0
}

// IntensityDrift is the largest relative change of the per-wave intensity
// from the first observed slice. Without absorption it stays near zero,
// apart from what the antialias aperture removes.
type IntensityDrift struct {
	guarded
	name     string
	initial  float64
	maxDrift float64
	samples  int
}

func NewIntensityDrift() *IntensityDrift {
	return &IntensityDrift{name: "intensity_drift"}
}

func (m *IntensityDrift) Name() string { return m.name }

func (m *IntensityDrift) OnSlice(_, _ int, array *field.Complex) {
	v := meanIntensity(array)
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.samples == 0 {
		m.initial = v
	}
	m.samples++

	if m.initial != 0 {
		drift := math.Abs(v-m.initial) / math.Abs(m.initial)
		m.maxDrift = math.Max(m.maxDrift, drift)
	}
}

func (m *IntensityDrift) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxDrift
}

func (m *IntensityDrift) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initial = 0
	m.maxDrift = 0
	m.samples = 0
}
