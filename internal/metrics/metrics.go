package metrics

import (
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/stemsim/internal/compute"
	"github.com/san-kum/stemsim/internal/field"
	"github.com/san-kum/stemsim/internal/multislice"
)

// Metric is a multislice observer that reduces a run to one number.
type Metric interface {
	multislice.Observer
	Name() string
	Value() float64
	Reset()
}

// Observer fans slice events out to every metric.
func Observer(ms ...Metric) multislice.Observer {
	return multislice.ObserverFunc(func(index, total int, array *field.Complex) {
		for _, m := range ms {
			m.OnSlice(index, total, array)
		}
	})
}

// Values returns the current value of every metric by name.
func Values(ms ...Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

// meanIntensity is the total |psi|^2 per wave.
func meanIntensity(array *field.Complex) float64 {
	n := array.NumPlanes()
	if n == 0 {
		return 0
	}
	return floats.Sum(compute.GetBackend().Abs2(array).Data) / float64(n)
}

// guarded serializes observations; frozen phonon runs report concurrently.
type guarded struct {
	mu sync.Mutex
}
