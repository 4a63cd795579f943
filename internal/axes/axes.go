// Package axes describes the meaning of array axes.
package axes

import "fmt"

type Kind int

const (
	Unknown Kind = iota
	RealSpace
	FourierSpace
	Scan
	Positions
	Ordinal
	Ensemble
)

func (k Kind) String() string {
	switch k {
	case RealSpace:
		return "real_space"
	case FourierSpace:
		return "fourier_space"
	case Scan:
		return "scan"
	case Positions:
		return "positions"
	case Ordinal:
		return "ordinal"
	case Ensemble:
		return "ensemble"
	}
	return "unknown"
}

// Axis is the calibration of one array axis.
type Axis struct {
	Kind     Kind    `json:"kind" yaml:"kind"`
	Label    string  `json:"label" yaml:"label"`
	Units    string  `json:"units,omitempty" yaml:"units,omitempty"`
	Sampling float64 `json:"sampling,omitempty" yaml:"sampling,omitempty"`
	Offset   float64 `json:"offset,omitempty" yaml:"offset,omitempty"`
	Endpoint bool    `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

func (a Axis) String() string {
	if a.Units == "" {
		return fmt.Sprintf("%s(%s)", a.Label, a.Kind)
	}
	return fmt.Sprintf("%s(%s, %g %s)", a.Label, a.Kind, a.Sampling, a.Units)
}

func FrozenPhonons() Axis {
	return Axis{Kind: Ensemble, Label: "frozen_phonons"}
}

func ProbePositions() Axis {
	return Axis{Kind: Positions, Label: "positions"}
}

func RealSpaceAxis(label string, sampling float64) Axis {
	return Axis{Kind: RealSpace, Label: label, Units: "Å", Sampling: sampling}
}

// FourierSpaceAxis is calibrated in mrad.
func FourierSpaceAxis(label string, sampling, offset float64) Axis {
	return Axis{Kind: FourierSpace, Label: label, Units: "mrad", Sampling: sampling, Offset: offset}
}

func ScanAxis(label string, sampling, offset float64, endpoint bool) Axis {
	return Axis{Kind: Scan, Label: label, Units: "Å", Sampling: sampling, Offset: offset, Endpoint: endpoint}
}

// Find returns the indices of the axes of the given kind.
func Find(list []Axis, kind Kind) []int {
	var out []int
	for i, a := range list {
		if a.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

func Clone(list []Axis) []Axis {
	if list == nil {
		return nil
	}
	out := make([]Axis, len(list))
	copy(out, list)
	return out
}
