package energy

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/stemsim/internal/cache"
)

// Property is the name carried by energy change events.
const Property = "energy"

// CODATA values, SI units.
const (
	ElectronMass     = 9.1093837015e-31 // kg
	ElementaryCharge = 1.602176634e-19  // C
	Planck           = 6.62607015e-34   // J s
	SpeedOfLight     = 299792458.0      // m/s
)

var (
	// ErrUndefined indicates the acceleration energy is needed but unset.
	ErrUndefined = errors.New("energy: not defined")

	// ErrInconsistent indicates two objects carry different energies.
	ErrInconsistent = errors.New("energy: inconsistent energies")
)

// Wavelength returns the relativistic electron wavelength in Å for an
// acceleration energy in eV.
func Wavelength(ev float64) float64 {
	m0c2 := ElectronMass * SpeedOfLight * SpeedOfLight / ElementaryCharge
	return Planck * SpeedOfLight / math.Sqrt(ev*(2*m0c2+ev)) / ElementaryCharge * 1e10
}

// RelativisticMass returns the electron mass in kg at the given energy in eV.
func RelativisticMass(ev float64) float64 {
	return ElectronMass + ElementaryCharge*ev/(SpeedOfLight*SpeedOfLight)
}

// Sigma returns the interaction parameter in rad/(V Å).
func Sigma(ev float64) float64 {
	lambda := Wavelength(ev) * 1e-10
	return 2 * math.Pi * RelativisticMass(ev) * ElementaryCharge * lambda / (Planck * Planck) * 1e-10
}

// Accelerator holds an optional acceleration energy.
type Accelerator struct {
	energy  float64
	defined bool
}

// New returns an accelerator at the given energy in eV. Non-positive values
// leave it undefined.
func New(ev float64) *Accelerator {
	if ev <= 0 {
		return &Accelerator{}
	}
	return &Accelerator{energy: ev, defined: true}
}

func (a *Accelerator) Energy() (float64, bool) { return a.energy, a.defined }
func (a *Accelerator) Defined() bool           { return a.defined }

func (a *Accelerator) SetEnergy(ev float64) cache.Change {
	old, wasDefined := a.energy, a.defined
	if ev <= 0 {
		a.energy, a.defined = 0, false
	} else {
		a.energy, a.defined = ev, true
	}
	return cache.Change{Property: Property, Changed: old != a.energy || wasDefined != a.defined}
}

func (a *Accelerator) CheckDefined() error {
	if !a.defined {
		return ErrUndefined
	}
	return nil
}

func (a *Accelerator) Wavelength() (float64, error) {
	if err := a.CheckDefined(); err != nil {
		return 0, err
	}
	return Wavelength(a.energy), nil
}

func (a *Accelerator) Sigma() (float64, error) {
	if err := a.CheckDefined(); err != nil {
		return 0, err
	}
	return Sigma(a.energy), nil
}

// CheckMatch fails when both accelerators are defined with different energies.
func (a *Accelerator) CheckMatch(other *Accelerator) error {
	if a.defined && other.defined && a.energy != other.energy {
		return fmt.Errorf("%w: %g eV != %g eV", ErrInconsistent, a.energy, other.energy)
	}
	return nil
}

// Match copies the energy to whichever side lacks it.
func (a *Accelerator) Match(other *Accelerator) (mine, theirs cache.Change, err error) {
	mine, theirs = cache.Unchanged(Property), cache.Unchanged(Property)
	if err := a.CheckMatch(other); err != nil {
		return mine, theirs, err
	}
	switch {
	case !a.defined && !other.defined:
		return mine, theirs, ErrUndefined
	case !a.defined:
		mine = a.SetEnergy(other.energy)
	case !other.defined:
		theirs = other.SetEnergy(a.energy)
	}
	return mine, theirs, nil
}

func (a *Accelerator) Copy() *Accelerator {
	c := *a
	return &c
}
