package waves

import (
	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/zarr"
)

const arrayName = "array"

type attrs struct {
	Energy    float64     `json:"energy"`
	Extent    []float64   `json:"extent"`
	Tilt      [2]float64  `json:"tilt"`
	Antialias float64     `json:"antialias"`
	Axes      []axes.Axis `json:"extra_axes,omitempty"`
}

// ToZarr writes the waves as a zarr group at path with the array under
// "array" and the metadata in the group attributes.
func (w *Waves) ToZarr(path string, overwrite bool) error {
	if err := w.grid.CheckDefined(); err != nil {
		return err
	}
	a := attrs{
		Energy:    w.Energy(),
		Extent:    w.grid.Extent(),
		Tilt:      w.tilt,
		Antialias: w.antialias,
		Axes:      w.extra,
	}
	if err := zarr.CreateGroup(path, a, overwrite); err != nil {
		return err
	}
	return zarr.WriteArray(path, arrayName, w.array, zarr.DefaultLevel)
}

// FromZarr reads waves written by ToZarr.
func FromZarr(path string) (*Waves, error) {
	var a attrs
	if err := zarr.ReadAttrs(path, &a); err != nil {
		return nil, err
	}
	array, err := zarr.ReadArray[complex128](path, arrayName)
	if err != nil {
		return nil, err
	}
	return New(array, Config{
		Energy:    a.Energy,
		Extent:    a.Extent,
		Tilt:      a.Tilt,
		Antialias: a.Antialias,
		ExtraAxes: a.Axes,
	})
}
