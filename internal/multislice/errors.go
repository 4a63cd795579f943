package multislice

import (
	"errors"
	"fmt"
)

var (
	// ErrGridMismatch indicates the wave and potential grids disagree in gpts
	// or extent.
	ErrGridMismatch = errors.New("multislice: wave and potential grids differ")

	// ErrEnergyMismatch indicates the potential was built for another energy.
	ErrEnergyMismatch = errors.New("multislice: wave and potential energies differ")

	// ErrSplits indicates a non-positive number of sub-steps per slice.
	ErrSplits = errors.New("multislice: splits must be at least 1")
)

// SliceError wraps a failure inside the slice loop with its slice index.
type SliceError struct {
	Index   int
	Wrapped error
}

func (e *SliceError) Error() string {
	return fmt.Sprintf("slice %d: %v", e.Index, e.Wrapped)
}

func (e *SliceError) Unwrap() error {
	return e.Wrapped
}
