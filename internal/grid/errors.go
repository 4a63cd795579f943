package grid

import "errors"

var (
	// ErrUndefined indicates a grid property needed for an operation is unset.
	ErrUndefined = errors.New("grid: property not defined")

	// ErrInconsistent indicates two grids disagree on extent or gpts.
	ErrInconsistent = errors.New("grid: inconsistent grids")

	// ErrLocked indicates a write to a locked grid property.
	ErrLocked = errors.New("grid: property locked")

	// ErrOverdetermined indicates a write that would contradict two locked properties.
	ErrOverdetermined = errors.New("grid: over-determined (two properties locked)")

	// ErrDimension indicates a vector whose length differs from the grid dimensionality.
	ErrDimension = errors.New("grid: dimension mismatch")
)
