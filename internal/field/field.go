package field

import (
	"errors"
	"fmt"
	"slices"
)

// ErrShape is returned for arrays whose shape does not fit the operation.
var ErrShape = errors.New("field: invalid shape")

type Element interface {
	~float64 | ~complex128
}

// Array is a dense row-major array. The last two axes form the 2D planes
// that FFTs and kernels act on; any leading axes are batch axes.
type Array[T Element] struct {
	Shape []int
	Data  []T
}

type (
	Complex = Array[complex128]
	Real    = Array[float64]
)

func size(shape []int) (int, error) {
	n := 1
	for _, s := range shape {
		if s <= 0 {
			return 0, fmt.Errorf("%w: %v", ErrShape, shape)
		}
		n *= s
	}
	return n, nil
}

// New allocates a zeroed array.
func New[T Element](shape ...int) (*Array[T], error) {
	n, err := size(shape)
	if err != nil {
		return nil, err
	}
	return &Array[T]{Shape: slices.Clone(shape), Data: make([]T, n)}, nil
}

// Wrap adopts data without copying.
func Wrap[T Element](data []T, shape ...int) (*Array[T], error) {
	n, err := size(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), shape)
	}
	return &Array[T]{Shape: slices.Clone(shape), Data: data}, nil
}

func NewComplex(shape ...int) (*Complex, error) { return New[complex128](shape...) }
func NewReal(shape ...int) (*Real, error)       { return New[float64](shape...) }

func (a *Array[T]) NDim() int { return len(a.Shape) }
func (a *Array[T]) Size() int { return len(a.Data) }

// CheckPlanar fails unless the array has at least two axes.
func (a *Array[T]) CheckPlanar() error {
	if len(a.Shape) < 2 {
		return fmt.Errorf("%w: need at least 2 dimensions, got %v", ErrShape, a.Shape)
	}
	return nil
}

// PlaneShape returns the trailing two axes.
func (a *Array[T]) PlaneShape() (int, int) {
	n := len(a.Shape)
	return a.Shape[n-2], a.Shape[n-1]
}

func (a *Array[T]) ExtraShape() []int {
	return slices.Clone(a.Shape[:len(a.Shape)-2])
}

func (a *Array[T]) NumPlanes() int {
	n0, n1 := a.PlaneShape()
	return len(a.Data) / (n0 * n1)
}

// Plane returns the i-th 2D plane as a flat slice aliasing the data.
func (a *Array[T]) Plane(i int) []T {
	n0, n1 := a.PlaneShape()
	m := n0 * n1
	return a.Data[i*m : (i+1)*m : (i+1)*m]
}

// Rows returns the i-th plane as row slices aliasing the data.
func (a *Array[T]) Rows(i int) [][]T {
	n0, n1 := a.PlaneShape()
	p := a.Plane(i)
	rows := make([][]T, n0)
	for r := range rows {
		rows[r] = p[r*n1 : (r+1)*n1 : (r+1)*n1]
	}
	return rows
}

func (a *Array[T]) Clone() *Array[T] {
	return &Array[T]{Shape: slices.Clone(a.Shape), Data: slices.Clone(a.Data)}
}

// Index returns the sub-array at leading index i. The data is shared.
func (a *Array[T]) Index(i int) (*Array[T], error) {
	if len(a.Shape) == 0 || i < 0 || i >= a.Shape[0] {
		return nil, fmt.Errorf("%w: index %d out of range for %v", ErrShape, i, a.Shape)
	}
	m := len(a.Data) / a.Shape[0]
	return &Array[T]{Shape: slices.Clone(a.Shape[1:]), Data: a.Data[i*m : (i+1)*m : (i+1)*m]}, nil
}

// Reshape returns a view with a new shape of the same size.
func (a *Array[T]) Reshape(shape ...int) (*Array[T], error) {
	return Wrap(a.Data, shape...)
}

// Stack joins equally shaped arrays along a new leading axis.
func Stack[T Element](arrays ...*Array[T]) (*Array[T], error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", ErrShape)
	}
	first := arrays[0]
	data := make([]T, 0, len(first.Data)*len(arrays))
	for _, a := range arrays {
		if !slices.Equal(a.Shape, first.Shape) {
			return nil, fmt.Errorf("%w: cannot stack %v with %v", ErrShape, a.Shape, first.Shape)
		}
		data = append(data, a.Data...)
	}
	return &Array[T]{Shape: append([]int{len(arrays)}, first.Shape...), Data: data}, nil
}

// MulPlanes multiplies every plane element-wise by kernel, which must have
// the plane size.
func (a *Array[T]) MulPlanes(kernel []T) error {
	n0, n1 := a.PlaneShape()
	if len(kernel) != n0*n1 {
		return fmt.Errorf("%w: kernel of %d values for plane %dx%d", ErrShape, len(kernel), n0, n1)
	}
	for p := range a.NumPlanes() {
		plane := a.Plane(p)
		for i := range plane {
			plane[i] *= kernel[i]
		}
	}
	return nil
}

func (a *Array[T]) Scale(f T) {
	for i := range a.Data {
		a.Data[i] *= f
	}
}
