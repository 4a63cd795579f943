package grid

import (
	"fmt"
	"slices"
)

type Number interface {
	~int | ~float64
}

// Property is a fixed-length vector describing one aspect of a grid. A nil
// value means unset. A locked property can be read but never written.
type Property[T Number] struct {
	dims   int
	value  []T
	locked bool
}

func NewProperty[T Number](dims int, value []T, locked bool) (*Property[T], error) {
	p := &Property[T]{dims: dims, locked: locked}
	v, err := p.validate(value)
	if err != nil {
		return nil, err
	}
	p.value = v
	return p, nil
}

// validate broadcasts a single value to every dimension.
func (p *Property[T]) validate(value []T) ([]T, error) {
	switch {
	case value == nil:
		return nil, nil
	case len(value) == 1 && p.dims > 1:
		v := make([]T, p.dims)
		for i := range v {
			v[i] = value[0]
		}
		return v, nil
	case len(value) != p.dims:
		return nil, fmt.Errorf("%w: length %d != %d", ErrDimension, len(value), p.dims)
	}
	return slices.Clone(value), nil
}

func (p *Property[T]) Value() []T    { return slices.Clone(p.value) }
func (p *Property[T]) Defined() bool { return p.value != nil }
func (p *Property[T]) Locked() bool  { return p.locked }
func (p *Property[T]) Dims() int     { return p.dims }

func (p *Property[T]) Set(value []T) error {
	if p.locked {
		return ErrLocked
	}
	v, err := p.validate(value)
	if err != nil {
		return err
	}
	p.value = v
	return nil
}

// put writes without the lock check; callers guard it.
func (p *Property[T]) put(value []T) {
	p.value = slices.Clone(value)
}

func (p *Property[T]) Copy() *Property[T] {
	return &Property[T]{dims: p.dims, value: slices.Clone(p.value), locked: p.locked}
}
