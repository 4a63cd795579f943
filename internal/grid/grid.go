package grid

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/stemsim/internal/cache"
)

// Property names carried by change events.
const (
	Extent   = "extent"
	Gpts     = "gpts"
	Sampling = "sampling"
)

// ratios this close to an integer are not rounded up by ceil
const gptsTolerance = 1e-9

type Config struct {
	Extent   []float64
	Gpts     []int
	Sampling []float64

	// Dimensions defaults to 2.
	Dimensions int
	// Endpoint includes the last grid point; periodic grids leave it false.
	Endpoint bool

	LockExtent   bool
	LockGpts     bool
	LockSampling bool
}

// Grid keeps extent, gpts and sampling mutually consistent.
type Grid struct {
	dims     int
	endpoint bool
	extent   *Property[float64]
	gpts     *Property[int]
	sampling *Property[float64]
}

func New(cfg Config) (*Grid, error) {
	dims := cfg.Dimensions
	if dims == 0 {
		dims = 2
	}

	extent, err := NewProperty(dims, cfg.Extent, cfg.LockExtent)
	if err != nil {
		return nil, fmt.Errorf("extent: %w", err)
	}
	gpts, err := NewProperty(dims, cfg.Gpts, cfg.LockGpts)
	if err != nil {
		return nil, fmt.Errorf("gpts: %w", err)
	}
	for _, n := range gpts.value {
		if n <= 0 {
			return nil, fmt.Errorf("gpts must be positive, got %v", gpts.value)
		}
	}
	sampling, err := NewProperty(dims, cfg.Sampling, cfg.LockSampling)
	if err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}

	g := &Grid{
		dims:     dims,
		endpoint: cfg.Endpoint,
		extent:   extent,
		gpts:     gpts,
		sampling: sampling,
	}

	if !extent.Defined() && gpts.Defined() && sampling.Defined() && !extent.locked {
		extent.put(g.adjustedExtent(gpts.value, sampling.value))
	}
	if !gpts.Defined() && extent.Defined() && sampling.Defined() && !gpts.locked {
		gpts.put(g.adjustedGpts(extent.value, sampling.value))
	}
	if !sampling.Defined() && extent.Defined() && gpts.Defined() && !sampling.locked {
		sampling.put(g.adjustedSampling(extent.value, gpts.value))
	}
	if (cfg.Extent != nil || cfg.Gpts != nil) && extent.Defined() && gpts.Defined() && !sampling.locked {
		sampling.put(g.adjustedSampling(extent.value, gpts.value))
	}

	return g, nil
}

func (g *Grid) Dimensions() int { return g.dims }
func (g *Grid) Endpoint() bool  { return g.endpoint }

func (g *Grid) adjustedExtent(gpts []int, sampling []float64) []float64 {
	out := make([]float64, len(gpts))
	for i := range gpts {
		n := gpts[i]
		if g.endpoint {
			n--
		}
		out[i] = float64(n) * sampling[i]
	}
	return out
}

func (g *Grid) adjustedGpts(extent, sampling []float64) []int {
	out := make([]int, len(extent))
	for i := range extent {
		r := extent[i] / sampling[i]
		n := int(math.Ceil(r))
		if near := math.Round(r); math.Abs(r-near) <= gptsTolerance*math.Max(1, math.Abs(r)) {
			n = int(near)
		}
		if g.endpoint {
			n++
		}
		out[i] = n
	}
	return out
}

func (g *Grid) adjustedSampling(extent []float64, gpts []int) []float64 {
	out := make([]float64, len(extent))
	for i := range extent {
		n := gpts[i]
		if g.endpoint {
			n--
		}
		out[i] = extent[i] / float64(n)
	}
	return out
}

// Extent returns the extent in Å, or nil when unset. An unlocked extent with
// locked gpts and sampling is derived from them.
func (g *Grid) Extent() []float64 {
	if !g.extent.locked && g.gpts.locked && g.sampling.locked {
		return g.adjustedExtent(g.gpts.value, g.sampling.value)
	}
	return g.extent.Value()
}

func (g *Grid) Gpts() []int {
	if !g.gpts.locked && g.extent.locked && g.sampling.locked {
		return g.adjustedGpts(g.extent.value, g.sampling.value)
	}
	return g.gpts.Value()
}

// Sampling returns the sampling in Å per grid point.
func (g *Grid) Sampling() []float64 {
	if !g.sampling.locked && g.extent.locked && g.gpts.locked {
		return g.adjustedSampling(g.extent.value, g.gpts.value)
	}
	return g.sampling.Value()
}

func (g *Grid) Locked(property string) bool {
	switch property {
	case Extent:
		return g.extent.locked
	case Gpts:
		return g.gpts.locked
	case Sampling:
		return g.sampling.locked
	}
	return false
}

type snapshot struct {
	extent   []float64
	gpts     []int
	sampling []float64
}

func (g *Grid) snapshot() snapshot {
	return snapshot{extent: g.Extent(), gpts: g.Gpts(), sampling: g.Sampling()}
}

// diff lists every property, the written one first, with whether it changed.
func (g *Grid) diff(before snapshot, written string) []cache.Change {
	after := g.snapshot()
	changed := map[string]bool{
		Extent:   !slices.Equal(before.extent, after.extent),
		Gpts:     !slices.Equal(before.gpts, after.gpts),
		Sampling: !slices.Equal(before.sampling, after.sampling),
	}
	out := []cache.Change{{Property: written, Changed: changed[written]}}
	for _, name := range []string{Extent, Gpts, Sampling} {
		if name != written && changed[name] {
			out = append(out, cache.Changed(name))
		}
	}
	return out
}

// SetExtent sets the extent and recomputes sampling (or gpts when sampling
// is locked). The returned changes cover every property that moved.
func (g *Grid) SetExtent(value []float64) ([]cache.Change, error) {
	if g.gpts.locked && g.sampling.locked {
		return nil, ErrOverdetermined
	}
	if g.extent.locked {
		return nil, fmt.Errorf("extent: %w", ErrLocked)
	}
	v, err := g.extent.validate(value)
	if err != nil {
		return nil, fmt.Errorf("extent: %w", err)
	}

	before := g.snapshot()
	switch {
	case v == nil:
	case !g.sampling.locked && g.gpts.Defined():
		g.sampling.put(g.adjustedSampling(v, g.gpts.value))
	case !g.gpts.locked && g.sampling.Defined():
		g.gpts.put(g.adjustedGpts(v, g.sampling.value))
		if !g.sampling.locked {
			g.sampling.put(g.adjustedSampling(v, g.gpts.value))
		}
	}
	g.extent.put(v)
	return g.diff(before, Extent), nil
}

func (g *Grid) SetGpts(value []int) ([]cache.Change, error) {
	if g.extent.locked && g.sampling.locked {
		return nil, ErrOverdetermined
	}
	if g.gpts.locked {
		return nil, fmt.Errorf("gpts: %w", ErrLocked)
	}
	v, err := g.gpts.validate(value)
	if err != nil {
		return nil, fmt.Errorf("gpts: %w", err)
	}
	for _, n := range v {
		if n <= 0 {
			return nil, fmt.Errorf("gpts must be positive, got %v", v)
		}
	}

	before := g.snapshot()
	switch {
	case v == nil:
	case !g.sampling.locked && g.extent.Defined():
		g.sampling.put(g.adjustedSampling(g.extent.value, v))
	case !g.extent.locked && g.sampling.Defined():
		g.extent.put(g.adjustedExtent(v, g.sampling.value))
	}
	g.gpts.put(v)
	return g.diff(before, Gpts), nil
}

// SetSampling sets the sampling. When gpts is free it is recomputed and the
// sampling snapped so that extent stays fixed.
func (g *Grid) SetSampling(value []float64) ([]cache.Change, error) {
	if g.extent.locked && g.gpts.locked {
		return nil, ErrOverdetermined
	}
	if g.sampling.locked {
		return nil, fmt.Errorf("sampling: %w", ErrLocked)
	}
	v, err := g.sampling.validate(value)
	if err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}

	before := g.snapshot()
	switch {
	case v == nil:
	case !g.gpts.locked && g.extent.Defined():
		g.gpts.put(g.adjustedGpts(g.extent.value, v))
		v = g.adjustedSampling(g.extent.value, g.gpts.value)
	case !g.extent.locked && g.gpts.Defined():
		g.extent.put(g.adjustedExtent(g.gpts.value, v))
	}
	g.sampling.put(v)
	return g.diff(before, Sampling), nil
}

// CheckDefined fails unless extent and gpts are both known.
func (g *Grid) CheckDefined() error {
	if g.Extent() == nil {
		return fmt.Errorf("%w: extent", ErrUndefined)
	}
	if g.Gpts() == nil {
		return fmt.Errorf("%w: gpts", ErrUndefined)
	}
	return nil
}

// CheckCanMatch fails when both grids define extent or gpts and the values
// differ. The comparison is exact.
func (g *Grid) CheckCanMatch(other *Grid) error {
	a, b := g.Extent(), other.Extent()
	if a != nil && b != nil && !slices.Equal(a, b) {
		return fmt.Errorf("%w: extent %v != %v", ErrInconsistent, a, b)
	}
	ga, gb := g.Gpts(), other.Gpts()
	if ga != nil && gb != nil && !slices.Equal(ga, gb) {
		return fmt.Errorf("%w: gpts %v != %v", ErrInconsistent, ga, gb)
	}
	return nil
}

// Match copies extent and gpts between the two grids, whichever side
// defines them. It returns the changes applied to g and to other.
func (g *Grid) Match(other *Grid) (mine, theirs []cache.Change, err error) {
	if err := g.CheckCanMatch(other); err != nil {
		return nil, nil, err
	}

	switch a, b := g.Extent(), other.Extent(); {
	case a == nil && b == nil:
		return nil, nil, fmt.Errorf("%w: extent cannot be inferred", ErrUndefined)
	case a == nil:
		ch, err := g.SetExtent(b)
		if err != nil {
			return nil, nil, err
		}
		mine = append(mine, ch...)
	case b == nil:
		ch, err := other.SetExtent(a)
		if err != nil {
			return nil, nil, err
		}
		theirs = append(theirs, ch...)
	}

	switch a, b := g.Gpts(), other.Gpts(); {
	case a == nil && b == nil:
		return mine, theirs, fmt.Errorf("%w: gpts cannot be inferred", ErrUndefined)
	case a == nil:
		ch, err := g.SetGpts(b)
		if err != nil {
			return mine, theirs, err
		}
		mine = append(mine, ch...)
	case b == nil:
		ch, err := other.SetGpts(a)
		if err != nil {
			return mine, theirs, err
		}
		theirs = append(theirs, ch...)
	}

	return mine, theirs, nil
}

func (g *Grid) Equal(other *Grid) bool {
	return g.dims == other.dims &&
		g.endpoint == other.endpoint &&
		slices.Equal(g.Extent(), other.Extent()) &&
		slices.Equal(g.Gpts(), other.Gpts()) &&
		slices.Equal(g.Sampling(), other.Sampling())
}

func (g *Grid) Copy() *Grid {
	return &Grid{
		dims:     g.dims,
		endpoint: g.endpoint,
		extent:   g.extent.Copy(),
		gpts:     g.gpts.Copy(),
		sampling: g.sampling.Copy(),
	}
}

func (g *Grid) String() string {
	return fmt.Sprintf("Grid(extent=%v, gpts=%v, sampling=%v)", g.Extent(), g.Gpts(), g.Sampling())
}
