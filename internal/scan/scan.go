package scan

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/grid"
)

var ErrEmpty = errors.New("scan: no positions")

// Scan is a set of probe positions in Å. Positions are returned in
// row-major order of Shape.
type Scan interface {
	Shape() []int
	Positions() ([][2]float64, error)
	Axes() []axes.Axis
}

// GridScan is a raster over the rectangle [Start, End].
type GridScan struct {
	Start [2]float64
	End   [2]float64
	grid  *grid.Grid
}

// NewGridScan takes either gpts or sampling; the other may be nil. With
// endpoint set the raster includes End.
func NewGridScan(start, end [2]float64, gpts []int, sampling []float64, endpoint bool) (*GridScan, error) {
	extent := []float64{end[0] - start[0], end[1] - start[1]}
	g, err := grid.New(grid.Config{Extent: extent, Gpts: gpts, Sampling: sampling, Endpoint: endpoint})
	if err != nil {
		return nil, err
	}
	if err := g.CheckDefined(); err != nil {
		return nil, err
	}
	return &GridScan{Start: start, End: end, grid: g}, nil
}

func (s *GridScan) Grid() *grid.Grid { return s.grid }
func (s *GridScan) Shape() []int     { return s.grid.Gpts() }

func (s *GridScan) Positions() ([][2]float64, error) {
	coords, err := s.grid.Linspace()
	if err != nil {
		return nil, err
	}
	out := make([][2]float64, 0, len(coords[0])*len(coords[1]))
	for _, x := range coords[0] {
		for _, y := range coords[1] {
			out = append(out, [2]float64{s.Start[0] + x, s.Start[1] + y})
		}
	}
	return out, nil
}

func (s *GridScan) Axes() []axes.Axis {
	d := s.grid.Sampling()
	return []axes.Axis{
		axes.ScanAxis("x", d[0], s.Start[0], s.grid.Endpoint()),
		axes.ScanAxis("y", d[1], s.Start[1], s.grid.Endpoint()),
	}
}

// LineScan samples positions along the segment from Start to End.
type LineScan struct {
	Start [2]float64
	End   [2]float64
	grid  *grid.Grid
}

func NewLineScan(start, end [2]float64, gpts int, sampling float64, endpoint bool) (*LineScan, error) {
	cfg := grid.Config{
		Extent:     []float64{math.Hypot(end[0]-start[0], end[1]-start[1])},
		Dimensions: 1,
		Endpoint:   endpoint,
	}
	if gpts > 0 {
		cfg.Gpts = []int{gpts}
	}
	if sampling > 0 {
		cfg.Sampling = []float64{sampling}
	}
	g, err := grid.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := g.CheckDefined(); err != nil {
		return nil, err
	}
	return &LineScan{Start: start, End: end, grid: g}, nil
}

func (s *LineScan) Shape() []int { return s.grid.Gpts() }

func (s *LineScan) Positions() ([][2]float64, error) {
	coords, err := s.grid.Linspace()
	if err != nil {
		return nil, err
	}
	length := s.grid.Extent()[0]
	var ux, uy float64
	if length > 0 {
		ux, uy = (s.End[0]-s.Start[0])/length, (s.End[1]-s.Start[1])/length
	}
	out := make([][2]float64, len(coords[0]))
	for i, d := range coords[0] {
		out[i] = [2]float64{s.Start[0] + d*ux, s.Start[1] + d*uy}
	}
	return out, nil
}

func (s *LineScan) Axes() []axes.Axis {
	return []axes.Axis{axes.ScanAxis("r", s.grid.Sampling()[0], 0, s.grid.Endpoint())}
}

// CustomScan is an explicit list of positions.
type CustomScan struct {
	positions [][2]float64
}

func NewCustomScan(positions [][2]float64) (*CustomScan, error) {
	if len(positions) == 0 {
		return nil, ErrEmpty
	}
	return &CustomScan{positions: append([][2]float64(nil), positions...)}, nil
}

func (s *CustomScan) Shape() []int { return []int{len(s.positions)} }

func (s *CustomScan) Positions() ([][2]float64, error) {
	return append([][2]float64(nil), s.positions...), nil
}

func (s *CustomScan) Axes() []axes.Axis { return []axes.Axis{axes.ProbePositions()} }

// Size is the number of positions in a scan.
func Size(s Scan) int {
	n := 1
	for _, d := range s.Shape() {
		n *= d
	}
	return n
}

func String(s Scan) string {
	return fmt.Sprintf("%T%v", s, s.Shape())
}
