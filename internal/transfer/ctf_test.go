package transfer

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/san-kum/stemsim/internal/energy"
)

func TestChiDefocus(t *testing.T) {
	c := New(Config{Energy: 100e3, Defocus: 50})
	lambda := energy.Wavelength(100e3)
	alpha := 0.01
	want := 2 * math.Pi / lambda * 0.5 * alpha * alpha * -50
	if got := c.Chi(alpha, 0, lambda); math.Abs(got-want) > 1e-9 {
		t.Errorf("Chi = %v, want %v", got, want)
	}
}

func TestAperture(t *testing.T) {
	c := New(Config{Energy: 100e3, SemiangleCutoff: 20})
	lambda := energy.Wavelength(100e3)
	if v := c.Evaluate(0.019, 0, lambda); math.Abs(cmplx.Abs(v)-1) > 1e-12 {
		t.Errorf("inside aperture |ctf| = %v", cmplx.Abs(v))
	}
	if v := c.Evaluate(0.021, 0, lambda); v != 0 {
		t.Errorf("outside aperture ctf = %v", v)
	}
	if !New(Config{}).Aperture(1) {
		t.Error("zero cutoff should not clip")
	}
}

func TestEvaluateOnGridCache(t *testing.T) {
	c := New(Config{Energy: 200e3, SemiangleCutoff: 30})
	gpts, sampling := [2]int{16, 16}, [2]float64{0.1, 0.1}

	first, err := c.EvaluateOnGrid(gpts, sampling)
	if err != nil {
		t.Fatal(err)
	}
	if first[0] != 1 {
		t.Errorf("zero frequency = %v, want 1", first[0])
	}
	if c.kernels.Len() != 1 {
		t.Fatalf("cache len = %d", c.kernels.Len())
	}

	if ch := c.SetDefocus(0); ch.Changed {
		t.Error("unchanged defocus reported a change")
	}
	if c.kernels.Len() != 1 {
		t.Error("unchanged parameter cleared the cache")
	}

	if ch := c.SetDefocus(100); !ch.Changed {
		t.Error("defocus change not reported")
	}
	if c.kernels.Len() != 0 {
		t.Error("defocus change did not clear the cache")
	}

	c.EvaluateOnGrid(gpts, sampling)
	c.SetEnergy(300e3)
	if c.kernels.Len() != 0 {
		t.Error("energy change did not clear the cache")
	}
}

func TestEvaluateNeedsEnergy(t *testing.T) {
	c := New(Config{})
	if _, err := c.EvaluateOnGrid([2]int{4, 4}, [2]float64{1, 1}); !errors.Is(err, energy.ErrUndefined) {
		t.Errorf("expected energy.ErrUndefined, got %v", err)
	}
}
