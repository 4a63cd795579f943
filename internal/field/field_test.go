package field

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewRejectsBadShape(t *testing.T) {
	if _, err := NewComplex(4, 0); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
	if _, err := Wrap([]float64{1, 2, 3}, 2, 2); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
	a, _ := NewReal(5)
	if err := a.CheckPlanar(); !errors.Is(err, ErrShape) {
		t.Errorf("1D array passed CheckPlanar: %v", err)
	}
}

func TestPlanesAlias(t *testing.T) {
	a, err := NewReal(3, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if a.NumPlanes() != 3 {
		t.Fatalf("NumPlanes = %d", a.NumPlanes())
	}
	a.Rows(1)[1][0] = 7
	if a.Data[6] != 7 {
		t.Errorf("Rows does not alias data: %v", a.Data)
	}

	sub, err := a.Index(1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{2, 2}, sub.Shape); diff != "" {
		t.Errorf("Index shape (-want +got):\n%s", diff)
	}
	if _, err := a.Index(3); !errors.Is(err, ErrShape) {
		t.Errorf("out of range index: %v", err)
	}
}

func TestStack(t *testing.T) {
	a, _ := Wrap([]float64{1, 2, 3, 4}, 2, 2)
	b, _ := Wrap([]float64{5, 6, 7, 8}, 2, 2)
	s, err := Stack(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{2, 2, 2}, s.Shape); diff != "" {
		t.Errorf("shape (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 4, 5, 6, 7, 8}, s.Data); diff != "" {
		t.Errorf("data (-want +got):\n%s", diff)
	}

	c, _ := NewReal(3, 2)
	if _, err := Stack(a, c); !errors.Is(err, ErrShape) {
		t.Errorf("mismatched stack: %v", err)
	}
}

func TestCropFourier(t *testing.T) {
	// 1x4 spectrum in FFT order: frequencies 0, 1, -2, -1
	a, _ := Wrap([]float64{10, 11, 12, 13}, 1, 4)
	got, err := CropFourier(a, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	// 3 points keep frequencies 0, 1, -1
	if diff := cmp.Diff([]float64{10, 11, 13}, got.Data); diff != "" {
		t.Errorf("crop (-want +got):\n%s", diff)
	}

	if _, err := CropFourier(a, 1, 5); !errors.Is(err, ErrShape) {
		t.Errorf("growing crop: %v", err)
	}
}

func TestFFTShiftAndCropCenter(t *testing.T) {
	a, _ := Wrap([]float64{0, 1, 2, 3}, 1, 4)
	s := FFTShift(a)
	if diff := cmp.Diff([]float64{2, 3, 0, 1}, s.Data); diff != "" {
		t.Errorf("shift (-want +got):\n%s", diff)
	}

	b, _ := Wrap([]float64{
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
		12, 13, 14, 15,
	}, 4, 4)
	c, err := CropCenter(b, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{5, 6, 9, 10}, c.Data); diff != "" {
		t.Errorf("center (-want +got):\n%s", diff)
	}
}

func TestMulPlanes(t *testing.T) {
	a, _ := Wrap([]complex128{1, 1, 2, 2}, 2, 1, 2)
	if err := a.MulPlanes([]complex128{1i, 2}); err != nil {
		t.Fatal(err)
	}
	want := []complex128{1i, 2, 2i, 4}
	if diff := cmp.Diff(want, a.Data); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if err := a.MulPlanes([]complex128{1}); !errors.Is(err, ErrShape) {
		t.Errorf("wrong kernel size: %v", err)
	}
}
