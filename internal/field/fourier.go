package field

import "fmt"

// fourierIndex maps index j of an m-point spectrum to the matching index of
// an n-point spectrum, both in unshifted FFT order.
func fourierIndex(j, m, n int) int {
	f := j
	if j >= (m+1)/2 {
		f = j - m
	}
	return ((f % n) + n) % n
}

// CropFourier keeps the m0 x m1 lowest frequencies of every plane. Planes
// are in unshifted FFT order on input and output.
func CropFourier[T Element](a *Array[T], m0, m1 int) (*Array[T], error) {
	if err := a.CheckPlanar(); err != nil {
		return nil, err
	}
	n0, n1 := a.PlaneShape()
	if m0 <= 0 || m1 <= 0 || m0 > n0 || m1 > n1 {
		return nil, fmt.Errorf("%w: cannot crop %dx%d to %dx%d", ErrShape, n0, n1, m0, m1)
	}

	out, err := New[T](append(a.ExtraShape(), m0, m1)...)
	if err != nil {
		return nil, err
	}
	src0 := make([]int, m0)
	for j := range src0 {
		src0[j] = fourierIndex(j, m0, n0)
	}
	src1 := make([]int, m1)
	for j := range src1 {
		src1[j] = fourierIndex(j, m1, n1)
	}

	for p := range a.NumPlanes() {
		in, dst := a.Plane(p), out.Plane(p)
		for r := range m0 {
			for c := range m1 {
				dst[r*m1+c] = in[src0[r]*n1+src1[c]]
			}
		}
	}
	return out, nil
}

// FFTShift moves the zero frequency of every plane to the center.
func FFTShift[T Element](a *Array[T]) *Array[T] {
	out := a.Clone()
	n0, n1 := a.PlaneShape()
	s0, s1 := n0/2, n1/2
	for p := range a.NumPlanes() {
		in, dst := a.Plane(p), out.Plane(p)
		for r := range n0 {
			rr := (r + s0) % n0
			for c := range n1 {
				dst[rr*n1+(c+s1)%n1] = in[r*n1+c]
			}
		}
	}
	return out
}

// CropCenter keeps the central m0 x m1 window of every plane.
func CropCenter[T Element](a *Array[T], m0, m1 int) (*Array[T], error) {
	n0, n1 := a.PlaneShape()
	if m0 <= 0 || m1 <= 0 || m0 > n0 || m1 > n1 {
		return nil, fmt.Errorf("%w: cannot crop %dx%d to %dx%d", ErrShape, n0, n1, m0, m1)
	}
	out, err := New[T](append(a.ExtraShape(), m0, m1)...)
	if err != nil {
		return nil, err
	}
	o0, o1 := n0/2-m0/2, n1/2-m1/2
	for p := range a.NumPlanes() {
		in, dst := a.Plane(p), out.Plane(p)
		for r := range m0 {
			copy(dst[r*m1:(r+1)*m1], in[(r+o0)*n1+o1:(r+o0)*n1+o1+m1])
		}
	}
	return out, nil
}
