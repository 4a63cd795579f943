// Package transfer implements the contrast transfer function of the
// objective lens: defocus, spherical aberration, two-fold astigmatism and a
// hard objective aperture.
//
// Kernels evaluated on a Fourier grid are cached per (gpts, sampling,
// wavelength) and dropped whenever a setter reports a change.
package transfer
