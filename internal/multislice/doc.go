// Package multislice propagates electron waves through potential slices.
//
// Every slice is applied in Splits sub-steps. Each sub-step transmits the
// wave through exp(i sigma V / Splits) in real space and then propagates it
// by thickness / Splits with the Fresnel kernel in Fourier space:
//
//	P(k) = exp(-i pi lambda dz |k|^2) exp(-2 pi i dz (kx tan tx + ky tan ty))
//
// The kernel is zero outside the antialias aperture, so aliasing from the
// periodic boundary is suppressed at every slice.
//
//   - [Engine]: checks preconditions once, runs the slice loop, caches
//     propagators and pools scratch buffers
//   - [Observer]: per-slice hook for progress views and metrics
//   - [Ensemble]: independent runs, such as frozen phonons, in parallel
package multislice
