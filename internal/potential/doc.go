// Package potential supplies projected-potential slices to the multislice
// engine.
//
//   - [Array]: slices held in memory, optionally tied to an energy
//   - [Zero]: all-zero slices, free-space propagation only
//   - [Lattice]: a square lattice of Gaussian columns with seeded
//     frozen-phonon displacements
//
// Atomic structure loading and parametrized scattering factors are out of
// scope; [Lattice] stands in for them.
package potential
