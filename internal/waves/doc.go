// Package waves holds batches of electron wave functions and the sources
// that build them.
//
//   - [Waves]: a complex array whose trailing two axes lie on a real-space
//     grid, with energy, tilt, antialias aperture and leading axis metadata
//   - [PlaneWave]: uniform illumination
//   - [Probe]: a converged probe shaped by a [transfer.CTF], with scanning
//     over a [scan.Scan] and reduction by [detect.Detector] values
//
// Waves are values. Transforms return new waves unless an in-place flag is
// passed, and Multislice stacks frozen phonon configurations along a new
// ensemble axis.
package waves
