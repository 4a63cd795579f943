// Package axes carries the calibration of every array axis: what it means
// (real space, reciprocal space, scan, ensemble), its label and its sampling.
//
// Waves and measurements keep one [Axis] per array dimension. Extra leading
// axes, such as the frozen-phonon ensemble created by multislice, are
// prepended with [FrozenPhonons] and found again with [Find].
package axes
