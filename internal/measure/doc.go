// Package measure holds calibrated detector output.
//
//   - [Measurement]: any real array plus one axis per dimension
//   - [Images]: real-space intensities
//   - [DiffractionPatterns]: far-field intensities in mrad
//
// Frozen-phonon stacks are reduced with [Measurement.MeanEnsemble].
package measure
