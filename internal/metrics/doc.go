// Package metrics reduces a multislice run to scalar diagnostics.
//
// Every [Metric] is a [multislice.Observer]:
//
//   - [Intensity]: mean total intensity per wave
//   - [IntensityDrift]: largest relative intensity change from the first slice
//   - [Stability]: fraction of slices that stay finite and bounded
//   - [PeakAmplitude]: mean of the largest amplitude per slice
//
// Metrics lock internally, so one instance can observe frozen phonon runs
// that execute in parallel.
package metrics
