// Package experiment turns a [config.Config] into a simulation run.
//
// The [Registry] maps config kinds to potentials, detectors and scans. An
// [Experiment] builds them in Setup, attaches the default metrics and any
// extra observers, and runs either a plane wave through the potential or a
// probe over the scan.
package experiment
