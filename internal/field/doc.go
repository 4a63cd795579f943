// Package field provides the dense arrays the simulation works on.
//
// An [Array] is row-major with the 2D planes on the last two axes. Leading
// axes batch planes together (frozen phonons, probe positions). [Complex]
// holds wave functions, [Real] holds potentials and intensities.
package field
