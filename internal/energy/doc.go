// Package energy derives electron-optical constants from the acceleration
// energy.
//
//   - [Wavelength]: relativistic wavelength in Å
//   - [Sigma]: interaction parameter in rad/(V Å), the phase shift per unit
//     projected potential
//   - [Accelerator]: an optional energy owned by a wave function, CTF or
//     detector, with consistency checks between owners
//
// # Example
//
//	acc := energy.New(200e3)
//	lambda, _ := acc.Wavelength() // ~0.0251 Å
package energy
