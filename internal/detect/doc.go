// Package detect reduces exit waves to measurements.
//
// Detectors read the far-field intensity |FFT(psi)|^2 and bin it by
// scattering angle |k| lambda and azimuth atan2(ky, kx):
//
//   - [AnnularDetector]: fraction of intensity inside one annulus
//   - [FlexibleAnnularDetector]: fractions per ring of fixed width, to be
//     integrated into any annulus later with Integrate
//   - [SegmentedDetector]: fractions per radial and azimuthal segment
//   - [PixelatedDetector]: the centered diffraction pattern itself
//
// Bin labels depend only on the grid and wavelength, so each detector caches
// them and reuses them for every probe position of a scan.
package detect
