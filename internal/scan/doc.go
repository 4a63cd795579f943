// Package scan defines where a probe is placed.
//
//   - [GridScan]: a 2D raster, optionally including its end point
//   - [LineScan]: evenly spaced positions along a segment
//   - [CustomScan]: an explicit position list
package scan
