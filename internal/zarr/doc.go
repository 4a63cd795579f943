// Package zarr reads and writes the subset of the Zarr v2 directory format
// the simulation persists: groups with JSON attributes and little-endian
// float64/complex128 arrays chunked per leading index, compressed with zstd.
package zarr
