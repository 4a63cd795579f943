// Package storage keeps the catalog of finished runs.
//
// Run metadata and measurement descriptions live in a sqlite database
// (catalog.db). Each run directory, named by a random UUID, holds the
// config.yaml the run started from and a measurements.zarr group with one
// array per measurement.
package storage
