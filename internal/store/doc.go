// Package store exports measurements as JSON documents or CSV tables.
package store
