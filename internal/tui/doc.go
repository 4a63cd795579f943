// Package tui renders run progress in the terminal: a bubbletea view with
// live metrics for interactive use and a single redrawn line otherwise.
package tui
