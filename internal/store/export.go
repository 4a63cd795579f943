package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/san-kum/stemsim/internal/axes"
	"github.com/san-kum/stemsim/internal/measure"
)

// Run identifies the run an export came from.
type Run struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Source  string             `json:"source"`
	Energy  float64            `json:"energy"`
	Metrics map[string]float64 `json:"metrics"`
}

type MeasurementData struct {
	Name  string      `json:"name"`
	Units string      `json:"units"`
	Shape []int       `json:"shape"`
	Axes  []axes.Axis `json:"axes"`
	Data  []float64   `json:"data"`
}

type ExportData struct {
	Run
	Measurements []MeasurementData `json:"measurements"`
}

func exportData(run Run, ms []*measure.Measurement) ExportData {
	data := ExportData{Run: run, Measurements: make([]MeasurementData, len(ms))}
	for i, m := range ms {
		data.Measurements[i] = MeasurementData{
			Name:  m.Name,
			Units: m.Units,
			Shape: m.Shape(),
			Axes:  m.Axes,
			Data:  m.Array.Data,
		}
	}
	return data
}

func WriteJSON(w io.Writer, run Run, ms []*measure.Measurement) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exportData(run, ms))
}

// ExportJSON writes the run to path, or to stdout when path is "-".
func ExportJSON(path string, run Run, ms []*measure.Measurement) error {
	if path == "-" {
		return WriteJSON(os.Stdout, run, ms)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, run, ms)
}

// WriteCSV writes one row per element: the calibrated coordinate along
// every axis, then the value.
func WriteCSV(w io.Writer, m *measure.Measurement) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(m.Axes)+1)
	for i, a := range m.Axes {
		label := a.Label
		if label == "" {
			label = fmt.Sprintf("axis%d", i)
		}
		if a.Units != "" {
			label += " [" + a.Units + "]"
		}
		header = append(header, label)
	}
	header = append(header, m.Name)
	if err := cw.Write(header); err != nil {
		return err
	}

	shape := m.Shape()
	idx := make([]int, len(shape))
	row := make([]string, len(shape)+1)
	for _, v := range m.Array.Data {
		for k, a := range m.Axes {
			row[k] = strconv.FormatFloat(coordinate(a, idx[k]), 'g', 10, 64)
		}
		row[len(shape)] = strconv.FormatFloat(v, 'g', -1, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
		for k := len(idx) - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < shape[k] {
				break
			}
			idx[k] = 0
		}
	}
	cw.Flush()
	return cw.Error()
}

// coordinate is the calibrated position of index i, or i itself for axes
// without a sampling.
func coordinate(a axes.Axis, i int) float64 {
	if a.Sampling == 0 {
		return float64(i)
	}
	return a.Offset + float64(i)*a.Sampling
}

// ExportCSV writes m to path, or to stdout when path is "-".
func ExportCSV(path string, m *measure.Measurement) error {
	if path == "-" {
		return WriteCSV(os.Stdout, m)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteCSV(file, m)
}
