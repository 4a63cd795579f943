package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/stemsim/internal/energy"
	"github.com/san-kum/stemsim/internal/measure"
	"github.com/san-kum/stemsim/internal/storage"
	"github.com/san-kum/stemsim/internal/store"
	"github.com/san-kum/stemsim/internal/waves"
)

func openStore() (*storage.Store, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return nil, err
	}
	return st, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSOURCE\tTIME\tENERGY\tPHONONS\tELAPSED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f keV\t%d\t%s\n",
			run.ID,
			run.Name,
			run.Source,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Energy/1e3,
			run.FrozenPhonons,
			run.Elapsed.Round(time.Millisecond),
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	header(meta.Name, meta.Source)
	kv("run", meta.ID)
	kv("time", meta.Timestamp.Format("2006-01-02 15:04:05"))
	kv("energy", fmt.Sprintf("%.0f keV", meta.Energy/1e3))
	kv("splits", meta.Splits)
	kv("frozen phonons", meta.FrozenPhonons)
	kv("elapsed", meta.Elapsed.Round(time.Millisecond))
	printMetrics(meta.Metrics)

	for i := range meta.Measurements {
		m, err := st.LoadMeasurement(runID, i)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println(bold.Render(fmt.Sprintf("[%d] %s", i, m.Name)) + dim.Render(fmt.Sprintf("  %v %s", m.Shape(), m.Units)))
		fmt.Println(plotMeasurement(m, plotHeight))
	}
	return nil
}

// plotMeasurement draws the middle line of the last axis. A scalar is
// printed as is.
func plotMeasurement(m *measure.Measurement, height int) string {
	data := m.Array.Data
	shape := m.Shape()
	if len(shape) == 0 || len(data) < 2 {
		return fmt.Sprintf("  %.6g", m.Sum())
	}
	n := shape[len(shape)-1]
	row := (len(data) / n) / 2
	line := data[row*n : (row+1)*n]
	if n < 2 {
		return fmt.Sprintf("  %.6g", line[0])
	}

	caption := "index"
	if last := m.Axes[len(m.Axes)-1]; last.Label != "" {
		caption = last.Label
		if last.Units != "" {
			caption += " [" + last.Units + "]"
		}
	}
	return asciigraph.Plot(line,
		asciigraph.Height(height),
		asciigraph.Width(min(max(n, 20), 72)),
		asciigraph.Caption(caption),
	)
}

func storeRun(meta *storage.RunMetadata) store.Run {
	return store.Run{
		ID:      meta.ID,
		Name:    meta.Name,
		Source:  meta.Source,
		Energy:  meta.Energy,
		Metrics: meta.Metrics,
	}
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	ms := make([]*measure.Measurement, len(meta.Measurements))
	for i := range ms {
		if ms[i], err = st.LoadMeasurement(runID, i); err != nil {
			return err
		}
	}
	if err := store.ExportJSON(outPath, storeRun(meta), ms); err != nil {
		return err
	}
	if outPath != "-" {
		fmt.Fprintf(os.Stderr, "exported %d measurements to %s\n", len(ms), outPath)
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	m, err := st.LoadMeasurement(runID, measureIndex)
	if err != nil {
		return err
	}
	if err := store.ExportCSV(outPath, m); err != nil {
		return err
	}
	if outPath != "-" {
		fmt.Fprintf(os.Stderr, "exported %s (%d values) to %s\n", m.Name, len(m.Array.Data), outPath)
	}
	return nil
}

func wavelength(cmd *cobra.Command, args []string) error {
	ev, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid energy %q: %w", args[0], err)
	}
	if ev <= 0 {
		return fmt.Errorf("energy must be positive")
	}
	header("electron", fmt.Sprintf("%.6g eV", ev))
	kv("wavelength", fmt.Sprintf("%.6g Å", energy.Wavelength(ev)))
	kv("sigma", fmt.Sprintf("%.6g rad/(V Å)", energy.Sigma(ev)))
	kv("mass", fmt.Sprintf("%.6g kg", energy.RelativisticMass(ev)))
	return nil
}

func probeProfile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	ctf := cfg.CTF
	ctf.Energy = cfg.Energy
	probe, err := waves.NewProbe(waves.ProbeConfig{
		Extent:    cfg.Potential.Extent,
		Gpts:      cfg.Potential.Gpts,
		Tilt:      cfg.Tilt,
		Antialias: cfg.Antialias,
		CTF:       ctf,
	})
	if err != nil {
		return err
	}
	m, err := probe.Profile(profileAngle)
	if err != nil {
		return err
	}
	header("probe", fmt.Sprintf("%.0f keV, %g mrad", cfg.Energy/1e3, ctf.SemiangleCutoff))
	kv("defocus", fmt.Sprintf("%g Å", ctf.Defocus))
	kv("peak", fmt.Sprintf("%.6g", m.Array.Data[len(m.Array.Data)/2]))
	fmt.Println(plotMeasurement(m, plotHeight))
	return nil
}
