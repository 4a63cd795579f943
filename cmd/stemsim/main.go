package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/san-kum/stemsim/internal/telemetry"
)

var (
	dataDir string

	preset        string
	source        string
	name          string
	energyFlag    float64
	gpts          int
	sampling      float64
	splits        int
	workers       int
	batchSize     int
	frozenPhonons int
	seed          int64
	zarrOut       string
	progressMode  string

	outPath      string
	measureIndex int
	plotHeight   int
	profileAngle float64
)

var (
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	bold  = lipgloss.NewStyle().Bold(true)
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var shutdown func(context.Context) error
	rootCmd := &cobra.Command{
		Use:           "stemsim",
		Short:         "electron multislice simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			shutdown, err = telemetry.Setup(cmd.Context(), "stemsim")
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(context.Background())
		},
	}

	defaultData := os.Getenv("STEMSIM_DATA_DIR")
	if defaultData == "" {
		defaultData = "data"
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", defaultData, "data directory")

	runCmd := &cobra.Command{
		Use:   "run [config.yaml]",
		Short: "run a simulation from a config file or preset",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	runCmd.Flags().StringVar(&preset, "preset", "", "start from a preset")
	runCmd.Flags().StringVar(&source, "source", "", "incident wave: plane_wave or probe")
	runCmd.Flags().StringVar(&name, "name", "", "run name")
	runCmd.Flags().Float64Var(&energyFlag, "energy", 0, "acceleration voltage [eV]")
	runCmd.Flags().IntVar(&gpts, "gpts", 0, "grid points per side")
	runCmd.Flags().Float64Var(&sampling, "sampling", 0, "real-space sampling [Å], overrides --gpts")
	runCmd.Flags().IntVar(&splits, "splits", 0, "propagation sub-steps per slice")
	runCmd.Flags().IntVar(&workers, "workers", 0, "parallel workers (0 = all cores)")
	runCmd.Flags().IntVar(&batchSize, "batch", 0, "probe positions per batch")
	runCmd.Flags().IntVar(&frozenPhonons, "frozen-phonons", 0, "frozen phonon configurations")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "displacement seed")
	runCmd.Flags().StringVar(&zarrOut, "zarr", "", "write plane wave exit waves to this zarr group")
	runCmd.Flags().StringVar(&progressMode, "progress", "plain", "progress display: tui, plain or none")

	presetsCmd := &cobra.Command{
		Use:   "presets [source]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a run and plot its measurements",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run measurements to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file (- for stdout)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export one measurement to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file (- for stdout)")
	exportCSVCmd.Flags().IntVarP(&measureIndex, "index", "i", 0, "measurement index")

	wavelengthCmd := &cobra.Command{
		Use:   "wavelength [energy]",
		Short: "relativistic wavelength and interaction parameter",
		Args:  cobra.ExactArgs(1),
		RunE:  wavelength,
	}

	profileCmd := &cobra.Command{
		Use:   "profile [config.yaml]",
		Short: "plot the probe intensity profile",
		Args:  cobra.MaximumNArgs(1),
		RunE:  probeProfile,
	}
	profileCmd.Flags().StringVar(&preset, "preset", "", "start from a preset")
	profileCmd.Flags().Float64Var(&energyFlag, "energy", 0, "acceleration voltage [eV]")
	profileCmd.Flags().IntVar(&gpts, "gpts", 0, "grid points per side")
	profileCmd.Flags().Float64Var(&profileAngle, "angle", 0, "line direction [rad]")
	profileCmd.Flags().IntVar(&plotHeight, "height", 12, "plot height")

	rootCmd.AddCommand(runCmd, presetsCmd, listCmd, showCmd, exportJSONCmd, exportCSVCmd, wavelengthCmd, profileCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func header(title, sub string) {
	fmt.Printf("%s  %s\n", cyan.Render(title), dim.Render(sub))
}

func kv(label string, value any) {
	fmt.Printf("  %s %s\n", dim.Render(fmt.Sprintf("%-16s", label)), white.Render(fmt.Sprint(value)))
}
