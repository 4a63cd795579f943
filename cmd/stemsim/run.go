package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/stemsim/internal/config"
	"github.com/san-kum/stemsim/internal/experiment"
	"github.com/san-kum/stemsim/internal/grid"
	"github.com/san-kum/stemsim/internal/storage"
	"github.com/san-kum/stemsim/internal/tui"
)

// loadConfig layers the config: defaults or preset, then the file, then
// the environment, then flags that were set explicitly.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.FindPreset(preset)
		if cfg == nil {
			var all []string
			for _, s := range config.Sources() {
				all = append(all, config.ListPresets(s)...)
			}
			return nil, fmt.Errorf("unknown preset: %s (available: %s)", preset, strings.Join(all, ", "))
		}
	}
	if len(args) > 0 {
		loaded, err := config.Load(args[0])
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	changed := func(name string) bool { return flags.Lookup(name) != nil && flags.Changed(name) }
	if changed("source") {
		cfg.Source = source
	}
	if changed("name") {
		cfg.Name = name
	}
	if changed("energy") {
		cfg.Energy = energyFlag
	}
	if changed("gpts") {
		cfg.Potential.Gpts = []int{gpts, gpts}
	}
	if changed("sampling") {
		if sampling <= 0 {
			return nil, fmt.Errorf("sampling must be positive")
		}
		g, err := grid.New(grid.Config{Extent: cfg.Potential.Extent, Sampling: []float64{sampling, sampling}})
		if err != nil {
			return nil, err
		}
		cfg.Potential.Gpts = g.Gpts()
	}
	if changed("splits") {
		cfg.Splits = splits
	}
	if changed("workers") {
		cfg.Workers = workers
	}
	if changed("batch") {
		cfg.BatchSize = batchSize
	}
	if changed("frozen-phonons") {
		cfg.Potential.FrozenPhonons = frozenPhonons
	}
	if changed("seed") {
		cfg.Potential.Seed = seed
	}
	if changed("zarr") {
		cfg.Output.Zarr = zarrOut
	}
	if changed("data") || cfg.Output.Dir == "" {
		cfg.Output.Dir = dataDir
	}
	return cfg, cfg.Validate()
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	exp := experiment.New(cfg, nil)
	if progressMode == "tui" {
		exp.SetLogger(log.New(io.Discard, "", 0))
	}
	if err := exp.Setup(); err != nil {
		return err
	}

	var res *experiment.Result
	switch progressMode {
	case "tui":
		res, err = tui.Run(cmd.Context(), exp, cfg.Name, cfg.Source)
	case "plain":
		live := tui.NewLiveRenderer(os.Stderr, cfg.Name, 10)
		exp.OnProgress(live.OnProgress)
		res, err = exp.Run(cmd.Context())
		live.Close()
	case "none":
		res, err = exp.Run(cmd.Context())
	default:
		return fmt.Errorf("unknown progress mode: %s (available: tui, plain, none)", progressMode)
	}
	if err != nil {
		return err
	}

	st := storage.New(cfg.Output.Dir)
	if err := st.Init(); err != nil {
		return err
	}
	defer st.Close()
	runID, err := st.Save(cfg, res)
	if err != nil {
		return err
	}

	fmt.Println()
	header(res.Name, res.Source)
	kv("run", runID)
	kv("elapsed", res.Elapsed.Round(time.Millisecond))
	printMetrics(res.Metrics)
	for i, m := range res.Measurements {
		kv(fmt.Sprintf("[%d] %s", i, m.Name), fmt.Sprintf("%v %s", m.Shape(), m.Units))
	}
	if cfg.Output.Zarr != "" && res.Exit != nil {
		kv("exit waves", cfg.Output.Zarr)
	}
	return nil
}

func printMetrics(metrics map[string]float64) {
	names := make([]string, 0, len(metrics))
	for k := range metrics {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		kv(k, fmt.Sprintf("%.6g", metrics[k]))
	}
}

func listPresets(cmd *cobra.Command, args []string) error {
	sources := config.Sources()
	if len(args) > 0 {
		if config.ListPresets(args[0]) == nil {
			return fmt.Errorf("unknown source: %s (available: %s)", args[0], strings.Join(sources, ", "))
		}
		sources = []string{args[0]}
	}
	for _, s := range sources {
		fmt.Println(cyan.Render(s))
		for _, p := range config.ListPresets(s) {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}
