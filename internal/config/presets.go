package config

import "slices"

func preset(edit func(c *Config)) *Config {
	c := DefaultConfig()
	edit(c)
	return c
}

var Presets = map[string]map[string]*Config{
	PlaneWave: {
		"exit_wave": preset(func(c *Config) {
			c.Name, c.Source = "exit_wave", PlaneWave
			c.Detectors = []DetectorConfig{{Kind: "pixelated"}}
		}),
		"thick": preset(func(c *Config) {
			c.Name, c.Source, c.Splits = "thick", PlaneWave, 2
			c.Potential.NumSlices = 50
			c.Detectors = []DetectorConfig{{Kind: "pixelated"}}
		}),
		"vacuum": preset(func(c *Config) {
			c.Name, c.Source = "vacuum", PlaneWave
			c.Potential.Kind = "zero"
			c.Detectors = nil
		}),
	},
	Probe: {
		"haadf": preset(func(c *Config) {
			c.Name = "haadf"
			c.Potential.FrozenPhonons = 4
			c.Detectors = []DetectorConfig{{Kind: "annular", Inner: 70, Outer: 200}}
		}),
		"segmented": preset(func(c *Config) {
			c.Name = "segmented"
			c.Detectors = []DetectorConfig{{Kind: "segmented", Inner: 5, Outer: 25, Radial: 2, Azimuthal: 4}}
		}),
		"4dstem": preset(func(c *Config) {
			c.Name = "4dstem"
			c.Scan.Gpts = []int{4, 4}
			c.Detectors = []DetectorConfig{{Kind: "pixelated"}, {Kind: "flexible_annular", Step: 10}}
		}),
		"line_profile": preset(func(c *Config) {
			c.Name = "line_profile"
			c.Scan = ScanConfig{Kind: "line", Start: [2]float64{0, 0}, End: [2]float64{8, 8}, Gpts: []int{32}}
			c.Detectors = []DetectorConfig{{Kind: "annular", Inner: 50, Outer: 150}}
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(source, preset string) *Config {
	sourcePresets, ok := Presets[source]
	if !ok {
		return nil
	}
	cfg, ok := sourcePresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

// FindPreset looks a preset up by name across sources.
func FindPreset(preset string) *Config {
	for _, source := range Sources() {
		if cfg := GetPreset(source, preset); cfg != nil {
			return cfg
		}
	}
	return nil
}

func Sources() []string {
	out := make([]string, 0, len(Presets))
	for s := range Presets {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

func ListPresets(source string) []string {
	sourcePresets, ok := Presets[source]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(sourcePresets))
	for name := range sourcePresets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
