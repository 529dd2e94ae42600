package pipeline

import (
	"fmt"
	"log"
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/asandstrom/camcal/pkg/colour"
)

// Config drives one run of the pipeline. Loaded from YAML; the cmd
// layer wires flags into it.
type Config struct {
	Verbosity int `yaml:"verbosity"`

	WBAlgorithm string `yaml:"wb_algorithm"` // see whitebal.Estimate
	WBPreset    string `yaml:"wb_preset"`    // camera | daylight | illuminant; overrides estimation

	TransformProvenance string `yaml:"transform_provenance"` // embedded | computed
	MatrixFile          string `yaml:"matrix_file"`          // computed transform source

	Illuminant string `yaml:"illuminant"`
	Observer   int    `yaml:"observer"`

	Chart            string  `yaml:"chart"`
	ChartRefDir      string  `yaml:"chart_ref_dir"`
	ChartOverrides   string  `yaml:"chart_overrides"`
	WindowSize       int     `yaml:"window_size"`
	RatioThreshold   float64 `yaml:"ratio_threshold"`
	MinMatchFraction float64 `yaml:"min_match_fraction"`
}

// NewConfig carries the pipeline defaults.
func NewConfig() Config {
	return Config{
		WBAlgorithm:         "grey-world",
		TransformProvenance: "embedded",
		Illuminant:          "D65",
		Observer:            2,
		WindowSize:          40,
		RatioThreshold:      0.8,
		MinMatchFraction:    1.0 / 15.0,
	}
}

// LoadConfig reads YAML over the defaults.
func LoadConfig(path string) (Config, error) {
	c := NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("pipeline: reading config %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("pipeline: parsing config %s: %v", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate rejects configuration errors up front.
func (c Config) Validate() error {
	if c.TransformProvenance != "embedded" && c.TransformProvenance != "computed" {
		return fmt.Errorf("pipeline: transform_provenance must be embedded or computed, got %q", c.TransformProvenance)
	}
	if c.TransformProvenance == "computed" && c.MatrixFile == "" {
		return fmt.Errorf("pipeline: computed transform_provenance needs a matrix_file")
	}
	if c.Observer != 2 && c.Observer != 10 {
		return fmt.Errorf("pipeline: observer must be 2 or 10, got %d", c.Observer)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("pipeline: window_size must be positive, got %d", c.WindowSize)
	}
	if c.RatioThreshold <= 0 || c.RatioThreshold >= 1 {
		return fmt.Errorf("pipeline: ratio_threshold must be in (0,1), got %g", c.RatioThreshold)
	}
	if c.MinMatchFraction <= 0 || c.MinMatchFraction >= 1 {
		return fmt.Errorf("pipeline: min_match_fraction must be in (0,1), got %g", c.MinMatchFraction)
	}
	return nil
}

// ObserverAngle converts the config's integer to the colour engine's
// enum.
func (c Config) ObserverAngle() colour.Observer {
	if c.Observer == 10 {
		return colour.Observer10
	}
	return colour.Observer2
}

// AsYaml renders the config, for run reports.
func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("can't marshal config yaml: %v", err)
	}
	return string(b)
}
