// Package config loads the pipeline run configuration from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Columns names the annotation CSV columns to read.
type Columns struct {
	Barcode string `yaml:"barcode"`
	Label   string `yaml:"label"`
}

// Significance gates the marker summarizer.
type Significance struct {
	MaxAdjustedP     float64 `yaml:"max_adjusted_p"`
	MinAbsFoldChange float64 `yaml:"min_abs_fold_change"`
	TopPerGroup      int     `yaml:"top_per_group"`
}

// Export configures artifact rendering.
type Export struct {
	Formats []string `yaml:"formats"` // json|csv|png (default json,csv,png)
	Prefix  string   `yaml:"prefix"`  // artifact key prefix (default run id)
}

// Config describes one full pipeline run.
type Config struct {
	Dataset        string            `yaml:"dataset"`
	Annotations    string            `yaml:"annotations"`
	Clusters       string            `yaml:"clusters"`
	ExpertMarkers  string            `yaml:"expert_markers"`
	ClusterMarkers string            `yaml:"cluster_markers"`
	Columns        Columns           `yaml:"columns"`
	LabelRules     map[string]string `yaml:"label_rules"`
	Vocabulary     []string          `yaml:"vocabulary"`
	Significance   Significance      `yaml:"significance"`
	Export         Export            `yaml:"export"`
}

// Environment variable overrides applied after file parsing:
//
//	SPATIALCORE_DATASET: dataset directory
//	SPATIALCORE_ANNOTATIONS: expert annotation CSV path
//	SPATIALCORE_CLUSTERS: cluster assignment CSV path
var envOverrides = map[string]func(*Config, string){
	"SPATIALCORE_DATASET":     func(c *Config, v string) { c.Dataset = v },
	"SPATIALCORE_ANNOTATIONS": func(c *Config, v string) { c.Annotations = v },
	"SPATIALCORE_CLUSTERS":    func(c *Config, v string) { c.Clusters = v },
}

// Parse decodes a YAML config document.
func Parse(r io.Reader) (Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Load reads a YAML config file, applies environment overrides, and
// validates required fields.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = file.Close() }()
	cfg, err := Parse(file)
	if err != nil {
		return Config{}, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	for name, apply := range envOverrides {
		if value := os.Getenv(name); value != "" {
			apply(c, value)
		}
	}
}

// Validate checks that the inputs a run cannot proceed without are present.
func (c Config) Validate() error {
	if c.Dataset == "" {
		return fmt.Errorf("config: dataset directory required")
	}
	if c.Annotations == "" {
		return fmt.Errorf("config: annotation file required")
	}
	if c.Clusters == "" {
		return fmt.Errorf("config: cluster assignment file required")
	}
	for _, format := range c.Export.Formats {
		switch format {
		case "json", "csv", "png":
		default:
			return fmt.Errorf("config: unknown export format %q", format)
		}
	}
	return nil
}
