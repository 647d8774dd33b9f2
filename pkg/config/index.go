package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultIndexType is the only grouping type the pipeline generates
const DefaultIndexType = "sector_industry"

// ValidationError describes an invalid configuration field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// indexOverlay is the YAML document shape: a single top-level "index" section
type indexOverlay struct {
	Index IndexConfig `yaml:"index"`
}

// LoadIndexOverlay applies a YAML file on top of the environment-derived index settings.
// Fields missing from the file keep their current value.
// KnownFields(true) makes typos and unknown fields fail immediately.
func (c *Config) LoadIndexOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read index config %s: %w", path, err)
	}

	overlay := indexOverlay{Index: c.Index}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&overlay); err != nil {
		return fmt.Errorf("decode index config %s: %w", path, err)
	}

	if err := overlay.Index.Validate(); err != nil {
		return err
	}

	c.Index = overlay.Index
	return nil
}

// Validate checks the index policy values
func (ic IndexConfig) Validate() error {
	if ic.IndexType != DefaultIndexType {
		return ValidationError{"index.index_type", fmt.Sprintf("unsupported index type %q", ic.IndexType)}
	}
	if ic.BaseValue <= 0 {
		return ValidationError{"index.base_value", "must be positive"}
	}
	if ic.MinConstituents < 1 {
		return ValidationError{"index.min_constituents", "must be at least 1"}
	}
	if ic.MaxMissingRatio <= 0 || ic.MaxMissingRatio > 1 {
		return ValidationError{"index.max_missing_ratio", "must be in (0, 1]"}
	}
	if ic.BatchSize < 1 {
		return ValidationError{"index.batch_size", "must be at least 1"}
	}
	if ic.Workers < 1 {
		return ValidationError{"index.workers", "must be at least 1"}
	}
	if ic.StoreRetries < 0 {
		return ValidationError{"index.store_retries", "must not be negative"}
	}
	if ic.LookbackDays < 1 {
		return ValidationError{"index.lookback_days", "must be at least 1"}
	}
	return nil
}
