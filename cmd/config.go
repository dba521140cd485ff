package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// RunConfig mirrors the run command's ingestion flags so a run can be
// scripted from a YAML file instead of (or alongside) the CLI.
// --log-level, --config, --include-rip and --tvar-probs have no
// RunConfig field and are read from flags only. Explicit flags
// always win over a loaded file, since a flag is a more specific
// instruction than a shared config (mirrors the teacher's "explicit
// override takes precedence" resolution order).
type RunConfig struct {
	MinLossToInclude   float64 `yaml:"min_loss_to_include"`
	Mfid               string  `yaml:"mfid"`
	IgnoreOrdering     bool    `yaml:"ignore_ordering"`
	FullRipScale       float64 `yaml:"full_rip_scale"`
	Workers            int     `yaml:"workers"`
	DeterministicMerge bool    `yaml:"deterministic_merge"`
}

// defaultRunConfig matches the run command's flag defaults.
func defaultRunConfig() RunConfig {
	return RunConfig{
		FullRipScale: 1,
		Workers:      12,
	}
}

// loadRunConfig reads path (if non-empty) into a RunConfig seeded with
// defaultRunConfig, with strict field checking so a typo'd key is a
// load error rather than a silently ignored one.
func loadRunConfig(path string) (RunConfig, error) {
	cfg := defaultRunConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %q: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// applyFlagOverrides overwrites cfg's fields with any flag the caller
// explicitly set on the command line, leaving config-file values in
// place for everything else.
func (cfg *RunConfig) applyFlagOverrides(flags *pflag.FlagSet) {
	if flags.Changed("min-loss") {
		cfg.MinLossToInclude = minLossToInclude
	}
	if flags.Changed("mfid") {
		cfg.Mfid = mfid
	}
	if flags.Changed("ignore-ordering") {
		cfg.IgnoreOrdering = ignoreOrdering
	}
	if flags.Changed("full-rip-scale") {
		cfg.FullRipScale = fullRipScale
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("deterministic-merge") {
		cfg.DeterministicMerge = deterministic
	}
}
