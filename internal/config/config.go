// Package config holds the protocol's tunable constants and loads
// overrides from a YAML file, environment variables, or CLI flags via
// viper, the way the rest of the pack's cobra-based tools do.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Policy selects the parent-scoring algorithm.
type Policy string

const (
	PolicyHop  Policy = "HOP"
	PolicyRSSI Policy = "RSSI"
	PolicyPRR  Policy = "PRR"
)

// SinkID is the fixed identifier of the single designated sink.
const SinkID = 1

// Config carries every tunable named in the protocol's external
// interfaces. Durations are read as Go duration strings (e.g. "45s") in
// the config file and environment; a bare number is taken as
// nanoseconds, not seconds.
type Config struct {
	NodeID uint16 `mapstructure:"node_id"`

	BeaconPeriod     time.Duration `mapstructure:"t_bc"`
	DataPeriod       time.Duration `mapstructure:"t_data"`
	ReselectPeriod   time.Duration `mapstructure:"t_reselect"`
	PrintPeriod      time.Duration `mapstructure:"t_print"`
	StartupWait      time.Duration `mapstructure:"t_startup_wait"`
	NeighborTTL      time.Duration `mapstructure:"nbr_ttl"`
	HopsMax          int           `mapstructure:"hops_max"`
	NeighborCapacity int           `mapstructure:"nbr_cap"`
	PRRMinSamples    int           `mapstructure:"prr_min_samples"`
	Policy           Policy        `mapstructure:"pick_policy"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Default returns the constants fixed by spec section 6, before any
// override is applied.
func Default() Config {
	return Config{
		BeaconPeriod:     45 * time.Second,
		DataPeriod:       60 * time.Second,
		ReselectPeriod:   9 * time.Second,
		PrintPeriod:      28 * time.Second,
		StartupWait:      5 * time.Second,
		NeighborTTL:      180 * time.Second,
		HopsMax:          20,
		NeighborCapacity: 10,
		PRRMinSamples:    3,
		Policy:           PolicyPRR,
	}
}

// Load reads the defaults, then layers a config file (if non-empty),
// environment variables prefixed CONVERGECAST_, and finally whatever
// flags were already bound onto v.
func Load(v *viper.Viper, configFile string) (Config, error) {
	cfg := Default()

	v.SetEnvPrefix("convergecast")
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "reading config file")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("t_bc", cfg.BeaconPeriod)
	v.SetDefault("t_data", cfg.DataPeriod)
	v.SetDefault("t_reselect", cfg.ReselectPeriod)
	v.SetDefault("t_print", cfg.PrintPeriod)
	v.SetDefault("t_startup_wait", cfg.StartupWait)
	v.SetDefault("nbr_ttl", cfg.NeighborTTL)
	v.SetDefault("hops_max", cfg.HopsMax)
	v.SetDefault("nbr_cap", cfg.NeighborCapacity)
	v.SetDefault("prr_min_samples", cfg.PRRMinSamples)
	v.SetDefault("pick_policy", string(cfg.Policy))
}

// Validate rejects configurations the protocol cannot run under.
func (c Config) Validate() error {
	if c.NeighborCapacity <= 0 {
		return errors.New("nbr_cap must be positive")
	}
	if c.HopsMax <= 0 {
		return errors.New("hops_max must be positive")
	}
	if c.PRRMinSamples < 0 {
		return errors.New("prr_min_samples must not be negative")
	}
	switch c.Policy {
	case PolicyHop, PolicyRSSI, PolicyPRR:
	default:
		return errors.Errorf("unknown pick_policy %q", c.Policy)
	}
	return nil
}

// IsSink reports whether a node with this config's NodeID is the sink.
func (c Config) IsSink() bool {
	return c.NodeID == SinkID
}
