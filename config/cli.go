package config

import (
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// CLIConfig is the flag set parsed for the coredagd entry point, mirroring
// kaspad's own jessevdk/go-flags-based config.Config loader.
type CLIConfig struct {
	DataDir  string `long:"datadir" description:"Directory to store the consensus database"`
	LogFile  string `long:"logfile" description:"Path to the log file (rotated)"`
	LogLevel string `long:"loglevel" default:"info" description:"Logging level: trace, debug, info, warn, error"`
	Network  string `long:"network" default:"mainnet" description:"Network to run on: mainnet or simnet"`
}

// LoadCLIConfig parses argv into a CLIConfig. When no datadir is given it
// defaults to ./coredagd-data, relative to the current working directory.
func LoadCLIConfig(argv []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	parser := flags.NewParser(cfg, flags.Default)
	_, err := parser.ParseArgs(argv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse command line arguments")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(".", "coredagd-data")
	}
	return cfg, nil
}

// ResolveParams picks the Params set named by CLIConfig.Network.
func (c *CLIConfig) ResolveParams() (*Params, error) {
	switch c.Network {
	case "mainnet", "":
		return MainnetParams(), nil
	case "simnet":
		return SimnetParams(), nil
	default:
		return nil, errors.Errorf("unknown network %q", c.Network)
	}
}
