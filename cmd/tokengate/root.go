package main

import (
	"github.com/spf13/cobra"

	"github.com/jonwraymond/tokengate/config"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "tokengate",
		Short:         "Budget-aware gateway for token-metered APIs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the log level (debug|info|warn|error)")

	cmd.AddCommand(newServeCmd(opts), newStatusCmd(), newProbeCmd(opts))
	return cmd
}

// load reads the configuration and applies flag overrides.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: o.configFile})
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Observe.Logging.Level = o.logLevel
		if err := cfg.Observe.Validate(); err != nil {
			return nil, err
		}
	}
	cfg.Observe.Version = version
	return cfg, nil
}
