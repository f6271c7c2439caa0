package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skystation-io/skystation/cmd/skystation-agent/app/options"
	"github.com/skystation-io/skystation/pkg/log"
	"github.com/skystation-io/skystation/pkg/version"
)

const commandDesc = `The SkyStation agent runs on the station device. It keeps a connection to
the MQTT broker, listens on the device's command feed for update, reboot and
LED commands, installs fetched files atomically under the writable root, and
publishes acknowledgments, telemetry and presence upstream.

Configuration is taken from flags, optionally layered over a config file.`

// NewAgentCommand builds the root cobra command for the agent.
func NewAgentCommand() *cobra.Command {
	opts := options.NewAgentOptions()
	var cfgFile string

	cmd := &cobra.Command{
		Use:          "skystation-agent",
		Short:        "Remote-update and telemetry agent for SkyStation devices",
		Long:         commandDesc,
		Version:      version.Get(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("read config file: %w", err)
				}
			}
			// Flags passed on the command line win over file values,
			// file values win over flag defaults.
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := viper.Unmarshal(opts); err != nil {
				return fmt.Errorf("parse configuration: %w", err)
			}
			return run(opts)
		},
	}

	opts.AddFlags(cmd.Flags())
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "Path to the configuration file.")
	return cmd
}

func run(opts *options.AgentOptions) error {
	log.Init(opts.Log)

	if errs := opts.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	a, err := opts.Config().New()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting SkyStation agent")
	return a.Run(ctx)
}
