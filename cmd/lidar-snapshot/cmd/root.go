// Package cmd provides the commands of the lidar-snapshot CLI, which builds
// and inspects the pre-built catalog snapshot shipped with the server.
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/config"
	logpkg "github.com/opengeos/maplibre-gl-noaa-lidar/internal/logger"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/version"
)

type rootOptions struct {
	env      string
	logLevel string
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "lidar-snapshot",
		Short:         "Build and inspect NOAA coastal LiDAR catalog snapshots",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("lidar-snapshot {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.env, "env", "",
		"Config environment to load (config/<env>.yaml); empty uses built-in defaults")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	cmd.AddCommand(newBuildCmd(opts))
	cmd.AddCommand(newInspectCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *rootOptions) config() (config.Config, error) {
	if o.env == "" {
		return config.Default(), nil
	}
	return config.Load(o.env)
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	return logpkg.NewLogger("cli", o.logLevel)
}
