package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/shakurocom/iOS-Toolbox-sub000/internal/config"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/platform/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// cliOptions is shared by every subcommand. Flags are bound into v so that
// they take precedence over the config file and the environment.
type cliOptions struct {
	cfgFile string
	v       *viper.Viper
}

func newCLIOptions() *cliOptions {
	return &cliOptions{v: viper.New()}
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithOptions(newCLIOptions())
}

func newRootCmdWithOptions(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "taskmanager",
		Short:        "In-process task manager with prioritised, dependency-aware scheduling",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file path (default: ./taskmanager.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "log level: debug | info | warn | error")
	bindFlag(opts.v, "server.log_level", cmd.PersistentFlags(), "log-level")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newDemoCmd(opts))
	cmd.AddCommand(newInitCmd(opts))
	return cmd
}

// load reads configuration and sets up the process logger. Logs go to
// stdout unless logOut is set.
func (o *cliOptions) load(logOut io.Writer) (*config.Config, *slog.Logger, error) {
	if o.cfgFile != "" {
		o.v.SetConfigFile(o.cfgFile)
	}

	cfg, err := config.LoadFrom(o.v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var l *slog.Logger
	if logOut == nil {
		l, err = logger.Setup(cfg.Server)
	} else {
		l, err = logger.SetupWithWriter(cfg.Server, logOut)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("configuration loaded",
		"config_file", o.v.ConfigFileUsed(),
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"max_concurrent_operations", cfg.Scheduler.MaxConcurrentOperations)
	return cfg, l, nil
}

func bindFlag(v *viper.Viper, viperKey string, fs *pflag.FlagSet, flagName string) {
	if err := v.BindPFlag(viperKey, fs.Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("bindFlag %q to %q: %v", flagName, viperKey, err))
	}
}
