package main

import (
	"github.com/spf13/cobra"

	"github.com/keshon/flake/internal/command"
	"github.com/keshon/flake/internal/config"
)

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:          "flake",
		Short:        "A Discord chat bot with hot reloadable commands, hooks and persistent timers",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "env file to load before reading the environment")

	load := func() (*config.Config, error) {
		return config.Load(envFile)
	}
	rootCmd.AddCommand(
		newRunCmd(load),
		newCheckCmd(load),
		newVersionCmd(),
	)
	return rootCmd
}

func commandSource(cfg *config.Config) command.Source {
	return command.MultiSource{
		command.BuiltinSource{},
		command.ScriptSource{Dir: cfg.CommandDir},
	}
}
