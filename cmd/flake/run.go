package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/keshon/flake/internal/config"
	"github.com/keshon/flake/internal/discord"
	"github.com/keshon/flake/internal/lifecycle"
	"github.com/keshon/flake/internal/logging"
)

func newRunCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.DiscordToken == "" {
				return errors.New("DISCORD_TOKEN is not set")
			}
			log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = serve(ctx, cfg, log)
			if errors.Is(err, lifecycle.ErrRestart) {
				return respawn(log)
			}
			return err
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	bot, err := discord.New(cfg.DiscordToken, logging.Section(log, "discord"))
	if err != nil {
		return err
	}
	ctrl, err := lifecycle.New(lifecycle.Options{
		Config:    cfg,
		Source:    bot,
		Messenger: bot,
		Commands:  commandSource(cfg),
		Logger:    log,
	})
	if err != nil {
		return err
	}
	bootLog := logging.Section(log, "boot")
	bootLog.Info().Str("version", version).Msg("starting")
	return ctrl.Run(ctx)
}

// respawn starts a fresh copy of this process with the same arguments and
// lets the current one exit.
func respawn(log zerolog.Logger) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	child := exec.Command(exe, os.Args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	child.Env = os.Environ()
	if err := child.Start(); err != nil {
		return fmt.Errorf("respawn: %w", err)
	}
	shutdownLog := logging.Section(log, "shutdown")
	shutdownLog.Info().Int("pid", child.Process.Pid).Msg("restarted")
	return child.Process.Release()
}
