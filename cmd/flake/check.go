package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/keshon/flake/datastore"
	"github.com/keshon/flake/internal/command"
	"github.com/keshon/flake/internal/config"
	"github.com/keshon/flake/internal/logging"
)

func newCheckCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration, the memory file and the commands without connecting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			snap, err := datastore.New(datastore.Config{FilePath: cfg.MemoryPath(), BackupCount: cfg.BackupCount, Logger: logging.Nop()})
			if err != nil {
				return err
			}
			doc, err := snap.Load()
			switch {
			case err == nil:
				fmt.Fprintf(out, "memory: %s (%d sections)\n", snap.Path(), len(doc))
			default:
				fmt.Fprintf(out, "memory: %s (%v, a fresh one will be created)\n", snap.Path(), err)
			}

			registry := command.NewRegistry(commandSource(cfg), logging.Nop())
			n, err := registry.ReloadAll()
			if err != nil {
				fmt.Fprintf(out, "commands: %v\n", err)
			}
			fmt.Fprintf(out, "commands: %d loaded\n", n)

			byCategory := map[string][]string{}
			for name, c := range registry.All() {
				byCategory[c.Category()] = append(byCategory[c.Category()], name)
			}
			categories := make([]string, 0, len(byCategory))
			for cat := range byCategory {
				categories = append(categories, cat)
			}
			sort.Strings(categories)
			for _, cat := range categories {
				names := byCategory[cat]
				sort.Strings(names)
				fmt.Fprintf(out, "  %s: %v\n", cat, names)
			}
			if cfg.DiscordToken == "" {
				fmt.Fprintln(out, "warning: DISCORD_TOKEN is not set, run will refuse to start")
			}
			return nil
		},
	}
}
