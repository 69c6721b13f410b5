// Command flake runs the bot.
package main

import (
	"os"

	_ "github.com/keshon/flake/internal/command/builtin"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
