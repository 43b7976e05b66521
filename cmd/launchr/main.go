package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := buildRoot().ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
}

// configPath prefers a positional argument over --config.
func (g *GlobalFlags) configPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return g.ConfigPath
}

func buildRoot() *cobra.Command {
	global := &GlobalFlags{}
	root := createRootCommand(global)
	root.AddCommand(
		createServeCommand(global),
		createSendCommand(global),
		createGamesCommand(global),
		createResolveCommand(global),
		createStatusCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "launchr",
		Short: "Single-game kiosk supervisor",
		Long: `launchr starts, watches and stops one game at a time on a kiosk host,
driven by intents arriving over MQTT or its local HTTP API.

Examples:
  launchr serve launchr.toml
  launchr send --type LAUNCH_GAME --game "space invaders"
  launchr send --type BACK_HOME
  launchr games --config launchr.toml
  launchr status --api-url http://127.0.0.1:8090/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	return root
}
