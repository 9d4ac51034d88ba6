// Command spawnctl starts a spawn server and asks it to spawn applications.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/axondata/go-spawnmgr/internal/config"
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	root := &cobra.Command{
		Use:           "spawnctl",
		Short:         "Drive a spawn server from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			return applyFlags(cmd, loaded, cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.String("server", "", "Spawn server program (SPAWN_SERVER)")
	flags.String("interpreter", cfg.Spawn.Interpreter, "Interpreter running the spawn server (SPAWN_INTERPRETER)")
	flags.String("log-file", "", "File receiving the spawn server's output (SPAWN_LOG_FILE)")
	flags.String("environment", cfg.Spawn.Environment, "Application environment label (SPAWN_ENVIRONMENT)")
	flags.String("pid-file", "", "File recording the spawn server pid (SPAWN_PID_FILE)")
	flags.Duration("shutdown-timeout", cfg.Spawn.ShutdownTimeout, "How long to wait for the spawn server to exit (SPAWN_SHUTDOWN_TIMEOUT)")
	flags.String("log-level", cfg.Logging.Level, "Log level (LOG_LEVEL)")

	root.AddCommand(newSpawnCmd(cfg), newServeTestCmd())
	return root
}

// applyFlags copies loaded into cfg, then overrides it with every flag the
// user set explicitly.
func applyFlags(cmd *cobra.Command, loaded, cfg *config.Config) error {
	*cfg = *loaded
	flags := cmd.Flags()

	var err error
	set := func(name string, dst *string) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetString(name)
		}
	}
	set("server", &cfg.Spawn.Server)
	set("interpreter", &cfg.Spawn.Interpreter)
	set("log-file", &cfg.Spawn.LogFile)
	set("environment", &cfg.Spawn.Environment)
	set("pid-file", &cfg.Spawn.PIDFile)
	set("log-level", &cfg.Logging.Level)
	if err != nil {
		return err
	}

	if flags.Changed("shutdown-timeout") {
		if cfg.Spawn.ShutdownTimeout, err = flags.GetDuration("shutdown-timeout"); err != nil {
			return err
		}
	}
	return nil
}
