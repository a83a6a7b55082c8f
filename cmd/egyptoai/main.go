// Command egyptoai runs the travel-assistant chat backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "egyptoai",
		Short:         "Chat backend for the Egypt travel assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config.yaml (default $EGYPTOAI_CONFIG or ./config.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath())
			},
		},
		&cobra.Command{
			Use:       "migrate [up|down]",
			Short:     "Apply or roll back database migrations",
			Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
			ValidArgs: []string{"up", "down"},
			RunE: func(cmd *cobra.Command, args []string) error {
				dir := "up"
				if len(args) == 1 {
					dir = args[0]
				}
				return runMigrate(cmd.Context(), cmd.OutOrStdout(), configPath(), dir)
			},
		},
		&cobra.Command{
			Use:   "encrypt <value>",
			Short: "Encrypt a secret for config.yaml with $EGYPTOAI_CONFIG_KEY",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runEncrypt(cmd.OutOrStdout(), args[0], os.Getenv("EGYPTOAI_CONFIG_KEY"))
			},
		},
		&cobra.Command{
			Use:   "doctor",
			Short: "Check configuration and backing services",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runDoctor(cmd.Context(), cmd.OutOrStdout(), configPath())
			},
		},
	)
	return root
}

// configPath resolves the config file: --config, then $EGYPTOAI_CONFIG,
// then ./config.yaml.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	if p := os.Getenv("EGYPTOAI_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
