package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glorpus-work/modelkeep/internal/cli"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	verbose      bool
	outputFormat string
	scope        string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	// After the first signal the default handlers come back, so a second one aborts.
	context.AfterFunc(ctx, cancel)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modelkeep",
		Short: "Keep an on-device language model downloaded and current",
		Long: `modelkeep downloads the model a catalog recommends for this device and keeps it
current:
- download, pause and resume large model files
- check the catalog for newer models or metadata
- expose the state to local consumers over a small HTTP API`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format (text, json)")
	cmd.PersistentFlags().StringVar(&scope, "scope", "global", `persistence scope ("global" or "provider/<id>")`)

	cli.ConfigPath = &configPath
	cli.Verbose = &verbose
	cli.OutputFormat = &outputFormat
	cli.Scope = &scope

	cmd.AddCommand(
		cli.NewDownloadCmd(),
		cli.NewResumeCmd(),
		cli.NewCheckCmd(),
		cli.NewStatusCmd(),
		cli.NewCatalogCmd(),
		cli.NewPathCmd(),
		cli.NewConfigCmd(),
		cli.NewServeCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
