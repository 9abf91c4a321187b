package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "relx",
		Short:         "Export asset graphs into versioned NDJSON fact and relation tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath string
	verbose    bool
	trace      bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config file (default: ./config.yaml, then ~/.config/relx)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "Log every resolved pointer")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(tablesCmd)
}
