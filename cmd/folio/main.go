package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	slogctx "github.com/veqryn/slog-context"
)

var cfgFile string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folio",
		Short: "Folio session client",
		Long: `Folio drives the portfolio backend session layer from a terminal.

Configuration is read from folio.yaml in the current directory or
$HOME/.folio/. Environment variables override config values with the
FOLIO_ prefix, for example FOLIO_API_BASE_URL=https://api.example.com.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./folio.yaml)")

	cmd.AddCommand(
		loginCmd(),
		meCmd(),
		getCmd(),
		logoutCmd(),
	)
	return cmd
}

func execute() error {
	ctx, cancelOnSignal := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancelOnSignal()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		slogctx.Error(ctx, "Command failed", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}
