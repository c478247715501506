// Package cmd defines and implements the CLI commands for the efgrabber
// executable.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/segin2005/efgrabber/internal/app"
	"github.com/segin2005/efgrabber/internal/config"
)

var cfgFile string

type appKeyType string

const appKey appKeyType = "app"

var newApp = func(ctx context.Context, cfgPath string) (*app.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return app.New(ctx, cfg)
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return a, nil
}

// NewRootCmd builds the efgrabber command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "efgrabber",
		Short: "A resumable bulk fetcher for paginated document collections.",
		Long: `efgrabber discovers and downloads every document in a paginated,
publicly served collection, tracking per-document progress in a local
database so an interrupted run resumes exactly where it left off.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initializing application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; without it only built-in defaults and EFGRABBER_ environment variables apply)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newResetCmd())

	return root
}

// Execute runs the root command and reports whether it succeeded; the
// caller decides the process exit code.
func Execute() error {
	return NewRootCmd().Execute()
}
