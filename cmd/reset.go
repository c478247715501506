package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/segin2005/efgrabber/internal/supervisor"
)

// newResetCmd groups the collection recovery operations a stalled or
// aborted run needs, each acting on a single --data-set collection ID.
func newResetCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reset",
		Short: "Recovery operations on a collection's stored progress",
	}

	root.AddCommand(newRecoverySubcommand("interrupted", "Move every in-progress document back to pending",
		func(sup *supervisor.Supervisor) error { return sup.ResetInterrupted() }))
	root.AddCommand(newRecoverySubcommand("failed", "Move every failed document back to pending, ignoring backoff",
		func(sup *supervisor.Supervisor) error { return sup.RetryFailed() }))
	root.AddCommand(newRecoverySubcommand("all", "Move every non-pending document back to pending",
		func(sup *supervisor.Supervisor) error { return sup.ResetAll() }))
	root.AddCommand(newRecoverySubcommand("collection", "Delete every stored row for a collection",
		func(sup *supervisor.Supervisor) error { return sup.ClearCollection() }))

	return root
}

func newRecoverySubcommand(use, short string, op func(*supervisor.Supervisor) error) *cobra.Command {
	var dataSet int
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sup, err := a.NewSupervisor(supervisor.CollectionConfig{CollectionID: dataSet}, supervisor.ModeBrute)
			if err != nil {
				return fmt.Errorf("building supervisor: %w", err)
			}
			return op(sup)
		},
	}
	cmd.Flags().IntVar(&dataSet, "data-set", 0, "collection ID")
	return cmd
}
