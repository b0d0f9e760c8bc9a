package cmd

import (
	"github.com/spf13/cobra"

	"github.com/k4r01q/rung/internal/ui"
)

func newUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "undo",
		Aliases: []string{"un"},
		Short:   "Undo the last sync operation",
		Long: `Restores every branch touched by the last completed sync to its pre-sync
tip. There is a single undo slot; it is cleared when the next sync begins.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := openService(true)
			if err != nil {
				return err
			}
			defer release()

			if err := svc.Undo(); err != nil {
				return err
			}
			ui.Success("Restored branches to their pre-sync state")
			return nil
		},
	}
}
