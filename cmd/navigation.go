package cmd

import (
	"github.com/spf13/cobra"

	"github.com/k4r01q/rung/internal/ui"
)

func newNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "nxt",
		Aliases: []string{"n"},
		Short:   "Switch to the next branch in the stack (child)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := openService(false)
			if err != nil {
				return err
			}
			defer release()

			child, err := svc.Next()
			if err != nil {
				return err
			}
			ui.Success("Switched to '%s'", child)
			return nil
		},
	}
}

func newPrevCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "prv",
		Aliases: []string{"p"},
		Short:   "Switch to the previous branch in the stack (parent)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := openService(false)
			if err != nil {
				return err
			}
			defer release()

			parent, err := svc.Prev()
			if err != nil {
				return err
			}
			ui.Success("Switched to '%s'", parent)
			return nil
		},
	}
}
