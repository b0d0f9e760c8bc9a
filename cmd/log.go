package cmd

import (
	"github.com/spf13/cobra"

	"github.com/k4r01q/rung/internal/ui"
)

func newLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Show commits between the parent branch and HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := openService(false)
			if err != nil {
				return err
			}
			defer release()

			entries, err := svc.Log()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				ui.Warn("current branch has no commits of its own")
				return nil
			}
			for _, e := range entries {
				ui.Plain("%s  %-60s %s", ui.Dim(e.Commit.Short()), e.Subject, ui.Dim(e.Author))
			}
			return nil
		},
	}
}
