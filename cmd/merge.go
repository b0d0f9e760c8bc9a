package cmd

import (
	"github.com/spf13/cobra"

	"github.com/k4r01q/rung/internal/ui"
)

func newMergeCmd() *cobra.Command {
	var (
		method   string
		noDelete bool
	)

	cmd := &cobra.Command{
		Use:     "merge",
		Aliases: []string{"m"},
		Short:   "Merge the current branch's PR and clean up",
		Long: `Merges the PR via the forge, re-parents the branch's children onto the
trunk, rebases their subtrees onto the new trunk tip, and removes the merged
branch locally and remotely. The current branch must be at the bottom of its
stack.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := openService(true)
			if err != nil {
				return err
			}
			defer release()

			if err := svc.ConnectForge(); err != nil {
				return err
			}
			if method == "" {
				method = svc.Config().MergeMethod
			}

			report, err := svc.Merge(method, noDelete)
			if report != nil && !jsonOut {
				if report.MergeSHA != "" {
					ui.Success("Merged PR #%d (%s)", report.PR, report.Branch)
				}
				for _, c := range report.Reparented {
					ui.Info("Re-parented '%s' onto the trunk", c)
				}
				if report.SyncPaused {
					ui.Warn("Descendant rebase paused on a conflict")
					ui.Info("Resolve it, then run: rung sync --continue")
				}
			}
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(report)
			}
			ui.Success("Merge complete!")
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", "", "Merge method: squash, merge, or rebase (default from config)")
	cmd.Flags().BoolVar(&noDelete, "no-delete", false, "Keep the remote branch after the merge")
	return cmd
}
