package cmd

import (
	"github.com/spf13/cobra"

	"github.com/k4r01q/rung/internal/ui"
)

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "move [branch]",
		Aliases: []string{"mv"},
		Short:   "Jump to a branch in the stack",
		Long: `With an argument, checks out that tracked branch. Without one, lists the
stack so you can pick a destination.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := openService(false)
			if err != nil {
				return err
			}
			defer release()

			if len(args) == 0 {
				current, _ := svc.Git.CurrentBranch()
				ui.Plain("%s", svc.Trunk())
				for _, name := range svc.Stack().TopologicalOrder() {
					if name == current {
						ui.Plain("%s", ui.Current(name.String()))
					} else {
						ui.Plain("  %s", name)
					}
				}
				ui.Info("Run `rung move <branch>` to switch")
				return nil
			}

			branch, err := svc.MoveTo(args[0])
			if err != nil {
				return err
			}
			ui.Success("Switched to '%s'", branch)
			return nil
		},
	}
}
