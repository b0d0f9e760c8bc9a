package cmd

import (
	"github.com/spf13/cobra"

	"github.com/k4r01q/rung/internal/ui"
)

func newCreateCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:     "create [name]",
		Aliases: []string{"c"},
		Short:   "Create a new branch stacked on the current one",
		Long: `Create a new branch with the current branch as its parent. When --message
is given, all pending changes are committed on the new branch with that
message; without a name, the name is derived by slugifying the message.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := openService(true)
			if err != nil {
				return err
			}
			defer release()

			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			res, err := svc.Create(name, message)
			if err != nil {
				return err
			}

			ui.Success("Created branch '%s' with parent '%s'", res.Name, res.Parent)
			if res.Committed {
				ui.Info("Committed staged changes: %s", message)
			}
			if res.Depth > 1 {
				ui.Info("Stack depth: %d", res.Depth)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message (also used to derive the branch name)")
	return cmd
}
