package cmd

import (
	"github.com/spf13/cobra"

	"github.com/k4r01q/rung/internal/service"
	"github.com/k4r01q/rung/internal/ui"
)

func newSubmitCmd() *cobra.Command {
	var opts service.SubmitOptions

	cmd := &cobra.Command{
		Use:     "submit",
		Aliases: []string{"sm"},
		Short:   "Push branches and create/update PRs",
		Long: `Pushes every tracked branch to the remote in stack order and creates or
updates its pull request, keeping each PR's base branch and stack comment in
step with the stack.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := openService(true)
			if err != nil {
				return err
			}
			defer release()

			if !opts.DryRun {
				if err := svc.ConnectForge(); err != nil {
					return err
				}
			}

			report, err := svc.Submit(opts)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(report)
			}

			if opts.DryRun {
				if len(report.Actions) == 0 {
					ui.Info("No branches in stack - nothing to submit")
					return nil
				}
				ui.Info("Dry run - would perform:")
				for _, a := range report.Actions {
					ui.Plain("  → %s: %s (base %s)", a.Branch, a.Action, a.Base)
				}
				return nil
			}

			for _, a := range report.Actions {
				if a.URL != "" {
					ui.Essential("%s", a.URL)
				}
			}
			switch {
			case report.Created == 0 && report.Updated == 0:
				ui.Info("No changes to submit")
			default:
				ui.Success("Done! PRs: %d created, %d updated", report.Created, report.Updated)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show intended operations without network writes")
	cmd.Flags().BoolVar(&opts.Draft, "draft", false, "Create PRs as drafts")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Force push even if the lease check fails")
	cmd.Flags().StringVarP(&opts.Title, "title", "t", "", "PR title for the current branch (overrides the generated title)")
	return cmd
}
