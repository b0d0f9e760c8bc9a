package cmd

import (
	"github.com/spf13/cobra"

	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/model"
	"github.com/k4r01q/rung/internal/service"
	"github.com/k4r01q/rung/internal/ui"
)

func newSyncCmd() *cobra.Command {
	var (
		dryRun   bool
		continue_ bool
		abort    bool
		noPush   bool
		base     string
	)

	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"sy"},
		Short:   "Sync the stack by rebasing all branches",
		Long: `Rebases every descendant of the base (the trunk by default) onto the
current tip of its parent, in topological order. A conflict pauses the sync;
resume with --continue after resolving, or roll back with --abort.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if continue_ && abort {
				return errs.New(errs.KindUsage, "cannot use --continue and --abort together")
			}

			svc, release, err := openService(true)
			if err != nil {
				return err
			}
			defer release()

			if abort {
				if err := svc.SyncAbort(); err != nil {
					return err
				}
				if jsonOut {
					return printJSON(&service.SyncResult{Status: service.SyncAborted})
				}
				ui.Success("Sync aborted - branches restored from backup")
				return nil
			}

			if continue_ {
				res, err := svc.SyncContinue(noPush)
				return reportSync(res, err)
			}

			var baseBranch model.BranchName
			if base != "" {
				if baseBranch, err = model.NewBranchName(base); err != nil {
					return err
				}
			}

			res, err := svc.Sync(baseBranch, dryRun, noPush)
			if err == nil && dryRun {
				printSyncPlan(res)
				return nil
			}
			return reportSync(res, err)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without making changes")
	cmd.Flags().BoolVar(&continue_, "continue", false, "Continue a paused sync after resolving conflicts")
	cmd.Flags().BoolVar(&abort, "abort", false, "Abort the paused sync and restore from backup")
	cmd.Flags().BoolVar(&noPush, "no-push", false, "Skip pushing branches after the sync")
	cmd.Flags().StringVarP(&base, "base", "b", "", "Base branch to sync against (defaults to the trunk)")
	return cmd
}

func printSyncPlan(res *service.SyncResult) {
	if len(res.Plan) == 0 {
		ui.Info("Nothing to sync")
		return
	}
	ui.Info("Dry run - would rebase:")
	for _, step := range res.Plan {
		ui.Plain("  → %s (%s onto tip of %s)", step.Branch, step.OldTip.Short(), step.Parent)
	}
}

func reportSync(res *service.SyncResult, err error) error {
	if res != nil {
		if jsonOut {
			if jerr := printJSON(res); jerr != nil {
				return jerr
			}
			return err
		}
		switch res.Status {
		case service.SyncAlreadySynced:
			ui.Success("Stack is already up-to-date")
		case service.SyncComplete:
			ui.Success("Synced %d branch(es)", res.Rebased)
		case service.SyncConflict:
			ui.Warn("Conflict in branch '%s'", res.ConflictBranch)
			if len(res.ConflictFiles) > 0 {
				ui.Info("Conflicting files:")
				for _, f := range res.ConflictFiles {
					ui.Plain("  → %s", f)
				}
			}
			ui.Info("Resolve conflicts, then run: rung sync --continue")
			ui.Info("Or abort with: rung sync --abort")
		}
	}
	return err
}
