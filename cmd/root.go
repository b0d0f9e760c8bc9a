package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/logs"
	"github.com/k4r01q/rung/internal/ui"
)

var (
	verbose  bool
	quiet    bool
	jsonOut  bool
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "rung",
	Short: "Rung is the developer's ladder for stacked PRs.",
	Long: `Rung is a lightweight orchestration layer for Git that automates the
management of dependent PR stacks: creating stacked branches, keeping them
rebased when any ancestor moves, and merging each link back into the trunk.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if quiet && jsonOut {
			return errs.New(errs.KindUsage, "--quiet and --json are mutually exclusive")
		}
		logs.SetVerbose(verbose)
		if err := logs.Init(); err != nil {
			// Logging is best effort; a read-only filesystem should not
			// block the tool.
			ui.Warn("logging disabled: %v", err)
		}
		ui.SetQuiet(quiet || jsonOut)
		ui.SetNoColor(os.Getenv("NO_COLOR") != "")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logs.Close()
	},
}

// Execute is called by main.go to run the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress informational output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output as JSON (for tooling integration)")

	rootCmd.AddCommand(
		newInitCmd(),
		newCreateCmd(),
		newStatusCmd(),
		newSyncCmd(),
		newSubmitCmd(),
		newMergeCmd(),
		newUndoCmd(),
		newNextCmd(),
		newPrevCmd(),
		newMoveCmd(),
		newLogCmd(),
		newDoctorCmd(),
	)
}
