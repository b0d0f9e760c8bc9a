package cmd

import (
	"github.com/spf13/cobra"

	"github.com/k4r01q/rung/internal/service"
	"github.com/k4r01q/rung/internal/ui"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"doc"},
		Short:   "Diagnose issues with the stack and repository",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := openService(false)
			if err != nil {
				return err
			}
			defer release()

			// The forge section degrades to an info line when auth is
			// unavailable.
			_ = svc.ConnectForge()

			report := svc.Doctor()
			if jsonOut {
				return printJSON(report)
			}

			for _, issue := range report.Issues {
				switch issue.Severity {
				case service.SeverityError:
					ui.Error("%s", issue.Message)
				case service.SeverityWarning:
					ui.Warn("%s", issue.Message)
				default:
					ui.Info("%s", issue.Message)
				}
				if issue.Suggestion != "" {
					ui.Plain("    %s %s", ui.Dim("→"), issue.Suggestion)
				}
			}

			if report.Healthy {
				ui.Success("No issues found!")
			} else if report.Errors > 0 {
				ui.Error("Found %d issue(s) (%d error(s), %d warning(s))",
					report.Errors+report.Warnings, report.Errors, report.Warnings)
			} else {
				ui.Warn("Found %d issue(s) (%d error(s), %d warning(s))",
					report.Errors+report.Warnings, report.Errors, report.Warnings)
			}
			return nil
		},
	}
}
