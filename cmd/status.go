package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/k4r01q/rung/internal/service"
	"github.com/k4r01q/rung/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var fetch bool

	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"st"},
		Short:   "Display the current stack status",
		Long: `Shows a tree view of all tracked branches with their sync state relative
to their parent. With --fetch, PR status is refreshed from the forge.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Refreshing PR status writes the cache back, so it needs the
			// exclusive lock; plain status reads under a shared one.
			svc, release, err := openService(fetch)
			if err != nil {
				return err
			}
			defer release()

			if fetch {
				if err := svc.ConnectForge(); err != nil {
					return err
				}
			}
			report, err := svc.Status(fetch)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(report)
			}
			printStatusTree(report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&fetch, "fetch", false, "Refresh PR status from the forge")
	return cmd
}

func printStatusTree(report *service.StatusReport) {
	ui.Plain("%s", report.Trunk)
	for _, row := range report.Branches {
		indent := strings.Repeat("  ", row.Depth)
		name := "  " + row.Name.String()
		if row.Current {
			name = ui.Current(row.Name.String())
		}

		var dot, state string
		switch {
		case row.Missing:
			dot = ui.MissingDot()
			state = ui.Dim("missing")
		case row.InSync:
			dot = ui.SyncedDot()
		default:
			dot = ui.BehindDot()
			state = fmt.Sprintf("(%d↓)", row.Behind)
		}

		pr := ""
		if row.PR > 0 {
			pr = ui.Dim(fmt.Sprintf("#%d", row.PR))
			if row.PRState != "" {
				pr += ui.Dim(" " + row.PRState)
			}
		}

		line := strings.TrimRight(fmt.Sprintf("%s%s %s %s %s", indent, dot, name, state, pr), " ")
		ui.Plain("%s", line)
	}
}
