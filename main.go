package main

import (
	"os"

	"github.com/k4r01q/rung/cmd"
	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/logs"
	"github.com/k4r01q/rung/internal/ui"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logs.Error("CLI error: %v", err)
		ui.Error("%v", err)
		if e := errs.Get(err); e != nil && e.Suggestion != "" {
			ui.Info("%s", e.Suggestion)
		}
		os.Exit(errs.ExitCode(err))
	}
}
