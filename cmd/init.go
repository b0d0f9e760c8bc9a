package cmd

import (
	"github.com/spf13/cobra"

	"github.com/k4r01q/rung/internal/config"
	"github.com/k4r01q/rung/internal/ui"
)

func newInitCmd() *cobra.Command {
	var trunk string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize rung in the current repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			if err := st.Lock(true); err != nil {
				return err
			}
			defer st.Unlock()

			cfg := config.Default()
			if trunk != "" {
				cfg.Trunk = trunk
			}
			if err := st.Init(cfg); err != nil {
				return err
			}
			ui.Success("Initialized rung (trunk: %s)", cfg.Trunk)
			return nil
		},
	}

	cmd.Flags().StringVar(&trunk, "trunk", "", "Trunk branch name (default \"main\")")
	return cmd
}
