package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var monthFlag string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the current settlement revisions of a month to xlsx",
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := parseMonth(monthFlag)
			if err != nil {
				return err
			}

			ctx, env, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := os.MkdirAll(env.conf.SettlementExportDir, 0o755); err != nil {
				return fmt.Errorf("creating export directory: %w", err)
			}

			path, err := env.registry.PM.SettlementExport.Export(ctx, month)
			if err != nil {
				return err
			}
			fmt.Printf("written %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&monthFlag, "month", "", "settlement month (YYYY-MM, required)")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}
