package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the consistency checks and fail when any check fails",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			results, ok := env.registry.PM.Consistency.RunAll(ctx)
			for _, r := range results {
				fmt.Printf("[%s] %s: %s\n", r.Status, r.Check, r.Details)
				for _, ex := range r.Examples {
					fmt.Printf("  example: %s\n", ex)
				}
				for _, w := range r.Warnings {
					fmt.Printf("  warning: %s\n", w)
				}
			}
			if !ok {
				return fmt.Errorf("consistency checks failed")
			}
			fmt.Println("all checks passed")
			return nil
		},
	}
	return cmd
}
