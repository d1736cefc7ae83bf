package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/commission"
)

func newAutomatchCmd() *cobra.Command {
	var batchID string

	cmd := &cobra.Command{
		Use:   "automatch",
		Short: "Run the staged matching pipeline over unmatched commissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			var scope commission.Scope = commission.ScopeAll{}
			if batchID != "" {
				id, err := uuid.Parse(batchID)
				if err != nil {
					return fmt.Errorf("invalid batch id %q: %w", batchID, err)
				}
				scope = commission.ScopeBatch{BatchID: id}
			}

			result, err := env.registry.PM.Matching.AutoMatch(ctx, scope)
			if err != nil {
				return err
			}
			fmt.Printf("matched: %d\nberater resolved: %d\nsplits calculated: %d\nstill unmatched: %d\n",
				result.Matched, result.BeraterResolved, result.SplitsCalculated, result.StillUnmatched)
			return nil
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "restrict the pass to one import batch")
	return cmd
}
