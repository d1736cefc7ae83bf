package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/commission"
)

func newRecalcCmd() *cobra.Command {
	var employeeIDs []uint
	var from string

	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recalculate splits for matched commissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			var scope commission.Scope = commission.ScopeAll{}
			if len(employeeIDs) > 0 {
				s := commission.ScopeEmployees{EmployeeIDs: employeeIDs}
				if from != "" {
					t, err := time.Parse("2006-01-02", from)
					if err != nil {
						return fmt.Errorf("invalid --from date %q: %w", from, err)
					}
					s.EffectiveFrom = &t
				}
				scope = s
			}

			result, err := env.registry.PM.Recalc.Recalculate(ctx, scope)
			if err != nil {
				return err
			}
			fmt.Printf("splits recalculated: %d\nsettlements regenerated: %d\naffected employees: %d\n",
				result.SplitsRecalculated, result.AbrechnungenRegenerated, len(result.AffectedEmployees))
			return nil
		},
	}

	cmd.Flags().UintSliceVar(&employeeIDs, "employee", nil, "restrict to the given employee ids")
	cmd.Flags().StringVar(&from, "from", "", "restrict to payout dates from this day forward (YYYY-MM-DD)")
	return cmd
}
