package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/settlement"
)

func newSettleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Generate and release monthly settlements",
	}
	cmd.AddCommand(newSettleGenerateCmd())
	cmd.AddCommand(newSettleTransitionCmd())
	return cmd
}

func newSettleGenerateCmd() *cobra.Command {
	var monthFlag string
	var employeeIDs []uint

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Aggregate matched commissions into settlement revisions",
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

			generated, err := env.registry.PM.Settlements.Generate(ctx, month, employeeIDs)
			if err != nil {
				return err
			}
			for _, s := range generated {
				fmt.Printf("berater %d rev %d: auszahlung %s\n", s.BeraterID, s.Revision, s.Auszahlung)
			}
			fmt.Printf("%d settlements generated for %s\n", len(generated), month.Format("2006-01"))
			return nil
		},
	}

	cmd.Flags().StringVar(&monthFlag, "month", "", "settlement month (YYYY-MM, required)")
	cmd.Flags().UintSliceVar(&employeeIDs, "employee", nil, "restrict to the given employee ids")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func newSettleTransitionCmd() *cobra.Command {
	var actorID uint

	cmd := &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "Move a settlement along the release workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id uint
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid settlement id %q", args[0])
			}
			to := settlement.Status(args[1])

			ctx, env, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			ctx = withActor(ctx, actorID, "cli")

			updated, err := env.registry.PM.Settlements.Transition(ctx, id, to)
			if err != nil {
				return err
			}
			fmt.Printf("settlement %d is now %s (revision %d)\n", updated.ID, updated.Status, updated.Revision)
			return nil
		},
	}

	cmd.Flags().UintVar(&actorID, "actor", 0, "employee id of the acting user (required for release)")
	return cmd
}

func parseMonth(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", s, err)
	}
	return t, nil
}
