package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maklerwerk/backoffice/modules"
	"github.com/maklerwerk/backoffice/pkg/composables"
	"github.com/maklerwerk/backoffice/pkg/configuration"
	"github.com/maklerwerk/backoffice/pkg/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "backoffice",
		Short:         "Commission matching, split calculation and settlement engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newAutomatchCmd())
	cmd.AddCommand(newRecalcCmd())
	cmd.AddCommand(newSettleCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newCheckCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type runtimeEnv struct {
	conf     *configuration.Configuration
	log      *logrus.Logger
	pool     *pgxpool.Pool
	registry *modules.Registry
}

// bootstrap loads configuration, connects the pool and wires the modules.
// The returned context carries the pool for the composables layer.
func bootstrap(ctx context.Context) (context.Context, *runtimeEnv, func(), error) {
	conf := configuration.Use()
	log := logging.New(conf.LogLevel)

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, conf.Database.ConnectionString())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	registry := modules.Load(conf, log)
	env := &runtimeEnv{conf: conf, log: log, pool: pool, registry: registry}
	return composables.WithPool(ctx, pool), env, pool.Close, nil
}

// withActor attaches the acting user from the --actor flag when given.
func withActor(ctx context.Context, actorID uint, actorName string) context.Context {
	if actorID == 0 {
		return ctx
	}
	return composables.WithActor(ctx, composables.Actor{ID: actorID, Name: actorName})
}
