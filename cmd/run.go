package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/driver"
	"github.com/sells-group/outreach-cli/internal/monitoring"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the outreach daemon",
	Long:  "Runs ingestion batches and follow-up dispatch on their cron schedules until interrupted. Serves the HTTP API when server.enabled is set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, config.ModeDaemon)
		if err != nil {
			return err
		}
		defer env.Close()

		src, err := newSource("")
		if err != nil {
			return err
		}
		p := env.buildPipeline(ctx, src)

		d, err := driver.New(
			func(ctx context.Context) error {
				_, err := p.RunBatch(ctx, cfg.Pipeline.MaxLeads)
				return err
			},
			func(ctx context.Context) error {
				_, err := runDispatch(ctx, env)
				return err
			},
			driver.Options{
				IngestSpec:   cfg.Driver.IngestSpec,
				DispatchSpec: cfg.Driver.DispatchSpec,
				Location:     time.Local,
				RunOnStart:   true,
			},
		)
		if err != nil {
			return err
		}
		d.Start()

		go monitoring.NewChecker(env.Collector, env.Alerter, cfg.Monitoring).Run(ctx)

		serverErr := make(chan error, 1)
		if cfg.Server.Enabled {
			go func() {
				serverErr <- serveHTTP(ctx, cfg.Server.Port, newRouter(apiDeps{
					Schedules: env.Scheduler,
					Leads:     env.Leads,
					Collector: env.Collector,
				}))
			}()
		}

		select {
		case <-ctx.Done():
		case err = <-serverErr:
			zap.L().Error("server stopped", zap.Error(err))
		}

		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer cancel()
		if stopErr := d.Stop(stopCtx); stopErr != nil && err == nil {
			err = stopErr
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
