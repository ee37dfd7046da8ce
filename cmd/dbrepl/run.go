package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbrepl/dbrepl/sdk"
)

func newRunCmd() *cobra.Command {
	var cronExpr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: validate, sync schema, replicate data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			svc := sdk.New(sdk.ServiceConfig{Logger: logger})

			if cronExpr != "" {
				sched := sdk.NewScheduler(svc, cfg, logger)
				if err := sched.Start(cronExpr); err != nil {
					return err
				}
				defer sched.Stop()
				logger.Infow("scheduler started", "cron", cronExpr)
				sig := make(chan os.Signal, 1)
				signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
				<-sig
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			sink, wait := progressLogger(logger)
			defer wait()

			res, err := svc.Run(ctx, cfg, sink)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s finished in %s\n", res.RunID, res.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "source %s, target %s\n", res.SourceVersion, res.TargetVersion)
			if res.PreviewOnly {
				fmt.Fprintln(out, "schema differences found; preview only, data replication skipped")
				fmt.Fprint(out, res.Schema.Script.SQL())
				return nil
			}
			if res.Data != nil {
				renderTableResults(out, res.Data)
			}
			if !res.Success {
				return fmt.Errorf("run failed: %s", res.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Run on a cron schedule instead of once")
	return cmd
}
