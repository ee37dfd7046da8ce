package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dbrepl/dbrepl/pkg/replicate"
	"github.com/dbrepl/dbrepl/sdk"
)

func newReplicateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replicate",
		Short: "Copy table data from source to target without touching the schema",
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

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			sink, wait := progressLogger(logger)
			defer wait()

			svc := sdk.New(sdk.ServiceConfig{Logger: logger})
			res, err := svc.Replicate(ctx, cfg, sink)
			if err != nil {
				return err
			}
			renderTableResults(cmd.OutOrStdout(), res)
			if !res.Success {
				return fmt.Errorf("replication failed: %s", res.ErrorMessage)
			}
			return nil
		},
	}
}

// progressLogger wires a channel sink to a background logging consumer.
// The returned wait closes the sink and blocks until the consumer drains.
func progressLogger(logger *zap.SugaredLogger) (*replicate.ChannelSink, func()) {
	sink := replicate.NewChannelSink(256)
	wait := replicate.LogProgress(logger, sink, time.Second)
	return sink, func() {
		sink.Close()
		wait()
	}
}

func renderTableResults(w io.Writer, res *replicate.DataReplicationResult) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Table", "Status", "Rows", "Duration", "Error"})
	for _, tr := range res.TableResults {
		status := "ok"
		switch {
		case tr.Cancelled:
			status = "cancelled"
		case !tr.Success:
			status = "failed"
		}
		tw.Append([]string{
			tr.TableName,
			status,
			fmt.Sprintf("%d", tr.RowsProcessed),
			tr.Duration.Round(time.Millisecond).String(),
			tr.ErrorMessage,
		})
	}
	tw.Render()
	fmt.Fprintf(w, "%d table(s), %d row(s) replicated\n", len(res.TableResults), res.TotalRowsProcessed)
}
