package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbrepl/dbrepl/sdk"
)

func newSyncCmd() *cobra.Command {
	var preview bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring the target schema in line with the source",
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
			res, err := svc.SyncSchema(context.Background(), cfg, preview)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Comparison.HasDifferences() {
				fmt.Fprintln(out, "schemas are in sync")
				return nil
			}
			if preview {
				fmt.Fprintln(out, "-- preview only, nothing was executed")
				fmt.Fprint(out, res.Script.SQL())
				return nil
			}
			fmt.Fprintf(out, "applied %d statement(s) for %d difference(s)\n",
				len(res.Script.Statements), res.Comparison.TotalDifferences())
			return nil
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "Print the script instead of executing it")
	return cmd
}
