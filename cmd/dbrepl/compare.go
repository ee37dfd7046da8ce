package main

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dbrepl/dbrepl/pkg/schema"
	"github.com/dbrepl/dbrepl/sdk"
)

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare",
		Short: "Show schema differences between source and target",
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
			res, err := svc.Compare(context.Background(), cfg)
			if err != nil {
				return err
			}
			if !res.HasDifferences() {
				fmt.Fprintln(cmd.OutOrStdout(), "schemas are in sync")
				return nil
			}
			renderComparison(cmd.OutOrStdout(), res)
			fmt.Fprintf(cmd.OutOrStdout(), "%d difference(s)\n", res.TotalDifferences())
			return nil
		},
	}
}

func renderComparison(w io.Writer, res *schema.ComparisonResult) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Category", "Object", "Status", "Detail"})
	for _, d := range res.Tables {
		tw.Append([]string{"table", d.Name, string(d.Kind), tableDetail(d)})
	}
	for _, d := range res.Views {
		tw.Append([]string{"view", d.Name, string(d.Kind), ""})
	}
	for _, d := range res.Routines {
		tw.Append([]string{"procedure", d.Name, string(d.Kind), ""})
	}
	for _, d := range res.Functions {
		tw.Append([]string{"function", d.Name, string(d.Kind), ""})
	}
	for _, d := range res.Triggers {
		tw.Append([]string{"trigger", d.Name, string(d.Kind), ""})
	}
	tw.Render()
}

func tableDetail(d schema.TableDiff) string {
	if d.Kind != schema.Different {
		return ""
	}
	return fmt.Sprintf("%d column, %d index, %d foreign key difference(s)",
		len(d.Columns), len(d.Indexes), len(d.ForeignKeys))
}
