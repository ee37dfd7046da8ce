package main

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dbrepl/dbrepl/pkg/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "dbrepl",
	Short: "Replicate schema and data between database endpoints",
}

func init() {
	metrics.Register(prometheus.DefaultRegisterer)

	rootCmd.PersistentFlags().StringP("config", "c", "dbrepl.yaml", "Path to the replication config file")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	rootCmd.AddCommand(newCompareCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newReplicateCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
