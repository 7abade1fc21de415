package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configDir string

func main() {
	rootCmd := &cobra.Command{
		Use:   "payouts-worker",
		Short: "Payout orchestration worker",
	}
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", "./cmd/payouts-worker", "directory holding payouts.yaml")

	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
