package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "requery",
	Short: "Ask gateways about payments that are still unsettled",
	Long: `requery polls payment gateways for payments that never received a
redirect confirmation or webhook. It is meant for operators and cron jobs;
the web service never re-queries on its own.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (defaults to ./multipay.yaml when present)")
	rootCmd.AddCommand(sweepCmd, oneCmd, listCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
