package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"multipay.dev/app/internal/app"
	"multipay.dev/app/internal/config"
)

var (
	olderThan time.Duration
	limit     int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-query every unsettled payment older than --older-than",
	RunE:  runSweep,
}

var oneCmd = &cobra.Command{
	Use:   "one <payment-id>",
	Short: "Re-query a single payment",
	Args:  cobra.ExactArgs(1),
	RunE:  runOne,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List unsettled payments without contacting any gateway",
	RunE:  runList,
}

func init() {
	for _, c := range []*cobra.Command{sweepCmd, listCmd} {
		c.Flags().DurationVar(&olderThan, "older-than", 0, "minimum payment age (defaults to payments.requery_after)")
		c.Flags().IntVar(&limit, "limit", 0, "maximum payments per run (defaults to payments.requery_batch)")
	}
}

func open(ctx context.Context) (*app.App, error) {
	var files []string
	if configFile != "" {
		files = append(files, configFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if olderThan == 0 {
		olderThan = cfg.Payments.ReQueryAfter
	}
	if limit == 0 {
		limit = cfg.Payments.ReQueryBatch
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return app.New(ctx, cfg, logger)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.Payments.Sweep(ctx, olderThan, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "checked:           %d\n", rep.Checked)
	fmt.Fprintf(out, "settled:           %d\n", rep.Settled)
	fmt.Fprintf(out, "became successful: %d\n", rep.BecameSuccessful)
	fmt.Fprintf(out, "still pending:     %d\n", rep.StillPending)
	fmt.Fprintf(out, "errors:            %d\n", rep.Failed)
	return nil
}

func runOne(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Payments.ReQuery(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch {
	case res.AlreadySuccessful:
		fmt.Fprintf(out, "%s: already successful\n", res.Payment.TransactionReference)
	case res.BecameSuccessful:
		fmt.Fprintf(out, "%s: became successful\n", res.Payment.TransactionReference)
	case !res.Known && !res.Payment.IsSettled():
		fmt.Fprintf(out, "%s: not yet known\n", res.Payment.TransactionReference)
	default:
		fmt.Fprintf(out, "%s: %s\n", res.Payment.TransactionReference, res.Payment.Status)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.Payments.ListUnsettled(ctx, olderThan, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range list {
		fmt.Fprintf(out, "%s  %-12s %-40s %s %s  retries=%d\n",
			p.CreatedAt.UTC().Format(time.RFC3339), p.Gateway, p.TransactionReference,
			p.Amount.StringFixed(2), p.Currency, p.RetriesCount)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "no unsettled payments")
	}
	return nil
}
