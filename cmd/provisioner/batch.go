package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	usecase "github.com/tigerroll/provisioner/pkg/provision/core/application/usecase"
)

func newBatchCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Inspect, retry, abandon and export batches",
	}

	show := &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show a batch with its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc usecase.ProvisioningService) error {
				res, err := svc.GetBatch(ctx, args[0])
				if err != nil {
					return err
				}
				return printBatch(cmd.OutOrStdout(), res)
			})
		},
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, svc usecase.ProvisioningService) error {
				ops, err := svc.ListBatches(ctx, limit)
				if err != nil {
					return err
				}
				printBatchTable(cmd.OutOrStdout(), ops)
				return nil
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of batches to show")

	var includeSkipped bool
	retry := &cobra.Command{
		Use:   "retry <batch-id>",
		Short: "Replay the failed items of a finished batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc usecase.ProvisioningService) error {
				res, err := svc.RetryFailedBatchItems(ctx, args[0], usecase.RetryOptions{IncludeSkipped: includeSkipped})
				if err != nil {
					return err
				}
				return printBatch(cmd.OutOrStdout(), res)
			})
		},
	}
	retry.Flags().BoolVar(&includeSkipped, "include-skipped", false, "also replay items skipped by a stop")

	abandon := &cobra.Command{
		Use:   "abandon <batch-id>",
		Short: "Close a batch left in progress by a process that is no longer running",
		Long: "Close a batch left in progress by a process that is no longer running.\n" +
			"Unfinished items end failed or skipped so the batch can be retried.\n" +
			"Only use it when no other process is still working on the batch.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc usecase.ProvisioningService) error {
				res, err := svc.AbandonBatch(ctx, args[0])
				if err != nil {
					return err
				}
				return printBatch(cmd.OutOrStdout(), res)
			})
		},
	}

	report := &cobra.Command{
		Use:   "report <batch-id>",
		Short: "Write a parquet report of a finished batch to report storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc usecase.ProvisioningService) error {
				name, err := svc.ExportBatchReport(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
				return nil
			})
		},
	}

	cmd.AddCommand(show, list, retry, abandon, report)
	return cmd
}
