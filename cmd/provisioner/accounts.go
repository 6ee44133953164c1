package main

import (
	"context"

	"github.com/spf13/cobra"

	usecase "github.com/tigerroll/provisioner/pkg/provision/core/application/usecase"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
)

func newAccountsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Create, inspect and delete identity accounts",
	}

	var file string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create one account per entry of a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var specs []model.AccountSpec
			if err := readItems(file, &specs); err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, svc usecase.ProvisioningService) error {
				res, err := svc.SubmitAccountBatch(ctx, specs)
				if err != nil {
					return err
				}
				return printBatch(cmd.OutOrStdout(), res)
			})
		},
	}
	create.Flags().StringVarP(&file, "file", "f", "", "YAML file with a list of accounts")
	_ = create.MarkFlagRequired("file")

	status := &cobra.Command{
		Use:   "status <account-id>",
		Short: "Refresh and show the identity provider state of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc usecase.ProvisioningService) error {
				st, err := svc.GetAccountStatus(ctx, args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), st)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <account-id>",
		Short: "Disconnect warmup, delete the identity account and its mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc usecase.ProvisioningService) error {
				res, err := svc.DeprovisionAccount(ctx, args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.AddCommand(create, status, del)
	return cmd
}
