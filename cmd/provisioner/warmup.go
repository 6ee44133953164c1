package main

import (
	"context"

	"github.com/spf13/cobra"

	usecase "github.com/tigerroll/provisioner/pkg/provision/core/application/usecase"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
)

func newWarmupCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warmup",
		Short: "Connect mailboxes to the warmup service and manage them",
	}

	var file string
	connect := &cobra.Command{
		Use:   "connect",
		Short: "Connect one mailbox per entry of a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var specs []model.ConnectSpec
			if err := readItems(file, &specs); err != nil {
				return err
			}
			for i := range specs {
				if specs[i].Warmup == (model.WarmupSettings{}) {
					specs[i].Warmup = model.DefaultWarmupSettings()
				}
			}
			return opts.run(cmd, func(ctx context.Context, svc usecase.ProvisioningService) error {
				res, err := svc.SubmitWarmupBatch(ctx, specs)
				if err != nil {
					return err
				}
				return printBatch(cmd.OutOrStdout(), res)
			})
		},
	}
	connect.Flags().StringVarP(&file, "file", "f", "", "YAML file with a list of mailboxes")
	_ = connect.MarkFlagRequired("file")

	var (
		enabled                       bool
		dailyLimit, rampUp, replyRate int
		tag                           string
	)
	update := &cobra.Command{
		Use:   "update <account-id>",
		Short: "Change warmup settings of a connected mailbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch model.WarmupSettingsPatch
			flags := cmd.Flags()
			if flags.Changed("enabled") {
				patch.Enabled = &enabled
			}
			if flags.Changed("daily-limit") {
				patch.DailyLimit = &dailyLimit
			}
			if flags.Changed("ramp-up-increment") {
				patch.RampUpIncrement = &rampUp
			}
			if flags.Changed("reply-rate") {
				patch.ReplyRate = &replyRate
			}
			if flags.Changed("tag") {
				patch.Tag = &tag
			}
			return opts.run(cmd, func(ctx context.Context, svc usecase.ProvisioningService) error {
				settings, err := svc.UpdateWarmupSettings(ctx, args[0], patch)
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), settings)
			})
		},
	}
	update.Flags().BoolVar(&enabled, "enabled", true, "enable or disable warmup")
	update.Flags().IntVar(&dailyLimit, "daily-limit", 0, "maximum warmup emails per day")
	update.Flags().IntVar(&rampUp, "ramp-up-increment", 0, "daily increase of the warmup volume")
	update.Flags().IntVar(&replyRate, "reply-rate", 0, "reply rate in percent")
	update.Flags().StringVar(&tag, "tag", "", "warmup filter tag")

	disconnect := &cobra.Command{
		Use:   "disconnect <account-id>",
		Short: "Deprovision a mailbox on the warmup side and remove its mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc usecase.ProvisioningService) error {
				res, err := svc.DisconnectWarmup(ctx, args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.AddCommand(connect, update, disconnect)
	return cmd
}
