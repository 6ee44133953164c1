package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tigerroll/provisioner/internal/app"
	usecase "github.com/tigerroll/provisioner/pkg/provision/core/application/usecase"
)

// rootOptions are the global flags.
type rootOptions struct {
	embeddedConfig []byte
	configFile     string
	envFile        string
}

func (o *rootOptions) params() app.Params {
	return app.Params{
		EmbeddedConfig: o.embeddedConfig,
		ConfigFilePath: o.configFile,
		EnvFilePath:    o.envFile,
	}
}

// run executes fn against a started container.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, svc usecase.ProvisioningService) error) error {
	return app.Run(cmd.Context(), o.params(), fn)
}

func newRootCommand(embeddedConfig []byte) *cobra.Command {
	opts := &rootOptions{embeddedConfig: embeddedConfig}

	root := &cobra.Command{
		Use:           "provisioner",
		Short:         "Bulk mailbox provisioning: identity accounts and warmup connections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	envFile := os.Getenv("ENV_FILE_PATH")
	if envFile == "" {
		envFile = ".env"
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "configuration file replacing the embedded application.yaml")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", envFile, ".env file loaded before the configuration")

	root.AddCommand(
		newMigrateCommand(opts),
		newAccountsCommand(opts),
		newWarmupCommand(opts),
		newBatchCommand(opts),
	)
	return root
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending ledger schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Migrations run while the container starts.
			return opts.run(cmd, func(ctx context.Context, _ usecase.ProvisioningService) error {
				fmt.Fprintln(cmd.OutOrStdout(), "Ledger schema is up to date.")
				return nil
			})
		},
	}
}
